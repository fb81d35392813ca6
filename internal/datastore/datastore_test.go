package datastore

import (
	"context"
	"errors"
	"testing"
)

func TestCollectionForVisit(t *testing.T) {
	tests := []struct {
		base  string
		visit Visit
		want  string
	}{
		{"quicklook/raw", 123, "quicklook/raw/123"},
		{"quicklook", 1, "quicklook/1"},
		{"quicklook/", 45, "quicklook/45"},
	}
	for _, tt := range tests {
		if got := CollectionForVisit(tt.base, tt.visit); got != tt.want {
			t.Errorf("CollectionForVisit(%q, %d) = %q, want %q", tt.base, tt.visit, got, tt.want)
		}
	}
}

func TestVisitFromCollection(t *testing.T) {
	tests := []struct {
		name   string
		visit  Visit
		wantOK bool
	}{
		{"quicklook/raw/123", 123, true},
		{"quicklook/raw/0", 0, false},
		{"quicklook/raw/-5", 0, false},
		{"quicklook/raw/calib", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := VisitFromCollection(tt.name)
		if ok != tt.wantOK || got != tt.visit {
			t.Errorf("VisitFromCollection(%q) = (%d, %v), want (%d, %v)",
				tt.name, got, ok, tt.visit, tt.wantOK)
		}
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Collection: "ql/raw/100", Visit: 100, Product: ProductExposure, Spectrograph: 2, Arm: "b"}
	if got, want := k.String(), "ql/raw/100/100/exposure/b2"; got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}

	scoped := Key{Collection: "ql/raw/100", Visit: 100, Product: ProductVisitConfig}
	if got, want := scoped.String(), "ql/raw/100/100/visitconfig"; got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &NotFoundError{Key: Key{Visit: 7}}, true},
		{"substring fallback", errors.New("dataset exposure could not be found in registry"), true},
		{"plain fault", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	wrapped := errors.Join(errors.New("fetch failed"), &NotFoundError{Key: Key{Visit: 9}})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see a NotFoundError through wrapping")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutVisit("ql/raw", 100, "2025-05-20")
	s.PutVisit("ql/raw", 101, "2025-05-20")

	key := Key{Collection: "ql/raw/100", Visit: 100, Product: ProductExposure, Spectrograph: 1, Arm: "b"}
	s.PutDataset(&Dataset{
		Key:   key,
		Meta:  map[string]string{"exptime": "900"},
		Array: &Array2D{Width: 2, Height: 2, Pix: []float32{1, 2, 3, 4}},
	})

	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", ok, err)
	}

	ds, err := s.GetDataset(ctx, key)
	if err != nil {
		t.Fatalf("GetDataset failed: %v", err)
	}
	if ds.Meta["exptime"] != "900" {
		t.Errorf("meta = %v", ds.Meta)
	}
	if got := ds.Array.At(1, 1); got != 4 {
		t.Errorf("At(1,1) = %v, want 4", got)
	}

	_, err = s.GetDataset(ctx, Key{Collection: "ql/raw/100", Visit: 100, Product: ProductSky, Spectrograph: 1, Arm: "b"})
	if !IsNotFound(err) {
		t.Errorf("missing dataset should be NotFound, got %v", err)
	}

	names, err := s.ListCollections(ctx, "ql/raw")
	if err != nil {
		t.Fatalf("ListCollections failed: %v", err)
	}
	if len(names) != 2 || names[0] != "ql/raw/100" || names[1] != "ql/raw/101" {
		t.Errorf("ListCollections = %v", names)
	}

	date, err := s.VisitDate(ctx, "ql/raw", 101)
	if err != nil || date != "2025-05-20" {
		t.Errorf("VisitDate = (%q, %v)", date, err)
	}
	if _, err := s.VisitDate(ctx, "ql/raw", 999); !IsNotFound(err) {
		t.Errorf("unknown visit should be NotFound, got %v", err)
	}
}

func TestMemoryStoreFaults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutVisit("ql/raw", 100, "2025-05-20")

	s.ListErr = errors.New("registry offline")
	if _, err := s.ListCollections(ctx, "ql/raw"); err == nil {
		t.Error("ListCollections should surface the injected fault")
	}

	s.VisitDateErr = func(v Visit) error {
		if v == 100 {
			return errors.New("lookup timed out")
		}
		return nil
	}
	if _, err := s.VisitDate(ctx, "ql/raw", 100); err == nil {
		t.Error("VisitDate should surface the injected fault")
	}
	if _, err := s.Open(ctx, "ql/raw", 100); err == nil {
		t.Error("Open should refuse when visit validation fails")
	}
}

func TestHandleReads(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutVisit("ql/raw", 200, "2025-06-01")
	s.PutDataset(&Dataset{
		Key:   Key{Collection: "ql/raw/200", Visit: 200, Product: ProductExposure, Spectrograph: 3, Arm: "r"},
		Array: &Array2D{Width: 1, Height: 1, Pix: []float32{7}},
	})
	s.PutDataset(&Dataset{
		Key: Key{Collection: "ql/raw/200", Visit: 200, Product: ProductVisitConfig},
		Config: &VisitConfig{
			Visit: 200,
			Fibers: []FiberTarget{
				{FiberID: 1, Code: "SSP-001"},
				{FiberID: 2, Code: "SSP-002"},
			},
		},
	})

	h, err := s.Open(ctx, "ql/raw", 200)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if h.Visit() != 200 || h.Collection() != "ql/raw/200" {
		t.Errorf("handle = visit %d collection %q", h.Visit(), h.Collection())
	}

	ds, err := h.Get(ctx, ProductExposure, 3, "r")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ds.Array.Pix[0] != 7 {
		t.Errorf("payload = %v", ds.Array.Pix)
	}

	ok, err := h.Exists(ctx, ProductExposure, 3, "n")
	if err != nil || ok {
		t.Errorf("Exists for absent arm = (%v, %v), want (false, nil)", ok, err)
	}

	cfg, err := h.VisitConfig(ctx)
	if err != nil {
		t.Fatalf("VisitConfig failed: %v", err)
	}
	if len(cfg.Fibers) != 2 || cfg.Fibers[0].Code != "SSP-001" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir() + "/registry.db")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	if err := s.PutVisit(ctx, "ql/raw", 300, "2025-07-04"); err != nil {
		t.Fatalf("PutVisit failed: %v", err)
	}
	if err := s.PutVisit(ctx, "ql/raw", 301, "2025-07-04"); err != nil {
		t.Fatalf("PutVisit failed: %v", err)
	}

	ds := &Dataset{
		Key:   Key{Collection: "ql/raw/300", Visit: 300, Product: ProductExposure, Spectrograph: 1, Arm: "n"},
		Meta:  map[string]string{"exptime": "450"},
		Array: &Array2D{Width: 2, Height: 1, Pix: []float32{0.5, 1.5}},
	}
	if err := s.PutDataset(ctx, ds); err != nil {
		t.Fatalf("PutDataset failed: %v", err)
	}

	got, err := s.GetDataset(ctx, ds.Key)
	if err != nil {
		t.Fatalf("GetDataset failed: %v", err)
	}
	if got.Meta["exptime"] != "450" || got.Array.Width != 2 || got.Array.Pix[1] != 1.5 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := s.GetDataset(ctx, Key{Collection: "ql/raw/300", Visit: 300, Product: ProductSky, Spectrograph: 1, Arm: "n"}); !IsNotFound(err) {
		t.Errorf("missing dataset should be NotFound, got %v", err)
	}

	names, err := s.ListCollections(ctx, "ql/raw")
	if err != nil {
		t.Fatalf("ListCollections failed: %v", err)
	}
	if len(names) != 2 || names[0] != "ql/raw/300" {
		t.Errorf("ListCollections = %v", names)
	}

	date, err := s.VisitDate(ctx, "ql/raw", 301)
	if err != nil || date != "2025-07-04" {
		t.Errorf("VisitDate = (%q, %v)", date, err)
	}

	// Upsert replaces the date.
	if err := s.PutVisit(ctx, "ql/raw", 301, "2025-07-05"); err != nil {
		t.Fatalf("PutVisit upsert failed: %v", err)
	}
	date, _ = s.VisitDate(ctx, "ql/raw", 301)
	if date != "2025-07-05" {
		t.Errorf("after upsert VisitDate = %q", date)
	}

	h, err := s.Open(ctx, "ql/raw", 300)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if h.Collection() != "ql/raw/300" {
		t.Errorf("handle collection = %q", h.Collection())
	}
	if _, err := s.Open(ctx, "ql/raw", 999); !IsNotFound(err) {
		t.Errorf("Open unknown visit should be NotFound, got %v", err)
	}
}
