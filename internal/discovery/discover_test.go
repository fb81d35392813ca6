package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsproc/quicklook/internal/cache"
	"github.com/obsproc/quicklook/internal/datastore"
)

// countingStore counts VisitDate calls on top of a MemoryStore.
type countingStore struct {
	*datastore.MemoryStore
	visitDateCalls atomic.Int64
}

func (s *countingStore) VisitDate(ctx context.Context, base string, visit datastore.Visit) (string, error) {
	s.visitDateCalls.Add(1)
	return s.MemoryStore.VisitDate(ctx, base, visit)
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: datastore.NewMemoryStore()}
}

func TestDiscoverPartitionsAndUpdatesCache(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.PutVisit("ql/raw", 100, "2025-05-20")
	s.PutVisit("ql/raw", 101, "2025-05-20")
	s.PutVisit("ql/raw", 102, "2025-05-19")

	vc := cache.NewVisitValidityCache()
	vc.Put(100, "2025-05-20") // already validated for the working date
	vc.Put(102, "2025-05-20") // stale: the store says 2025-05-19

	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", vc, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if !visitsEqual(visits, []datastore.Visit{101, 100}) {
		t.Errorf("visits = %v, want [101 100]", visits)
	}

	// 100 was cached valid: no lookup. 101 and 102 needed checks.
	if got := s.visitDateCalls.Load(); got != 2 {
		t.Errorf("VisitDate calls = %d, want 2", got)
	}

	if _, ok := vc.Get(101); !ok {
		t.Error("validated visit 101 should be cached")
	}
	if _, ok := vc.Get(102); ok {
		t.Error("mismatched visit 102 should be removed from the cache")
	}
	if vc.Len() != 2 {
		t.Errorf("cache Len = %d, want 2", vc.Len())
	}
}

func TestDiscoverCachedVisitsSkipValidation(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.PutVisit("ql/raw", 100, "2025-05-20")
	s.PutVisit("ql/raw", 101, "2025-05-20")

	vc := cache.NewVisitValidityCache()
	vc.Put(100, "2025-05-20")
	vc.Put(101, "2025-05-20")

	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", vc, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(visits) != 2 {
		t.Errorf("visits = %v", visits)
	}
	if got := s.visitDateCalls.Load(); got != 0 {
		t.Errorf("VisitDate calls = %d, want 0 for a fully cached set", got)
	}
}

func TestDiscoverListingFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.ListErr = errors.New("registry offline")

	vc := cache.NewVisitValidityCache()
	vc.Put(100, "2025-05-20")
	vc.Put(101, "2025-05-20")

	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", vc, Options{})
	if !errors.Is(err, ErrListFailed) {
		t.Fatalf("err = %v, want ErrListFailed", err)
	}
	if len(visits) != 0 {
		t.Errorf("visits = %v, want empty on listing failure", visits)
	}
	if vc.Len() != 2 {
		t.Errorf("cache Len = %d, want 2 (untouched)", vc.Len())
	}
}

func TestDiscoverPerVisitFailuresAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	s.PutVisit("ql/raw", 100, "2025-05-20")
	s.PutVisit("ql/raw", 101, "2025-05-20")
	s.PutVisit("ql/raw", 102, "2025-05-20")
	s.VisitDateErr = func(v datastore.Visit) error {
		if v == 101 {
			return errors.New("lookup timed out")
		}
		return nil
	}

	vc := cache.NewVisitValidityCache()
	vc.Put(101, "2025-05-19") // stale, forces a re-check that will fail

	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", vc, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if !visitsEqual(visits, []datastore.Visit{102, 100}) {
		t.Errorf("visits = %v, want [102 100]", visits)
	}
	if _, ok := vc.Get(101); ok {
		t.Error("failed visit 101 should be removed from the cache")
	}
}

// mixedListStore returns visit and non-visit collection names side by
// side, as a real registry does.
type mixedListStore struct {
	*datastore.MemoryStore
	names []string
}

func (s *mixedListStore) ListCollections(ctx context.Context, prefix string) ([]string, error) {
	return s.names, nil
}

func TestDiscoverIgnoresNonVisitCollections(t *testing.T) {
	ctx := context.Background()
	inner := datastore.NewMemoryStore()
	inner.PutVisit("ql/raw", 100, "2025-05-20")
	s := &mixedListStore{
		MemoryStore: inner,
		names:       []string{"ql/raw/100", "ql/raw/calib", "ql/raw/defects"},
	}

	vc := cache.NewVisitValidityCache()
	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", vc, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if !visitsEqual(visits, []datastore.Visit{100}) {
		t.Errorf("visits = %v, want [100]", visits)
	}
}

func TestDiscoverHonorsLimiter(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	for v := 1; v <= 5; v++ {
		s.PutVisit("ql/raw", datastore.Visit(v), "2025-05-20")
	}

	lim := rate.NewLimiter(rate.Every(5*time.Millisecond), 1)
	start := time.Now()
	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", cache.NewVisitValidityCache(), Options{Limiter: lim})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(visits) != 5 {
		t.Errorf("visits = %v", visits)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, limiter should have paced the lookups", elapsed)
	}
}

func TestDiscoverBoundedParallelism(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	for v := 1; v <= 40; v++ {
		s.PutVisit("ql/raw", datastore.Visit(v), "2025-05-20")
	}

	var mu sync.Mutex
	inFlight, peak := 0, 0
	s.VisitDateErr = func(datastore.Visit) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	vc := cache.NewVisitValidityCache()
	visits, err := Discover(ctx, s, "ql/raw", "2025-05-20", vc, Options{Workers: 4})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(visits) != 40 {
		t.Errorf("visits = %d, want 40", len(visits))
	}
	if peak > 4 {
		t.Errorf("peak parallelism = %d, want <= 4", peak)
	}
	// Newest first.
	if visits[0] != 40 || visits[39] != 1 {
		t.Errorf("visits not sorted newest first: %v", visits)
	}
}
