package session

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/obsproc/quicklook/internal/cache"
	"github.com/obsproc/quicklook/internal/datastore"
)

// lookupTables is the immutable fiber lookup pair for one visit.
// Tables are built once per load and swapped in atomically, so readers
// never see a half-built pair.
type lookupTables struct {
	visit        datastore.Visit
	codeToFibers map[string][]int
	fiberToCode  map[int]string
	codes        []string // sorted
}

// State is one session's dashboard state.
//
// Everything except the caches is owned by the UI loop. The caches are
// shared with background discovery and build work and carry their own
// synchronization.
type State struct {
	// ID names the session, for logs.
	ID string

	// Resources deduplicates visit handle construction across builds.
	Resources *cache.ResourceCache

	// Validity is the discovery validity cache.
	Validity *cache.VisitValidityCache

	// SyncGuard suppresses widget update echo; see Guard.
	SyncGuard Guard

	tables atomic.Pointer[lookupTables]
}

// NewState returns an empty session state.
func NewState(id string) *State {
	return &State{
		ID:        id,
		Resources: cache.NewResourceCache(),
		Validity:  cache.NewVisitValidityCache(),
	}
}

// LoadVisit fetches the visit's fiber configuration through the handle
// and swaps in fresh lookup tables. Until the first successful load,
// lookups come up empty.
func (s *State) LoadVisit(ctx context.Context, h *datastore.Handle) error {
	cfg, err := h.VisitConfig(ctx)
	if err != nil {
		return err
	}

	t := &lookupTables{
		visit:        h.Visit(),
		codeToFibers: make(map[string][]int),
		fiberToCode:  make(map[int]string),
	}
	for _, f := range cfg.Fibers {
		if f.Code == "" {
			continue // unassigned fiber
		}
		t.codeToFibers[f.Code] = append(t.codeToFibers[f.Code], f.FiberID)
		t.fiberToCode[f.FiberID] = f.Code
	}
	for code, fibers := range t.codeToFibers {
		sort.Ints(fibers)
		t.codes = append(t.codes, code)
	}
	sort.Strings(t.codes)

	s.tables.Store(t)
	return nil
}

// Reset drops the loaded visit's tables. Lookups come up empty until
// the next successful load.
func (s *State) Reset() {
	s.tables.Store(nil)
}

// Loaded reports whether a visit's tables are in place.
func (s *State) Loaded() bool {
	return s.tables.Load() != nil
}

// Visit returns the loaded visit, or 0 when nothing is loaded.
func (s *State) Visit() datastore.Visit {
	if t := s.tables.Load(); t != nil {
		return t.visit
	}
	return 0
}

// Codes returns the sorted observation codes of the loaded visit.
func (s *State) Codes() []string {
	if t := s.tables.Load(); t != nil {
		return t.codes
	}
	return nil
}

// FibersForCode returns the sorted fiber ids assigned to code.
func (s *State) FibersForCode(code string) []int {
	if t := s.tables.Load(); t != nil {
		return t.codeToFibers[code]
	}
	return nil
}

// CodeForFiber returns the observation code a fiber is assigned to.
func (s *State) CodeForFiber(fiber int) (string, bool) {
	if t := s.tables.Load(); t != nil {
		code, ok := t.fiberToCode[fiber]
		return code, ok
	}
	return "", false
}
