package datastore

import (
	"context"
	"fmt"
)

// Handle is a read-only view of one visit's sub-collection.
//
// Handles are expensive to construct relative to the lookups they
// serve, which is why callers cache and share them (see
// internal/cache.ResourceCache). A handle is immutable after
// construction and safe for concurrent use; it must never be used to
// mutate the store.
type Handle struct {
	store      Store
	collection string
	visit      Visit
}

// newHandle is called by Store implementations from Open.
func newHandle(s Store, baseCollection string, visit Visit) *Handle {
	return &Handle{
		store:      s,
		collection: CollectionForVisit(baseCollection, visit),
		visit:      visit,
	}
}

// Visit returns the visit the handle is bound to.
func (h *Handle) Visit() Visit { return h.visit }

// Collection returns the sub-collection the handle reads from.
func (h *Handle) Collection() string { return h.collection }

// Get retrieves one per-arm product for the handle's visit.
func (h *Handle) Get(ctx context.Context, product string, spectrograph int, arm string) (*Dataset, error) {
	return h.store.GetDataset(ctx, Key{
		Collection:   h.collection,
		Visit:        h.visit,
		Product:      product,
		Spectrograph: spectrograph,
		Arm:          arm,
	})
}

// Exists reports whether a per-arm product is present without fetching
// its payload.
func (h *Handle) Exists(ctx context.Context, product string, spectrograph int, arm string) (bool, error) {
	return h.store.Exists(ctx, Key{
		Collection:   h.collection,
		Visit:        h.visit,
		Product:      product,
		Spectrograph: spectrograph,
		Arm:          arm,
	})
}

// VisitConfig retrieves the visit configuration (fiber to observation
// code assignments) for the handle's visit.
func (h *Handle) VisitConfig(ctx context.Context) (*VisitConfig, error) {
	ds, err := h.store.GetDataset(ctx, Key{
		Collection: h.collection,
		Visit:      h.visit,
		Product:    ProductVisitConfig,
	})
	if err != nil {
		return nil, err
	}
	if ds.Config == nil {
		return nil, fmt.Errorf("visit %d: dataset %s has no visit configuration payload", h.visit, ds.Key)
	}
	return ds.Config, nil
}
