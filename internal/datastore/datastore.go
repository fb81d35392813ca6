// Package datastore provides access to the dataset store that holds
// reduced exposure products.
//
// The store is a registry of collections. Visits are published as
// sub-collections of a base collection ("<base>/<visit>"), each holding
// the per-visit products: the exposure arrays per (spectrograph, arm),
// the sky model arrays, and the visit configuration that maps fibers to
// observation codes.
//
// # Thread Safety
//
// All Store implementations are safe for concurrent use from multiple
// goroutines. Handles are read-only views and are likewise safe to
// share.
package datastore

import (
	"context"
	"path"
	"strconv"
)

// Visit identifies one discrete exposure. Positive, immutable once
// published.
type Visit int

// Product names for the per-visit datasets.
const (
	ProductExposure    = "exposure"
	ProductSky         = "sky"
	ProductVisitConfig = "visitconfig"
)

// Key identifies one dataset within the store.
//
// Spectrograph and Arm are zero for visit-scoped products such as the
// visit configuration.
type Key struct {
	Collection   string
	Visit        Visit
	Product      string
	Spectrograph int
	Arm          string
}

// String renders the key the way it appears in log lines and error
// messages.
func (k Key) String() string {
	s := k.Collection + "/" + strconv.Itoa(int(k.Visit)) + "/" + k.Product
	if k.Spectrograph != 0 || k.Arm != "" {
		s += "/" + k.Arm + strconv.Itoa(k.Spectrograph)
	}
	return s
}

// Array2D is a dense row-major float32 raster.
type Array2D struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Pix    []float32 `json:"pix"`
}

// At returns the pixel at (x, y). No bounds checking.
func (a *Array2D) At(x, y int) float32 {
	return a.Pix[y*a.Width+x]
}

// Dataset is one stored product: a numeric array plus free-form
// metadata. Visit-scoped products may carry metadata only.
type Dataset struct {
	Key    Key               `json:"key"`
	Meta   map[string]string `json:"meta,omitempty"`
	Array  *Array2D          `json:"array,omitempty"`
	Config *VisitConfig      `json:"config,omitempty"`
}

// FiberTarget is one fiber's assignment in a visit configuration.
type FiberTarget struct {
	FiberID int    `json:"fiber_id"`
	Code    string `json:"code"`
}

// VisitConfig describes how fibers were allocated for a visit.
type VisitConfig struct {
	Visit  Visit         `json:"visit"`
	Fibers []FiberTarget `json:"fibers"`
}

// Store is the dataset store consumed by discovery and the build
// pipeline. Implementations must tolerate concurrent calls.
type Store interface {
	// Exists reports whether the dataset identified by key is present.
	Exists(ctx context.Context, key Key) (bool, error)

	// GetDataset retrieves one dataset. Absent datasets yield a
	// *NotFoundError.
	GetDataset(ctx context.Context, key Key) (*Dataset, error)

	// ListCollections enumerates collection names under the given
	// prefix. This is a cheap metadata operation.
	ListCollections(ctx context.Context, prefix string) ([]string, error)

	// VisitDate returns the observation date ("2006-01-02", UTC) the
	// visit was taken on. Unknown visits yield a *NotFoundError.
	VisitDate(ctx context.Context, baseCollection string, visit Visit) (string, error)

	// Open returns a read-only handle bound to the visit's
	// sub-collection. The handle is valid until the store is closed.
	Open(ctx context.Context, baseCollection string, visit Visit) (*Handle, error)
}

// CollectionForVisit returns the sub-collection a visit's products are
// published under.
func CollectionForVisit(baseCollection string, visit Visit) string {
	return path.Join(baseCollection, strconv.Itoa(int(visit)))
}

// VisitFromCollection parses the trailing visit number out of a
// sub-collection name. Returns false for names that are not visit
// sub-collections.
func VisitFromCollection(name string) (Visit, bool) {
	base := path.Base(name)
	n, err := strconv.Atoi(base)
	if err != nil || n <= 0 {
		return 0, false
	}
	return Visit(n), true
}
