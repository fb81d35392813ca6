package pipeline

import (
	"errors"
	"sort"

	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/logging"
)

// ErrNoResults signals that a build produced zero successful arms
// across every requested spectrograph.
var ErrNoResults = errors.New("no displayable results for any spectrograph")

// PanelImage is one successfully built arm within a panel.
type PanelImage struct {
	Arm   Arm
	Array *datastore.Array2D
	Meta  map[string]string
}

// ArmError is one failed arm within a panel: a real fault, not a
// missing dataset.
type ArmError struct {
	Arm     Arm
	Message string
}

// ReducedPanel is the aggregated outcome for one spectrograph.
// Successes follow the fixed display arm order. Missing arms are
// expected conditions (the dataset was never produced); Errors are
// alarming and surfaced to the user.
type ReducedPanel struct {
	Spectrograph int
	Successes    []PanelImage
	Missing      []Arm
	Errors       []ArmError
}

// Reduce folds one spectrograph's results into a panel. ok is false
// when no arm succeeded; such spectrographs produce no panel.
func Reduce(spectrograph int, results []BuildResult) (ReducedPanel, bool) {
	panel := ReducedPanel{Spectrograph: spectrograph}

	byArm := make(map[Arm]BuildResult, len(results))
	present := make(map[Arm]bool, len(results))
	for _, r := range results {
		byArm[r.Task.Arm] = r
		present[r.Task.Arm] = true
	}

	for _, arm := range DisplayOrder(present) {
		r := byArm[arm]
		switch {
		case r.Err == nil:
			panel.Successes = append(panel.Successes, PanelImage{Arm: arm, Array: r.Array, Meta: r.Meta})
		case datastore.IsNotFound(r.Err):
			panel.Missing = append(panel.Missing, arm)
		default:
			panel.Errors = append(panel.Errors, ArmError{Arm: arm, Message: r.Err.Error()})
		}
	}

	if len(panel.Successes) == 0 {
		logging.Info("No displayable arms for spectrograph",
			"spectrograph", spectrograph,
			"missing", len(panel.Missing),
			"errors", len(panel.Errors))
		return panel, false
	}
	return panel, true
}

// ReduceAll folds a whole build into panels sorted by spectrograph.
// Returns ErrNoResults only when every spectrograph came up empty.
func ReduceAll(grouped map[int][]BuildResult) ([]ReducedPanel, error) {
	specs := make([]int, 0, len(grouped))
	for spec := range grouped {
		specs = append(specs, spec)
	}
	sort.Ints(specs)

	var panels []ReducedPanel
	for _, spec := range specs {
		if panel, ok := Reduce(spec, grouped[spec]); ok {
			panels = append(panels, panel)
		}
	}
	if len(panels) == 0 && len(grouped) > 0 {
		return nil, ErrNoResults
	}
	return panels, nil
}
