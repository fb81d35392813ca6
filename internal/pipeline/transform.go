package pipeline

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/obsproc/quicklook/internal/datastore"
)

// Scale selects the intensity scaling applied before display.
type Scale string

const (
	// ScaleZ clips to quantile-derived display limits, which keeps a
	// few hot pixels from washing out the frame.
	ScaleZ Scale = "zscale"
	// ScaleMinMax stretches the full data range linearly.
	ScaleMinMax Scale = "minmax"
)

// TransformOptions tunes the exposure-to-display transform.
type TransformOptions struct {
	Scale       Scale
	SubtractSky bool
	// AsinhStretch applies an asinh stretch after normalization,
	// lifting faint structure.
	AsinhStretch bool
}

// Transform converts a raw exposure array (optionally sky-subtracted)
// into a normalized [0,1] display array plus display metadata.
func Transform(exposure *datastore.Array2D, sky *datastore.Array2D, opts TransformOptions) (*datastore.Array2D, map[string]string, error) {
	if exposure == nil || len(exposure.Pix) == 0 {
		return nil, nil, fmt.Errorf("empty exposure array")
	}

	pix := make([]float32, len(exposure.Pix))
	copy(pix, exposure.Pix)

	if opts.SubtractSky && sky != nil {
		if len(sky.Pix) != len(pix) {
			return nil, nil, fmt.Errorf("sky array shape %dx%d does not match exposure %dx%d",
				sky.Width, sky.Height, exposure.Width, exposure.Height)
		}
		for i := range pix {
			pix[i] -= sky.Pix[i]
		}
	}

	lo, hi := displayLimits(pix, opts.Scale)
	span := hi - lo
	if span <= 0 {
		// Flat frame: render mid-gray rather than dividing by zero.
		for i := range pix {
			pix[i] = 0.5
		}
	} else {
		for i := range pix {
			v := (pix[i] - float32(lo)) / float32(span)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			pix[i] = v
		}
		if opts.AsinhStretch {
			for i := range pix {
				pix[i] = asinh01(pix[i])
			}
		}
	}

	meta := map[string]string{
		"scale":   string(scaleOrDefault(opts.Scale)),
		"vmin":    fmt.Sprintf("%g", lo),
		"vmax":    fmt.Sprintf("%g", hi),
		"sky_sub": fmt.Sprintf("%t", opts.SubtractSky && sky != nil),
		"stretch": fmt.Sprintf("%t", opts.AsinhStretch),
	}
	return &datastore.Array2D{Width: exposure.Width, Height: exposure.Height, Pix: pix}, meta, nil
}

func scaleOrDefault(s Scale) Scale {
	if s == "" {
		return ScaleZ
	}
	return s
}

// displayLimits picks the clip range for the chosen scale.
func displayLimits(pix []float32, scale Scale) (lo, hi float64) {
	vals := make([]float64, 0, len(pix))
	for _, v := range pix {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			vals = append(vals, f)
		}
	}
	if len(vals) == 0 {
		return 0, 0
	}
	sort.Float64s(vals)

	if scaleOrDefault(scale) == ScaleMinMax {
		return vals[0], vals[len(vals)-1]
	}
	// Quantile clip stands in for the classic zscale fit.
	lo = stat.Quantile(0.02, stat.Empirical, vals, nil)
	hi = stat.Quantile(0.98, stat.Empirical, vals, nil)
	return lo, hi
}

// asinh01 maps [0,1] through an asinh stretch back onto [0,1].
func asinh01(v float32) float32 {
	const softening = 10
	return float32(math.Asinh(float64(v)*softening) / math.Asinh(softening))
}
