// Package render turns normalized display arrays into images.
package render

import (
	"fmt"
	"image"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"

	"github.com/obsproc/quicklook/internal/datastore"
)

// Grayscale converts a normalized [0,1] array into an 8-bit grayscale
// image. Values outside [0,1] clip.
func Grayscale(a *datastore.Array2D) (*image.Gray, error) {
	if a == nil || a.Width <= 0 || a.Height <= 0 || len(a.Pix) != a.Width*a.Height {
		return nil, fmt.Errorf("malformed array")
	}
	img := image.NewGray(image.Rect(0, 0, a.Width, a.Height))
	for i, v := range a.Pix {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		img.Pix[i] = uint8(v*255 + 0.5)
	}
	return img, nil
}

// Downscale resizes img to fit within maxW x maxH, preserving aspect
// ratio. Images already within bounds are returned as-is.
func Downscale(img *image.Gray, maxW, maxH int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	dw, dh := int(float64(w)*scale), int(float64(h)*scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// WritePNG encodes the array as a PNG, downscaled to fit maxW x maxH.
func WritePNG(w io.Writer, a *datastore.Array2D, maxW, maxH int) error {
	img, err := Grayscale(a)
	if err != nil {
		return err
	}
	return png.Encode(w, Downscale(img, maxW, maxH))
}
