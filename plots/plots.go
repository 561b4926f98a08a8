// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots renders dataset samples for visual inspection: it
// converts sample tensors back to images, paints class-index masks with
// the dataset palette, and composes overlay figures.
package plots

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/gomlx/geodatasets"
	"github.com/gomlx/geodatasets/raster"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ToImage converts a channel-first [C, H, W] Uint8 image tensor back to
// an image, for C of 1, 3 or 4. A fourth channel (infrared in the
// orthophoto datasets) is dropped: the result is fully opaque.
func ToImage(t *tensors.Tensor) (image.Image, error) {
	if t.DType() != dtypes.Uint8 || t.Shape().Rank() != 3 {
		return nil, errors.Errorf("expected a [channels, height, width] Uint8 tensor, got %s", t.Shape())
	}
	dims := t.Shape().Dimensions
	channels, height, width := dims[0], dims[1], dims[2]
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, errors.Errorf("cannot render image with %d channels, want 1, 3 or 4", channels)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	t.ConstFlatData(func(flatAny any) {
		flat := flatAny.([]uint8)
		plane := height * width
		pos := 0
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var c color.NRGBA
				if channels == 1 {
					v := flat[pos]
					c = color.NRGBA{R: v, G: v, B: v, A: 255}
				} else {
					c = color.NRGBA{R: flat[pos], G: flat[pos+plane], B: flat[pos+2*plane], A: 255}
				}
				img.SetNRGBA(x, y, c)
				pos++
			}
		}
	})
	return img, nil
}

// MaskImage paints a [H, W] Int32 class-index tensor with the palette
// colour of each class. Indices outside the palette fail wrapping
// geodatasets.ErrUnknownColor.
func MaskImage(mask *tensors.Tensor, pal raster.Palette) (image.Image, error) {
	if mask.DType() != dtypes.Int32 || mask.Shape().Rank() != 2 {
		return nil, errors.Errorf("expected a [height, width] Int32 tensor, got %s", mask.Shape())
	}
	dims := mask.Shape().Dimensions
	height, width := dims[0], dims[1]
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	var err error
	mask.ConstFlatData(func(flatAny any) {
		flat := flatAny.([]int32)
		pos := 0
		for y := 0; y < height; y++ {
			if err != nil {
				return
			}
			for x := 0; x < width; x++ {
				class := flat[pos]
				if class < 0 || int(class) >= len(pal) {
					err = errors.Wrapf(geodatasets.ErrUnknownColor,
						"mask value %d at (%d, %d) has no palette entry", class, x, y)
					return
				}
				rgb := pal[class]
				img.SetNRGBA(x, y, color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
				pos++
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Overlay blends the sample's mask (painted with pal) over its image with
// the given opacity in [0, 1]. The sample must be single-image; see
// TimeStep for slicing paired samples.
func Overlay(sample geodatasets.Sample, pal raster.Palette, opacity float64) (image.Image, error) {
	background, err := ToImage(sample.Image)
	if err != nil {
		return nil, err
	}
	maskImg, err := MaskImage(sample.Mask, pal)
	if err != nil {
		return nil, err
	}
	return imaging.Overlay(background, maskImg, image.Point{}, opacity), nil
}

// TimeStep slices one time step (0 for pre, 1 for post) out of a paired
// change-detection sample, returning a single-image sample. The
// Prediction tensor, if present, is sliced the same way.
func TimeStep(sample geodatasets.Sample, step int) (geodatasets.Sample, error) {
	var out geodatasets.Sample
	var err error
	out.Image, err = sliceFirst(sample.Image, step)
	if err != nil {
		return out, errors.WithMessage(err, "sample image")
	}
	out.Mask, err = sliceFirst(sample.Mask, step)
	if err != nil {
		return out, errors.WithMessage(err, "sample mask")
	}
	if sample.Prediction != nil {
		out.Prediction, err = sliceFirst(sample.Prediction, step)
		if err != nil {
			return out, errors.WithMessage(err, "sample prediction")
		}
	}
	return out, nil
}

// sliceFirst extracts index i of the tensor's leading axis.
func sliceFirst(t *tensors.Tensor, i int) (*tensors.Tensor, error) {
	dims := t.Shape().Dimensions
	if len(dims) < 2 || i < 0 || i >= dims[0] {
		return nil, errors.Errorf("cannot take slice %d of the leading axis of a %s tensor", i, t.Shape())
	}
	out := tensors.FromShape(shapes.Make(t.DType(), dims[1:]...))
	size := out.Shape().Size()
	switch t.DType() {
	case dtypes.Uint8:
		copySlice[uint8](out, t, i*size, size)
	case dtypes.Int32:
		copySlice[int32](out, t, i*size, size)
	default:
		return nil, errors.Errorf("cannot slice tensor of dtype %s", t.DType())
	}
	return out, nil
}

func copySlice[T uint8 | int32](out, in *tensors.Tensor, offset, size int) {
	tensors.MutableFlatData[T](out, func(flat []T) {
		in.ConstFlatData(func(flatAny any) {
			copy(flat, flatAny.([]T)[offset:offset+size])
		})
	})
}

// Figure builds a plot of the sample's mask blended over its image.
// Useful in notebooks or saved to disk with Save.
func Figure(sample geodatasets.Sample, pal raster.Palette, opacity float64, title string) (*plot.Plot, error) {
	overlay, err := Overlay(sample, pal, opacity)
	if err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	bounds := overlay.Bounds()
	p.Add(plotter.NewImage(overlay, 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
	return p, nil
}

// Save renders the sample figure to an image file; the format is chosen
// by the file extension (".png", ".pdf", ".svg", ...).
func Save(sample geodatasets.Sample, pal raster.Palette, opacity float64, title, path string) error {
	p, err := Figure(sample, pal, opacity, title)
	if err != nil {
		return err
	}
	if err = p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save figure to %q", path)
	}
	return nil
}
