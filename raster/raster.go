// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package raster decodes the dataset image files (GeoTIFF orthophotos,
// PNG tiles) into channel-first tensors, and maps RGB-coded label masks to
// dense class indices.
//
// Georeferencing metadata embedded in the TIFFs is ignored: only the pixel
// grid is read.
package raster

import (
	"image"
	"image/color"
	"os"

	// Decoders for the file formats the datasets ship in.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"github.com/gomlx/geodatasets"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Decode opens and decodes an image file. Files that cannot be parsed by
// any registered decoder fail wrapping geodatasets.ErrDecode; plain I/O
// failures (missing file, permissions) are reported as such.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image file %q", path)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(geodatasets.ErrDecode, "file %q: %v", path, err)
	}
	return img, nil
}

// numBands returns how many channels the decoded image carries. The
// standard decoders surface single-band rasters as Gray/Gray16 and
// four-band ones (e.g. RGB+infrared TIFFs) as (N)RGBA; everything else
// decodes through a three-band RGB view.
func numBands(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return 4
	}
	return 3
}

// Load decodes the image file and returns all its bands as a Uint8 tensor
// shaped [bands, height, width]. Multi-byte samples are truncated to their
// most significant byte.
func Load(path string) (*tensors.Tensor, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return ToTensor(img, numBands(img)), nil
}

// LoadRGB decodes the image file and returns its first three bands as a
// Uint8 tensor shaped [3, height, width], dropping any fourth (alpha or
// infrared) band.
func LoadRGB(path string) (*tensors.Tensor, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return ToTensor(img, 3), nil
}

// LoadGray decodes the image file and returns a single-band Uint8 tensor
// shaped [height, width], converting to luminance if the file is not
// already grayscale.
func LoadGray(path string) (*tensors.Tensor, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := tensors.FromShape(shapes.Make(dtypes.Uint8, height, width))
	tensors.MutableFlatData[uint8](t, func(flat []uint8) {
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				flat[pos] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				pos++
			}
		}
	})
	return t, nil
}

// storedRGBA returns the stored (non-premultiplied) 8-bit samples of a
// pixel. The datasets repurpose the fourth band for near-infrared, so the
// premultiplied values of color.Color.RGBA would scale the first three
// bands by it; the concrete image types let us bypass that.
func storedRGBA(img image.Image, x, y int) (r, g, b, a uint8) {
	switch src := img.(type) {
	case *image.NRGBA:
		c := src.NRGBAAt(x, y)
		return c.R, c.G, c.B, c.A
	case *image.NRGBA64:
		c := src.NRGBA64At(x, y)
		return uint8(c.R >> 8), uint8(c.G >> 8), uint8(c.B >> 8), uint8(c.A >> 8)
	case *image.RGBA:
		c := src.RGBAAt(x, y)
		return c.R, c.G, c.B, c.A
	case *image.RGBA64:
		c := src.RGBA64At(x, y)
		return uint8(c.R >> 8), uint8(c.G >> 8), uint8(c.B >> 8), uint8(c.A >> 8)
	}
	r32, g32, b32, a32 := img.At(x, y).RGBA()
	return uint8(r32 >> 8), uint8(g32 >> 8), uint8(b32 >> 8), uint8(a32 >> 8)
}

// ToTensor converts a decoded image to a channel-first Uint8 tensor shaped
// [bands, height, width]. bands must be 1, 3 or 4; with 4 bands the
// fourth sample of the image (alpha, or infrared in RGBIR rasters) becomes
// the last channel.
func ToTensor(img image.Image, bands int) *tensors.Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := tensors.FromShape(shapes.Make(dtypes.Uint8, bands, height, width))
	tensors.MutableFlatData[uint8](t, func(flat []uint8) {
		plane := height * width
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				switch bands {
				case 1:
					flat[pos] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				case 3:
					r, g, b, _ := storedRGBA(img, x, y)
					flat[pos] = r
					flat[pos+plane] = g
					flat[pos+2*plane] = b
				case 4:
					r, g, b, a := storedRGBA(img, x, y)
					flat[pos] = r
					flat[pos+plane] = g
					flat[pos+2*plane] = b
					flat[pos+3*plane] = a
				}
				pos++
			}
		}
	})
	return t
}
