// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package raster

import (
	"image"

	"github.com/gomlx/geodatasets"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Palette maps class indices to the RGB colours used to encode them in
// the label rasters: class i is painted with colour Palette[i].
type Palette [][3]uint8

// rgbKey packs a colour for map lookup.
func rgbKey(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// index builds the colour->class lookup table, failing wrapping
// geodatasets.ErrInvalidConfig if two classes share a colour.
func (p Palette) index() (map[uint32]int32, error) {
	lookup := make(map[uint32]int32, len(p))
	for class, rgb := range p {
		key := rgbKey(rgb[0], rgb[1], rgb[2])
		if previous, found := lookup[key]; found {
			return nil, errors.Wrapf(geodatasets.ErrInvalidConfig,
				"palette colour %v is assigned to both class %d and class %d", rgb, previous, class)
		}
		lookup[key] = int32(class)
	}
	return lookup, nil
}

// ClassIndices maps an RGB-coded label image to a dense Int32 tensor of
// class indices, shaped [height, width].
//
// Every pixel must match a palette colour exactly; a pixel with any other
// colour fails wrapping geodatasets.ErrUnknownColor, naming the colour and
// its position. Alpha is ignored.
func (p Palette) ClassIndices(img image.Image) (*tensors.Tensor, error) {
	lookup, err := p.index()
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := tensors.FromShape(shapes.Make(dtypes.Int32, height, width))
	tensors.MutableFlatData[int32](t, func(flat []int32) {
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			if err != nil {
				return
			}
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := storedRGBA(img, x, y)
				class, found := lookup[rgbKey(r, g, b)]
				if !found {
					err = errors.Wrapf(geodatasets.ErrUnknownColor,
						"pixel (%d, %d) has colour (%d, %d, %d)", x, y, r, g, b)
					return
				}
				flat[pos] = class
				pos++
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
