// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package geodatasets

import (
	"io"
	"math/rand"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Batched adapts an indexed Dataset to the streaming train.Dataset
// contract, yielding one batch of stacked samples at a time and io.EOF at
// the end of the epoch.
//
// Images are converted to the configured dtype: float dtypes are scaled to
// [0, 1], Uint8 is passed through unchanged. Masks are always yielded as
// Int32 class indices.
//
// For parallel sample loading wrap the result with
// datasets.CustomParallel from github.com/gomlx/gomlx/pkg/ml/datasets.
type Batched struct {
	name      string
	ds        Dataset
	batchSize int
	dtype     dtypes.DType
	shuffle   *rand.Rand

	mu       sync.Mutex
	order    []int
	position int
}

var _ train.Dataset = (*Batched)(nil)

// Batches creates a train.Dataset that yields batches of batchSize samples
// from ds. It defaults to Float32 images and sequential order; see
// WithDType and Shuffled.
func Batches(name string, ds Dataset, batchSize int) *Batched {
	return &Batched{
		name:      name,
		ds:        ds,
		batchSize: batchSize,
		dtype:     dtypes.Float32,
	}
}

// WithDType sets the dtype images are converted to. Supported: Float32,
// Float64 (scaled to [0, 1]) and Uint8 (raw values).
//
// It returns the Batched dataset, so configuration calls can be cascaded.
func (b *Batched) WithDType(dtype dtypes.DType) *Batched {
	b.dtype = dtype
	return b
}

// Shuffled reshuffles the sample order with the given generator at the
// start of every epoch. A nil generator restores sequential order.
//
// It returns the Batched dataset, so configuration calls can be cascaded.
func (b *Batched) Shuffled(rng *rand.Rand) *Batched {
	b.shuffle = rng
	return b
}

// Name implements train.Dataset.
func (b *Batched) Name() string { return b.name }

// Reset implements train.Dataset: it restarts the epoch, reshuffling if
// configured.
func (b *Batched) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Batched) resetLocked() {
	n := b.ds.Len()
	if b.shuffle != nil {
		b.order = b.shuffle.Perm(n)
	} else {
		b.order = make([]int, n)
		for i := range b.order {
			b.order[i] = i
		}
	}
	b.position = 0
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the Batched dataset itself.
//   - inputs: one tensor with the image batch, shaped `[batch_size, ...]`
//     where `...` are the sample image dimensions.
//   - labels: one tensor with the Int32 mask batch.
//
// The final batch of an epoch may be smaller than batchSize and is
// returned along with io.EOF.
func (b *Batched) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.ds.Len()
	if n == 0 {
		return nil, nil, nil, io.EOF
	}
	if b.order == nil || b.position >= n {
		b.resetLocked()
	}
	start := b.position
	end := min(start+b.batchSize, n)
	b.position = end

	samples := make([]Sample, 0, end-start)
	for _, pos := range b.order[start:end] {
		sample, errItem := b.ds.ItemAt(pos)
		if errItem != nil {
			err = errors.WithMessagef(errItem, "failed to load sample #%d of dataset %q", pos, b.name)
			return
		}
		samples = append(samples, sample)
	}

	spec = b
	inputs = []*tensors.Tensor{b.batchImages(samples)}
	labels = []*tensors.Tensor{batchMasks(samples)}
	if end >= n {
		err = io.EOF
	}
	return
}

// batchImages stacks the sample images along a new leading batch axis,
// converting to the configured dtype.
func (b *Batched) batchImages(samples []Sample) *tensors.Tensor {
	dims := samples[0].Image.Shape().Dimensions
	for i, sample := range samples {
		if sample.Image.DType() != dtypes.Uint8 {
			exceptions.Panicf("geodatasets.Batched %q: sample image dtype is %s, expected Uint8 -- "+
				"did a Transform change it?", b.name, sample.Image.DType())
		}
		if !slices.Equal(sample.Image.Shape().Dimensions, dims) {
			exceptions.Panicf("geodatasets.Batched %q: image #%d of batch has dimensions %v, but image #0 has %v -- "+
				"all samples of a batch must have the same spatial size", b.name, i, sample.Image.Shape().Dimensions, dims)
		}
	}
	batch := tensors.FromShape(shapes.Make(b.dtype, append([]int{len(samples)}, dims...)...))
	switch b.dtype {
	case dtypes.Float32:
		fillScaled[float32](batch, samples)
	case dtypes.Float64:
		fillScaled[float64](batch, samples)
	case dtypes.Uint8:
		tensors.MutableFlatData[uint8](batch, func(flat []uint8) {
			pos := 0
			for _, sample := range samples {
				sample.Image.ConstFlatData(func(flatAny any) {
					pos += copy(flat[pos:], flatAny.([]uint8))
				})
			}
		})
	default:
		exceptions.Panicf("geodatasets.Batched %q: unsupported image dtype %s, use Float32, Float64 or Uint8",
			b.name, b.dtype)
	}
	return batch
}

func fillScaled[T float32 | float64](batch *tensors.Tensor, samples []Sample) {
	tensors.MutableFlatData[T](batch, func(flat []T) {
		pos := 0
		for _, sample := range samples {
			sample.Image.ConstFlatData(func(flatAny any) {
				for _, v := range flatAny.([]uint8) {
					flat[pos] = T(v) / T(255)
					pos++
				}
			})
		}
	})
}

// batchMasks stacks the Int32 sample masks along a new leading batch axis.
func batchMasks(samples []Sample) *tensors.Tensor {
	dims := samples[0].Mask.Shape().Dimensions
	for i, sample := range samples {
		if sample.Mask.DType() != dtypes.Int32 {
			exceptions.Panicf("geodatasets.Batched: sample mask dtype is %s, expected Int32", sample.Mask.DType())
		}
		if !slices.Equal(sample.Mask.Shape().Dimensions, dims) {
			exceptions.Panicf("geodatasets.Batched: mask #%d of batch has dimensions %v, but mask #0 has %v",
				i, sample.Mask.Shape().Dimensions, dims)
		}
	}
	batch := tensors.FromShape(shapes.Make(dtypes.Int32, append([]int{len(samples)}, dims...)...))
	tensors.MutableFlatData[int32](batch, func(flat []int32) {
		pos := 0
		for _, sample := range samples {
			sample.Mask.ConstFlatData(func(flatAny any) {
				pos += copy(flat[pos:], flatAny.([]int32))
			})
		}
	})
	return batch
}
