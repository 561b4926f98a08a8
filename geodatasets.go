// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package geodatasets defines the contract shared by the geospatial
// datasets in this module: aerial orthophoto semantic segmentation
// (sub-packages potsdam and vaihingen) and satellite change detection
// (sub-package xview2).
//
// All datasets implement the indexed Dataset interface -- Len plus ItemAt --
// and return Sample values holding channel-first image tensors and integer
// class-index masks. The Batches adapter converts any indexed Dataset into a
// GoMLX train.Dataset, which in turn can be wrapped with the batching and
// parallelism tools in github.com/gomlx/gomlx/pkg/ml/datasets.
//
// The raw data is licence-walled and must be downloaded manually; the
// dataset constructors verify the downloaded archives (optionally by MD5
// checksum) and extract them in place on first use.
package geodatasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Sample is the unit of data produced by indexing a dataset.
//
// It is assembled anew on each ItemAt call -- samples are not cached, and
// the caller owns the tensors.
type Sample struct {
	// Image is a channel-first image tensor, dtype Uint8.
	//
	// Single-image datasets (potsdam, vaihingen) shape it [C, H, W]; the
	// paired change-detection dataset (xview2) stacks the pre/post images
	// into [2, C, H, W].
	Image *tensors.Tensor

	// Mask holds dense class indices, dtype Int32, shaped [H, W] -- or
	// [2, H, W] for paired samples.
	Mask *tensors.Tensor

	// Prediction is nil unless set by a downstream consumer (e.g., for
	// plotting a model output next to the ground truth). The datasets
	// themselves never fill it.
	Prediction *tensors.Tensor
}

// Transform is a pure function applied to a sample after assembly and
// before it is returned from ItemAt. It must not retain or mutate shared
// state: the same Transform value may be called concurrently from parallel
// data-loading workers.
type Transform func(sample Sample) Sample

// Dataset is the indexed-access contract implemented by every dataset in
// this module: a length and random access by position. Nothing else is
// implied -- batching, shuffling and parallelism are layered on top, see
// Batches.
//
// The record list backing a Dataset is built at construction time and
// read-only afterwards, so concurrent ItemAt calls are safe: each call
// opens and closes its own files.
type Dataset interface {
	// Len returns the number of samples discovered at construction time.
	Len() int

	// ItemAt loads, assembles and transforms the sample at the given
	// position, in the range [0, Len()).
	ItemAt(index int) (Sample, error)
}
