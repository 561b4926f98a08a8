// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package geodatasets

import (
	"io"
	"math/rand"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchesEpoch(t *testing.T) {
	ds := &fakeDataset{n: 5}
	batched := Batches("fake", ds, 2)
	assert.Equal(t, "fake", batched.Name())

	// 5 samples in batches of 2: sizes 2, 2 and a final 1 with io.EOF.
	wantSizes := []int{2, 2, 1}
	for i, wantSize := range wantSizes {
		spec, inputs, labels, err := batched.Yield()
		if i == len(wantSizes)-1 {
			require.ErrorIs(t, err, io.EOF)
		} else {
			require.NoError(t, err)
		}
		assert.Equal(t, batched, spec)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		assert.Equal(t, []int{wantSize, 2, 2, 2}, inputs[0].Shape().Dimensions)
		assert.Equal(t, dtypes.Float32, inputs[0].DType())
		assert.Equal(t, []int{wantSize, 2, 2}, labels[0].Shape().Dimensions)
		assert.Equal(t, dtypes.Int32, labels[0].DType())
	}

	// After io.EOF the next Yield starts a fresh epoch.
	_, inputs, _, err := batched.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2}, inputs[0].Shape().Dimensions)
}

func TestBatchesFloatScaling(t *testing.T) {
	ds := &fakeDataset{n: 2}
	batched := Batches("fake", ds, 2)
	_, inputs, labels, err := batched.Yield()
	require.ErrorIs(t, err, io.EOF)

	inputs[0].ConstFlatData(func(flatAny any) {
		flat := flatAny.([]float32)
		// Sample #0 is all zeros, sample #1 all ones (raw value 1).
		assert.InDelta(t, 0, flat[0], 1e-6)
		assert.InDelta(t, 1.0/255.0, flat[8], 1e-6)
	})
	labels[0].ConstFlatData(func(flatAny any) {
		flat := flatAny.([]int32)
		assert.EqualValues(t, 0, flat[0])
		assert.EqualValues(t, 1, flat[4])
	})
}

func TestBatchesUint8Passthrough(t *testing.T) {
	ds := &fakeDataset{n: 1}
	batched := Batches("fake", ds, 1).WithDType(dtypes.Uint8)
	_, inputs, _, err := batched.Yield()
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, dtypes.Uint8, inputs[0].DType())
}

func TestBatchesShuffled(t *testing.T) {
	ds := &fakeDataset{n: 64}
	batched := Batches("fake", ds, 64).Shuffled(rand.New(rand.NewSource(1)))

	firstEpoch := yieldMaskValues(t, batched)
	secondEpoch := yieldMaskValues(t, batched)

	seen := make(map[int32]bool)
	for _, v := range firstEpoch {
		seen[v] = true
	}
	assert.Len(t, seen, 64, "a shuffled epoch still visits every sample once")
	assert.NotEqual(t, firstEpoch, secondEpoch, "each epoch reshuffles")
}

// yieldMaskValues reads one full epoch of single-batch yields and returns
// the first mask value of each sample, i.e. the base indices in visit
// order.
func yieldMaskValues(t *testing.T, batched *Batched) []int32 {
	_, _, labels, err := batched.Yield()
	require.ErrorIs(t, err, io.EOF)
	var order []int32
	labels[0].ConstFlatData(func(flatAny any) {
		flat := flatAny.([]int32)
		for i := 0; i < len(flat); i += 4 {
			order = append(order, flat[i])
		}
	})
	return order
}

func TestBatchesReset(t *testing.T) {
	ds := &fakeDataset{n: 4}
	batched := Batches("fake", ds, 3)
	_, inputs, _, err := batched.Yield()
	require.NoError(t, err)
	require.Equal(t, 3, inputs[0].Shape().Dimensions[0])

	batched.Reset()
	_, inputs, _, err = batched.Yield()
	require.NoError(t, err)
	assert.Equal(t, 3, inputs[0].Shape().Dimensions[0], "Reset restarts the epoch")
}

func TestBatchesEmptyDataset(t *testing.T) {
	batched := Batches("empty", &fakeDataset{n: 0}, 4)
	_, _, _, err := batched.Yield()
	require.ErrorIs(t, err, io.EOF)
}
