// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package geodatasets

import (
	"math"
	"math/rand"
	"slices"

	"github.com/pkg/errors"
)

// partitionSeed fixes the shuffle used by Partition, so repeated runs over
// the same dataset produce the same subsets.
const partitionSeed = 42

// Partition splits a dataset into disjoint train, validation and test
// subsets with the given fractions; the train subset receives the
// remainder. The assignment is deterministic: the same dataset length and
// fractions always yield the same three subsets.
//
// It fails wrapping ErrInvalidConfig if either fraction is negative or
// they sum to more than 1.
func Partition(ds Dataset, valFraction, testFraction float64) (train, val, test *Subset, err error) {
	return PartitionWithSeed(ds, valFraction, testFraction, partitionSeed)
}

// PartitionWithSeed is Partition with a caller-chosen seed for the
// index shuffle.
func PartitionWithSeed(ds Dataset, valFraction, testFraction float64, seed int64) (train, val, test *Subset, err error) {
	if valFraction < 0 || testFraction < 0 || valFraction+testFraction > 1 {
		err = errors.Wrapf(ErrInvalidConfig,
			"partition fractions must be non-negative and sum to at most 1, got val=%g test=%g",
			valFraction, testFraction)
		return
	}
	n := ds.Len()
	order := rand.New(rand.NewSource(seed)).Perm(n)

	numVal := int(math.Round(float64(n) * valFraction))
	numTest := int(math.Round(float64(n) * testFraction))
	// Rounding both fractions up can claim one index more than exists.
	if numVal+numTest > n {
		numTest = n - numVal
	}
	numTrain := n - numVal - numTest

	train = newSubset(ds, order[:numTrain])
	val = newSubset(ds, order[numTrain:numTrain+numVal])
	test = newSubset(ds, order[numTrain+numVal:])
	return
}

// Subset is a read-only view of a subset of another dataset's indices.
// It implements Dataset.
type Subset struct {
	base    Dataset
	indices []int
}

var _ Dataset = (*Subset)(nil)

func newSubset(base Dataset, indices []int) *Subset {
	// Sort for sequential file access; the partition assignment itself is
	// already decided at this point.
	indices = slices.Clone(indices)
	slices.Sort(indices)
	return &Subset{base: base, indices: indices}
}

// Len implements Dataset.
func (s *Subset) Len() int { return len(s.indices) }

// ItemAt implements Dataset, delegating to the base dataset.
func (s *Subset) ItemAt(index int) (Sample, error) {
	if index < 0 || index >= len(s.indices) {
		return Sample{}, errors.Errorf("subset index %d out of range [0, %d)", index, len(s.indices))
	}
	return s.base.ItemAt(s.indices[index])
}

// Indices returns the base-dataset indices this subset maps to, in
// ascending order. The returned slice is owned by the Subset and must not
// be modified.
func (s *Subset) Indices() []int { return s.indices }
