// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xview2 provides the xView2 building damage assessment dataset:
// pairs of pre- and post-disaster satellite images with per-building
// damage masks over 5 classes (background plus 4 damage levels).
//
// Download the challenge tarballs listed in Metadata manually from
// https://xview2.org (registration required) and place them under the
// dataset root directory; the constructor extracts them in place on first
// use. Both splits must be present, matching the challenge layout.
package xview2

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gomlx/geodatasets"
	"github.com/gomlx/geodatasets/archiver"
	"github.com/gomlx/geodatasets/raster"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// SplitInfo describes the archive and extracted directory of one split.
type SplitInfo struct {
	Filename  string
	MD5       string
	Directory string
}

// Metadata describes the two challenge splits. It is a variable so tests
// can point it at fixture archives.
var Metadata = map[string]SplitInfo{
	"train": {
		Filename:  "train_images_labels_targets.tar.gz",
		MD5:       "a20ebbfb7eb3452785b63ad02ffd1e16",
		Directory: "train",
	},
	"test": {
		Filename:  "test_images_labels_targets.tar.gz",
		MD5:       "1b39c47e05d1319c17cc8763cee6fe0c",
		Directory: "test",
	},
}

// Classes are the damage levels, indexed by the values of the masks
// returned by ItemAt.
var Classes = []string{
	"background",
	"no-damage",
	"minor-damage",
	"major-damage",
	"destroyed",
}

// record holds the four on-disk paths of one pre/post scene pair.
type record struct {
	preImage  string
	postImage string
	preMask   string
	postMask  string
}

// Dataset is one split of the xView2 dataset. It implements
// geodatasets.Dataset; see New.
type Dataset struct {
	root      string
	split     string
	transform geodatasets.Transform
	records   []record
}

var _ geodatasets.Dataset = (*Dataset)(nil)

// New creates the given split ("train" or "test") of the xView2 dataset
// rooted at root, extracting the downloaded tarballs if needed -- both
// splits are verified and extracted together, matching the challenge
// layout.
//
// transform, if not nil, is applied to every sample returned by ItemAt.
// If checksum is true the tarballs' MD5 digests are verified before
// extraction.
//
// It fails wrapping geodatasets.ErrInvalidConfig for an unknown split
// name, geodatasets.ErrNotFound if neither the extracted files nor the
// tarballs are present, and geodatasets.ErrChecksum on digest mismatch.
func New(root, split string, transform geodatasets.Transform, checksum bool) (*Dataset, error) {
	info, found := Metadata[split]
	if !found {
		return nil, errors.Wrapf(geodatasets.ErrInvalidConfig,
			"unknown split %q for xView2 dataset, valid values are \"train\" and \"test\"", split)
	}
	ds := &Dataset{root: root, split: split, transform: transform}
	if err := ds.verify(checksum); err != nil {
		return nil, errors.WithMessagef(err, "xView2 dataset in %q", root)
	}
	if err := ds.index(info.Directory); err != nil {
		return nil, err
	}
	return ds, nil
}

// verify makes sure both splits are on disk, extracting the raw tarballs
// if only those are present.
func (ds *Dataset) verify(checksum bool) error {
	extracted := true
	for _, info := range Metadata {
		for _, sub := range []string{"images", "targets"} {
			if !archiver.FileExists(filepath.Join(ds.root, info.Directory, sub)) {
				extracted = false
			}
		}
	}
	if extracted {
		return nil
	}
	for _, info := range Metadata {
		archivePath := filepath.Join(ds.root, info.Filename)
		if !archiver.FileExists(archivePath) {
			return errors.Wrapf(geodatasets.ErrNotFound,
				"neither the extracted %q split nor the archive %q exist -- "+
					"download the dataset manually from https://xview2.org and place both archives in %q",
				info.Directory, info.Filename, ds.root)
		}
		if checksum && info.MD5 != "" {
			if err := archiver.ValidateChecksum(archivePath, info.MD5); err != nil {
				return err
			}
		}
		if err := archiver.Extract(archivePath, ds.root); err != nil {
			return err
		}
	}
	return nil
}

// index discovers the scene pairs of the split by globbing the images
// directory and stripping the "_{pre,post}_disaster.png" suffix. The
// records are sorted by scene name, so indices are stable across runs.
//
// The four paths of each record are derived by naming convention and not
// checked for existence: a missing file surfaces as an error from ItemAt.
func (ds *Dataset) index(directory string) error {
	imagesGlob := filepath.Join(ds.root, directory, "images", "*.png")
	matches, err := filepath.Glob(imagesGlob)
	if err != nil {
		return errors.Wrapf(err, "failed to glob %q", imagesGlob)
	}
	seen := make(map[string]bool)
	for _, match := range matches {
		parts := strings.Split(filepath.Base(match), "_")
		if len(parts) < 3 {
			continue
		}
		seen[strings.Join(parts[:len(parts)-2], "_")] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)

	imagesDir := filepath.Join(ds.root, directory, "images")
	targetsDir := filepath.Join(ds.root, directory, "targets")
	ds.records = make([]record, 0, len(names))
	for _, name := range names {
		ds.records = append(ds.records, record{
			preImage:  filepath.Join(imagesDir, name+"_pre_disaster.png"),
			postImage: filepath.Join(imagesDir, name+"_post_disaster.png"),
			preMask:   filepath.Join(targetsDir, name+"_pre_disaster_target.png"),
			postMask:  filepath.Join(targetsDir, name+"_post_disaster_target.png"),
		})
	}
	return nil
}

// Name returns a human-readable name of the dataset and split.
func (ds *Dataset) Name() string { return fmt.Sprintf("xView2 (%s)", ds.split) }

// Len implements geodatasets.Dataset.
func (ds *Dataset) Len() int { return len(ds.records) }

// ItemAt implements geodatasets.Dataset: it loads the pre/post image pair
// stacked as a [2, 3, H, W] Uint8 tensor and the corresponding damage
// masks stacked as a [2, H, W] Int32 tensor.
func (ds *Dataset) ItemAt(index int) (geodatasets.Sample, error) {
	var sample geodatasets.Sample
	if index < 0 || index >= len(ds.records) {
		return sample, errors.Errorf("index %d out of range for %s with %d samples",
			index, ds.Name(), len(ds.records))
	}
	r := ds.records[index]
	preImage, err := raster.LoadRGB(r.preImage)
	if err != nil {
		return sample, err
	}
	postImage, err := raster.LoadRGB(r.postImage)
	if err != nil {
		return sample, err
	}
	sample.Image, err = stackPair(preImage, postImage)
	if err != nil {
		return sample, errors.WithMessagef(err, "images of scene pair %q / %q", r.preImage, r.postImage)
	}
	preMask, err := loadMask(r.preMask)
	if err != nil {
		return sample, err
	}
	postMask, err := loadMask(r.postMask)
	if err != nil {
		return sample, err
	}
	sample.Mask, err = stackPair(preMask, postMask)
	if err != nil {
		return sample, errors.WithMessagef(err, "masks of scene pair %q / %q", r.preMask, r.postMask)
	}
	if ds.transform != nil {
		sample = ds.transform(sample)
	}
	return sample, nil
}

// loadMask reads a grayscale damage-target PNG as an Int32 tensor of
// class indices, shaped [H, W]. The files store the class index directly
// as the pixel value.
func loadMask(path string) (*tensors.Tensor, error) {
	gray, err := raster.LoadGray(path)
	if err != nil {
		return nil, err
	}
	dims := gray.Shape().Dimensions
	mask := tensors.FromShape(shapes.Make(dtypes.Int32, dims...))
	tensors.MutableFlatData[int32](mask, func(flat []int32) {
		gray.ConstFlatData(func(flatAny any) {
			for i, v := range flatAny.([]uint8) {
				flat[i] = int32(v)
			}
		})
	})
	return mask, nil
}

// stackPair stacks two tensors of identical shape and dtype along a new
// leading axis of size 2.
func stackPair(pre, post *tensors.Tensor) (*tensors.Tensor, error) {
	if !pre.Shape().Equal(post.Shape()) {
		return nil, errors.Errorf("pre- and post-disaster tensors have different shapes: %s vs %s",
			pre.Shape(), post.Shape())
	}
	dims := pre.Shape().Dimensions
	stacked := tensors.FromShape(shapes.Make(pre.DType(), append([]int{2}, dims...)...))
	switch pre.DType() {
	case dtypes.Uint8:
		fillStacked[uint8](stacked, pre, post)
	case dtypes.Int32:
		fillStacked[int32](stacked, pre, post)
	default:
		return nil, errors.Errorf("cannot stack tensors of dtype %s", pre.DType())
	}
	return stacked, nil
}

func fillStacked[T uint8 | int32](stacked, pre, post *tensors.Tensor) {
	tensors.MutableFlatData[T](stacked, func(flat []T) {
		pre.ConstFlatData(func(flatAny any) {
			copy(flat, flatAny.([]T))
		})
		post.ConstFlatData(func(flatAny any) {
			copy(flat[len(flat)/2:], flatAny.([]T))
		})
	})
}
