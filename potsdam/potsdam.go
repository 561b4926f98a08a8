// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package potsdam provides the ISPRS Potsdam 2D semantic segmentation
// dataset: 38 aerial RGBIR orthophoto tiles of the city of Potsdam with
// pixel-level land-cover labels over 6 classes.
//
// The dataset is licence-walled and must be downloaded manually from the
// ISPRS after filling the data request form; place the two zip files
// listed in Archives under the dataset root directory. The constructor
// extracts them in place on first use.
package potsdam

import (
	"fmt"
	"path/filepath"

	"github.com/gomlx/geodatasets"
	"github.com/gomlx/geodatasets/archiver"
	"github.com/gomlx/geodatasets/raster"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ImageRoot is the sub-directory of the dataset root holding the
	// RGBIR image tiles after extraction. Label tiles extract directly
	// into the root.
	ImageRoot = "4_Ortho_RGBIR"

	imageSuffix = "_RGBIR.tif"
	maskSuffix  = "_label.tif"
)

// Archives are the zip files to download manually, with their MD5
// digests. It is a variable so tests can point it at fixture archives.
var Archives = []archiver.Descriptor{
	{Name: "4_Ortho_RGBIR.zip", MD5: "c4a8f7d8c7196dd4eba4addd0aae10c1"},
	{Name: "5_Labels_all.zip", MD5: "cf7403c1a97c0d279414db06034be1a2"},
}

// Splits maps a split name to the tile names it contains. The assignment
// follows the official ISPRS benchmark: 24 training tiles, 14 held-out
// test tiles.
var Splits = map[string][]string{
	"train": {
		"top_potsdam_2_10",
		"top_potsdam_2_11",
		"top_potsdam_2_12",
		"top_potsdam_3_10",
		"top_potsdam_3_11",
		"top_potsdam_3_12",
		"top_potsdam_4_10",
		"top_potsdam_4_11",
		"top_potsdam_4_12",
		"top_potsdam_5_10",
		"top_potsdam_5_11",
		"top_potsdam_5_12",
		"top_potsdam_6_7",
		"top_potsdam_6_8",
		"top_potsdam_6_9",
		"top_potsdam_6_10",
		"top_potsdam_6_11",
		"top_potsdam_6_12",
		"top_potsdam_7_7",
		"top_potsdam_7_8",
		"top_potsdam_7_9",
		"top_potsdam_7_10",
		"top_potsdam_7_11",
		"top_potsdam_7_12",
	},
	"test": {
		"top_potsdam_5_15",
		"top_potsdam_6_15",
		"top_potsdam_6_13",
		"top_potsdam_3_13",
		"top_potsdam_4_14",
		"top_potsdam_6_14",
		"top_potsdam_5_14",
		"top_potsdam_2_13",
		"top_potsdam_4_15",
		"top_potsdam_2_14",
		"top_potsdam_5_13",
		"top_potsdam_4_13",
		"top_potsdam_3_14",
		"top_potsdam_7_13",
	},
}

// Classes are the land-cover classes, indexed by the values of the masks
// returned by ItemAt.
var Classes = []string{
	"Clutter/background",
	"Impervious surfaces",
	"Building",
	"Low Vegetation",
	"Tree",
	"Car",
}

// Colormap gives the RGB colour encoding class i in the label rasters.
var Colormap = raster.Palette{
	{255, 0, 0},
	{255, 255, 255},
	{0, 0, 255},
	{0, 255, 255},
	{0, 255, 0},
	{255, 255, 0},
}

// record pairs the on-disk paths of one tile.
type record struct {
	imagePath string
	maskPath  string
}

// Dataset is one split of the Potsdam dataset. It implements
// geodatasets.Dataset; see New.
type Dataset struct {
	root      string
	split     string
	transform geodatasets.Transform
	records   []record
}

var _ geodatasets.Dataset = (*Dataset)(nil)

// New creates the given split ("train" or "test") of the Potsdam dataset
// rooted at root, extracting the downloaded archives if needed.
//
// transform, if not nil, is applied to every sample returned by ItemAt.
// If checksum is true the archives' MD5 digests are verified before
// extraction, which takes a while on multi-GB files.
//
// It fails wrapping geodatasets.ErrInvalidConfig for an unknown split
// name, geodatasets.ErrNotFound if neither the extracted files nor the
// archives are present, and geodatasets.ErrChecksum on digest mismatch.
func New(root, split string, transform geodatasets.Transform, checksum bool) (*Dataset, error) {
	names, found := Splits[split]
	if !found {
		return nil, errors.Wrapf(geodatasets.ErrInvalidConfig,
			"unknown split %q for Potsdam dataset, valid values are \"train\" and \"test\"", split)
	}
	ds := &Dataset{root: root, split: split, transform: transform}
	if err := ds.verify(checksum); err != nil {
		return nil, errors.WithMessagef(err, "Potsdam dataset in %q", root)
	}
	for _, name := range names {
		r := record{
			imagePath: filepath.Join(root, ImageRoot, name+imageSuffix),
			maskPath:  filepath.Join(root, name+maskSuffix),
		}
		if !archiver.FileExists(r.imagePath) || !archiver.FileExists(r.maskPath) {
			klog.V(1).Infof("Potsdam: tile %q incomplete in %q, skipping", name, root)
			continue
		}
		ds.records = append(ds.records, r)
	}
	return ds, nil
}

// verify makes sure the dataset files are on disk, extracting the raw
// archives if only those are present.
func (ds *Dataset) verify(checksum bool) error {
	if archiver.FileExists(filepath.Join(ds.root, ImageRoot)) {
		// Already extracted.
		return nil
	}
	for _, archive := range Archives {
		archivePath := filepath.Join(ds.root, archive.Name)
		if !archiver.FileExists(archivePath) {
			return errors.Wrapf(geodatasets.ErrNotFound,
				"neither the extracted %q directory nor the archive %q exist -- "+
					"download the dataset manually from the ISPRS and place the archives in %q",
				ImageRoot, archive.Name, ds.root)
		}
		if checksum && archive.MD5 != "" {
			if err := archiver.ValidateChecksum(archivePath, archive.MD5); err != nil {
				return err
			}
		}
		if err := archiver.Extract(archivePath, ds.root); err != nil {
			return err
		}
	}
	return nil
}

// Name returns a human-readable name of the dataset and split.
func (ds *Dataset) Name() string { return fmt.Sprintf("Potsdam (%s)", ds.split) }

// Len implements geodatasets.Dataset. Tiles with a missing image or label
// file are not counted.
func (ds *Dataset) Len() int { return len(ds.records) }

// ItemAt implements geodatasets.Dataset: it loads the RGBIR image tile as
// a [4, H, W] Uint8 tensor and its label raster as a [H, W] Int32 tensor
// of class indices.
func (ds *Dataset) ItemAt(index int) (geodatasets.Sample, error) {
	var sample geodatasets.Sample
	if index < 0 || index >= len(ds.records) {
		return sample, errors.Errorf("index %d out of range for %s with %d samples",
			index, ds.Name(), len(ds.records))
	}
	r := ds.records[index]
	var err error
	sample.Image, err = raster.Load(r.imagePath)
	if err != nil {
		return sample, err
	}
	maskImg, err := raster.Decode(r.maskPath)
	if err != nil {
		return sample, err
	}
	sample.Mask, err = Colormap.ClassIndices(maskImg)
	if err != nil {
		return sample, errors.WithMessagef(err, "label file %q", r.maskPath)
	}
	if ds.transform != nil {
		sample = ds.transform(sample)
	}
	return sample, nil
}
