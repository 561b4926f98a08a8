// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vaihingen provides the ISPRS Vaihingen 2D semantic segmentation
// dataset: 33 true orthophoto mosaics (near infrared, red, green bands) of
// the village of Vaihingen with pixel-level land-cover labels over the
// same 6 classes as the Potsdam dataset.
//
// Like Potsdam, the raw data is licence-walled: download the two zip
// files listed in Archives manually from the ISPRS and place them under
// the dataset root directory. The constructor extracts them in place on
// first use.
package vaihingen

import (
	"fmt"
	"path/filepath"

	"github.com/gomlx/geodatasets"
	"github.com/gomlx/geodatasets/archiver"
	"github.com/gomlx/geodatasets/raster"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ImageRoot is the sub-directory of the dataset root holding the image
// mosaics after extraction. The ground-truth rasters extract directly
// into the root, under the same file names.
const ImageRoot = "top"

// Archives are the zip files to download manually, with their MD5
// digests. It is a variable so tests can point it at fixture archives.
var Archives = []archiver.Descriptor{
	{Name: "ISPRS_semantic_labeling_Vaihingen.zip", MD5: "462b8dca7b6fa9eaf729840f0cdfc7f3"},
	{Name: "ISPRS_semantic_labeling_Vaihingen_ground_truth_COMPLETE.zip", MD5: "4802dd6326e2727a352fb735be450277"},
}

// Splits maps a split name to the mosaic file names it contains,
// following the official ISPRS benchmark assignment. Unlike Potsdam, the
// names already carry the ".tif" extension.
var Splits = map[string][]string{
	"train": {
		"top_mosaic_09cm_area1.tif",
		"top_mosaic_09cm_area11.tif",
		"top_mosaic_09cm_area13.tif",
		"top_mosaic_09cm_area15.tif",
		"top_mosaic_09cm_area17.tif",
		"top_mosaic_09cm_area21.tif",
		"top_mosaic_09cm_area23.tif",
		"top_mosaic_09cm_area26.tif",
		"top_mosaic_09cm_area28.tif",
		"top_mosaic_09cm_area3.tif",
		"top_mosaic_09cm_area30.tif",
		"top_mosaic_09cm_area32.tif",
		"top_mosaic_09cm_area34.tif",
		"top_mosaic_09cm_area37.tif",
		"top_mosaic_09cm_area5.tif",
		"top_mosaic_09cm_area7.tif",
	},
	"test": {
		"top_mosaic_09cm_area6.tif",
		"top_mosaic_09cm_area24.tif",
		"top_mosaic_09cm_area35.tif",
		"top_mosaic_09cm_area16.tif",
		"top_mosaic_09cm_area14.tif",
		"top_mosaic_09cm_area22.tif",
		"top_mosaic_09cm_area10.tif",
		"top_mosaic_09cm_area4.tif",
		"top_mosaic_09cm_area2.tif",
		"top_mosaic_09cm_area20.tif",
		"top_mosaic_09cm_area8.tif",
		"top_mosaic_09cm_area31.tif",
		"top_mosaic_09cm_area33.tif",
		"top_mosaic_09cm_area27.tif",
		"top_mosaic_09cm_area38.tif",
		"top_mosaic_09cm_area12.tif",
		"top_mosaic_09cm_area29.tif",
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

type record struct {
	imagePath string
	maskPath  string
}

// Dataset is one split of the Vaihingen dataset. It implements
// geodatasets.Dataset; see New.
type Dataset struct {
	root      string
	split     string
	transform geodatasets.Transform
	records   []record
}

var _ geodatasets.Dataset = (*Dataset)(nil)

// New creates the given split ("train" or "test") of the Vaihingen
// dataset rooted at root, extracting the downloaded archives if needed.
//
// transform, if not nil, is applied to every sample returned by ItemAt.
// If checksum is true the archives' MD5 digests are verified before
// extraction.
//
// It fails wrapping geodatasets.ErrInvalidConfig for an unknown split
// name, geodatasets.ErrNotFound if neither the extracted files nor the
// archives are present, and geodatasets.ErrChecksum on digest mismatch.
func New(root, split string, transform geodatasets.Transform, checksum bool) (*Dataset, error) {
	names, found := Splits[split]
	if !found {
		return nil, errors.Wrapf(geodatasets.ErrInvalidConfig,
			"unknown split %q for Vaihingen dataset, valid values are \"train\" and \"test\"", split)
	}
	ds := &Dataset{root: root, split: split, transform: transform}
	if err := ds.verify(checksum); err != nil {
		return nil, errors.WithMessagef(err, "Vaihingen dataset in %q", root)
	}
	for _, name := range names {
		r := record{
			imagePath: filepath.Join(root, ImageRoot, name),
			maskPath:  filepath.Join(root, name),
		}
		if !archiver.FileExists(r.imagePath) || !archiver.FileExists(r.maskPath) {
			klog.V(1).Infof("Vaihingen: mosaic %q incomplete in %q, skipping", name, root)
			continue
		}
		ds.records = append(ds.records, r)
	}
	return ds, nil
}

func (ds *Dataset) verify(checksum bool) error {
	if archiver.FileExists(filepath.Join(ds.root, ImageRoot)) {
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
func (ds *Dataset) Name() string { return fmt.Sprintf("Vaihingen (%s)", ds.split) }

// Len implements geodatasets.Dataset. Mosaics with a missing image or
// ground-truth file are not counted.
func (ds *Dataset) Len() int { return len(ds.records) }

// ItemAt implements geodatasets.Dataset: it loads the 3-band mosaic as a
// [3, H, W] Uint8 tensor and its ground-truth raster as a [H, W] Int32
// tensor of class indices.
func (ds *Dataset) ItemAt(index int) (geodatasets.Sample, error) {
	var sample geodatasets.Sample
	if index < 0 || index >= len(ds.records) {
		return sample, errors.Errorf("index %d out of range for %s with %d samples",
			index, ds.Name(), len(ds.records))
	}
	r := ds.records[index]
	var err error
	sample.Image, err = raster.LoadRGB(r.imagePath)
	if err != nil {
		return sample, err
	}
	maskImg, err := raster.Decode(r.maskPath)
	if err != nil {
		return sample, err
	}
	sample.Mask, err = Colormap.ClassIndices(maskImg)
	if err != nil {
		return sample, errors.WithMessagef(err, "ground-truth file %q", r.maskPath)
	}
	if ds.transform != nil {
		sample = ds.transform(sample)
	}
	return sample, nil
}
