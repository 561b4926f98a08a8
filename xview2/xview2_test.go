// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xview2

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/geodatasets"
	"github.com/gomlx/geodatasets/archiver"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneSize = 3

func writePNG(t *testing.T, path string, img image.Image) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	f := must.M1(os.Create(path))
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// writeScene writes the four files of one pre/post scene pair under
// root/<directory>. Mask pixels hold the class index directly.
func writeScene(t *testing.T, root, directory, name string, damage uint8) {
	for _, phase := range []string{"pre", "post"} {
		img := image.NewNRGBA(image.Rect(0, 0, sceneSize, sceneSize))
		for y := 0; y < sceneSize; y++ {
			for x := 0; x < sceneSize; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(50 * x), G: uint8(50 * y), B: 77, A: 255})
			}
		}
		writePNG(t, filepath.Join(root, directory, "images", name+"_"+phase+"_disaster.png"), img)

		mask := image.NewGray(image.Rect(0, 0, sceneSize, sceneSize))
		if phase == "post" {
			for i := range mask.Pix {
				mask.Pix[i] = damage
			}
		}
		writePNG(t, filepath.Join(root, directory, "targets", name+"_"+phase+"_disaster_target.png"), mask)
	}
}

// extractedRoot builds a dataset root with both splits extracted, two
// scenes each.
func extractedRoot(t *testing.T) string {
	root := t.TempDir()
	writeScene(t, root, "train", "hurricane-harvey_00000001", 1)
	writeScene(t, root, "train", "midwest-flooding_00000002", 4)
	writeScene(t, root, "test", "socal-fire_00000003", 2)
	writeScene(t, root, "test", "guatemala-volcano_00000004", 3)
	return root
}

func TestNew(t *testing.T) {
	root := extractedRoot(t)
	ds := must.M1(New(root, "train", nil, false))
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "xView2 (train)", ds.Name())

	sample := must.M1(ds.ItemAt(0))
	assert.Equal(t, dtypes.Uint8, sample.Image.DType())
	assert.Equal(t, []int{2, 3, sceneSize, sceneSize}, sample.Image.Shape().Dimensions)
	assert.Equal(t, dtypes.Int32, sample.Mask.DType())
	assert.Equal(t, []int{2, sceneSize, sceneSize}, sample.Mask.Shape().Dimensions)
	sample.Mask.ConstFlatData(func(flatAny any) {
		flat := flatAny.([]int32)
		plane := sceneSize * sceneSize
		assert.EqualValues(t, 0, flat[0], "pre-disaster mask is all background")
		assert.EqualValues(t, 1, flat[plane], "post-disaster mask carries the damage class")
	})
}

func TestIndexOrderIsDeterministic(t *testing.T) {
	// Scene names are written in non-sorted order; the index must sort.
	root := extractedRoot(t)
	ds := must.M1(New(root, "train", nil, false))
	require.Equal(t, 2, ds.Len())
	first := must.M1(ds.ItemAt(0))
	first.Mask.ConstFlatData(func(flatAny any) {
		flat := flatAny.([]int32)
		plane := sceneSize * sceneSize
		// "hurricane-harvey" sorts before "midwest-flooding".
		assert.EqualValues(t, 1, flat[plane])
	})
	second := must.M1(ds.ItemAt(1))
	second.Mask.ConstFlatData(func(flatAny any) {
		flat := flatAny.([]int32)
		plane := sceneSize * sceneSize
		assert.EqualValues(t, 4, flat[plane])
	})
}

func TestNewMissingFileSurfacesAtItemAt(t *testing.T) {
	root := extractedRoot(t)
	// Remove a post-disaster image: the scene stays indexed but loading
	// it fails.
	require.NoError(t, os.Remove(
		filepath.Join(root, "test", "images", "socal-fire_00000003_post_disaster.png")))
	ds := must.M1(New(root, "test", nil, false))
	require.Equal(t, 2, ds.Len())
	// "guatemala-volcano" sorts first and is intact.
	_, err := ds.ItemAt(0)
	require.NoError(t, err)
	_, err = ds.ItemAt(1)
	require.Error(t, err)
}

func TestNewInvalidSplit(t *testing.T) {
	_, err := New("/does/not/exist", "val", nil, false)
	require.ErrorIs(t, err, geodatasets.ErrInvalidConfig)
}

func TestNewNotDownloaded(t *testing.T) {
	_, err := New(t.TempDir(), "train", nil, false)
	require.ErrorIs(t, err, geodatasets.ErrNotFound)
}

func TestNewMissingOtherSplit(t *testing.T) {
	// Both splits must be present; one alone is not enough.
	root := t.TempDir()
	writeScene(t, root, "train", "hurricane-harvey_00000001", 1)
	_, err := New(root, "train", nil, false)
	require.ErrorIs(t, err, geodatasets.ErrNotFound)
}

// writeArchives tars up the extracted splits of srcRoot into the two
// challenge tarballs under dstRoot and returns metadata with their real
// MD5 digests.
func writeArchives(t *testing.T, srcRoot, dstRoot string) map[string]SplitInfo {
	metadata := make(map[string]SplitInfo)
	for split, info := range Metadata {
		var buf bytes.Buffer
		gzipWriter := gzip.NewWriter(&buf)
		tarWriter := tar.NewWriter(gzipWriter)
		splitDir := filepath.Join(srcRoot, info.Directory)
		require.NoError(t, filepath.Walk(splitDir, func(path string, fi os.FileInfo, err error) error {
			require.NoError(t, err)
			if fi.IsDir() {
				return nil
			}
			relPath := must.M1(filepath.Rel(srcRoot, path))
			contents := must.M1(os.ReadFile(path))
			require.NoError(t, tarWriter.WriteHeader(&tar.Header{
				Name: filepath.ToSlash(relPath),
				Mode: 0644,
				Size: int64(len(contents)),
			}))
			must.M1(tarWriter.Write(contents))
			return nil
		}))
		require.NoError(t, tarWriter.Close())
		require.NoError(t, gzipWriter.Close())

		archivePath := filepath.Join(dstRoot, info.Filename)
		require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0644))
		info.MD5 = must.M1(archiver.MD5Checksum(archivePath))
		metadata[split] = info
	}
	return metadata
}

func TestNewExtractsArchives(t *testing.T) {
	srcRoot := extractedRoot(t)
	root := t.TempDir()
	fixtures := writeArchives(t, srcRoot, root)

	savedMetadata := Metadata
	Metadata = fixtures
	defer func() { Metadata = savedMetadata }()

	ds := must.M1(New(root, "test", nil, true))
	assert.Equal(t, 2, ds.Len())
	assert.True(t, archiver.FileExists(filepath.Join(root, "train", "images")))
	assert.True(t, archiver.FileExists(filepath.Join(root, "test", "targets")))
}

func TestNewCorruptedArchive(t *testing.T) {
	srcRoot := extractedRoot(t)
	root := t.TempDir()
	fixtures := writeArchives(t, srcRoot, root)
	info := fixtures["train"]
	info.MD5 = "00000000000000000000000000000000"
	fixtures["train"] = info

	savedMetadata := Metadata
	Metadata = fixtures
	defer func() { Metadata = savedMetadata }()

	_, err := New(root, "train", nil, true)
	require.ErrorIs(t, err, geodatasets.ErrChecksum)
}

func TestNewTransform(t *testing.T) {
	root := extractedRoot(t)
	transform := func(sample geodatasets.Sample) geodatasets.Sample {
		sample.Prediction = sample.Mask
		return sample
	}
	ds := must.M1(New(root, "train", transform, false))
	sample := must.M1(ds.ItemAt(0))
	assert.NotNil(t, sample.Prediction)
}
