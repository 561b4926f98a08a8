// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package archiver verifies and extracts the manually downloaded dataset
// archives: MD5 checksum validation plus in-process extraction of zip and
// gzip-compressed tar files.
//
// Extraction is idempotent: re-extracting over an existing tree simply
// overwrites the files, so an interrupted extraction is repaired by
// running it again.
package archiver

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/geodatasets"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Descriptor names one downloadable archive and its expected MD5 digest.
// An empty MD5 means the digest is unknown and validation is skipped.
type Descriptor struct {
	Name string
	MD5  string
}

// progressMinBytes is the archive size below which no progress bar is
// shown -- test fixtures and tiny archives extract instantly.
const progressMinBytes = 1 << 20

// FileExists returns whether the given path exists (file or directory).
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MD5Checksum returns the hex-encoded (lowercase) MD5 digest of the file
// contents.
func MD5Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q for checksum", path)
	}
	defer func() { _ = f.Close() }()
	hasher := md5.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", errors.Wrapf(err, "failed to read %q for checksum", path)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ValidateChecksum compares the file's MD5 digest to the expected
// hex-encoded value, ignoring case. On mismatch it fails wrapping
// geodatasets.ErrChecksum; the file is left in place so the caller can
// inspect or re-download it.
func ValidateChecksum(path, md5Hex string) error {
	got, err := MD5Checksum(path)
	if err != nil {
		return err
	}
	if got != strings.ToLower(md5Hex) {
		return errors.Wrapf(geodatasets.ErrChecksum,
			"file %q has MD5 %s, expected %s", path, got, md5Hex)
	}
	return nil
}

// Extract unpacks the archive into destDir, creating it if needed. The
// archive format is selected by file name: ".zip" or ".tar.gz"/".tgz".
// Existing files are overwritten.
//
// Unreadable or truncated archives fail wrapping
// geodatasets.ErrCorruptArchive.
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory %q to extract %q", destDir, archivePath)
	}
	lowerName := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lowerName, ".zip"):
		return extractZip(archivePath, destDir)
	case strings.HasSuffix(lowerName, ".tar.gz") || strings.HasSuffix(lowerName, ".tgz"):
		return extractTarGz(archivePath, destDir)
	}
	return errors.Wrapf(geodatasets.ErrCorruptArchive,
		"don't know how to extract %q, only .zip and .tar.gz are supported", archivePath)
}

// extractionBar returns a byte-progress bar for large archives, or nil for
// small ones.
func extractionBar(archivePath string, totalBytes int64) *progressbar.ProgressBar {
	if totalBytes < progressMinBytes {
		return nil
	}
	return progressbar.DefaultBytes(totalBytes,
		fmt.Sprintf("Extracting %s (%s)", filepath.Base(archivePath), humanize.Bytes(uint64(totalBytes))))
}

func extractZip(archivePath, destDir string) error {
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrapf(geodatasets.ErrCorruptArchive, "failed to open zip file %q: %v", archivePath, err)
	}
	defer func() { _ = zipReader.Close() }()

	var totalBytes int64
	for _, entry := range zipReader.File {
		totalBytes += int64(entry.UncompressedSize64)
	}
	bar := extractionBar(archivePath, totalBytes)

	klog.V(1).Infof("Extracting %d entries from %q to %q", len(zipReader.File), archivePath, destDir)
	for _, entry := range zipReader.File {
		entryPath, err := sanitizePath(destDir, entry.Name)
		if err != nil {
			return errors.WithMessagef(err, "in zip file %q", archivePath)
		}
		if entry.FileInfo().IsDir() {
			if err = os.MkdirAll(entryPath, 0777); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", entryPath)
			}
			continue
		}
		entryReader, err := entry.Open()
		if err != nil {
			return errors.Wrapf(geodatasets.ErrCorruptArchive,
				"failed to read entry %q of zip file %q: %v", entry.Name, archivePath, err)
		}
		err = writeEntry(entryPath, entryReader, bar)
		_ = entryReader.Close()
		if err != nil {
			return errors.WithMessagef(err, "extracting %q from zip file %q", entry.Name, archivePath)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", archivePath)
	}
	defer func() { _ = f.Close() }()

	// The tar stream doesn't announce its uncompressed size up front, so
	// progress is measured on the compressed bytes read instead.
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %q", archivePath)
	}
	bar := extractionBar(archivePath, fi.Size())
	var archiveReader io.Reader = f
	if bar != nil {
		archiveReader = io.TeeReader(f, bar)
	}

	gzipReader, err := gzip.NewReader(archiveReader)
	if err != nil {
		return errors.Wrapf(geodatasets.ErrCorruptArchive, "failed to decompress %q: %v", archivePath, err)
	}
	defer func() { _ = gzipReader.Close() }()

	klog.V(1).Infof("Extracting %q to %q", archivePath, destDir)
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(geodatasets.ErrCorruptArchive, "failed to read tar stream of %q: %v", archivePath, err)
		}
		entryPath, err := sanitizePath(destDir, header.Name)
		if err != nil {
			return errors.WithMessagef(err, "in tar file %q", archivePath)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(entryPath, 0777); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", entryPath)
			}
		case tar.TypeReg:
			if err = writeEntry(entryPath, tarReader, nil); err != nil {
				return errors.WithMessagef(err, "extracting %q from tar file %q", header.Name, archivePath)
			}
		default:
			// Symlinks, devices, etc. are not expected in the dataset
			// archives and are skipped.
			klog.V(1).Infof("Skipping tar entry %q of type %d", header.Name, header.Typeflag)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

// sanitizePath joins destDir and the archive entry name, refusing entries
// that would escape destDir ("zip slip").
func sanitizePath(destDir, entryName string) (string, error) {
	entryPath := filepath.Join(destDir, filepath.FromSlash(entryName))
	if entryPath != destDir && !strings.HasPrefix(entryPath, destDir+string(os.PathSeparator)) {
		return "", errors.Wrapf(geodatasets.ErrCorruptArchive,
			"entry %q would be extracted outside the destination directory", entryName)
	}
	return entryPath, nil
}

// writeEntry writes one archive entry to disk, overwriting any previous
// version of the file.
func writeEntry(entryPath string, contents io.Reader, bar *progressbar.ProgressBar) error {
	if err := os.MkdirAll(filepath.Dir(entryPath), 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", filepath.Dir(entryPath))
	}
	out, err := os.Create(entryPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", entryPath)
	}
	var writer io.Writer = out
	if bar != nil {
		writer = io.MultiWriter(out, bar)
	}
	if _, err = io.Copy(writer, contents); err != nil {
		_ = out.Close()
		return errors.Wrapf(geodatasets.ErrCorruptArchive, "failed to extract %q: %v", entryPath, err)
	}
	if err = out.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", entryPath)
	}
	return nil
}
