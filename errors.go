// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package geodatasets

import "github.com/pkg/errors"

// Error taxonomy for the module. All errors returned by the dataset
// constructors and accessors wrap one of these sentinels, so callers can
// classify failures with errors.Is. None of them is recoverable by
// retrying -- a NotFound or Checksum failure requires re-downloading the
// raw data, a Decode failure means the file on disk is damaged.
var (
	// ErrNotFound indicates neither the extracted dataset directory nor the
	// raw archives were found under the given root directory.
	ErrNotFound = errors.New("dataset not found in root directory")

	// ErrChecksum indicates a raw archive exists but its MD5 digest does
	// not match the expected value. Only raised when checksum verification
	// is enabled.
	ErrChecksum = errors.New("dataset found, but corrupted")

	// ErrCorruptArchive indicates an archive could not be read or
	// decompressed.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrDecode indicates a file could not be parsed as an image or raster.
	ErrDecode = errors.New("cannot decode image file")

	// ErrInvalidConfig indicates a bad constructor or partition argument:
	// an unknown split name, or out-of-range fractions. Raised before any
	// filesystem access.
	ErrInvalidConfig = errors.New("invalid dataset configuration")

	// ErrUnknownColor indicates a label-mask pixel whose colour is not
	// present in the dataset palette. See raster.Palette.
	ErrUnknownColor = errors.New("colour not in palette")
)
