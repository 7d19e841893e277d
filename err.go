/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Common errors
 */

package main

import (
	"errors"
)

// Error values for ipp-print
var (
	ErrInvalidInput = errors.New("File is missing or not a PDF")
	ErrNotReachable = errors.New("Printer is not reachable")
	ErrNoPages      = errors.New("Rasterization produced no pages")
	ErrRasterizer   = errors.New("Rasterization backend not available")
	ErrAllFailed    = errors.New("All delivery attempts failed")
	ErrCanceled     = errors.New("Print job canceled")
)
