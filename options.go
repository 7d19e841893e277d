/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Print options
 */

package main

// ColorMode represents the requested color handling
type ColorMode int

// Color modes. Auto leaves the choice to the printer and is not
// sent on the wire
const (
	ColorAuto ColorMode = iota
	ColorColor
	ColorMonochrome
)

// String returns the IPP print-color-mode keyword
func (m ColorMode) String() string {
	switch m {
	case ColorColor:
		return "color"
	case ColorMonochrome:
		return "monochrome"
	}
	return "auto"
}

// DuplexMode represents the requested two-sided printing mode
type DuplexMode int

// Duplex modes, matching the IPP "sides" keywords
const (
	DuplexNone DuplexMode = iota
	DuplexLongEdge
	DuplexShortEdge
)

// String returns the IPP sides keyword
func (m DuplexMode) String() string {
	switch m {
	case DuplexLongEdge:
		return "two-sided-long-edge"
	case DuplexShortEdge:
		return "two-sided-short-edge"
	}
	return "one-sided"
}

// Quality represents print quality. Values match the IPP
// print-quality enum
type Quality int

// Print quality levels
const (
	QualityDraft  Quality = 3
	QualityNormal Quality = 4
	QualityHigh   Quality = 5
)

// PrintOptions is the immutable per-document request configuration.
// Create it once before a print call; the pipeline never mutates it
type PrintOptions struct {
	ColorMode ColorMode  // auto/color/monochrome
	Duplex    DuplexMode // one-sided or two-sided
	Quality   Quality    // draft/normal/high
	Copies    int        // Positive copy count
	Landscape bool       // Landscape orientation
	Media     string     // Paper size keyword, e.g. iso_a4_210x297mm
	DPI       int        // Rasterization resolution for the fallback
}

// DefaultPrintOptions returns options with the usual defaults
func DefaultPrintOptions() PrintOptions {
	return PrintOptions{
		ColorMode: ColorAuto,
		Duplex:    DuplexNone,
		Quality:   QualityNormal,
		Copies:    1,
		Media:     "iso_a4_210x297mm",
		DPI:       300,
	}
}

// orientation returns the IPP orientation-requested enum value
func (opt PrintOptions) orientation() int {
	if opt.Landscape {
		return 4
	}
	return 3
}

// JpegQuality returns the JPEG quality matching the requested
// print quality
func (opt PrintOptions) JpegQuality() int {
	if opt.Quality == QualityHigh {
		return Conf.JpegQualityHi
	}
	return Conf.JpegQuality
}

// ippAttrs builds the PRINT-JOB attribute map for one send attempt.
// The map is rebuilt for every attempt because document-format,
// job-name and copies differ between the PDF path and each page of
// the JPEG fallback
func (opt PrintOptions) ippAttrs(printerURI, user, jobName,
	format string, copies int, withDuplex bool) IppAttrs {

	attrs := IppAttrs{}
	attrs.Add("printer-uri", printerURI)
	attrs.Add("requesting-user-name", user)
	attrs.Add("job-name", jobName)
	attrs.Add("document-name", jobName)
	attrs.Add("document-format", format)
	attrs.Add("ipp-attribute-fidelity", false)
	attrs.Add("job-priority", 50)
	attrs.Add("copies", copies)
	attrs.Add("orientation-requested", opt.orientation())
	attrs.Add("print-quality", int(opt.Quality))
	attrs.Add("media", opt.Media)

	if opt.ColorMode != ColorAuto {
		attrs.Add("print-color-mode", opt.ColorMode.String())
	}

	// Duplex is meaningless for single-image jobs, so the JPEG
	// fallback never asks for it
	if withDuplex && opt.Duplex != DuplexNone {
		attrs.Add("sides", opt.Duplex.String())
	}

	return attrs
}
