/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Document preparation: filename normalization and PDF rasterization
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Geek0x0/pdf"
	"golang.org/x/text/unicode/norm"
)

// PageJob is the unit of retry granularity in the JPEG fallback
// path: one rasterized page with its own attempt counter. Only the
// retry engine mutates Attempts; everything else treats a PageJob
// as read-only. The backing image file stays on disk after the
// print call for manual recovery, whatever the outcome
type PageJob struct {
	PageNum     int    // 1-based page number
	ImagePath   string // Rasterized image on disk
	JpegData    []byte // Raw JPEG bytes
	JobName     string // Job name, suffixed _pNN when multi-page
	Attempts    int    // Attempts made so far
	MaxAttempts int    // Retry ceiling
}

// Prepared is the output of document preparation
type Prepared struct {
	Dir   string     // Retained temp directory
	Pages []*PageJob // One job per page, in page order
}

// Rasterizer converts a PDF into per-page JPEG files inside dir.
// It is an injected external collaborator: the core never installs
// or configures a rasterization backend
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, dir string,
		opt PrintOptions) ([]string, error)
}

var filenameJunk = regexp.MustCompile(`[^\w\-.]`)

// normalizeFilename strips accents (NFKD decompose, drop combining
// marks and the rest of non-ASCII), replaces anything outside
// [A-Za-z0-9._-] with an underscore, and truncates long names to
// 25 characters plus the extension
func normalizeFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range decomposed {
		if r > unicode.MaxASCII || unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	name = filenameJunk.ReplaceAllString(b.String(), "_")

	if len(name) > 30 {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if len(base) > 25 {
			base = base[:25]
		}
		name = base + ext
	}

	return name
}

// pdfMagic checks the "%PDF-" file signature
func pdfMagic(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	magic := make([]byte, 5)
	_, err = io.ReadFull(f, magic)
	return err == nil && string(magic) == "%PDF-"
}

// pdfPageCount opens the PDF and returns its page count. The
// reader panics on some malformed files, so panics are converted
// into errors here
func pdfPageCount(path string) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return r.NumPage(), nil
}

// pdfPageSize returns the size of the document's first page in
// IPP units (1/100 mm), derived from its MediaBox. ok is false
// when the document declares no usable MediaBox or cannot be
// parsed at all
func pdfPageSize(path string) (size MediaSize, ok bool) {
	defer func() {
		if recover() != nil {
			size, ok = MediaSize{}, false
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return MediaSize{}, false
	}
	defer f.Close()

	box := r.Page(1).V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return MediaSize{}, false
	}

	// MediaBox corners are in PostScript points, 1/72 inch
	const ptToIpp = 2540.0 / 72.0
	w := (box.Index(2).Float64() - box.Index(0).Float64()) * ptToIpp
	h := (box.Index(3).Float64() - box.Index(1).Float64()) * ptToIpp
	if w <= 0 || h <= 0 {
		return MediaSize{}, false
	}

	return MediaSize{Width: int(w + 0.5), Height: int(h + 0.5)}, true
}

// makeTempDir creates the retained per-call directory under the
// system temp root, named deterministically from the normalized
// document base name and a timestamp
func makeTempDir(baseName string) (string, error) {
	dir := filepath.Join(os.TempDir(),
		fmt.Sprintf("ipp-print-%s-%d", normalizeFilename(baseName),
			time.Now().Unix()))

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}

	return dir, nil
}

// PrepareDocument rasterizes every page of the PDF into a retained
// temp directory and builds one PageJob per page. expectPages, when
// positive, is the page count the PDF itself declares; a mismatch
// with the rasterizer output is logged but not fatal. The directory
// is never cleaned up, even on failure: partial output is kept for
// diagnostics, complete output for manual reprinting
func PrepareDocument(ctx context.Context, rast Rasterizer,
	pdfPath, jobName string, expectPages int,
	opt PrintOptions) (*Prepared, error) {

	base := strings.TrimSuffix(filepath.Base(pdfPath),
		filepath.Ext(pdfPath))
	safeBase := normalizeFilename(base)
	jobName = normalizeFilename(jobName)

	dir, err := makeTempDir(base)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	Log.Infof("converting %q to JPEG, %d dpi, into %s",
		filepath.Base(pdfPath), opt.DPI, dir)

	files, err := rast.Rasterize(ctx, pdfPath, dir, opt)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("prepare: %w", ErrNoPages)
	}

	if expectPages > 0 && len(files) != expectPages {
		Log.Warnf("document declares %d pages, rasterizer produced %d",
			expectPages, len(files))
	}

	prep := &Prepared{Dir: dir}

	for i, file := range files {
		num := i + 1

		// Canonical on-disk names so a human can match pages
		// to sheets when reprinting manually
		name := safeBase + ".jpg"
		pageJobName := jobName
		if len(files) > 1 {
			name = fmt.Sprintf("%s_p%2.2d.jpg", safeBase, num)
			pageJobName = fmt.Sprintf("%s_p%2.2d", jobName, num)
		}

		path := filepath.Join(dir, name)
		if path != file {
			if err = os.Rename(file, path); err != nil {
				path = file
			}
		}

		// Read back from disk: the on-disk copy is the recovery
		// artifact, so it must be what actually got sent
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("prepare: page %d: %w", num, err)
		}

		prep.Pages = append(prep.Pages, &PageJob{
			PageNum:     num,
			ImagePath:   path,
			JpegData:    data,
			JobName:     pageJobName,
			MaxAttempts: PageMaxAttempts,
		})

		Log.Debugf("page %d prepared: %s (%d bytes)", num, name, len(data))
	}

	return prep, nil
}

// PdftoppmRasterizer rasterizes through the poppler pdftoppm
// command-line tool
type PdftoppmRasterizer struct {
	Command string // Tool name or path, "pdftoppm" by default
}

// Rasterize implements the Rasterizer interface
func (r PdftoppmRasterizer) Rasterize(ctx context.Context,
	pdfPath, dir string, opt PrintOptions) ([]string, error) {

	command := r.Command
	if command == "" {
		command = "pdftoppm"
	}

	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRasterizer, command)
	}

	prefix := filepath.Join(dir, "page")

	args := []string{
		"-jpeg",
		"-r", fmt.Sprintf("%d", opt.DPI),
		"-jpegopt", fmt.Sprintf("quality=%d", opt.JpegQuality()),
	}
	if opt.ColorMode == ColorMonochrome {
		args = append(args, "-gray")
	}
	args = append(args, pdfPath, prefix)

	cmd := exec.CommandContext(ctx, command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %s", command, err,
			strings.TrimSpace(string(out)))
	}

	// pdftoppm writes page-01.jpg, page-02.jpg, ... zero-padded,
	// so a lexical sort restores page order
	files, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	return files, nil
}
