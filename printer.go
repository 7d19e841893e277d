/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Print orchestration
 */

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Printer orchestrates a complete print call against one printer:
// input validation, the reachability gate, endpoint discovery,
// whole-PDF submission and the per-page JPEG fallback
type Printer struct {
	IP      string       // Printer address
	Port    int          // Printer port
	HTTPS   bool         // Start with HTTPS
	Options PrintOptions // Request configuration

	Sender     Sender     // Delivery transport
	Rasterizer Rasterizer // PDF to JPEG backend
	History    *History   // Job history, may be nil

	state *PrinterState // Cached endpoint/protocol
	reqid atomic.Uint32 // PRINT-JOB request-id counter
}

// NewPrinter creates a Printer with the production transport and
// rasterizer wired in
func NewPrinter(ip string, port int, https bool, opt PrintOptions) *Printer {
	return &Printer{
		IP:         ip,
		Port:       port,
		HTTPS:      https,
		Options:    opt,
		Sender:     NewTransport(),
		Rasterizer: PdftoppmRasterizer{},
	}
}

// nextRequestID allocates the next IPP request-id. Identifiers
// start at 1 and stay unique for the process lifetime
func (p *Printer) nextRequestID() uint32 {
	return p.reqid.Add(1)
}

// addr returns the printer address as "host:port"
func (p *Printer) addr() string {
	return net.JoinHostPort(p.IP, fmt.Sprintf("%d", p.Port))
}

// userName returns the requesting-user-name value. The OS user
// name goes through the same normalization as file names: some
// printer firmware chokes on non-ASCII attribute values
func (p *Printer) userName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		if name := normalizeFilename(u.Username); name != "" {
			return name
		}
	}
	return "ipp-print"
}

// Print runs the whole pipeline for one PDF document. The returned
// Report is valid whenever the error is nil or ErrAllFailed; other
// errors mean the pipeline stopped before anything was sent.
//
// A panic anywhere below is converted into an error here, so a
// malformed document or a misbehaving dependency cannot take the
// caller down
func (p *Printer) Print(ctx context.Context,
	pdfPath, jobName string) (report *Report, err error) {

	defer func() {
		if r := recover(); r != nil {
			report, err = nil, fmt.Errorf("internal error: %v", r)
			Log.Errorf("print: %s", err)
		}
	}()

	pages, err := p.validate(pdfPath)
	if err != nil {
		return nil, err
	}

	if jobName == "" {
		jobName = strings.TrimSuffix(filepath.Base(pdfPath),
			filepath.Ext(pdfPath))
	}
	jobName = normalizeFilename(jobName)

	if pages > 0 && p.Options.Media != "" {
		if doc, ok := pdfPageSize(pdfPath); ok &&
			MediaUndersized(p.Options.Media, doc) {
			Log.Warnf("document page %dx%d mm is larger than the "+
				"requested %s media, the printer may scale or clip it",
				(doc.Width+50)/100, (doc.Height+50)/100, p.Options.Media)
		}
	}

	// Reachability is the single hard gate
	p.state = LoadPrinterState(p.IP, p.Port)
	prober := NewProber(p.IP, p.Port, p.HTTPS || p.state.HTTPS)

	if !prober.CheckReachable() {
		return nil, fmt.Errorf("%s: %w", p.addr(), ErrNotReachable)
	}

	endpoints := prober.DiscoverEndpoints(ctx)
	if len(endpoints) == 0 {
		// The probe is a hint, not a gate
		Log.Infof("no endpoint answered the probe, using the full list")
		endpoints = EndpointCandidates
	}
	endpoints = p.state.Prioritize(endpoints)

	baseURL := prober.BaseURL()
	if pages > 0 {
		Log.Infof("printing %q (%d pages) to %s", filepath.Base(pdfPath),
			pages, baseURL)
	} else {
		Log.Infof("printing %q to %s", filepath.Base(pdfPath), baseURL)
	}

	if err = ctx.Err(); err != nil {
		return nil, ErrCanceled
	}

	// Fast path: the whole PDF as a single job
	report = p.printPDF(ctx, prober, pdfPath, jobName, endpoints)
	if report != nil {
		p.record(ctx, pdfPath, report)
		return report, nil
	}

	Log.Infof("direct PDF submission rejected, falling back to per-page JPEG")

	// Fallback: rasterize and send page by page
	prep, err := PrepareDocument(ctx, p.Rasterizer, pdfPath, jobName,
		pages, p.Options)
	if err != nil {
		return nil, err
	}

	engine := NewRetryEngine(p.Sender, prober.BaseURL(), endpoints,
		p.Options, p.userName(), p.nextRequestID)
	engine.OnSuccess = func(endpoint string) {
		p.state.SetWorking(endpoint, prober.HTTPS)
	}

	report = engine.Run(ctx, prep)
	p.record(ctx, pdfPath, report)

	if !report.OK() {
		p.state.NoteFailure()
		if ctx.Err() != nil {
			return report, ErrCanceled
		}
		return report, ErrAllFailed
	}

	return report, nil
}

// validate checks the input document and returns its page count;
// zero means the count is unknown
func (p *Printer) validate(pdfPath string) (int, error) {
	if strings.ToLower(filepath.Ext(pdfPath)) != ".pdf" {
		return 0, fmt.Errorf("%q: %w", pdfPath, ErrInvalidInput)
	}

	if fi, err := os.Stat(pdfPath); err != nil || fi.IsDir() {
		return 0, fmt.Errorf("%q: %w", pdfPath, ErrInvalidInput)
	}

	if !pdfMagic(pdfPath) {
		return 0, fmt.Errorf("%q: not a PDF: %w", pdfPath, ErrInvalidInput)
	}

	// The count is advisory: a document this reader cannot parse
	// may still be acceptable to the rasterizer or the printer
	pages, err := pdfPageCount(pdfPath)
	if err != nil {
		Log.Warnf("%s: %s, proceeding with unknown page count",
			filepath.Base(pdfPath), err)
		return 0, nil
	}

	return pages, nil
}

// printPDF tries to deliver the whole PDF as a single PRINT-JOB
// across the endpoints. A nil report means no endpoint accepted it
// and the caller should fall back to per-page JPEG
func (p *Printer) printPDF(ctx context.Context, prober *Prober,
	pdfPath, jobName string, endpoints []string) *Report {

	document, err := os.ReadFile(pdfPath)
	if err != nil {
		Log.Errorf("print: %s", err)
		return nil
	}

	for i, endpoint := range endpoints {
		if ctx.Err() != nil {
			return nil
		}

		url := prober.BaseURL() + endpoint
		attrs := p.Options.ippAttrs(printerURI(url), p.userName(),
			jobName, "application/pdf", p.Options.Copies, true)

		ipp := IppBuildRequest(IppOpPrintJob, p.nextRequestID(),
			attrs, document)

		body, ok := p.Sender.Send(ctx, url, ipp)
		if ok {
			p.state.SetWorking(endpoint, prober.HTTPS)

			return &Report{
				Method:     "pdf",
				TotalPages: 1,
				Succeeded:  []int{1},
				JobID:      IppResponseJobID(body),
			}
		}

		if i == 0 && len(endpoints) > 1 {
			sleepCtx(ctx, EndpointPause)
		}
	}

	return nil
}

// record saves the print call outcome in the history database
func (p *Printer) record(ctx context.Context, pdfPath string,
	report *Report) {

	p.History.Record(ctx, filepath.Base(pdfPath), p.addr(), report)
}
