/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Round-based page retry engine for the JPEG fallback path
 */

package main

import (
	"context"
	"sort"
	"time"
)

// Report is the structured outcome of one print call
type Report struct {
	Method     string // "pdf" or "jpeg"
	TotalPages int    // Pages attempted (JPEG path), 1 for PDF
	Succeeded  []int  // Page numbers delivered
	Failed     []int  // Page numbers permanently failed
	TempDir    string // Retained page images, "" for the PDF path
	JobID      int    // Printer-assigned job-id (PDF path), if any
}

// OK reports overall success: every page (or the single PDF
// submission) must have been delivered
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && len(r.Succeeded) == r.TotalPages
}

// RetryEngine drives the JPEG fallback: each page is an independent
// IPP job with its own attempt counter, processed in rounds. A page
// failing a round is re-queued with escalating backoff until it
// either goes through or exhausts its attempt ceiling. A failure on
// one page never aborts the others
type RetryEngine struct {
	Sender    Sender                // Delivery transport
	BaseURL   string                // Printer base URL (scheme://host:port)
	Endpoints []string              // Endpoint paths in priority order
	Options   PrintOptions          // Request configuration
	User      string                // requesting-user-name value
	RequestID func() uint32         // Request-id allocator
	OnSuccess func(endpoint string) // Called on each accepted send
	sleep     func(context.Context, time.Duration) bool
}

// NewRetryEngine creates a RetryEngine
func NewRetryEngine(sender Sender, baseURL string, endpoints []string,
	opt PrintOptions, user string, reqID func() uint32) *RetryEngine {

	return &RetryEngine{
		Sender:    sender,
		BaseURL:   baseURL,
		Endpoints: endpoints,
		Options:   opt,
		User:      user,
		RequestID: reqID,
		sleep:     sleepCtx,
	}
}

// Run processes all pages to completion and produces the per-page
// report. Cancellation is honored between sends, never mid-send:
// on cancel, pages not yet delivered are reported failed
func (e *RetryEngine) Run(ctx context.Context, prep *Prepared) *Report {
	report := &Report{
		Method:     "jpeg",
		TotalPages: len(prep.Pages),
		TempDir:    prep.Dir,
	}

	pending := append([]*PageJob{}, prep.Pages...)

	for len(pending) > 0 && ctx.Err() == nil {
		var requeued []*PageJob

		for _, page := range pending {
			if ctx.Err() != nil {
				requeued = append(requeued, page)
				continue
			}

			page.Attempts++
			Log.Infof("sending page %d/%d (attempt %d/%d)",
				page.PageNum, report.TotalPages,
				page.Attempts, page.MaxAttempts)

			if e.sendPage(ctx, page) {
				Log.Infof("page %d delivered", page.PageNum)
				report.Succeeded = append(report.Succeeded, page.PageNum)
				continue
			}

			if page.Attempts < page.MaxAttempts {
				Log.Warnf("page %d failed, will retry", page.PageNum)
				requeued = append(requeued, page)
				e.sleep(ctx, retryDelay(page.Attempts))
			} else {
				Log.Errorf("page %d failed permanently after %d attempts",
					page.PageNum, page.Attempts)
				report.Failed = append(report.Failed, page.PageNum)
			}
		}

		pending = requeued

		// Let transient printer-side congestion clear before
		// the next round
		if len(pending) > 0 {
			e.sleep(ctx, RoundPause)
		}
	}

	// Whatever is still pending after cancellation counts as failed
	for _, page := range pending {
		report.Failed = append(report.Failed, page.PageNum)
	}

	sort.Ints(report.Succeeded)
	sort.Ints(report.Failed)

	if len(report.Failed) > 0 {
		Log.Warnf("pages %v kept in %s for manual reprint",
			report.Failed, report.TempDir)
	}

	return report
}

// sendPage tries one page against every endpoint in priority
// order, all transport strategies per endpoint. Copies are honored
// only on page 1: every sheet of the fallback is an independent
// single-sided job, so multiplying later pages would interleave
// copies
func (e *RetryEngine) sendPage(ctx context.Context, page *PageJob) bool {
	copies := 1
	if page.PageNum == 1 {
		copies = e.Options.Copies
	}

	for i, endpoint := range e.Endpoints {
		if ctx.Err() != nil {
			return false
		}

		url := e.BaseURL + endpoint
		attrs := e.Options.ippAttrs(printerURI(url), e.User,
			page.JobName, "image/jpeg", copies, false)

		ipp := IppBuildRequest(IppOpPrintJob, e.RequestID(),
			attrs, page.JpegData)

		body, ok := e.Sender.Send(ctx, url, ipp)
		if ok {
			if id := IppResponseJobID(body); id != 0 {
				Log.Debugf("page %d accepted as job-id %d",
					page.PageNum, id)
			}
			if e.OnSuccess != nil {
				e.OnSuccess(endpoint)
			}
			return true
		}

		// Give a possibly-overwhelmed embedded stack a breather
		// before hitting the next endpoint
		if i == 0 && len(e.Endpoints) > 1 {
			e.sleep(ctx, EndpointPause)
		}
	}

	return false
}

// retryDelay picks the backoff delay for a page that has made the
// given number of attempts, clamped to the schedule's last entry
func retryDelay(attempts int) time.Duration {
	i := attempts - 1
	if i >= len(RetryDelays) {
		i = len(RetryDelays) - 1
	}
	if i < 0 {
		i = 0
	}
	return RetryDelays[i]
}

// sleepCtx sleeps d or until the context is canceled. Returns
// false on cancellation
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// printerURI converts an HTTP endpoint URL into the corresponding
// IPP URI for the printer-uri attribute
func printerURI(url string) string {
	switch {
	case len(url) > 8 && url[:8] == "https://":
		return "ipps://" + url[8:]
	case len(url) > 7 && url[:7] == "http://":
		return "ipp://" + url[7:]
	}
	return url
}
