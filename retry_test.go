/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Tests for retry.go
 */

package main

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OpenPrinting/goipp"
)

// fakeSender is a scriptable Sender that records every delivery
type fakeSender struct {
	script func(url string, msg *goipp.Message) bool
	calls  []fakeCall
}

type fakeCall struct {
	url string
	msg goipp.Message
}

func (s *fakeSender) Send(ctx context.Context,
	rawurl string, ipp []byte) ([]byte, bool) {

	var msg goipp.Message
	if err := msg.Decode(bytes.NewReader(ipp)); err != nil {
		panic(fmt.Sprintf("fakeSender: undecodable request: %s", err))
	}

	s.calls = append(s.calls, fakeCall{url: rawurl, msg: msg})

	if s.script != nil && !s.script(rawurl, &msg) {
		return ippBody(0x0506), false
	}
	return ippBody(IppStatusOk), true
}

// attrValue returns the string form of an operation attribute
func attrValue(msg *goipp.Message, name string) string {
	if attr := findAttr(msg.Operation, name); attr != nil {
		return attr.Values[0].V.String()
	}
	return ""
}

// attrInt returns an integer operation attribute, or -1
func attrInt(msg *goipp.Message, name string) int {
	if attr := findAttr(msg.Operation, name); attr != nil {
		if v, ok := attr.Values[0].V.(goipp.Integer); ok {
			return int(v)
		}
	}
	return -1
}

// makePrepared builds an in-memory Prepared document
func makePrepared(pages int) *Prepared {
	prep := &Prepared{Dir: "/tmp/fake"}
	for i := 1; i <= pages; i++ {
		prep.Pages = append(prep.Pages, &PageJob{
			PageNum:     i,
			JpegData:    []byte(fmt.Sprintf("JPEG page %d", i)),
			JobName:     fmt.Sprintf("doc_p%2.2d", i),
			MaxAttempts: PageMaxAttempts,
		})
	}
	return prep
}

// testEngine builds a RetryEngine with sleeping disabled
func testEngine(sender Sender, endpoints []string,
	opt PrintOptions) *RetryEngine {

	reqid := uint32(0)
	engine := NewRetryEngine(sender, "http://127.0.0.1:631", endpoints,
		opt, "alice", func() uint32 { reqid++; return reqid })
	engine.sleep = func(context.Context, time.Duration) bool { return true }
	return engine
}

// One permanently failing page must not abort the others, and must
// be reported with the retained directory
func TestRetryEnginePermanentFailure(t *testing.T) {
	sender := &fakeSender{
		script: func(url string, msg *goipp.Message) bool {
			return !strings.HasSuffix(attrValue(msg, "job-name"), "_p02")
		},
	}

	engine := testEngine(sender, []string{"/ipp/print"},
		DefaultPrintOptions())
	report := engine.Run(context.Background(), makePrepared(3))

	if !reflect.DeepEqual(report.Succeeded, []int{1, 3}) {
		t.Errorf("Succeeded: %v, must be [1 3]", report.Succeeded)
	}
	if !reflect.DeepEqual(report.Failed, []int{2}) {
		t.Errorf("Failed: %v, must be [2]", report.Failed)
	}
	if report.OK() {
		t.Errorf("OK: true, must be false")
	}
	if report.TempDir != "/tmp/fake" {
		t.Errorf("TempDir: %q", report.TempDir)
	}

	// Pages 1 and 3 go through once, page 2 exhausts its attempts
	if len(sender.calls) != 2+PageMaxAttempts {
		t.Errorf("deliveries: %d, must be %d",
			len(sender.calls), 2+PageMaxAttempts)
	}
}

// A transient failure must be retried and eventually succeed
func TestRetryEngineTransientFailure(t *testing.T) {
	failures := 1
	sender := &fakeSender{
		script: func(url string, msg *goipp.Message) bool {
			if failures > 0 {
				failures--
				return false
			}
			return true
		},
	}

	engine := testEngine(sender, []string{"/ipp/print"},
		DefaultPrintOptions())
	report := engine.Run(context.Background(), makePrepared(1))

	if !report.OK() {
		t.Fatalf("OK: false, must be true")
	}
	if len(sender.calls) != 2 {
		t.Errorf("deliveries: %d, must be 2", len(sender.calls))
	}
}

// Copies apply to the first page only: every later page is an
// independent single-copy job
func TestRetryEngineCopies(t *testing.T) {
	sender := &fakeSender{}

	opt := DefaultPrintOptions()
	opt.Copies = 3

	engine := testEngine(sender, []string{"/ipp/print"}, opt)
	engine.Run(context.Background(), makePrepared(3))

	for _, call := range sender.calls {
		name := attrValue(&call.msg, "job-name")
		copies := attrInt(&call.msg, "copies")

		expected := 1
		if strings.HasSuffix(name, "_p01") {
			expected = 3
		}
		if copies != expected {
			t.Errorf("%s: copies %d, must be %d", name, copies, expected)
		}
	}
}

// The JPEG path never asks for duplex, and the format is image/jpeg
func TestRetryEngineJpegAttrs(t *testing.T) {
	sender := &fakeSender{}

	opt := DefaultPrintOptions()
	opt.Duplex = DuplexLongEdge

	engine := testEngine(sender, []string{"/ipp/print"}, opt)
	engine.Run(context.Background(), makePrepared(1))

	msg := &sender.calls[0].msg
	if attrValue(msg, "document-format") != "image/jpeg" {
		t.Errorf("document-format: %q", attrValue(msg, "document-format"))
	}
	if findAttr(msg.Operation, "sides") != nil {
		t.Errorf("sides: present on the JPEG path")
	}
}

// When the first endpoint refuses, the next one is tried within the
// same attempt
func TestRetryEngineEndpointFallback(t *testing.T) {
	sender := &fakeSender{
		script: func(url string, msg *goipp.Message) bool {
			return strings.HasSuffix(url, "/ipp")
		},
	}

	engine := testEngine(sender, []string{"/ipp/print", "/ipp"},
		DefaultPrintOptions())
	report := engine.Run(context.Background(), makePrepared(1))

	if !report.OK() {
		t.Fatalf("OK: false, must be true")
	}
	if len(sender.calls) != 2 {
		t.Fatalf("deliveries: %d, must be 2", len(sender.calls))
	}
	if !strings.HasSuffix(sender.calls[0].url, "/ipp/print") ||
		!strings.HasSuffix(sender.calls[1].url, "/ipp") {
		t.Errorf("endpoint order: %q, %q",
			sender.calls[0].url, sender.calls[1].url)
	}
}

// OnSuccess reports the endpoint that worked
func TestRetryEngineOnSuccess(t *testing.T) {
	sender := &fakeSender{
		script: func(url string, msg *goipp.Message) bool {
			return strings.HasSuffix(url, "/ipp")
		},
	}

	engine := testEngine(sender, []string{"/ipp/print", "/ipp"},
		DefaultPrintOptions())

	var worked []string
	engine.OnSuccess = func(endpoint string) {
		worked = append(worked, endpoint)
	}

	engine.Run(context.Background(), makePrepared(1))

	if !reflect.DeepEqual(worked, []string{"/ipp"}) {
		t.Errorf("OnSuccess: %v, must be [/ipp]", worked)
	}
}

// A canceled context stops the engine and reports undelivered
// pages as failed
func TestRetryEngineCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &fakeSender{}
	engine := testEngine(sender, []string{"/ipp/print"},
		DefaultPrintOptions())
	report := engine.Run(ctx, makePrepared(2))

	if len(sender.calls) != 0 {
		t.Errorf("deliveries after cancel: %d, must be 0",
			len(sender.calls))
	}
	if !reflect.DeepEqual(report.Failed, []int{1, 2}) {
		t.Errorf("Failed: %v, must be [1 2]", report.Failed)
	}
}

// The backoff schedule must be non-decreasing, bounded by its last
// entry, and clamped for attempt counts past the end
func TestRetryDelay(t *testing.T) {
	last := RetryDelays[len(RetryDelays)-1]

	prev := time.Duration(0)
	for attempts := 1; attempts <= 10; attempts++ {
		delay := retryDelay(attempts)

		if delay < prev {
			t.Errorf("retryDelay(%d): %s < retryDelay(%d) %s",
				attempts, delay, attempts-1, prev)
		}
		if delay > last {
			t.Errorf("retryDelay(%d): %s exceeds the schedule", attempts, delay)
		}
		prev = delay
	}

	if retryDelay(1) != RetryDelays[0] {
		t.Errorf("retryDelay(1): %s, must be %s",
			retryDelay(1), RetryDelays[0])
	}
	if retryDelay(100) != last {
		t.Errorf("retryDelay(100): %s, must be %s", retryDelay(100), last)
	}
}
