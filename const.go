/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Configuration constants
 */

package main

import (
	"time"
)

const (
	// ConnectTimeout specifies how much time to wait for the
	// raw TCP connection to the printer
	ConnectTimeout = 5 * time.Second

	// ProbeTimeout specifies the per-endpoint timeout for the
	// HTTP OPTIONS existence probe
	ProbeTimeout = 10 * time.Second

	// RequestTimeout specifies the timeout for a complete IPP
	// POST, including the document body
	RequestTimeout = 30 * time.Second

	// EndpointPause is inserted after the first endpoint's
	// strategies are exhausted, before the next endpoint is tried,
	// to avoid hammering an embedded printer HTTP stack
	EndpointPause = 1 * time.Second

	// RoundPause separates page retry rounds while pages remain
	// pending, to let transient printer-side congestion clear
	RoundPause = 3 * time.Second

	// PageMaxAttempts is the per-page retry ceiling in the JPEG
	// fallback path
	PageMaxAttempts = 3
)

// RetryDelays is the escalating backoff schedule for a failing
// page, indexed by attempts made so far and clamped to the last
// entry
var RetryDelays = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// EndpointCandidates is the fixed priority-ordered list of URL
// path suffixes tried against a printer. The order reflects the
// most common IPP server configurations (HP, Brother, Epson first)
var EndpointCandidates = []string{
	"/ipp/print",
	"/ipp",
	"/printers/ipp",
	"/ipp/printer",
	"/printer",
	"/printers",
	"",
}
