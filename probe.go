/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Printer connectivity probing
 */

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Prober tests a printer's reachability and discovers which of the
// candidate endpoint paths have an IPP listener behind them. It is
// an HTTP-layer existence probe only; no IPP semantics are checked,
// which keeps it cheap compared to full IPP round trips
type Prober struct {
	IP     string       // Printer address
	Port   int          // Printer port, usually 631
	HTTPS  bool         // Probe over HTTPS; may flip during probing
	client *http.Client // OPTIONS probe client
}

// NewProber creates a Prober for the given printer
func NewProber(ip string, port int, https bool) *Prober {
	return &Prober{
		IP:    ip,
		Port:  port,
		HTTPS: https,
		client: &http.Client{
			Timeout: Conf.ProbeTimeout,
			Transport: &http.Transport{
				// Printers ship self-signed certificates
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// CheckReachable performs the raw TCP reachability check. This is
// the single hard gate of the pipeline: if the printer does not
// accept a TCP connection there is no point trying any transport
func (p *Prober) CheckReachable() bool {
	addr := net.JoinHostPort(p.IP, fmt.Sprintf("%d", p.Port))

	conn, err := net.DialTimeout("tcp", addr, Conf.ConnectTimeout)
	if err != nil {
		Log.Debugf("probe: %s: %s", addr, err)
		return false
	}

	conn.Close()
	return true
}

// DiscoverEndpoints probes every candidate path with an HTTP
// OPTIONS request and returns the subset that appears to have a
// listener, in the original priority order.
//
// HTTP 405 and 501 are accepted alongside 200: they mean the path
// is routed even though the server does not implement OPTIONS.
// This mirrors the behavior of a class of embedded printer
// firmware and is a best-effort heuristic, not a protocol
// guarantee.
//
// An empty result is not fatal: the caller falls back to the full
// default candidate list, since the probe is a priority hint, not
// a gate
func (p *Prober) DiscoverEndpoints(ctx context.Context) []string {
	valid := []string{}

	for _, endpoint := range EndpointCandidates {
		if ctx.Err() != nil {
			break
		}

		ok, upgrade := p.probeEndpoint(ctx, endpoint)
		if upgrade && !p.HTTPS {
			// Server demands TLS; restart the sweep over HTTPS
			Log.Debugf("probe: %s wants HTTPS, switching", endpoint)
			p.HTTPS = true
			return p.DiscoverEndpoints(ctx)
		}

		if ok {
			Log.Debugf("probe: endpoint %q responds", endpoint)
			valid = append(valid, endpoint)
		}
	}

	return valid
}

// BaseURL returns the printer base URL under the probed scheme
func (p *Prober) BaseURL() string {
	scheme := "http"
	if p.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme,
		net.JoinHostPort(p.IP, fmt.Sprintf("%d", p.Port)))
}

// probeEndpoint issues one OPTIONS request. upgrade is set when the
// server answered 426 Upgrade Required or reset the plain-HTTP
// connection, both of which mean "retry over TLS"
func (p *Prober) probeEndpoint(ctx context.Context,
	endpoint string) (ok, upgrade bool) {

	url := p.BaseURL() + endpoint

	rq, err := http.NewRequestWithContext(ctx, http.MethodOptions, url, nil)
	if err != nil {
		return false, false
	}

	rsp, err := p.client.Do(rq)
	if err != nil {
		if !p.HTTPS && isConnReset(err) {
			return false, true
		}
		Log.Debugf("probe: %s: %s", url, err)
		return false, false
	}
	rsp.Body.Close()

	switch rsp.StatusCode {
	case http.StatusOK, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true, false
	case http.StatusUpgradeRequired:
		return false, true
	}

	Log.Debugf("probe: %s: HTTP %d", url, rsp.StatusCode)
	return false, false
}

// isConnReset reports whether an error looks like a peer reset of
// a plaintext connection, the usual symptom of an HTTPS-only
// printer answering an HTTP client
func isConnReset(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	s := err.Error()
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection aborted")
}
