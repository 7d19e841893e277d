/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Multi-strategy IPP transport
 */

package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender delivers an assembled IPP request to a URL. It returns
// the raw response body and whether the printer reported IPP
// success. The orchestrator and the retry engine depend on this
// interface, not on the concrete Transport, so tests can count and
// fake deliveries
type Sender interface {
	Send(ctx context.Context, rawurl string, ipp []byte) ([]byte, bool)
}

// Transport delivers IPP requests trying four strategies in fixed
// order, stopping at the first one the printer accepts:
//
//  1. minimal HTTP headers
//  2. CUPS-compatible headers (some IPP servers reject requests
//     lacking a recognized client signature)
//  3. explicit HTTP/1.0 framing (some embedded printer stacks
//     mishandle HTTP/1.1 framing)
//  4. raw TCP socket with a hand-written request
//
// Success is judged by the IPP status code in the response body,
// never by the HTTP status alone
type Transport struct {
	client *http.Client
}

// transportStrategy is one HTTP framing/header combination
type transportStrategy struct {
	name string
	send func(t *Transport, ctx context.Context,
		u *url.URL, ipp []byte) ([]byte, error)
}

// The fixed strategy order
var transportStrategies = []transportStrategy{
	{"minimal", (*Transport).sendMinimal},
	{"compat", (*Transport).sendCompat},
	{"http10", (*Transport).sendHTTP10},
	{"rawsock", (*Transport).sendRawSocket},
}

// NewTransport creates a Transport
func NewTransport() *Transport {
	return &Transport{
		client: &http.Client{
			Timeout: Conf.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				// Embedded stacks dislike connection reuse
				DisableKeepAlives: true,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Send implements the Sender interface. Any network-level error in
// a strategy is that strategy's failure, not a fatal one: control
// passes to the next strategy
func (t *Transport) Send(ctx context.Context,
	rawurl string, ipp []byte) ([]byte, bool) {

	u, err := url.Parse(rawurl)
	if err != nil {
		Log.Errorf("transport: bad url %q: %s", rawurl, err)
		return nil, false
	}

	for _, strategy := range transportStrategies {
		if ctx.Err() != nil {
			return nil, false
		}

		body, err := strategy.send(t, ctx, u, ipp)
		if err != nil {
			Log.Debugf("transport: %s: %s: %s", strategy.name, rawurl, err)
			continue
		}

		if IppResponseOK(body) {
			Log.Debugf("transport: %s: %s: accepted", strategy.name, rawurl)
			return body, true
		}

		if status, ok := IppResponseStatus(body); ok {
			Log.Debugf("transport: %s: %s: IPP status 0x%4.4X (%s)",
				strategy.name, rawurl, status, ippStatusName(status))
		} else {
			Log.Debugf("transport: %s: %s: short response", strategy.name, rawurl)
		}
	}

	return nil, false
}

// sendMinimal posts the request with the smallest possible header
// set: Content-Type and Content-Length only
func (t *Transport) sendMinimal(ctx context.Context,
	u *url.URL, ipp []byte) ([]byte, error) {

	return t.post(ctx, u, ipp, nil)
}

// sendCompat posts the request with a CUPS client signature
func (t *Transport) sendCompat(ctx context.Context,
	u *url.URL, ipp []byte) ([]byte, error) {

	return t.post(ctx, u, ipp, map[string]string{
		"User-Agent": "CUPS/2.3",
		"Accept":     "application/ipp",
		"Connection": "close",
	})
}

// post is the shared body of the first two strategies
func (t *Transport) post(ctx context.Context, u *url.URL,
	ipp []byte, headers map[string]string) ([]byte, error) {

	rq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.String(), bytes.NewReader(ipp))
	if err != nil {
		return nil, err
	}

	rq.Header.Set("Content-Type", "application/ipp")
	for k, v := range headers {
		rq.Header.Set(k, v)
	}

	rsp, err := t.client.Do(rq)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %s", rsp.Status)
	}

	return io.ReadAll(rsp.Body)
}

// sendHTTP10 forces HTTP/1.0 request framing: the request line and
// headers are written by hand over a dialed connection, while the
// response is still parsed by net/http machinery
func (t *Transport) sendHTTP10(ctx context.Context,
	u *url.URL, ipp []byte) ([]byte, error) {

	conn, err := t.dial(ctx, u)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	err = writeHTTP10Request(conn, u, ipp)
	if err != nil {
		return nil, err
	}

	rsp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %s", rsp.Status)
	}

	return io.ReadAll(rsp.Body)
}

// sendRawSocket is the last resort: hand-written request, response
// read until the peer closes, HTTP status line and header/body
// boundary located manually
func (t *Transport) sendRawSocket(ctx context.Context,
	u *url.URL, ipp []byte) ([]byte, error) {

	conn, err := t.dial(ctx, u)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	err = writeHTTP10Request(conn, u, ipp)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(conn)
	if len(raw) == 0 && err != nil {
		return nil, err
	}

	return parseRawResponse(raw)
}

// writeHTTP10Request writes a hand-built HTTP/1.0 POST
func writeHTTP10Request(w io.Writer, u *url.URL, ipp []byte) error {
	path := u.Path
	if path == "" {
		path = "/"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "POST %s HTTP/1.0\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", u.Host)
	fmt.Fprintf(&b, "Content-Type: application/ipp\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(ipp))
	fmt.Fprintf(&b, "Connection: close\r\n")
	fmt.Fprintf(&b, "\r\n")
	b.Write(ipp)

	_, err := w.Write(b.Bytes())
	return err
}

// parseRawResponse locates the HTTP status line and the blank-line
// boundary between headers and body in a raw response dump, and
// returns the body
func parseRawResponse(raw []byte) ([]byte, error) {
	eol := bytes.IndexByte(raw, '\n')
	if eol < 0 {
		return nil, fmt.Errorf("no HTTP status line")
	}

	statusLine := strings.TrimRight(string(raw[:eol]), "\r")
	fields := strings.SplitN(statusLine, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return nil, fmt.Errorf("malformed status line %q", statusLine)
	}

	if !strings.HasPrefix(fields[1], "200") {
		return nil, fmt.Errorf("HTTP %s", fields[1])
	}

	boundary := bytes.Index(raw, []byte("\r\n\r\n"))
	skip := 4
	if boundary < 0 {
		boundary = bytes.Index(raw, []byte("\n\n"))
		skip = 2
	}
	if boundary < 0 {
		return nil, fmt.Errorf("no header/body boundary")
	}

	return raw[boundary+skip:], nil
}

// dial opens a TCP (or TLS) connection to the URL's host with the
// connect timeout, and bounds all following I/O by the request
// timeout
func (t *Transport) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "631")
	}

	dialer := net.Dialer{Timeout: Conf.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{
			InsecureSkipVerify: true,
			ServerName:         u.Hostname(),
		})
		if err = tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	conn.SetDeadline(time.Now().Add(Conf.RequestTimeout))
	return conn, nil
}
