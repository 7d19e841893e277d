/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Tests for transport.go
 */

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

// ippBody builds a minimal IPP response body with the given status
func ippBody(status uint16) []byte {
	return []byte{0x01, 0x01, byte(status >> 8), byte(status),
		0x00, 0x00, 0x00, 0x01}
}

// http10Server simulates a printer whose embedded HTTP stack only
// accepts HTTP/1.0 requests. HTTP/1.1 requests are answered with
// 400, so the first two strategies must fail and the HTTP/1.0
// fallback must succeed
type http10Server struct {
	listener net.Listener
	rejected atomic.Int32 // HTTP/1.1 requests turned away
	body     []byte       // IPP body served on success
}

func newHTTP10Server(t *testing.T, body []byte) *http10Server {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %s", err)
	}

	srv := &http10Server{listener: listener, body: body}
	go srv.serve()
	return srv
}

func (srv *http10Server) Close() {
	srv.listener.Close()
}

func (srv *http10Server) URL() string {
	return "http://" + srv.listener.Addr().String() + "/ipp/print"
}

func (srv *http10Server) serve() {
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			return
		}
		go srv.handle(conn)
	}
}

func (srv *http10Server) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	requestLine, err := r.ReadString('\n')
	if err != nil {
		return
	}

	// Headers: we only care about Content-Length
	length := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, _ = strconv.Atoi(v)
		}
	}

	io.CopyN(io.Discard, r, int64(length))

	if strings.Contains(requestLine, "HTTP/1.1") {
		srv.rejected.Add(1)
		fmt.Fprintf(conn, "HTTP/1.1 400 Bad Request\r\n"+
			"Content-Length: 0\r\nConnection: close\r\n\r\n")
		return
	}

	fmt.Fprintf(conn, "HTTP/1.0 200 OK\r\n"+
		"Content-Type: application/ipp\r\n\r\n")
	conn.Write(srv.body)
}

// A printer accepting only HTTP/1.0 must be reached by the third
// strategy after the first two are turned away
func TestSendHTTP10Fallback(t *testing.T) {
	srv := newHTTP10Server(t, ippBody(IppStatusOk))
	defer srv.Close()

	transport := NewTransport()
	body, ok := transport.Send(context.Background(), srv.URL(),
		ippBody(IppStatusOk))

	if !ok {
		t.Fatalf("Send: failed against an HTTP/1.0 printer")
	}
	if !IppResponseOK(body) {
		t.Errorf("Send: body is not an IPP success")
	}
	if n := srv.rejected.Load(); n < 2 {
		t.Errorf("Send: %d HTTP/1.1 attempts, must be at least 2", n)
	}
}

// An IPP-level error must not count as success, whatever the HTTP
// status says
func TestSendIppError(t *testing.T) {
	srv := newHTTP10Server(t, ippBody(0x0506))
	defer srv.Close()

	transport := NewTransport()
	_, ok := transport.Send(context.Background(), srv.URL(),
		ippBody(IppStatusOk))

	if ok {
		t.Errorf("Send: IPP server-error-not-accepting-jobs reported as success")
	}
}

// Test writeHTTP10Request()
func TestWriteHTTP10Request(t *testing.T) {
	u, _ := url.Parse("http://192.168.1.10:631/ipp/print")
	ipp := ippBody(IppStatusOk)

	buf := &bytes.Buffer{}
	if err := writeHTTP10Request(buf, u, ipp); err != nil {
		t.Fatalf("writeHTTP10Request: %s", err)
	}

	raw := buf.String()
	if !strings.HasPrefix(raw, "POST /ipp/print HTTP/1.0\r\n") {
		t.Errorf("request line: %q", strings.SplitN(raw, "\r\n", 2)[0])
	}
	if !strings.Contains(raw, "Host: 192.168.1.10:631\r\n") {
		t.Errorf("missing Host header")
	}
	if !strings.Contains(raw,
		fmt.Sprintf("Content-Length: %d\r\n", len(ipp))) {
		t.Errorf("missing or wrong Content-Length")
	}
	if !strings.HasSuffix(raw, "\r\n\r\n"+string(ipp)) {
		t.Errorf("body not terminated correctly")
	}

	// An empty path becomes "/"
	u, _ = url.Parse("http://192.168.1.10:631")
	buf.Reset()
	writeHTTP10Request(buf, u, ipp)
	if !strings.HasPrefix(buf.String(), "POST / HTTP/1.0\r\n") {
		t.Errorf("empty path: %q", strings.SplitN(buf.String(), "\r\n", 2)[0])
	}
}

// Test parseRawResponse()
func TestParseRawResponse(t *testing.T) {
	ipp := ippBody(IppStatusOk)

	tests := []struct {
		name string
		raw  []byte
		body []byte
		fail bool
	}{
		{
			name: "crlf boundary",
			raw: append([]byte("HTTP/1.0 200 OK\r\n"+
				"Content-Type: application/ipp\r\n\r\n"), ipp...),
			body: ipp,
		},
		{
			name: "bare lf boundary",
			raw:  append([]byte("HTTP/1.0 200 OK\n\n"), ipp...),
			body: ipp,
		},
		{
			name: "http error",
			raw:  []byte("HTTP/1.0 404 Not Found\r\n\r\n"),
			fail: true,
		},
		{
			name: "no status line",
			raw:  []byte("garbage without a newline"),
			fail: true,
		},
		{
			name: "not http",
			raw:  []byte("SMTP/1.0 200 OK\r\n\r\n"),
			fail: true,
		},
		{
			name: "no boundary",
			raw:  []byte("HTTP/1.0 200 OK\r\nContent-Type: foo\r\n"),
			fail: true,
		},
	}

	for _, test := range tests {
		body, err := parseRawResponse(test.raw)

		if test.fail {
			if err == nil {
				t.Errorf("%s: expected error", test.name)
			}
			continue
		}

		if err != nil {
			t.Errorf("%s: %s", test.name, err)
			continue
		}
		if !bytes.Equal(body, test.body) {
			t.Errorf("%s: body %x, must be %x", test.name, body, test.body)
		}
	}
}
