/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Per-printer persistent state
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"
)

const (
	// StateFailLimit is the number of consecutive failed print
	// calls after which the remembered endpoint is dropped
	StateFailLimit = 3
)

// PrinterState manages per-printer persistent state: the endpoint
// and protocol that worked last time. It is a priority hint only;
// a stale entry costs one failed attempt, never a failed job
type PrinterState struct {
	Ident     string // Printer identification, "host-port"
	Endpoint  string // Last endpoint the printer accepted
	HTTPS     bool   // Printer wanted HTTPS last time
	FailCount int    // Consecutive failures since last success

	found bool   // State file existed on disk
	path  string // Path to the disk file
}

// LoadPrinterState loads PrinterState from a disk file. A missing
// or unreadable file yields an empty state
func LoadPrinterState(ip string, port int) *PrinterState {
	state := &PrinterState{
		Ident: fmt.Sprintf("%s-%d", ip, port),
	}
	state.path = state.printerStatePath()

	inifile, err := ini.Load(state.path)
	if err != nil {
		if !os.IsNotExist(err) {
			Log.Debugf("state: %s: %s", state.Ident, err)
		}
		return state
	}

	if section, _ := inifile.GetSection("printer"); section != nil {
		state.found = true

		if key, _ := section.GetKey("endpoint"); key != nil {
			state.Endpoint = key.String()
		}

		if key, _ := section.GetKey("https"); key != nil {
			if v, err := key.Bool(); err == nil {
				state.HTTPS = v
			}
		}

		if key, _ := section.GetKey("fail-count"); key != nil {
			if v, err := key.Int(); err == nil && v >= 0 {
				state.FailCount = v
			}
		}
	}

	return state
}

// Save updates PrinterState on disk
func (state *PrinterState) Save() {
	os.MkdirAll(Conf.StateDir, 0755)

	inifile := ini.Empty()
	section, _ := inifile.NewSection("printer")

	section.NewKey("endpoint", state.Endpoint)
	section.NewKey("https", fmt.Sprintf("%v", state.HTTPS))
	section.NewKey("fail-count", strconv.Itoa(state.FailCount))

	err := inifile.SaveTo(state.path)
	if err != nil {
		Log.Debugf("state: %s: %s", state.Ident, err)
	}
}

// SetWorking records the endpoint and protocol that just worked,
// resets the failure counter and persists the state if anything
// changed
func (state *PrinterState) SetWorking(endpoint string, https bool) {
	if state.found && state.Endpoint == endpoint &&
		state.HTTPS == https && state.FailCount == 0 {
		return
	}

	state.Endpoint = endpoint
	state.HTTPS = https
	state.FailCount = 0
	state.found = true
	state.Save()
}

// NoteFailure records an unsuccessful print call. After enough
// consecutive failures the remembered endpoint is dropped, so a
// printer whose firmware was reconfigured gets a clean probe
func (state *PrinterState) NoteFailure() {
	if !state.found {
		return
	}

	state.FailCount++
	if state.FailCount >= StateFailLimit {
		// The root path "" is a legitimate endpoint, so the
		// state file is removed rather than emptied
		state.Endpoint = ""
		state.FailCount = 0
		state.found = false
		os.Remove(state.path)
		return
	}
	state.Save()
}

// Prioritize reorders the endpoint list so that the remembered
// endpoint, if it is present in the list, goes first
func (state *PrinterState) Prioritize(endpoints []string) []string {
	if !state.found {
		return endpoints
	}

	out := []string{}
	hit := false
	for _, endpoint := range endpoints {
		if endpoint == state.Endpoint {
			hit = true
			continue
		}
		out = append(out, endpoint)
	}

	if !hit {
		return endpoints
	}

	return append([]string{state.Endpoint}, out...)
}

// printerStatePath returns a path to the PrinterState file
func (state *PrinterState) printerStatePath() string {
	return filepath.Join(Conf.StateDir, state.Ident+".state")
}
