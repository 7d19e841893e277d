/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Tests for endpcache.go
 */

package main

import (
	"reflect"
	"testing"
)

// Fresh state must round-trip through the disk file
func TestPrinterStateRoundTrip(t *testing.T) {
	Conf.StateDir = t.TempDir()

	state := LoadPrinterState("192.168.1.10", 631)
	if state.found {
		t.Fatalf("fresh state reported as found")
	}

	state.SetWorking("/ipp/print", true)

	reloaded := LoadPrinterState("192.168.1.10", 631)
	if !reloaded.found {
		t.Fatalf("saved state not found on reload")
	}
	if reloaded.Endpoint != "/ipp/print" || !reloaded.HTTPS {
		t.Errorf("reloaded: endpoint %q https %v, must be /ipp/print true",
			reloaded.Endpoint, reloaded.HTTPS)
	}
}

// States of different printers must not collide
func TestPrinterStateIsolation(t *testing.T) {
	Conf.StateDir = t.TempDir()

	first := LoadPrinterState("192.168.1.10", 631)
	first.SetWorking("/ipp", false)

	second := LoadPrinterState("192.168.1.11", 631)
	if second.found {
		t.Errorf("state leaked between printers")
	}

	third := LoadPrinterState("192.168.1.10", 8631)
	if third.found {
		t.Errorf("state leaked between ports")
	}
}

// Repeated failures must eventually drop the remembered endpoint
func TestPrinterStateNoteFailure(t *testing.T) {
	Conf.StateDir = t.TempDir()

	state := LoadPrinterState("192.168.1.10", 631)
	state.SetWorking("/ipp/print", false)

	for i := 0; i < StateFailLimit-1; i++ {
		state.NoteFailure()
	}

	reloaded := LoadPrinterState("192.168.1.10", 631)
	if !reloaded.found || reloaded.Endpoint != "/ipp/print" {
		t.Fatalf("state dropped too early: %+v", reloaded)
	}
	if reloaded.FailCount != StateFailLimit-1 {
		t.Errorf("FailCount: %d, must be %d",
			reloaded.FailCount, StateFailLimit-1)
	}

	state.NoteFailure()

	reloaded = LoadPrinterState("192.168.1.10", 631)
	if reloaded.found {
		t.Errorf("state survived %d failures: %+v",
			StateFailLimit, reloaded)
	}

	// A success resets the counter
	state = LoadPrinterState("192.168.1.10", 631)
	state.SetWorking("/ipp", false)
	state.NoteFailure()
	state.SetWorking("/ipp", false)

	reloaded = LoadPrinterState("192.168.1.10", 631)
	if reloaded.FailCount != 0 {
		t.Errorf("FailCount after success: %d, must be 0",
			reloaded.FailCount)
	}
}

// Test Prioritize()
func TestPrinterStatePrioritize(t *testing.T) {
	Conf.StateDir = t.TempDir()
	endpoints := []string{"/ipp/print", "/ipp", "/printer"}

	// Nothing remembered: order unchanged
	state := LoadPrinterState("10.0.0.1", 631)
	rsp := state.Prioritize(endpoints)
	if !reflect.DeepEqual(rsp, endpoints) {
		t.Errorf("Prioritize(fresh): %v, must be %v", rsp, endpoints)
	}

	// Remembered endpoint moves to the front
	state.SetWorking("/printer", false)
	rsp = state.Prioritize(endpoints)
	if !reflect.DeepEqual(rsp, []string{"/printer", "/ipp/print", "/ipp"}) {
		t.Errorf("Prioritize: %v", rsp)
	}

	// Remembered endpoint absent from the list: order unchanged
	state.SetWorking("/gone", false)
	rsp = state.Prioritize(endpoints)
	if !reflect.DeepEqual(rsp, endpoints) {
		t.Errorf("Prioritize(absent): %v, must be %v", rsp, endpoints)
	}
}
