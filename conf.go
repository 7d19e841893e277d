/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Program configuration
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

const (
	// ConfFileName defines a name of ipp-print configuration file
	ConfFileName = "ipp-print.conf"
)

// Configuration represents a program configuration
type Configuration struct {
	ConnectTimeout time.Duration // Raw TCP connect timeout
	ProbeTimeout   time.Duration // Per-endpoint OPTIONS probe timeout
	RequestTimeout time.Duration // Full IPP POST timeout
	DPI            int           // Rasterization resolution
	JpegQuality    int           // JPEG quality for normal/draft output
	JpegQualityHi  int           // JPEG quality for high-quality output
	LogLevel       string        // error, warn, info or debug
	LogFile        string        // Log file path, "" for console only
	HistoryEnable  bool          // Record jobs in the history database
	HistoryFile    string        // Path to the history database
	StateDir       string        // Per-printer endpoint state directory
}

// Conf contains a global instance of program configuration
var Conf = Configuration{
	ConnectTimeout: ConnectTimeout,
	ProbeTimeout:   ProbeTimeout,
	RequestTimeout: RequestTimeout,
	DPI:            300,
	JpegQuality:    85,
	JpegQualityHi:  95,
	LogLevel:       "info",
	HistoryEnable:  true,
	HistoryFile:    PathHistoryFile,
	StateDir:       PathProgStatePrinter,
}

// ConfLoad loads the program configuration. Missing files are not
// an error; later files override earlier ones
func ConfLoad() error {
	exepath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("conf: %s", err)
	}

	files := []string{
		filepath.Join(PathConfDir, ConfFileName),
		filepath.Join(filepath.Dir(exepath), ConfFileName),
	}

	for _, file := range files {
		err = confLoadInternal(file)
		if err != nil {
			return fmt.Errorf("conf: %s", err)
		}
	}

	return nil
}

// Load the program configuration -- internal version
func confLoadInternal(path string) error {
	inifile, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if s, _ := inifile.GetSection("network"); s != nil {
		err = confLoadTimeoutKey(&Conf.ConnectTimeout, s, "connect-timeout")
		if err == nil {
			err = confLoadTimeoutKey(&Conf.ProbeTimeout, s, "probe-timeout")
		}
		if err == nil {
			err = confLoadTimeoutKey(&Conf.RequestTimeout, s, "request-timeout")
		}
		if err != nil {
			return err
		}
	}

	if s, _ := inifile.GetSection("print"); s != nil {
		err = confLoadIntKey(&Conf.DPI, s, "dpi", 72, 1200)
		if err == nil {
			err = confLoadIntKey(&Conf.JpegQuality, s, "jpeg-quality", 1, 100)
		}
		if err != nil {
			return err
		}
	}

	if s, _ := inifile.GetSection("logging"); s != nil {
		if key, _ := s.GetKey("level"); key != nil {
			Conf.LogLevel = key.String()
		}
		if key, _ := s.GetKey("file"); key != nil {
			Conf.LogFile = key.String()
		}
	}

	if s, _ := inifile.GetSection("history"); s != nil {
		if key, _ := s.GetKey("enable"); key != nil {
			v, err := key.Bool()
			if err != nil {
				return confBadValue(key, "must be true or false")
			}
			Conf.HistoryEnable = v
		}
		if key, _ := s.GetKey("file"); key != nil {
			Conf.HistoryFile = key.String()
		}
	}

	return nil
}

// Create "bad value" error
func confBadValue(key *ini.Key, format string, args ...interface{}) error {
	return fmt.Errorf(key.Name()+": "+format, args...)
}

// Load duration key, expressed in seconds
func confLoadTimeoutKey(out *time.Duration, section *ini.Section,
	name string) error {

	if key, _ := section.GetKey(name); key != nil {
		secs, err := key.Int()
		if err != nil || secs < 1 {
			return confBadValue(key, "must be a positive number of seconds")
		}

		*out = time.Duration(secs) * time.Second
	}

	return nil
}

// Load integer key within the range
func confLoadIntKey(out *int, section *ini.Section,
	name string, min, max int) error {

	if key, _ := section.GetKey(name); key != nil {
		val, err := key.Int()
		if err != nil || val < min || val > max {
			return confBadValue(key, "must be in range %d...%d", min, max)
		}

		*out = val
	}

	return nil
}
