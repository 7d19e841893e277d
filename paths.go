/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Common paths
 */

package main

const (
	// PathConfDir defines path to configuration directory
	PathConfDir = "/etc/ipp-print"

	// PathProgState defines path to program state directory
	PathProgState = "/var/lib/ipp-print"

	// PathProgStatePrinter defines path to directory where per-printer
	// endpoint state files are saved to
	PathProgStatePrinter = PathProgState + "/printer"

	// PathHistoryFile defines default path to the job history database
	PathHistoryFile = PathProgState + "/history.db"
)
