/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Job history database
 */

package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// HistoryRecord is one completed print call
type HistoryRecord struct {
	ID         string    // Record UUID
	Document   string    // Document file name
	Printer    string    // Printer address, "host:port"
	Method     string    // "pdf" or "jpeg"
	TotalPages int       // Pages attempted
	FailedPage int       // Count of permanently failed pages
	OK         bool      // Overall success
	TempDir    string    // Retained page images, "" for the PDF path
	CreatedAt  time.Time // Completion time, UTC
}

// History records completed print calls in a SQLite database.
// A nil *History is a valid no-op store, so callers never need to
// guard their Record calls: history trouble must not fail a job
type History struct {
	db *sql.DB
}

// HistoryOpen opens (and if needed creates) the history database.
// Returns nil without error when history is disabled; an open or
// migration failure is logged and also yields the no-op store
func HistoryOpen() *History {
	if !Conf.HistoryEnable {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(Conf.HistoryFile), 0755); err != nil {
		Log.Warnf("history: %s", err)
		return nil
	}

	db, err := sql.Open("sqlite3", Conf.HistoryFile)
	if err != nil {
		Log.Warnf("history: %s", err)
		return nil
	}

	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		document     TEXT NOT NULL,
		printer      TEXT NOT NULL,
		method       TEXT NOT NULL,
		total_pages  INTEGER NOT NULL,
		failed_pages INTEGER NOT NULL,
		ok           INTEGER NOT NULL,
		temp_dir     TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	`

	if _, err = db.Exec(schema); err != nil {
		Log.Warnf("history: %s", err)
		db.Close()
		return nil
	}

	return &History{db: db}
}

// Close closes the database
func (h *History) Close() {
	if h != nil {
		h.db.Close()
	}
}

// Record saves the outcome of one print call
func (h *History) Record(ctx context.Context,
	document, printer string, report *Report) {

	if h == nil {
		return
	}

	rec := HistoryRecord{
		ID:         uuid.NewString(),
		Document:   document,
		Printer:    printer,
		Method:     report.Method,
		TotalPages: report.TotalPages,
		FailedPage: len(report.Failed),
		OK:         report.OK(),
		TempDir:    report.TempDir,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := h.db.ExecContext(ctx, `
INSERT INTO jobs (id, document, printer, method, total_pages, failed_pages, ok, temp_dir, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Document, rec.Printer, rec.Method,
		rec.TotalPages, rec.FailedPage, rec.OK, rec.TempDir, rec.CreatedAt)
	if err != nil {
		Log.Warnf("history: %s", err)
	}
}

// List returns the most recent records, newest first
func (h *History) List(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if h == nil {
		return nil, nil
	}

	rows, err := h.db.QueryContext(ctx, `
SELECT id, document, printer, method, total_pages, failed_pages, ok, temp_dir, created_at
FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		err = rows.Scan(&rec.ID, &rec.Document, &rec.Printer, &rec.Method,
			&rec.TotalPages, &rec.FailedPage, &rec.OK, &rec.TempDir,
			&rec.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}
