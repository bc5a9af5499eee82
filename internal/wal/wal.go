// Package wal implements the write-ahead log: an append-only, fsync'd
// journal of every state-changing event, with monotonically increasing,
// gap-free log sequence numbers.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saiputravu/obm/internal/model"
)

// WAL is the durable journal. Concurrent Append calls serialize through
// mu so LSN order always matches byte order in the file.
type WAL struct {
	mu      sync.Mutex
	file    *os.File
	nextLSN int64
}

// Open creates the parent directory if needed, opens path in append mode,
// and scans it to discover the next LSN to assign. An empty or missing
// file yields nextLSN = 0.
func Open(path string) (*WAL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("wal: create dir %s: %w", dir, err)
		}
	}

	maxLSN, err := scanMaxLSN(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	return &WAL{file: f, nextLSN: maxLSN + 1}, nil
}

// scanMaxLSN reads every well-formed line of path and returns the
// greatest LSN seen, or -1 if the file is missing, empty, or contains no
// well-formed record. A partially written record at the tail (the crash
// marker of spec.md §4.3) is silently skipped, not treated as an error.
func scanMaxLSN(path string) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("wal: scan %s: %w", path, err)
	}
	defer f.Close()

	maxLSN := int64(-1)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.WALEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// Truncated tail write from a crash mid-append; not fatal
			// here because Open only needs the max LSN, and replay
			// (internal/recovery) is responsible for distinguishing a
			// truncated tail from mid-file corruption.
			continue
		}
		if entry.LSN > maxLSN {
			maxLSN = entry.LSN
		}
	}
	return maxLSN, nil
}

// Append assigns the next LSN, serializes one newline-delimited record,
// writes it, and fsyncs before returning. The caller must not perform any
// downstream effect (publish, ack) until Append returns nil.
func (w *WAL) Append(op model.Op, table model.Table, data any) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("wal: marshal payload: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	entry := model.WALEntry{
		LSN:       w.nextLSN,
		Timestamp: time.Now().UTC(),
		Operation: op,
		Table:     table,
		Data:      payload,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("wal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return 0, fmt.Errorf("wal: write lsn=%d: %w", entry.LSN, err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("wal: fsync lsn=%d: %w", entry.LSN, err)
	}

	lsn := w.nextLSN
	w.nextLSN++
	return lsn, nil
}

// NextLSN reports the LSN that will be assigned to the next Append call.
func (w *WAL) NextLSN() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// Close flushes and fsyncs the underlying file before closing it.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		log.Error().Err(err).Msg("wal: fsync on close failed")
	}
	return w.file.Close()
}
