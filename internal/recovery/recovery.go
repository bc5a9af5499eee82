// Package recovery implements the Recovery Manager: deterministic
// reconstruction of the book and trade history from a WAL file after a
// crash or planned restart.
package recovery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/saiputravu/obm/internal/model"
	"github.com/saiputravu/obm/internal/pqb"
)

// Result is what a successful recovery produces: the rebuilt book, the
// full trade journal in WAL order, and the last LSN seen (-1 if no WAL
// existed).
type Result struct {
	Book    *pqb.Book
	Trades  []model.Trade
	LastLSN int64
}

// ErrCorruptWAL is returned when a malformed record is found in the
// middle of the file rather than at the tail. Per spec.md §4.4, this is
// fatal: recovery refuses to proceed rather than silently skip it,
// because skipping would break determinism.
type ErrCorruptWAL struct {
	Line int
	Err  error
}

func (e *ErrCorruptWAL) Error() string {
	return fmt.Sprintf("recovery: corrupt WAL record at line %d: %v", e.Line, e.Err)
}

func (e *ErrCorruptWAL) Unwrap() error { return e.Err }

// Recover replays path and rebuilds state. A missing file yields an
// empty book and LastLSN -1; the caller (CC) still begins writing new
// WAL records at LSN 0.
func Recover(path string) (*Result, error) {
	book := pqb.New()
	orders := make(map[string]*model.Order)
	var trades []model.Trade
	lastLSN := int64(-1)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("recovery: no WAL file found, starting fresh")
		return &Result{Book: book, Trades: trades, LastLSN: lastLSN}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: open %s: %w", path, err)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil && info.Size() == 0 {
		log.Info().Str("path", path).Msg("recovery: WAL file is empty, starting fresh")
		return &Result{Book: book, Trades: trades, LastLSN: lastLSN}, nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var pendingLines [][]byte
	lineNum := 0
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lineNum++
		if len(line) == 0 {
			continue
		}
		pendingLines = append(pendingLines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recovery: scan %s: %w", path, err)
	}

	for i, line := range pendingLines {
		var entry model.WALEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			if i == len(pendingLines)-1 {
				// A malformed record at the tail is a crash marker: the
				// writer died mid-append. Stop replay at the last good
				// LSN rather than failing recovery.
				log.Warn().Int("line", i+1).Err(err).Msg("recovery: truncated tail record, treating as crash marker")
				break
			}
			return nil, &ErrCorruptWAL{Line: i + 1, Err: err}
		}

		switch entry.Table {
		case model.TableOrder:
			if err := replayOrder(entry, orders, book); err != nil {
				return nil, &ErrCorruptWAL{Line: i + 1, Err: err}
			}
		case model.TableTrade:
			trade, err := replayTrade(entry)
			if err != nil {
				return nil, &ErrCorruptWAL{Line: i + 1, Err: err}
			}
			trades = append(trades, trade)
		}

		if entry.LSN > lastLSN {
			lastLSN = entry.LSN
		}
	}

	log.Info().
		Int("orders_recovered", len(orders)).
		Int("trades_recovered", len(trades)).
		Int64("last_lsn", lastLSN).
		Msg("recovery: replay complete")

	return &Result{Book: book, Trades: trades, LastLSN: lastLSN}, nil
}

func replayOrder(entry model.WALEntry, tracker map[string]*model.Order, book *pqb.Book) error {
	var order model.Order
	if err := json.Unmarshal(entry.Data, &order); err != nil {
		return fmt.Errorf("decode order: %w", err)
	}

	switch entry.Operation {
	case model.OpInsert:
		tracker[order.ID] = &order
		if order.InBook() {
			book.Insert(&order)
		}
	case model.OpUpdate:
		if _, existed := tracker[order.ID]; existed {
			book.Remove(order.ID)
		}
		tracker[order.ID] = &order
		if order.InBook() {
			book.Insert(&order)
		}
	case model.OpDelete:
		if _, ok := book.Get(order.ID); ok {
			book.Remove(order.ID)
		}
		tracker[order.ID] = &order
	}
	return nil
}

func replayTrade(entry model.WALEntry) (model.Trade, error) {
	var trade model.Trade
	if entry.Operation != model.OpInsert {
		return trade, nil
	}
	if err := json.Unmarshal(entry.Data, &trade); err != nil {
		return trade, fmt.Errorf("decode trade: %w", err)
	}
	return trade, nil
}
