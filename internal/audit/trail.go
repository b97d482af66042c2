// Package audit keeps an append-only record of every action the keeper
// takes with real money: swaps, bill payments, supporter mentions. The
// trail is the thing to read when a balance looks wrong.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Entry event types.
const (
	EventCycle   = "cycle"
	EventSwap    = "swap"
	EventBill    = "bill_payment"
	EventMention = "mention"
)

// Entry is a single audit record.
type Entry struct {
	EventType string    `json:"event_type"` // cycle|swap|bill_payment|mention
	Timestamp time.Time `json:"ts"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Asset     string    `json:"asset,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	USDValue  string    `json:"usd_value,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	DryRun    bool      `json:"dry_run,omitempty"`
}

// Trail appends entries to a JSONL file and keeps a capped in-memory buffer
// for querying. Once the buffer is full the oldest entries are discarded.
type Trail struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	maxBuf  int
}

// NewTrail creates an audit trail writing to path. maxBuf controls the
// in-memory buffer; 0 means entries are only written to disk.
func NewTrail(path string, maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Trail{
		path:    path,
		entries: make([]Entry, 0, maxBuf),
		maxBuf:  maxBuf,
	}
}

// RecordCycle logs a completed treasury cycle.
func (t *Trail) RecordCycle(cycleID string, stakedSOL decimal.Decimal, billsPaid []string) {
	detail := ""
	if len(billsPaid) > 0 {
		detail = fmt.Sprintf("bills: %v", billsPaid)
	}
	t.record(Entry{
		EventType: EventCycle,
		Timestamp: time.Now().UTC(),
		CycleID:   cycleID,
		Asset:     "SOL",
		Amount:    stakedSOL.String(),
		Detail:    detail,
	})
}

// RecordSwap logs an executed or dry-run swap.
func (t *Trail) RecordSwap(signature, inAsset, outAsset string, inAmount, outAmount decimal.Decimal, dryRun bool) {
	t.record(Entry{
		EventType: EventSwap,
		Timestamp: time.Now().UTC(),
		Signature: signature,
		Asset:     inAsset,
		Amount:    inAmount.String(),
		Detail:    fmt.Sprintf("-> %s %s", outAmount, outAsset),
		DryRun:    dryRun,
	})
}

// RecordBill logs a bill payment.
func (t *Trail) RecordBill(name, signature string, amountSOL decimal.Decimal, dryRun bool) {
	t.record(Entry{
		EventType: EventBill,
		Timestamp: time.Now().UTC(),
		Signature: signature,
		Asset:     "SOL",
		Amount:    amountSOL.String(),
		Detail:    name,
		DryRun:    dryRun,
	})
}

// RecordMention logs a supporter mention tied to its funding transaction.
func (t *Trail) RecordMention(signature, handle string, amountSOL, usdValue decimal.Decimal) {
	t.record(Entry{
		EventType: EventMention,
		Timestamp: time.Now().UTC(),
		Signature: signature,
		Asset:     "SOL",
		Amount:    amountSOL.String(),
		USDValue:  usdValue.StringFixed(2),
		Detail:    handle,
	})
}

// Recent returns up to n buffered entries, newest last.
func (t *Trail) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

func (t *Trail) record(entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxBuf > 0 {
		t.entries = append(t.entries, entry)
		if len(t.entries) > t.maxBuf {
			t.entries = t.entries[len(t.entries)-t.maxBuf:]
		}
	}

	if err := t.append(entry); err != nil {
		// The trail must never take an operation down with it.
		log.Error().Err(err).Str("event_type", entry.EventType).Msg("audit: append failed")
	}
}

func (t *Trail) append(entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
