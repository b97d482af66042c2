package treasury

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BillLedger records, per bill, the most recent month it was paid in, so a
// bill due on a given day is paid at most once even when several cycles run
// that day. The ledger is a flat JSON file rewritten in full on every
// change, via temp file and rename so a crash never leaves a torn record.
type BillLedger struct {
	mu   sync.Mutex
	path string
	paid map[string]string // bill name -> "2006-01"
}

type billLedgerFile struct {
	PaidMonths map[string]string `json:"paid_months"`
}

func LoadBillLedger(path string) (*BillLedger, error) {
	l := &BillLedger{path: path, paid: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("treasury: read bill ledger: %w", err)
	}

	var file billLedgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("treasury: parse bill ledger %s: %w", path, err)
	}
	if file.PaidMonths != nil {
		l.paid = file.PaidMonths
	}
	return l, nil
}

// PaidThisMonth reports whether the named bill was already paid in the month
// containing now.
func (l *BillLedger) PaidThisMonth(name string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paid[name] == now.Format("2006-01")
}

// MarkPaid records a payment of the named bill in the month containing now
// and persists the ledger before returning.
func (l *BillLedger) MarkPaid(name string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paid[name] = now.Format("2006-01")
	return l.persist()
}

func (l *BillLedger) persist() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("treasury: create ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(billLedgerFile{PaidMonths: l.paid}, "", "  ")
	if err != nil {
		return fmt.Errorf("treasury: encode bill ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("treasury: write bill ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("treasury: replace bill ledger: %w", err)
	}
	return nil
}
