package shill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/keeperlabs/keeper/internal/solana"
)

// Ledger is the durable set of transaction signatures already acted on.
// Membership is monotonic: signatures are only ever added. Add persists
// before returning, so a signature counts as handled only once it is on
// disk; a crash between an upstream side effect and Add can cause at most
// one duplicate action for the single in-flight transaction.
type Ledger struct {
	mu        sync.Mutex
	path      string
	processed map[solana.Signature]struct{}
	order     []solana.Signature
}

type ledgerFile struct {
	ProcessedSignatures []solana.Signature `json:"processed_signatures"`
}

func LoadLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, processed: make(map[solana.Signature]struct{})}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shill: read ledger: %w", err)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("shill: parse ledger %s: %w", path, err)
	}
	for _, sig := range file.ProcessedSignatures {
		if _, dup := l.processed[sig]; dup {
			continue
		}
		l.processed[sig] = struct{}{}
		l.order = append(l.order, sig)
	}
	return l, nil
}

// Has reports whether the signature was already processed.
func (l *Ledger) Has(sig solana.Signature) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.processed[sig]
	return ok
}

// Add marks the signature processed and persists the full set before
// returning. Adding an existing signature is a no-op.
func (l *Ledger) Add(sig solana.Signature) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.processed[sig]; ok {
		return nil
	}
	l.processed[sig] = struct{}{}
	l.order = append(l.order, sig)
	return l.persist()
}

// Size returns the number of processed signatures.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processed)
}

func (l *Ledger) persist() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("shill: create ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(ledgerFile{ProcessedSignatures: l.order}, "", "  ")
	if err != nil {
		return fmt.Errorf("shill: encode ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("shill: write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("shill: replace ledger: %w", err)
	}
	return nil
}
