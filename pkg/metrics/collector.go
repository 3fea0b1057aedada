package metrics

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/metf/pkg/types"
)

// LedgerSource is the read side of the account store needed to compute
// ledger gauges.
type LedgerSource interface {
	ForEachAccount(fn func(pubkey types.Pubkey, account *types.Account) error) error
}

// LedgerCollector scans the account store and refreshes the ledger gauges
// of a Metrics instance.
type LedgerCollector struct {
	mu       sync.Mutex
	metrics  *Metrics
	source   LedgerSource
	dbPath   string
	interval time.Duration
	running  atomic.Bool
	stopCh   chan struct{}
}

// NewLedgerCollector creates a collector. dbPath may be empty for an
// in-memory ledger.
func NewLedgerCollector(m *Metrics, source LedgerSource, dbPath string, interval time.Duration) *LedgerCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LedgerCollector{
		metrics:  m,
		source:   source,
		dbPath:   dbPath,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Collect performs one scan. Person records are the accounts owned by the
// Person Token program.
func (lc *LedgerCollector) Collect() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	var count, persons, lamports uint64
	err := lc.source.ForEachAccount(func(_ types.Pubkey, acc *types.Account) error {
		count++
		lamports += uint64(acc.Lamports)
		if acc.Owner == types.PersonTokenProgramID {
			persons++
		}
		return nil
	})
	if err != nil {
		return err
	}

	lc.metrics.AccountsCount.SetUint64(count)
	lc.metrics.PersonsCount.SetUint64(persons)
	lc.metrics.TotalLamports.SetUint64(lamports)

	if lc.dbPath != "" {
		if size := dirSize(lc.dbPath); size > 0 {
			lc.metrics.DBSizeBytes.Set(size)
		}
	}
	return nil
}

func dirSize(path string) int64 {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0
	}
	return size
}

// Start collects immediately and then on every interval until ctx is done
// or Stop is called.
func (lc *LedgerCollector) Start(ctx context.Context) {
	if lc.running.Swap(true) {
		return
	}

	go func() {
		ticker := time.NewTicker(lc.interval)
		defer ticker.Stop()

		_ = lc.Collect()

		for {
			select {
			case <-ctx.Done():
				lc.running.Store(false)
				return
			case <-lc.stopCh:
				lc.running.Store(false)
				return
			case <-ticker.C:
				_ = lc.Collect()
			}
		}
	}()
}

// Stop stops the collector.
func (lc *LedgerCollector) Stop() {
	if lc.running.Load() {
		close(lc.stopCh)
	}
}
