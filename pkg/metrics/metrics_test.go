package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fortiblox/metf/pkg/types"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter", "Test counter")

	if c.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", c.Value())
	}

	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("expected value 6, got %d", c.Value())
	}

	if c.Type() != TypeCounter {
		t.Errorf("expected type counter, got %s", c.Type())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "Test gauge")

	g.Set(100)
	g.Inc()
	g.Dec()
	g.Add(-50)
	if g.Value() != 50 {
		t.Errorf("expected value 50, got %d", g.Value())
	}

	if g.Type() != TypeGauge {
		t.Errorf("expected type gauge, got %s", g.Type())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_histogram", "Test histogram", []float64{0.1, 0.5, 1.0, 5.0})

	for _, v := range []float64{0.05, 0.3, 0.7, 2.0, 10.0} {
		h.Observe(v)
	}

	snap := h.Snapshot()
	if snap.Count != 5 {
		t.Errorf("expected count 5, got %d", snap.Count)
	}

	// Cumulative: 10.0 only lands in +Inf.
	expectedBucketCounts := []uint64{1, 2, 3, 4}
	for i, expected := range expectedBucketCounts {
		if snap.Buckets[i].Count != expected {
			t.Errorf("bucket %d: expected count %d, got %d", i, expected, snap.Buckets[i].Count)
		}
	}
}

func TestHistogramFormatIsCumulativeOnce(t *testing.T) {
	m := NewMetrics()
	m.TransactionDuration.Observe(0.0002)
	m.TransactionDuration.Observe(0.0002)

	output := m.Format()
	if !strings.Contains(output, `metf_transaction_duration_seconds_bucket{le="0.0005"} 2`) {
		t.Errorf("unexpected histogram output:\n%s", output)
	}
	if !strings.Contains(output, `metf_transaction_duration_seconds_bucket{le="1"} 2`) {
		t.Errorf("last bucket should hold every observation:\n%s", output)
	}
}

func TestRecordTransaction(t *testing.T) {
	m := NewMetrics()

	m.RecordTransaction(true, 2, 1, 35_000, 6, 2*time.Millisecond)
	m.RecordTransaction(false, 1, 1, 500, 0, time.Millisecond)

	if m.TransactionsProcessed.Value() != 2 {
		t.Errorf("processed = %d, want 2", m.TransactionsProcessed.Value())
	}
	if m.TransactionsFailed.Value() != 1 {
		t.Errorf("failed = %d, want 1", m.TransactionsFailed.Value())
	}
	if m.SignaturesVerified.Value() != 3 {
		t.Errorf("signatures = %d, want 3", m.SignaturesVerified.Value())
	}
	if m.ComputeUnitsConsumed.Value() != 35_000 {
		t.Errorf("compute units = %d, want only the committed transaction's", m.ComputeUnitsConsumed.Value())
	}
	if m.AccountsCommitted.Value() != 6 {
		t.Errorf("accounts committed = %d, want 6", m.AccountsCommitted.Value())
	}
}

type fakeLedger map[types.Pubkey]*types.Account

func (l fakeLedger) ForEachAccount(fn func(types.Pubkey, *types.Account) error) error {
	for pk, acc := range l {
		if err := fn(pk, acc); err != nil {
			return err
		}
	}
	return nil
}

func TestLedgerCollector(t *testing.T) {
	ledger := fakeLedger{
		{1}: {Lamports: 100, Owner: types.SystemProgramID},
		{2}: {Lamports: 50, Owner: types.PersonTokenProgramID, Data: make([]byte, 105)},
		{3}: {Lamports: 7, Owner: types.Token2022ProgramID},
	}
	m := NewMetrics()
	lc := NewLedgerCollector(m, ledger, t.TempDir(), 0)

	if err := lc.Collect(); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if m.AccountsCount.Value() != 3 {
		t.Errorf("accounts = %d, want 3", m.AccountsCount.Value())
	}
	if m.PersonsCount.Value() != 1 {
		t.Errorf("persons = %d, want 1", m.PersonsCount.Value())
	}
	if m.TotalLamports.Value() != 157 {
		t.Errorf("lamports = %d, want 157", m.TotalLamports.Value())
	}
}

func TestServer(t *testing.T) {
	m := NewMetrics()
	m.PersonTokensIssued.Add(3)

	server := NewServer(m, "127.0.0.1:0", func() LedgerStatus {
		return LedgerStatus{Slot: 12, Blockhash: "abc", Accounts: 7}
	})
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop(context.Background())

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("failed to get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "metf_person_tokens_issued_total 3") {
		t.Errorf("metrics body missing counter:\n%s", body)
	}

	resp, err = http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("failed to get health: %v", err)
	}
	var health struct {
		Status string        `json:"status"`
		Ledger *LedgerStatus `json:"ledger"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health.Status != "healthy" || health.Ledger == nil || health.Ledger.Slot != 12 || health.Ledger.Accounts != 7 {
		t.Errorf("unexpected health response: %+v", health)
	}
}
