// Package runtime hosts the native programs: it verifies, executes and
// atomically commits transactions against an account store.
//
// A Bank processes one transaction at a time. Every instruction runs on a
// private working set; the accounts changed by a successful transaction are
// written with a single AccountsDB.SetAccounts call, and nothing is written
// when any instruction fails.
package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortiblox/metf/pkg/accounts"
	"github.com/fortiblox/metf/pkg/crypto"
	"github.com/fortiblox/metf/pkg/metrics"
	"github.com/fortiblox/metf/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Bank errors
var (
	ErrBlockhashNotFound = errors.New("blockhash not found")
	ErrAlreadyProcessed  = errors.New("transaction already processed")
	ErrInvalidAirdrop    = errors.New("invalid airdrop")
	ErrNilTransaction    = errors.New("nil transaction")
)

// Config configures a Bank.
type Config struct {
	// Rent is used for a fresh ledger. An existing rent sysvar wins.
	Rent syscall.Rent

	// ComputeUnitLimit is the budget of a transaction that does not
	// request one through the compute budget program.
	ComputeUnitLimit uint32

	// BlockhashQueueSize is the number of recent blockhashes accepted.
	BlockhashQueueSize int

	// Metrics receives counters; nil disables recording.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default bank configuration.
func DefaultConfig() Config {
	return Config{
		Rent:               syscall.DefaultRent(),
		ComputeUnitLimit:   compute_budget.DefaultComputeUnits,
		BlockhashQueueSize: DefaultBlockhashQueueSize,
	}
}

// Bank is a single-writer ledger over an AccountsDB.
type Bank struct {
	mu sync.Mutex

	db          accounts.AccountsDB
	registry    *ProgramRegistry
	executor    *Executor
	config      Config
	rent        syscall.Rent
	slot        types.Slot
	blockhashes *BlockhashQueue
	metrics     *metrics.Metrics
}

// NewBank opens a bank over db, writing any missing genesis accounts.
func NewBank(db accounts.AccountsDB, config Config) (*Bank, error) {
	if config.ComputeUnitLimit == 0 {
		config.ComputeUnitLimit = compute_budget.DefaultComputeUnits
	}
	if config.Rent == (syscall.Rent{}) {
		config.Rent = syscall.DefaultRent()
	}

	registry := NewNativeRegistry()
	rent, err := bootstrap(db, config.Rent, registry)
	if err != nil {
		return nil, err
	}

	b := &Bank{
		db:          db,
		registry:    registry,
		executor:    NewExecutor(registry, rent),
		config:      config,
		rent:        rent,
		blockhashes: NewBlockhashQueue(config.BlockhashQueueSize),
		metrics:     config.Metrics,
	}
	b.blockhashes.Register(types.SHA256Multi([]byte("metf genesis"), rent.Serialize()))
	return b, nil
}

// ProcessTransaction verifies, executes and commits tx. Rejections and
// execution failures are reported in the result's Error, with nothing
// committed. The returned error is reserved for storage failures.
func (b *Bank) ProcessTransaction(tx *types.Transaction) (*types.TransactionResult, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	result := &types.TransactionResult{Signature: tx.ID()}

	if err := b.sanitize(tx); err != nil {
		result.Error = err
		b.record(tx, result, 0, start)
		return result, nil
	}

	limit, err := compute_budget.ExtractComputeUnitLimit(&tx.Message, b.config.ComputeUnitLimit)
	if err != nil {
		result.Error = err
		b.record(tx, result, 0, start)
		return result, nil
	}

	exec, err := b.executor.ExecuteTransaction(tx, b.db, uint64(limit))
	if err != nil {
		return nil, err
	}
	result.Logs = exec.Logs
	result.ComputeUnits = types.ComputeUnits(exec.ComputeUnitsConsumed)
	result.ReturnData = exec.ReturnData
	if !exec.Success() {
		result.Error = exec.Err
		b.record(tx, result, 0, start)
		return result, nil
	}

	if err := b.db.SetAccounts(exec.Updates); err != nil {
		return nil, fmt.Errorf("failed to commit transaction %s: %w", result.Signature, err)
	}
	result.Success = true
	result.AccountDeltas = exec.Deltas

	b.blockhashes.RecordSignature(tx.Message.RecentBlockhash, result.Signature)
	b.advance(result.Signature)
	b.record(tx, result, len(exec.Updates), start)
	return result, nil
}

// sanitize checks signatures, the blockhash and replay before any account
// is loaded.
func (b *Bank) sanitize(tx *types.Transaction) error {
	if err := crypto.VerifyTransaction(tx); err != nil {
		return err
	}
	if !b.blockhashes.Contains(tx.Message.RecentBlockhash) {
		return fmt.Errorf("%w: %s", ErrBlockhashNotFound, tx.Message.RecentBlockhash)
	}
	if b.blockhashes.HasSignature(tx.Message.RecentBlockhash, tx.ID()) {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, tx.ID())
	}
	return nil
}

// advance moves to the next slot, deriving its blockhash from the last one
// and the committed signature.
func (b *Bank) advance(sig types.Signature) {
	b.slot++
	b.blockhashes.Register(types.SHA256Multi(b.blockhashes.Latest().Bytes(), sig.Bytes()))
}

func (b *Bank) record(tx *types.Transaction, result *types.TransactionResult, committed int, start time.Time) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordTransaction(result.Success, len(tx.Signatures), len(tx.Message.Instructions),
		uint64(result.ComputeUnits), committed, time.Since(start))
	b.metrics.CurrentSlot.SetUint64(uint64(b.slot))
	if !result.Success {
		return
	}
	for _, ix := range tx.Message.Instructions {
		if tx.Message.AccountKeys[ix.ProgramIDIndex] == types.PersonTokenProgramID {
			b.metrics.PersonTokensIssued.Inc()
		}
	}
}

// Airdrop credits lamports to a system-owned wallet out of thin air. It is
// the only way lamports enter the ledger.
func (b *Bank) Airdrop(to types.Pubkey, lamports types.Lamports) error {
	if lamports == 0 {
		return fmt.Errorf("%w: zero lamports", ErrInvalidAirdrop)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := b.db.GetAccount(to)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = types.NewAccount(0, types.SystemProgramID)
	}
	if acc.Owner != types.SystemProgramID || acc.Executable {
		return fmt.Errorf("%w: %s is not a system account", ErrInvalidAirdrop, to)
	}
	if acc.Lamports+lamports < acc.Lamports {
		return fmt.Errorf("%w: balance overflow", ErrInvalidAirdrop)
	}
	acc.Lamports += lamports

	if err := b.db.SetAccounts([]types.AccountRef{{Pubkey: to, Account: acc}}); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.AirdropLamports.Add(uint64(lamports))
	}
	return nil
}

// GetAccount returns the committed state of pubkey, or nil.
func (b *Bank) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	return b.db.GetAccount(pubkey)
}

// GetBalance returns the committed lamports of pubkey.
func (b *Bank) GetBalance(pubkey types.Pubkey) (types.Lamports, error) {
	acc, err := b.db.GetAccount(pubkey)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// LatestBlockhash returns the blockhash new transactions should reference.
func (b *Bank) LatestBlockhash() types.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockhashes.Latest()
}

// Slot returns the number of transactions committed by this bank.
func (b *Bank) Slot() types.Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// Rent returns the rent schedule in effect.
func (b *Bank) Rent() syscall.Rent {
	return b.rent
}

// MinimumBalanceForRentExemption returns the rent-exempt balance for an
// account of dataLen bytes.
func (b *Bank) MinimumBalanceForRentExemption(dataLen uint64) types.Lamports {
	return types.Lamports(b.rent.MinimumBalance(dataLen))
}

// Registry returns the program registry of the bank.
func (b *Bank) Registry() *ProgramRegistry {
	return b.registry
}

// DB returns the underlying account store.
func (b *Bank) DB() accounts.AccountsDB {
	return b.db
}
