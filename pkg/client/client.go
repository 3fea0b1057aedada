// Package client builds and signs Person Token transactions off-ledger
// with solana-go, so the same wire bytes can be submitted to a local bank
// or to a cluster running the program.
package client

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/near/borsh-go"

	"github.com/fortiblox/metf/pkg/types"
)

// Program addresses, shared with the runtime.
var (
	PersonTokenProgramID     = solana.PublicKey(types.PersonTokenProgramID)
	Token2022ProgramID       = solana.PublicKey(types.Token2022ProgramID)
	AssociatedTokenProgramID = solana.PublicKey(types.AssociatedTokenProgramID)
	ComputeBudgetProgramID   = solana.PublicKey(types.ComputeBudgetProgramID)
)

// PersonSeed prefixes every Person address.
const PersonSeed = "person"

var (
	ErrMissingKey     = errors.New("missing private key for signer")
	ErrEmptyBlockhash = errors.New("recent blockhash is required")
)

var initPersonTokenDiscriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("global:init_person_token"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

// InitPersonTokenArgs are the instruction arguments, borsh encoded after
// the discriminator.
type InitPersonTokenArgs struct {
	Name   string
	Symbol string
	URI    string
}

// FindPersonAddress derives the Person address of signer.
func FindPersonAddress(signer solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(PersonSeed), signer[:]}, PersonTokenProgramID)
}

// FindVaultAddress derives the Token-2022 associated token account of
// person for mint.
func FindVaultAddress(person, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{person[:], Token2022ProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
}

// NewInitPersonTokenInstruction builds the InitPersonToken instruction.
func NewInitPersonTokenInstruction(signer, mint solana.PublicKey, args InitPersonTokenArgs) (*solana.GenericInstruction, error) {
	person, _, err := FindPersonAddress(signer)
	if err != nil {
		return nil, fmt.Errorf("derive person address: %w", err)
	}
	vault, _, err := FindVaultAddress(person, mint)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}
	payload, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	return solana.NewInstruction(
		PersonTokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: signer, IsSigner: true, IsWritable: true},
			{PublicKey: mint, IsSigner: true, IsWritable: true},
			{PublicKey: person, IsWritable: true},
			{PublicKey: vault, IsWritable: true},
			{PublicKey: Token2022ProgramID},
			{PublicKey: AssociatedTokenProgramID},
			{PublicKey: solana.SystemProgramID},
			{PublicKey: solana.SysVarRentPubkey},
		},
		append(initPersonTokenDiscriminator[:], payload...),
	), nil
}

// NewSetComputeUnitLimitInstruction requests a compute budget of units.
func NewSetComputeUnitLimitInstruction(units uint32) *solana.GenericInstruction {
	data := make([]byte, 5)
	data[0] = 2
	binary.LittleEndian.PutUint32(data[1:], units)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// Options tune transaction construction.
type Options struct {
	// ComputeUnitLimit prepends a compute budget request when non-zero.
	ComputeUnitLimit uint32
}

// BuildInitPersonToken returns a transaction issuing a person token for
// signer, signed by both the signer and the fresh mint keypair.
func BuildInitPersonToken(signer, mint solana.PrivateKey, args InitPersonTokenArgs, blockhash solana.Hash, opts Options) (*solana.Transaction, error) {
	ix, err := NewInitPersonTokenInstruction(signer.PublicKey(), mint.PublicKey(), args)
	if err != nil {
		return nil, err
	}
	var ixs []solana.Instruction
	if opts.ComputeUnitLimit > 0 {
		ixs = append(ixs, NewSetComputeUnitLimitInstruction(opts.ComputeUnitLimit))
	}
	ixs = append(ixs, ix)
	return buildSigned(ixs, blockhash, signer, signer, mint)
}

// BuildTransfer returns a signed lamport transfer.
func BuildTransfer(from solana.PrivateKey, to solana.PublicKey, lamports uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	ix := system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()
	return buildSigned([]solana.Instruction{ix}, blockhash, from, from)
}

func buildSigned(ixs []solana.Instruction, blockhash solana.Hash, payer solana.PrivateKey, signers ...solana.PrivateKey) (*solana.Transaction, error) {
	if blockhash == (solana.Hash{}) {
		return nil, ErrEmptyBlockhash
	}
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, k := range signers {
		keys[k.PublicKey()] = k
	}
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if k, ok := keys[pub]; ok {
			return &k
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingKey, err)
	}
	return tx, nil
}

// ToLedger converts a solana-go transaction to the runtime's model by way
// of its wire encoding.
func ToLedger(tx *solana.Transaction) (*types.Transaction, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return types.DeserializeTransaction(raw)
}

// Blockhash converts a ledger blockhash for solana-go.
func Blockhash(h types.Hash) solana.Hash {
	return solana.Hash(h)
}
