package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/syscall"
)

// handleInitializeMint2 finalizes a mint, keeping any extensions written
// beforehand.
// Account layout:
//
//	[0] mint (writable)
func handleInitializeMint2(ctx *syscall.ExecutionContext, inst *InitializeMint2Instruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: InitializeMint2 requires 1 account", ErrInvalidNumberOfAccounts)
	}

	mintAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !mintAcc.IsWritable {
		return fmt.Errorf("%w: mint account", ErrAccountNotWritable)
	}
	if mintAcc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: mint owned by %s", ErrInvalidAccountOwner, mintAcc.Owner)
	}
	if len(mintAcc.Data) < MintSize {
		return fmt.Errorf("%w: mint account data too small, expected %d bytes",
			ErrInvalidAccountData, MintSize)
	}
	if isMintInitialized(mintAcc.Data) {
		return fmt.Errorf("mint: %w", ErrAlreadyInitialized)
	}
	if err := checkExtendedLayout(mintAcc.Data, AccountTypeMint); err != nil {
		return err
	}
	if err := checkRentExempt(ctx, mintAcc); err != nil {
		return err
	}

	mint := NewMint(inst.Decimals, &inst.MintAuthority, inst.FreezeAuthority)
	mint.SerializeInto(mintAcc.Data)
	setAccountType(mintAcc.Data, AccountTypeMint)
	return nil
}

// handleInitializeAccount3 initializes a token account for a mint.
// Account extensions the mint requires are added here.
// Account layout:
//
//	[0] account (writable)
//	[1] mint
func handleInitializeAccount3(ctx *syscall.ExecutionContext, inst *InitializeAccount3Instruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: InitializeAccount3 requires 2 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: token account", ErrAccountNotWritable)
	}
	if acc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: token account owned by %s", ErrInvalidAccountOwner, acc.Owner)
	}
	if len(acc.Data) < TokenAccountSize {
		return fmt.Errorf("%w: token account data too small, expected %d bytes",
			ErrInvalidAccountData, TokenAccountSize)
	}
	if isAccountInitialized(acc.Data) {
		return fmt.Errorf("token account: %w", ErrAlreadyInitialized)
	}

	mintAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if mintAcc.Owner != ctx.ProgramID || !isMintInitialized(mintAcc.Data) {
		return ErrInvalidMint
	}

	if err := checkExtendedLayout(acc.Data, AccountTypeAccount); err != nil {
		return err
	}
	for _, ext := range requiredAccountExtensions(mintAcc.Data) {
		if HasExtension(acc.Data, ext) {
			continue
		}
		n, err := ext.Len()
		if err != nil {
			return err
		}
		if err := initExtension(acc.Data, ext, make([]byte, n)); err != nil {
			return err
		}
	}
	if err := checkRentExempt(ctx, acc); err != nil {
		return err
	}

	NewTokenAccount(mintAcc.Pubkey, inst.Owner).SerializeInto(acc.Data)
	setAccountType(acc.Data, AccountTypeAccount)
	return nil
}

// handleMintTo handles the MintTo instruction.
// Account layout:
//
//	[0] mint (writable)
//	[1] destination account (writable)
//	[2] mint authority (signer)
func handleMintTo(ctx *syscall.ExecutionContext, inst *MintToInstruction) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: MintTo requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	mintAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !mintAcc.IsWritable {
		return fmt.Errorf("%w: mint account", ErrAccountNotWritable)
	}

	destAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}

	authorityAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: mint authority", ErrAccountNotSigner)
	}

	if mintAcc.Owner != ctx.ProgramID || destAcc.Owner != ctx.ProgramID {
		return ErrInvalidAccountOwner
	}
	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	dest, err := DeserializeTokenAccount(destAcc.Data)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	if dest.State == AccountStateUninitialized {
		return fmt.Errorf("destination: %w", ErrNotInitialized)
	}
	if dest.IsFrozen() {
		return fmt.Errorf("destination: %w", ErrAccountFrozen)
	}
	if dest.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}

	if !mint.MintAuthority.IsSome {
		return ErrFixedSupply
	}
	if mint.MintAuthority.Value != authorityAcc.Pubkey {
		return ErrAuthorityMismatch
	}

	if mint.Supply > ^uint64(0)-inst.Amount || dest.Amount > ^uint64(0)-inst.Amount {
		return ErrOverflow
	}
	mint.Supply += inst.Amount
	dest.Amount += inst.Amount

	mint.SerializeInto(mintAcc.Data)
	dest.SerializeInto(destAcc.Data)
	return nil
}

// handleSetAuthority handles the SetAuthority instruction.
// Account layout:
//
//	[0] mint or token account (writable)
//	[1] current authority (signer)
func handleSetAuthority(ctx *syscall.ExecutionContext, inst *SetAuthorityInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: SetAuthority requires 2 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: account", ErrAccountNotWritable)
	}
	if acc.Owner != ctx.ProgramID {
		return ErrInvalidAccountOwner
	}

	authorityAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: current authority", ErrAccountNotSigner)
	}

	switch inst.AuthorityType {
	case AuthorityTypeMintTokens, AuthorityTypeFreezeAccount:
		return setMintAuthority(acc, authorityAcc, inst)
	case AuthorityTypeAccountOwner, AuthorityTypeCloseAccount:
		return setTokenAccountAuthority(acc, authorityAcc, inst)
	default:
		return fmt.Errorf("%w: unknown authority type %d", ErrInvalidInstruction, inst.AuthorityType)
	}
}

// setMintAuthority moves or clears a mint authority. A cleared authority
// stays cleared: there is no transition from None back to Some.
func setMintAuthority(acc *syscall.AccountInfo, authorityAcc *syscall.AccountInfo, inst *SetAuthorityInstruction) error {
	mint, err := DeserializeMint(acc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", ErrNotInitialized)
	}

	target := &mint.MintAuthority
	cleared := ErrFixedSupply
	if inst.AuthorityType == AuthorityTypeFreezeAccount {
		target = &mint.FreezeAuthority
		cleared = ErrMintCannotFreeze
	}
	if !target.IsSome {
		return cleared
	}
	if target.Value != authorityAcc.Pubkey {
		return ErrAuthorityMismatch
	}

	*target = COption{}
	if inst.NewAuthority != nil {
		*target = Some(*inst.NewAuthority)
	}
	mint.SerializeInto(acc.Data)
	return nil
}

func setTokenAccountAuthority(acc *syscall.AccountInfo, authorityAcc *syscall.AccountInfo, inst *SetAuthorityInstruction) error {
	account, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return fmt.Errorf("token account: %w", err)
	}
	if account.State == AccountStateUninitialized {
		return fmt.Errorf("token account: %w", ErrNotInitialized)
	}
	if account.IsFrozen() {
		return ErrAccountFrozen
	}

	switch inst.AuthorityType {
	case AuthorityTypeAccountOwner:
		if HasExtension(acc.Data, ExtensionImmutableOwner) {
			return ErrOwnerImmutable
		}
		if account.Owner != authorityAcc.Pubkey {
			return ErrAuthorityMismatch
		}
		if inst.NewAuthority == nil {
			return fmt.Errorf("%w: account owner cannot be removed", ErrInvalidInstruction)
		}
		account.Owner = *inst.NewAuthority
		account.Delegate = COption{}
		account.DelegatedAmount = 0

	case AuthorityTypeCloseAccount:
		current := account.Owner
		if account.CloseAuthority.IsSome {
			current = account.CloseAuthority.Value
		}
		if current != authorityAcc.Pubkey {
			return ErrAuthorityMismatch
		}
		account.CloseAuthority = COption{}
		if inst.NewAuthority != nil {
			account.CloseAuthority = Some(*inst.NewAuthority)
		}
	}

	account.SerializeInto(acc.Data)
	return nil
}

// handleGetAccountDataSize returns, as a little-endian u64 in return
// data, the length of a token account for the mint carrying the requested
// extensions plus those the mint requires.
// Account layout:
//
//	[0] mint
func handleGetAccountDataSize(ctx *syscall.ExecutionContext, inst *GetAccountDataSizeInstruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: GetAccountDataSize requires 1 account", ErrInvalidNumberOfAccounts)
	}
	mintAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if mintAcc.Owner != ctx.ProgramID || !isMintInitialized(mintAcc.Data) {
		return ErrInvalidMint
	}

	exts := make([]ExtensionType, 0, len(inst.Extensions)+1)
	for _, ext := range inst.Extensions {
		if ext.AccountType() != AccountTypeAccount {
			return fmt.Errorf("%w: %s", ErrExtensionAccountType, ext)
		}
		exts = append(exts, ext)
	}
	exts = append(exts, requiredAccountExtensions(mintAcc.Data)...)

	size, err := CalculateAccountLen(AccountTypeAccount, exts)
	if err != nil {
		return err
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(size))
	return ctx.SetReturnData(out)
}

// handleInitializeImmutableOwner marks a token account's owner as fixed.
// Account layout:
//
//	[0] token account (writable, uninitialized)
func handleInitializeImmutableOwner(ctx *syscall.ExecutionContext) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: InitializeImmutableOwner requires 1 account", ErrInvalidNumberOfAccounts)
	}
	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: token account", ErrAccountNotWritable)
	}
	if acc.Owner != ctx.ProgramID {
		return ErrInvalidAccountOwner
	}
	if isAccountInitialized(acc.Data) {
		return fmt.Errorf("token account: %w", ErrAlreadyInitialized)
	}
	if len(acc.Data) <= TokenAccountSize {
		return fmt.Errorf("%w: %s", ErrNoExtensionSpace, ExtensionImmutableOwner)
	}
	if err := checkExtendedLayout(acc.Data, AccountTypeAccount); err != nil {
		return err
	}
	return initExtension(acc.Data, ExtensionImmutableOwner, nil)
}

// handleInitializeMintExtension writes a fixed-size mint extension. The
// mint must not be initialized yet.
// Account layout:
//
//	[0] mint (writable)
func handleInitializeMintExtension(ctx *syscall.ExecutionContext, ext ExtensionType, value []byte) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: %s Initialize requires 1 account", ErrInvalidNumberOfAccounts, ext)
	}
	mintAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !mintAcc.IsWritable {
		return fmt.Errorf("%w: mint account", ErrAccountNotWritable)
	}
	if mintAcc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: mint owned by %s", ErrInvalidAccountOwner, mintAcc.Owner)
	}
	if isMintInitialized(mintAcc.Data) {
		return fmt.Errorf("mint: %w", ErrAlreadyInitialized)
	}
	if len(mintAcc.Data) <= TokenAccountSize {
		return fmt.Errorf("%w: %s", ErrNoExtensionSpace, ext)
	}
	if err := checkExtendedLayout(mintAcc.Data, AccountTypeMint); err != nil {
		return err
	}
	return initExtension(mintAcc.Data, ext, value)
}

func checkRentExempt(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo) error {
	if !ctx.Rent.IsExempt(*acc.Lamports, uint64(len(acc.Data))) {
		return fmt.Errorf("%w: %s holds %d lamports for %d bytes",
			ErrNotRentExempt, acc.Pubkey, *acc.Lamports, len(acc.Data))
	}
	return nil
}
