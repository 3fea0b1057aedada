package token

import "errors"

// Token Program errors
var (
	// ErrNotRentExempt indicates the account balance is below the rent-exempt minimum.
	ErrNotRentExempt = errors.New("account not rent exempt")

	// ErrInvalidMint indicates the mint account is invalid.
	ErrInvalidMint = errors.New("invalid mint")

	// ErrMintMismatch indicates a token account's mint doesn't match the expected mint.
	ErrMintMismatch = errors.New("mint mismatch")

	// ErrAccountFrozen indicates the token account is frozen.
	ErrAccountFrozen = errors.New("account is frozen")

	// ErrAlreadyInitialized indicates the account is already initialized.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNotInitialized indicates the account is not initialized.
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidAccountData indicates the account data is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrInvalidInstruction indicates the instruction is invalid.
	ErrInvalidInstruction = errors.New("invalid instruction")

	// ErrInvalidInstructionData indicates the instruction data is malformed.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidAccountOwner indicates the account is not owned by the Token Program.
	ErrInvalidAccountOwner = errors.New("invalid account owner")

	// ErrAccountNotSigner indicates a required signer is missing.
	ErrAccountNotSigner = errors.New("account is not a signer")

	// ErrAccountNotWritable indicates a required writable account is not writable.
	ErrAccountNotWritable = errors.New("account is not writable")

	// ErrAuthorityMismatch indicates the authority doesn't match.
	ErrAuthorityMismatch = errors.New("authority mismatch")

	// ErrFixedSupply indicates the mint has a fixed supply (no mint authority).
	ErrFixedSupply = errors.New("fixed supply")

	// ErrMintCannotFreeze indicates the mint cannot freeze accounts (no freeze authority).
	ErrMintCannotFreeze = errors.New("mint cannot freeze")

	// ErrInvalidNumberOfAccounts indicates an incorrect number of accounts were provided.
	ErrInvalidNumberOfAccounts = errors.New("invalid number of accounts")

	// ErrOverflow indicates an arithmetic overflow.
	ErrOverflow = errors.New("overflow")

	// ErrOwnerImmutable indicates the token account carries the ImmutableOwner extension.
	ErrOwnerImmutable = errors.New("account owner cannot be changed")

	ErrUnknownExtension        = errors.New("unknown extension type")
	ErrVariableLengthExtension = errors.New("extension has variable length")
	ErrExtensionAlreadyExists  = errors.New("extension already initialized")
	ErrExtensionNotFound       = errors.New("extension not found")
	ErrExtensionAccountType    = errors.New("extension does not match account type")
	ErrNoExtensionSpace        = errors.New("no space for extension")

	// ErrMetadataPointerMismatch indicates metadata is written somewhere the
	// mint's metadata pointer does not name.
	ErrMetadataPointerMismatch = errors.New("metadata pointer mismatch")

	ErrImmutableMetadata = errors.New("metadata update authority is none")
)
