package persontoken

import (
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/programs/associated_token"
	"github.com/fortiblox/metf/pkg/svm/programs/system"
	"github.com/fortiblox/metf/pkg/svm/programs/token"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// initAccounts are the validated accounts of one InitPersonToken call.
type initAccounts struct {
	signer *syscall.AccountInfo
	mint   *syscall.AccountInfo
	person *syscall.AccountInfo
	vault  *syscall.AccountInfo

	personBump uint8
	rent       syscall.Rent
}

// mintLayout is the output of the space and rent calculation.
type mintLayout struct {
	space    uint64 // allocated at creation
	lamports uint64 // rent exemption for space plus metadata
	metadata *token.TokenMetadata
}

// Account layout:
//
//	[0] signer (signer, writable)
//	[1] mint (signer, writable)
//	[2] person (writable)
//	[3] vault (writable)
//	[4] Token-2022 program
//	[5] associated token program
//	[6] system program
//	[7] rent sysvar
func initPersonToken(ctx *syscall.ExecutionContext, params *InitPersonTokenParams) error {
	accs, err := loadInitAccounts(ctx)
	if err != nil {
		return stageErr(StageValidate, err)
	}

	layout, err := calculateMintLayout(accs, params)
	if err != nil {
		return stageErr(StageSizing, err)
	}

	if err := createPerson(ctx, accs); err != nil {
		return stageErr(StagePerson, err)
	}

	err = ctx.Invoke(system.CreateAccount(accs.signer.Pubkey, accs.mint.Pubkey, layout.lamports, layout.space, types.Token2022ProgramID))
	if err != nil {
		return stageErr(StageProvision, err)
	}

	if err := initializeExtensions(ctx, accs); err != nil {
		return stageErr(StageExtensions, err)
	}

	err = ctx.Invoke(token.InitializeMint2(accs.mint.Pubkey, Decimals, accs.signer.Pubkey, nil))
	if err != nil {
		return stageErr(StageMint, err)
	}

	if err := finalize(ctx, accs, layout); err != nil {
		return stageErr(StageFinalize, err)
	}

	ctx.LogData([]byte("person_token_initialized"), accs.person.Pubkey.Bytes(), accs.mint.Pubkey.Bytes(), accs.vault.Pubkey.Bytes())
	return nil
}

func loadInitAccounts(ctx *syscall.ExecutionContext) (*initAccounts, error) {
	if ctx.AccountCount() < accountCount {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccountKeys, accountCount, ctx.AccountCount())
	}
	acc := func(i int) *syscall.AccountInfo {
		a, _ := ctx.GetAccountByIndex(i)
		return a
	}
	accs := &initAccounts{
		signer: acc(accountSigner),
		mint:   acc(accountMint),
		person: acc(accountPerson),
		vault:  acc(accountVault),
	}

	for _, a := range []*syscall.AccountInfo{accs.signer, accs.mint} {
		if !a.IsSigner {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, a.Pubkey)
		}
	}
	for _, a := range []*syscall.AccountInfo{accs.signer, accs.mint, accs.person, accs.vault} {
		if !a.IsWritable {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, a.Pubkey)
		}
	}

	programs := []struct {
		index int
		want  types.Pubkey
	}{
		{accountTokenProgram, types.Token2022ProgramID},
		{accountAssociatedTokenProgram, types.AssociatedTokenProgramID},
		{accountSystemProgram, types.SystemProgramID},
	}
	for _, p := range programs {
		if got := acc(p.index).Pubkey; got != p.want {
			return nil, fmt.Errorf("%w: account %d is %s, want %s", ErrIncorrectProgramID, p.index, got, p.want)
		}
	}

	rentAcc := acc(accountRent)
	if rentAcc.Pubkey != types.SysvarRentID {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRentSysvar, rentAcc.Pubkey)
	}
	rent, err := syscall.DeserializeRent(rentAcc.Data)
	if err != nil {
		return nil, err
	}
	accs.rent = rent

	person, bump, err := ctx.FindProgramAddress(personSeeds(accs.signer.Pubkey), ctx.ProgramID)
	if err != nil {
		return nil, err
	}
	if person != accs.person.Pubkey {
		return nil, fmt.Errorf("%w: expected %s", ErrInvalidPersonAddress, person)
	}
	accs.personBump = bump

	vault, _, err := ctx.FindProgramAddress(
		syscall.AssociatedTokenSeeds(person, accs.mint.Pubkey, types.Token2022ProgramID),
		types.AssociatedTokenProgramID)
	if err != nil {
		return nil, err
	}
	if vault != accs.vault.Pubkey {
		return nil, fmt.Errorf("%w: expected %s", ErrInvalidVaultAddress, vault)
	}
	return accs, nil
}

// calculateMintLayout sizes the mint for its fixed extensions and prices
// rent for the metadata record that is appended later.
func calculateMintLayout(accs *initAccounts, params *InitPersonTokenParams) (*mintLayout, error) {
	size, err := token.CalculateAccountLen(token.AccountTypeMint, []token.ExtensionType{
		token.ExtensionMetadataPointer,
		token.ExtensionTransferHook,
	})
	if err != nil {
		return nil, err
	}

	md := &token.TokenMetadata{
		UpdateAuthority: accs.signer.Pubkey,
		Mint:            accs.mint.Pubkey,
		Name:            params.Name,
		Symbol:          params.Symbol,
		URI:             params.URI,
		AdditionalMetadata: []token.KeyValue{
			{Key: MetadataIssuerKey, Value: MetadataIssuer},
			{Key: MetadataVersionKey, Value: MetadataVersion},
		},
	}
	extra, err := md.TLVSize()
	if err != nil {
		return nil, err
	}
	if extra > syscall.MaxPermittedDataIncrease || size+extra > syscall.MaxAccountDataSize {
		return nil, fmt.Errorf("%w: metadata needs %d bytes, at most %d may be added",
			ErrMetadataTooLarge, extra, syscall.MaxPermittedDataIncrease)
	}

	return &mintLayout{
		space:    uint64(size),
		lamports: accs.rent.MinimumBalance(uint64(size + extra)),
		metadata: md,
	}, nil
}

func (a *initAccounts) personSignerSeeds() [][]byte {
	return append(personSeeds(a.signer.Pubkey), []byte{a.personBump})
}

// createPerson allocates the Person record and writes its fields. An
// existing record makes the system program fail the allocation.
func createPerson(ctx *syscall.ExecutionContext, accs *initAccounts) error {
	err := system.CreateProgramAccount(ctx, accs.signer, accs.person, PersonSpace, ctx.ProgramID, accs.personSignerSeeds())
	if err != nil {
		return err
	}

	record := &Person{
		Signer:    accs.signer.Pubkey,
		Mint:      accs.mint.Pubkey,
		Authority: accs.person.Pubkey,
		Bump:      accs.personBump,
	}
	data, err := record.Pack()
	if err != nil {
		return err
	}
	copy(accs.person.Data, data)
	return nil
}

// initializeExtensions declares the transfer hook and metadata pointer.
// Both must precede InitializeMint2.
func initializeExtensions(ctx *syscall.ExecutionContext, accs *initAccounts) error {
	person, mint := accs.person.Pubkey, accs.mint.Pubkey
	if err := ctx.Invoke(token.InitializeTransferHook(mint, &person, nil)); err != nil {
		return fmt.Errorf("transfer hook: %w", err)
	}
	if err := ctx.Invoke(token.InitializeMetadataPointer(mint, &mint, &mint)); err != nil {
		return fmt.Errorf("metadata pointer: %w", err)
	}
	return nil
}

// finalize writes metadata, creates the vault, mints the supply and
// clears the mint authority.
func finalize(ctx *syscall.ExecutionContext, accs *initAccounts, layout *mintLayout) error {
	signer, mint, person := accs.signer.Pubkey, accs.mint.Pubkey, accs.person.Pubkey
	md := layout.metadata

	// Person co-signs the metadata write with its derivation proof.
	ix, err := token.InitializeTokenMetadata(mint, signer, mint, signer, md.Name, md.Symbol, md.URI, person)
	if err != nil {
		return err
	}
	if err := ctx.InvokeSigned(ix, accs.personSignerSeeds()); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	for _, kv := range md.AdditionalMetadata {
		ix, err := token.UpdateTokenMetadataField(mint, signer, token.FieldKey(kv.Key), kv.Value)
		if err != nil {
			return err
		}
		if err := ctx.Invoke(ix); err != nil {
			return fmt.Errorf("metadata field %s: %w", kv.Key, err)
		}
	}

	ix, _, err = associated_token.Create(signer, person, mint)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(ix); err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	supply, err := TotalSupply()
	if err != nil {
		return err
	}
	if err := ctx.Invoke(token.MintTo(mint, accs.vault.Pubkey, signer, supply)); err != nil {
		return fmt.Errorf("mint supply: %w", err)
	}

	if err := ctx.Invoke(token.SetAuthority(mint, signer, token.AuthorityTypeMintTokens, nil)); err != nil {
		return fmt.Errorf("revoke mint authority: %w", err)
	}
	return nil
}
