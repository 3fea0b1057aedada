package runtime

import (
	"fmt"

	"github.com/fortiblox/metf/pkg/accounts"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// nativeProgramLamports is the balance of a native program account.
const nativeProgramLamports types.Lamports = 1

// GenesisAccounts returns the accounts a fresh ledger starts with: the rent
// sysvar and one executable account per registered program, owned by the
// native loader.
func GenesisAccounts(rent syscall.Rent, registry *ProgramRegistry) []types.AccountRef {
	refs := []types.AccountRef{{
		Pubkey: types.SysvarRentID,
		Account: &types.Account{
			Lamports: types.Lamports(rent.MinimumBalance(syscall.RentSysvarSize)),
			Data:     rent.Serialize(),
			Owner:    types.SysvarOwnerID,
		},
	}}
	for _, id := range registry.ListPrograms() {
		name, _ := registry.GetProgramName(id)
		refs = append(refs, types.AccountRef{
			Pubkey: id,
			Account: &types.Account{
				Lamports:   nativeProgramLamports,
				Data:       []byte(name),
				Owner:      types.NativeLoaderID,
				Executable: true,
			},
		})
	}
	return refs
}

// bootstrap writes the genesis accounts missing from db and returns the
// rent schedule in effect. An existing rent sysvar wins over rent.
func bootstrap(db accounts.AccountsDB, rent syscall.Rent, registry *ProgramRegistry) (syscall.Rent, error) {
	stored, err := db.GetAccount(types.SysvarRentID)
	if err != nil {
		return syscall.Rent{}, fmt.Errorf("failed to read rent sysvar: %w", err)
	}
	if stored != nil {
		rent, err = syscall.DeserializeRent(stored.Data)
		if err != nil {
			return syscall.Rent{}, err
		}
	}

	var missing []types.AccountRef
	for _, ref := range GenesisAccounts(rent, registry) {
		if !db.HasAccount(ref.Pubkey) {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return rent, nil
	}
	if err := db.SetAccounts(missing); err != nil {
		return syscall.Rent{}, fmt.Errorf("failed to write genesis accounts: %w", err)
	}
	return rent, nil
}
