package persontoken

import (
	"crypto/sha256"
	"fmt"

	"github.com/near/borsh-go"

	"github.com/fortiblox/metf/pkg/types"
)

// Issuance policy.
const (
	// PersonSeed prefixes the seeds of every Person address.
	PersonSeed = "person"

	// TokenLimitAmount is the number of whole tokens minted per person.
	TokenLimitAmount uint64 = 1_000_000

	// SupplyScale multiplies TokenLimitAmount into base units.
	SupplyScale uint64 = 1_000_000_000

	// Decimals is the decimal precision of every person mint.
	Decimals uint8 = 6

	discriminatorLength = 8
)

// Additional metadata written to every person mint after initialization.
const (
	// MetadataIssuerKey names the issuing program.
	MetadataIssuerKey = "issuer"
	MetadataIssuer    = "metf"

	// MetadataVersionKey records the person token layout version.
	MetadataVersionKey = "version"
	MetadataVersion    = "1"
)

// Anchor-compatible discriminators.
var (
	InitPersonTokenDiscriminator = anchorDiscriminator("global", "init_person_token")
	PersonDiscriminator          = anchorDiscriminator("account", "Person")
)

func anchorDiscriminator(namespace, name string) [discriminatorLength]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [discriminatorLength]byte
	copy(d[:], sum[:discriminatorLength])
	return d
}

// Person is the per-signer record that governs one mint.
type Person struct {
	Signer    types.Pubkey
	Mint      types.Pubkey
	Authority types.Pubkey
	Bump      uint8
}

// PersonSpace is the serialized size of a Person account, discriminator
// included.
const PersonSpace = discriminatorLength + 32 + 32 + 32 + 1

// Pack encodes the account: discriminator followed by the borsh body.
func (p *Person) Pack() ([]byte, error) {
	body, err := borsh.Serialize(*p)
	if err != nil {
		return nil, err
	}
	return append(PersonDiscriminator[:], body...), nil
}

// UnpackPerson decodes a Person account.
func UnpackPerson(data []byte) (*Person, error) {
	if len(data) < PersonSpace {
		return nil, fmt.Errorf("%w: person data is %d bytes", ErrInvalidPersonAccount, len(data))
	}
	var d [discriminatorLength]byte
	copy(d[:], data)
	if d != PersonDiscriminator {
		return nil, fmt.Errorf("%w: bad discriminator", ErrInvalidPersonAccount)
	}
	p := &Person{}
	if err := borsh.Deserialize(p, data[discriminatorLength:PersonSpace]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPersonAccount, err)
	}
	return p, nil
}

// InitPersonTokenParams are the user-supplied metadata strings.
type InitPersonTokenParams struct {
	Name   string
	Symbol string
	URI    string
}

// TotalSupply returns the base-unit supply minted into every vault.
func TotalSupply() (uint64, error) {
	if TokenLimitAmount != 0 && TokenLimitAmount > ^uint64(0)/SupplyScale {
		return 0, ErrSupplyOverflow
	}
	return TokenLimitAmount * SupplyScale, nil
}
