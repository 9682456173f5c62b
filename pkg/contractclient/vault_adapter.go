package contractclient

import (
	"fmt"
	"math/big"

	ktypes "auctionkeeper/pkg/types"
	"auctionkeeper/pkg/vault"
)

// VaultAdapter wires the Vat, Spotter, Vow, and (depending on which of
// Cat/Dog the keeper is configured for) the liquidation contract as a
// vault.Source, again by generic ABI method name rather than generated
// bindings.
//
// UrnsByIlk has no cheap on-chain enumeration in the core Maker
// contracts (the canonical keeper discovers urns by replaying Vat Frob
// events); this adapter instead watches a fixed operator-supplied list
// of owners, refreshed by whatever out-of-band process feeds
// WatchOwner. That is a deliberate narrowing, not an oversight.
type VaultAdapter struct {
	vat     ContractClient
	spotter ContractClient
	vow     ContractClient
	cat     ContractClient // nil unless wired for bite
	dog     ContractClient // nil unless wired for bark

	owners map[string][][20]byte
}

// NewVaultAdapter wires vat/spotter/vow plus whichever of cat/dog the
// keeper's --type selects (the other may be nil).
func NewVaultAdapter(vat, spotter, vow, cat, dog ContractClient) *VaultAdapter {
	return &VaultAdapter{vat: vat, spotter: spotter, vow: vow, cat: cat, dog: dog, owners: map[string][][20]byte{}}
}

// WatchOwner adds owner to the set of urns polled for ilk.
func (a *VaultAdapter) WatchOwner(ilk string, owner [20]byte) {
	for _, existing := range a.owners[ilk] {
		if existing == owner {
			return
		}
	}
	a.owners[ilk] = append(a.owners[ilk], owner)
}

func (a *VaultAdapter) IlkParams(ilk string) (vault.IlkParams, error) {
	ilkBytes32 := padIlk(ilk)

	vatOut, err := a.vat.Call(nil, "ilks", ilkBytes32)
	if err != nil {
		return vault.IlkParams{}, fmt.Errorf("vault adapter: vat.ilks(%s): %w", ilk, err)
	}
	var params vault.IlkParams
	// (Art, rate, spot, line, dust)
	assign(vatOut, 1, func(v interface{}) { params.Rate = ktypes.NewRay(toBigInt(v)) })
	assign(vatOut, 4, func(v interface{}) { params.Dust = ktypes.NewRad(toBigInt(v)) })

	spotOut, err := a.spotter.Call(nil, "ilks", ilkBytes32)
	if err != nil {
		return vault.IlkParams{}, fmt.Errorf("vault adapter: spotter.ilks(%s): %w", ilk, err)
	}
	// (pip, mat) — spot itself lives on the Vat, mat is the liquidation
	// ratio; the keeper only needs the Vat's already-adjusted spot.
	_ = spotOut
	assign(vatOut, 2, func(v interface{}) { params.Spot = ktypes.NewRay(toBigInt(v)) })

	return params, nil
}

func (a *VaultAdapter) Urn(ilk string, owner [20]byte) (vault.Urn, error) {
	out, err := a.vat.Call(nil, "urns", padIlk(ilk), owner)
	if err != nil {
		return vault.Urn{}, fmt.Errorf("vault adapter: vat.urns(%s,%x): %w", ilk, owner, err)
	}
	var urn vault.Urn
	assign(out, 0, func(v interface{}) { urn.Ink = ktypes.NewWad(toBigInt(v)) })
	assign(out, 1, func(v interface{}) { urn.Art = ktypes.NewWad(toBigInt(v)) })
	return urn, nil
}

func (a *VaultAdapter) UrnsByIlk(ilk string) ([]vault.UrnKey, error) {
	owners := a.owners[ilk]
	keys := make([]vault.UrnKey, 0, len(owners))
	for _, owner := range owners {
		keys = append(keys, vault.UrnKey{Ilk: ilk, Owner: owner})
	}
	return keys, nil
}

func (a *VaultAdapter) VowState() (vault.VowState, error) {
	var state vault.VowState

	sin, err := a.vow.Call(nil, "Sin")
	if err != nil {
		return state, fmt.Errorf("vault adapter: vow.Sin: %w", err)
	}
	state.Sin = ktypes.NewRad(mustFirst(sin))

	vice, err := a.vow.Call(nil, "Ash")
	if err != nil {
		return state, fmt.Errorf("vault adapter: vow.Ash: %w", err)
	}
	state.Vice = ktypes.NewRad(mustFirst(vice))

	surplus, err := a.vat.Call(nil, "dai", a.vow.ContractAddress())
	if err != nil {
		return state, fmt.Errorf("vault adapter: vat.dai(vow): %w", err)
	}
	state.Surplus = ktypes.NewRad(mustFirst(surplus))

	bump, err := a.vow.Call(nil, "bump")
	if err != nil {
		return state, fmt.Errorf("vault adapter: vow.bump: %w", err)
	}
	state.Bump = ktypes.NewRad(mustFirst(bump))

	hump, err := a.vow.Call(nil, "hump")
	if err != nil {
		return state, fmt.Errorf("vault adapter: vow.hump: %w", err)
	}
	state.Hump = ktypes.NewRad(mustFirst(hump))

	sump, err := a.vow.Call(nil, "sump")
	if err != nil {
		return state, fmt.Errorf("vault adapter: vow.sump: %w", err)
	}
	state.Sump = ktypes.NewRad(mustFirst(sump))

	return state, nil
}

func (a *VaultAdapter) Bite(ilk string, owner [20]byte) (ktypes.Call, error) {
	if a.cat == nil {
		return ktypes.Call{}, fmt.Errorf("vault adapter: no cat wired for bite")
	}
	return ktypes.Call{Contract: a.cat.ContractAddress(), Method: "bite", Args: []interface{}{padIlk(ilk), owner}}, nil
}

func (a *VaultAdapter) Bark(ilk string, owner [20]byte) (ktypes.Call, error) {
	if a.dog == nil {
		return ktypes.Call{}, fmt.Errorf("vault adapter: no dog wired for bark")
	}
	return ktypes.Call{Contract: a.dog.ContractAddress(), Method: "bark", Args: []interface{}{padIlk(ilk), owner, a.dog.ContractAddress()}}, nil
}

func (a *VaultAdapter) Flap() (ktypes.Call, error) {
	return ktypes.Call{Contract: a.vow.ContractAddress(), Method: "flap"}, nil
}

func (a *VaultAdapter) Flop() (ktypes.Call, error) {
	return ktypes.Call{Contract: a.vow.ContractAddress(), Method: "flop"}, nil
}

func mustFirst(out []interface{}) *big.Int {
	b, err := firstBigInt(out)
	if err != nil {
		return new(big.Int)
	}
	return b
}

// padIlk right-pads ilk's ASCII bytes into the bytes32 the Maker
// contracts key their per-collateral-type maps with.
func padIlk(ilk string) [32]byte {
	var out [32]byte
	copy(out[:], []byte(ilk))
	return out
}
