// Package vault implements the Vault Scanner: it watches one ilk's
// urns for unsafe collateralization and the vow's systemwide surplus
// and debt queues, kicking the corresponding auction when a threshold
// is crossed.
package vault

import (
	"context"
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"

	ktypes "auctionkeeper/pkg/types"
)

// UrnKey identifies one urn within an ilk.
type UrnKey struct {
	Ilk   string
	Owner [20]byte
}

// Urn is the collateral/debt snapshot the safety check needs.
type Urn struct {
	Ink ktypes.Wad // locked collateral
	Art ktypes.Wad // normalized debt
}

// IlkParams are the per-ilk risk parameters read from the Vat/Spotter.
type IlkParams struct {
	Rate ktypes.Ray // debt accumulator
	Spot ktypes.Ray // safety price (already includes the liquidation ratio)
	Dust ktypes.Rad // minimum debt floor
}

// Safe reports whether an urn clears the Maker safety condition
// art·rate ≤ ink·spot.
func Safe(urn Urn, ilk IlkParams) bool {
	debt := urn.Art.Mul(ilk.Rate)
	collateral := urn.Ink.Mul(ilk.Spot)
	return debt.Cmp(collateral) <= 0
}

// VowState is the systemwide surplus/debt snapshot read from the Vow.
type VowState struct {
	Sin     ktypes.Rad // total queued (unbacked) debt
	Vice    ktypes.Rad // debt currently on auction (vow.Ash)
	Surplus ktypes.Rad // vat.dai(vow)
	Bump    ktypes.Rad // flap lot size
	Hump    ktypes.Rad // surplus buffer before flap is allowed
	Sump    ktypes.Rad // flop lot size (per-auction debt to auction off)
}

// CanFlap reports whether surplus clears bump+hump+queued debt.
func (v VowState) CanFlap() bool {
	required := v.Bump.Add(v.Hump).Add(v.Sin)
	return v.Surplus.Cmp(required) >= 0
}

// CanFlop reports whether queued debt clears the per-auction sump.
func (v VowState) CanFlop() bool {
	return v.Sin.Cmp(v.Sump) >= 0
}

// Source reads on-chain vault/vow state; implemented atop
// pkg/contractclient for the Vat, Spotter, and Vow contracts.
type Source interface {
	IlkParams(ilk string) (IlkParams, error)
	Urn(ilk string, owner [20]byte) (Urn, error)
	UrnsByIlk(ilk string) ([]UrnKey, error)
	VowState() (VowState, error)

	Bite(ilk string, owner [20]byte) (ktypes.Call, error) // flip kick
	Bark(ilk string, owner [20]byte) (ktypes.Call, error) // clip kick
	Flap() (ktypes.Call, error)
	Flop() (ktypes.Call, error)
}

// Submitter is the narrow Transaction Manager dependency.
type Submitter interface {
	Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error)
}

// Config selects which kick types this scanner is responsible for,
// mirroring the keeper's --type flag: a flip keeper bites, a clip
// keeper barks, neither does both for the same ilk.
type Config struct {
	Ilk       string
	CanBite   bool
	CanBark   bool
	CanFlap   bool
	CanFlop   bool
	URNCacheSize int
}

// Scanner is the C6 Vault Scanner for one ilk.
type Scanner struct {
	cfg       Config
	source    Source
	submitter Submitter
	urnCache  *lru.Cache[UrnKey, Urn]
}

// New builds a Scanner; urnCache bounds how many (ilk, owner) urns are
// held in memory between full replays.
func New(cfg Config, source Source, submitter Submitter) (*Scanner, error) {
	size := cfg.URNCacheSize
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[UrnKey, Urn](size)
	if err != nil {
		return nil, fmt.Errorf("vault: new urn cache: %w", err)
	}
	return &Scanner{cfg: cfg, source: source, submitter: submitter, urnCache: cache}, nil
}

// Scan runs one C6 pass: refresh urns for the configured ilk and
// bite/bark any unsafe one past the dust floor, then — independently
// of whether an ilk is configured — check the vow's systemwide queues.
// A flap/flop keeper carries no ilk and runs only the vow half; a
// flip/clip keeper carries an ilk and (normally) no flap/flop rights.
func (s *Scanner) Scan(ctx context.Context) error {
	if s.cfg.Ilk != "" {
		ilkParams, err := s.source.IlkParams(s.cfg.Ilk)
		if err != nil {
			return fmt.Errorf("vault: ilk params: %w", err)
		}

		keys, err := s.source.UrnsByIlk(s.cfg.Ilk)
		if err != nil {
			return fmt.Errorf("vault: list urns: %w", err)
		}

		for _, key := range keys {
			urn, err := s.source.Urn(key.Ilk, key.Owner)
			if err != nil {
				continue
			}
			s.urnCache.Add(key, urn)

			if urn.Art.ToRad().Cmp(ilkParams.Dust) < 0 {
				continue // dust guard: never bite/bark below the debt floor
			}
			if Safe(urn, ilkParams) {
				continue
			}

			if s.cfg.CanBite {
				s.kick(ctx, key, "bite", func() (ktypes.Call, error) { return s.source.Bite(key.Ilk, key.Owner) })
			}
			if s.cfg.CanBark {
				s.kick(ctx, key, "bark", func() (ktypes.Call, error) { return s.source.Bark(key.Ilk, key.Owner) })
			}
		}
	}

	if s.cfg.CanFlap || s.cfg.CanFlop {
		vow, err := s.source.VowState()
		if err != nil {
			return fmt.Errorf("vault: vow state: %w", err)
		}
		if s.cfg.CanFlap && vow.CanFlap() {
			s.kickSystemwide(ctx, "flap", s.source.Flap)
		}
		if s.cfg.CanFlop && vow.CanFlop() {
			s.kickSystemwide(ctx, "flop", s.source.Flop)
		}
	}

	return nil
}

func (s *Scanner) kick(ctx context.Context, key UrnKey, kind string, build func() (ktypes.Call, error)) {
	submissionKey := fmt.Sprintf("%s:%s:%x", s.cfg.Ilk, kind, key.Owner)
	_, _ = s.submitter.Submit(ctx, submissionKey, func(gasPrice *big.Int) (ktypes.Call, error) {
		return build()
	}, nil)
}

func (s *Scanner) kickSystemwide(ctx context.Context, kind string, build func() (ktypes.Call, error)) {
	submissionKey := s.cfg.Ilk + ":" + kind
	_, _ = s.submitter.Submit(ctx, submissionKey, func(gasPrice *big.Int) (ktypes.Call, error) {
		return build()
	}, nil)
}

// CachedUrn returns the most recently observed snapshot for key, if
// any, without a fresh contract read.
func (s *Scanner) CachedUrn(key UrnKey) (Urn, bool) {
	return s.urnCache.Get(key)
}
