package rebalance

import ktypes "auctionkeeper/pkg/types"

// Reservoir is the scan-scoped, single-goroutine-owned ledger of
// available vat-stablecoin: every proposed bid decrements a local copy
// so a single scan never commits to bids that jointly exceed the
// balance observed at scan start.
type Reservoir struct {
	balance ktypes.Rad
}

// NewReservoir seeds a reservoir with the vat-stablecoin balance
// observed at the start of a scan.
func NewReservoir(balance ktypes.Rad) *Reservoir {
	return &Reservoir{balance: balance}
}

// CheckBidCost reports whether cost is affordable against the
// remaining balance and, if so, reserves it by decrementing the local
// copy.
func (r *Reservoir) CheckBidCost(cost ktypes.Rad) bool {
	if cost.Sign() <= 0 {
		return true
	}
	if cost.Cmp(r.balance) > 0 {
		return false
	}
	r.balance = r.balance.Sub(cost)
	return true
}

// Remaining reports the reservoir's current local balance.
func (r *Reservoir) Remaining() ktypes.Rad {
	return r.balance
}

// Topup increases the local balance after an on-bid join, per C7's
// "attempt an immediate join before deciding whether to skip" rule.
func (r *Reservoir) Topup(amount ktypes.Rad) {
	r.balance = r.balance.Add(amount)
}

// Reset reseeds the reservoir to balance, observed fresh at the start
// of a new scan — the reservoir is never shared or carried forward
// across scans (§5).
func (r *Reservoir) Reset(balance ktypes.Rad) {
	r.balance = balance
}

// UnboundedReservoir never rejects a bid. It stands in for a keeper
// where no Vat client was configured to back a real balance check.
type UnboundedReservoir struct{}

// CheckBidCost always approves.
func (UnboundedReservoir) CheckBidCost(ktypes.Rad) bool { return true }
