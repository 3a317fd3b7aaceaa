package crowdfund

import (
	"fmt"

	"cosmossdk.io/math"
)

// PoolStatus represents the lifecycle states of a crowdfund pool.
type PoolStatus uint8

const (
	// PoolOpen accepts contributions until the contribution deadline.
	PoolOpen PoolStatus = iota
	// PoolListed has an open offer at the external trade venue.
	PoolListed
	// PoolExecuted has had its offer filled; proceeds are claimable.
	PoolExecuted
	// PoolFailed is terminal: contributions are refundable.
	PoolFailed
)

// String returns the canonical status name.
func (s PoolStatus) String() string {
	switch s {
	case PoolOpen:
		return "OPEN"
	case PoolListed:
		return "LISTED"
	case PoolExecuted:
		return "EXECUTED"
	case PoolFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s PoolStatus) Valid() bool {
	switch s {
	case PoolOpen, PoolListed, PoolExecuted, PoolFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s PoolStatus) Terminal() bool {
	return s == PoolExecuted || s == PoolFailed
}

// Pool captures one crowdfund: the pooled asset, its caps and deadlines, the
// running nominal/actual totals, and the listing reference once the pooled
// funds are offered at the venue. Pools are never deleted; terminal states are
// retained for auditability.
type Pool struct {
	ID                   [32]byte       `json:"id"`
	Description          string         `json:"description"`
	Creator              string         `json:"creator"`
	AssetIn              string         `json:"assetIn"`
	AssetOut             string         `json:"assetOut,omitempty"`
	HardCap              math.LegacyDec `json:"hardCap"`
	SoftCap              math.LegacyDec `json:"softCap"`
	ContributionDeadline int64          `json:"contributionDeadline"`
	TradeDeadline        int64          `json:"tradeDeadline"`
	// TotalNominal sums the amounts contributors instructed to be sent;
	// TotalReceived sums what was actually credited after any transfer tax.
	// TotalReceived <= TotalNominal always holds.
	TotalNominal  math.LegacyDec `json:"totalNominal"`
	TotalReceived math.LegacyDec `json:"totalReceived"`
	Status        PoolStatus     `json:"status"`
	ListingID     string         `json:"listingId,omitempty"`
	// Proceeds is the asset_out amount credited once the listing executed.
	Proceeds  math.LegacyDec `json:"proceeds"`
	CreatedAt int64          `json:"createdAt"`
}

// Clone returns a copy of the pool so callers can safely mutate it without
// affecting the stored instance.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// SanitizePool validates the supplied pool, returning a cloned instance with
// non-nil decimal fields. The function does not mutate the original value.
func SanitizePool(p *Pool) (*Pool, error) {
	if p == nil {
		return nil, fmt.Errorf("nil pool")
	}
	clone := p.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid pool status: %d", clone.Status)
	}
	if clone.SoftCap.IsNil() || !clone.SoftCap.IsPositive() {
		return nil, fmt.Errorf("pool soft cap must be positive")
	}
	if clone.HardCap.IsNil() || clone.HardCap.LTE(clone.SoftCap) {
		return nil, fmt.Errorf("pool hard cap must exceed soft cap")
	}
	if clone.TradeDeadline <= clone.ContributionDeadline {
		return nil, fmt.Errorf("pool trade deadline must follow contribution deadline")
	}
	if clone.TotalNominal.IsNil() {
		clone.TotalNominal = math.LegacyZeroDec()
	}
	if clone.TotalReceived.IsNil() {
		clone.TotalReceived = math.LegacyZeroDec()
	}
	if clone.Proceeds.IsNil() {
		clone.Proceeds = math.LegacyZeroDec()
	}
	if clone.TotalNominal.IsNegative() || clone.TotalReceived.IsNegative() {
		return nil, fmt.Errorf("pool totals must be non-negative")
	}
	if clone.TotalReceived.GT(clone.TotalNominal) {
		return nil, fmt.Errorf("pool received total exceeds nominal total")
	}
	return clone, nil
}

// Contribution is the per (account, pool) ledger record: the nominal sum the
// account attempted to send, the amount actually credited to the pool, and
// whether proceeds have been claimed.
type Contribution struct {
	Nominal  math.LegacyDec `json:"nominal"`
	Received math.LegacyDec `json:"received"`
	Claimed  bool           `json:"claimed"`
}

// Clone returns a copy of the contribution record.
func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// SanitizeContribution validates and normalises a contribution record.
func SanitizeContribution(c *Contribution) (*Contribution, error) {
	if c == nil {
		return nil, fmt.Errorf("nil contribution")
	}
	clone := c.Clone()
	if clone.Nominal.IsNil() {
		clone.Nominal = math.LegacyZeroDec()
	}
	if clone.Received.IsNil() {
		clone.Received = math.LegacyZeroDec()
	}
	if clone.Nominal.IsNegative() || clone.Received.IsNegative() {
		return nil, fmt.Errorf("contribution amounts must be non-negative")
	}
	if clone.Received.GT(clone.Nominal) {
		return nil, fmt.Errorf("contribution received exceeds nominal")
	}
	return clone, nil
}
