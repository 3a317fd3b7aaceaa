package crowdfund

import (
	"fmt"

	"cosmossdk.io/math"

	"otcpool/native/otc"
)

// markExecuted captures the proceeds from the venue record exactly once and
// flips the pool to EXECUTED. Subsequent callers see the cached value.
func (e *Engine) markExecuted(pool *Pool, offer otc.Offer) error {
	pool.Proceeds = offer.TakeAmount
	pool.Status = PoolExecuted
	if err := e.state.PoolPut(pool); err != nil {
		return err
	}
	e.emit(NewExecutedEvent(pool))
	return nil
}

// FinalizeListing refreshes a LISTED pool against the venue record: EXECUTED
// captures the proceeds, CANCELLED fails the pool. Terminal pools are left
// untouched; a listing still open at the venue cannot be finalized.
func (e *Engine) FinalizeListing(poolID [32]byte) error {
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if e.venue == nil {
		return errNilVenue
	}

	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if pool.Status.Terminal() {
		return nil
	}
	if pool.Status != PoolListed || pool.ListingID == "" {
		return fmt.Errorf("%w: pool is %s", ErrWrongPhase, pool.Status)
	}
	offer, found := e.venue.Offer(pool.ListingID)
	if !found {
		return fmt.Errorf("%w: venue has no record of listing %s", ErrExternalCall, pool.ListingID)
	}
	switch offer.Status {
	case otc.OfferExecuted:
		return e.markExecuted(pool, offer)
	case otc.OfferCancelled:
		pool.Status = PoolFailed
		if err := e.state.PoolPut(pool); err != nil {
			return err
		}
		e.emit(NewPoolFailedEvent(pool))
		return nil
	default:
		return fmt.Errorf("%w: listing still open", ErrWrongPhase)
	}
}

// WithdrawShare pays out the caller's proportional share of the trade
// proceeds. The denominator is the nominal total: proceeds are apportioned by
// stated commitment, not by how much tax each individual transfer lost.
func (e *Engine) WithdrawShare(caller string, poolID [32]byte) error {
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	rec, ok := e.state.ContributionGet(poolID, caller)
	if !ok {
		return ErrNoContribution
	}
	rec, err = SanitizeContribution(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !rec.Nominal.IsPositive() {
		return ErrNoContribution
	}
	if rec.Claimed {
		return fmt.Errorf("%w: share already claimed", ErrWrongPhase)
	}

	switch pool.Status {
	case PoolExecuted:
		// Proceeds already captured.
	case PoolListed:
		if e.venue == nil {
			return errNilVenue
		}
		offer, found := e.venue.Offer(pool.ListingID)
		if !found {
			return fmt.Errorf("%w: venue has no record of listing %s", ErrExternalCall, pool.ListingID)
		}
		if offer.Status != otc.OfferExecuted {
			return fmt.Errorf("%w: listing is %s", ErrWrongPhase, offer.Status)
		}
		if err := e.markExecuted(pool, offer); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: pool is %s", ErrWrongPhase, pool.Status)
	}

	if !pool.TotalNominal.IsPositive() {
		return fmt.Errorf("%w: pool has no nominal total", ErrInvalidState)
	}
	share := rec.Nominal.Mul(pool.Proceeds).QuoTruncate(pool.TotalNominal)
	if !share.IsPositive() {
		return fmt.Errorf("%w: computed share is not positive", ErrInvalidState)
	}

	// Claimed is committed before the proceeds leave the vault.
	prev := rec.Clone()
	rec.Claimed = true
	if err := e.state.ContributionPut(poolID, caller, rec); err != nil {
		return err
	}

	takeTok, err := e.resolveToken(pool.AssetOut)
	if err != nil {
		_ = e.state.ContributionPut(poolID, caller, prev)
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := takeTok.Transfer(e.vault, caller, share); err != nil {
		_ = e.state.ContributionPut(poolID, caller, prev)
		return fmt.Errorf("%w: %v", ErrExternalCall, err)
	}
	e.emit(NewShareClaimedEvent(pool, caller, share))
	return nil
}

// Share reports the proceeds entitlement the account would receive from an
// executed pool, without mutating anything. Read-only, guard-exempt.
func (e *Engine) Share(poolID [32]byte, account string) (math.LegacyDec, error) {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return math.LegacyZeroDec(), ErrPoolNotFound
	}
	if pool.Status != PoolExecuted {
		return math.LegacyZeroDec(), fmt.Errorf("%w: pool is %s", ErrWrongPhase, pool.Status)
	}
	rec, ok := e.GetContribution(poolID, account)
	if !ok || !rec.Nominal.IsPositive() {
		return math.LegacyZeroDec(), ErrNoContribution
	}
	if !pool.TotalNominal.IsPositive() {
		return math.LegacyZeroDec(), fmt.Errorf("%w: pool has no nominal total", ErrInvalidState)
	}
	return rec.Nominal.Mul(pool.Proceeds).QuoTruncate(pool.TotalNominal), nil
}
