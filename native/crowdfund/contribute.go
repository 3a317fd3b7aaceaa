package crowdfund

import (
	"fmt"

	"cosmossdk.io/math"

	"otcpool/native/otc"
)

// Contribute moves nominal of the pool's asset from the caller into the vault
// and records both the nominal amount and the actually credited delta. The cap
// is enforced on the nominal basis: that is what the contributor controls and
// what can be checked before any external transfer.
func (e *Engine) Contribute(caller string, poolID [32]byte, nominal math.LegacyDec) error {
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if pool.Status != PoolOpen {
		return fmt.Errorf("%w: pool is %s", ErrWrongPhase, pool.Status)
	}
	now := e.now()
	if now >= pool.ContributionDeadline {
		return fmt.Errorf("%w: contribution window closed", ErrWrongPhase)
	}
	if nominal.IsNil() || !nominal.IsPositive() {
		return fmt.Errorf("%w: contribution amount must be positive", ErrInvalidInput)
	}
	if pool.TotalNominal.Add(nominal).GT(pool.HardCap) {
		return fmt.Errorf("%w: contribution of %s exceeds hard cap %s", ErrCapacityExceeded, nominal, pool.HardCap)
	}
	tok, err := e.resolveToken(pool.AssetIn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	// Suspension point: the token may reinvoke the engine here; the guard
	// rejects that, and the delta measured across the call is what gets
	// committed, so a nested overwrite cannot occur either way.
	before := tok.BalanceOf(e.vault)
	if err := tok.TransferFrom(e.vault, caller, e.vault, nominal); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalCall, err)
	}
	delta := tok.BalanceOf(e.vault).Sub(before)
	if delta.IsNegative() {
		return fmt.Errorf("%w: asset reported a negative credit", ErrExternalCall)
	}
	if delta.GT(nominal) {
		return fmt.Errorf("%w: asset delivered more than requested", ErrExternalCall)
	}

	rec, ok := e.state.ContributionGet(poolID, caller)
	if !ok {
		rec = &Contribution{Nominal: math.LegacyZeroDec(), Received: math.LegacyZeroDec()}
	}
	rec, err = SanitizeContribution(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	prev := rec.Clone()
	rec.Nominal = rec.Nominal.Add(nominal)
	rec.Received = rec.Received.Add(delta)
	pool.TotalNominal = pool.TotalNominal.Add(nominal)
	pool.TotalReceived = pool.TotalReceived.Add(delta)

	if err := e.state.ContributionPut(poolID, caller, rec); err != nil {
		return err
	}
	if err := e.state.PoolPut(pool); err != nil {
		// Restore the record so a failed commit leaves no partial effects.
		if !ok {
			prev = &Contribution{Nominal: math.LegacyZeroDec(), Received: math.LegacyZeroDec()}
		}
		_ = e.state.ContributionPut(poolID, caller, prev)
		return err
	}
	e.emit(NewContributedEvent(pool, caller, nominal, delta))
	return nil
}

// WithdrawContribution refunds the caller's actually received amount when the
// pool has not traded: before the contribution deadline as an early exit, or
// once the pool's effective status is FAILED. A listing still open at the
// venue past the trade deadline is cancelled within this call to recover
// custody before refunding.
func (e *Engine) WithdrawContribution(caller string, poolID [32]byte) error {
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

	now := e.now()
	failedNow := false
	switch pool.Status {
	case PoolExecuted:
		return fmt.Errorf("%w: trade executed, use share withdrawal", ErrWrongPhase)
	case PoolFailed:
		// Refundable.
	case PoolOpen:
		if now >= pool.ContributionDeadline {
			if pool.TotalNominal.GTE(pool.SoftCap) && now <= pool.TradeDeadline {
				// Soft cap met and the creator can still list: the pooled
				// funds stay committed for the listing window.
				return fmt.Errorf("%w: pool is eligible for listing until the trade deadline", ErrWrongPhase)
			}
			// Soft cap unmet by the deadline, or the listing window elapsed
			// unused: lazy failure detection.
			pool.Status = PoolFailed
			failedNow = true
		}
	case PoolListed:
		offer, found := e.venue.Offer(pool.ListingID)
		if !found {
			return fmt.Errorf("%w: venue has no record of listing %s", ErrExternalCall, pool.ListingID)
		}
		switch offer.Status {
		case otc.OfferExecuted:
			return fmt.Errorf("%w: trade executed, use share withdrawal", ErrWrongPhase)
		case otc.OfferCancelled:
			pool.Status = PoolFailed
			failedNow = true
		case otc.OfferOpen:
			if now <= pool.TradeDeadline {
				return fmt.Errorf("%w: listing still open within the trade window", ErrWrongPhase)
			}
			// Recovery on demand: cancel the expired listing to pull the
			// pooled asset back into the vault before refunding.
			if err := e.venue.CancelOffer(e.vault, pool.ListingID); err != nil {
				return fmt.Errorf("%w: %v", ErrExternalCall, err)
			}
			pool.Status = PoolFailed
			failedNow = true
		default:
			return fmt.Errorf("%w: venue reported status %s", ErrExternalCall, offer.Status)
		}
	}

	refund := rec.Received
	prevRec := rec.Clone()
	prevPool, found := e.state.PoolGet(poolID)
	if !found {
		return ErrPoolNotFound
	}
	pool.TotalNominal = pool.TotalNominal.Sub(rec.Nominal)
	pool.TotalReceived = pool.TotalReceived.Sub(rec.Received)
	rec.Nominal = math.LegacyZeroDec()
	rec.Received = math.LegacyZeroDec()

	// Effects are committed before the refund leaves the vault.
	if err := e.state.ContributionPut(poolID, caller, rec); err != nil {
		return err
	}
	if err := e.state.PoolPut(pool); err != nil {
		_ = e.state.ContributionPut(poolID, caller, prevRec)
		return err
	}

	if refund.IsPositive() {
		tok, err := e.resolveToken(pool.AssetIn)
		if err != nil {
			_ = e.state.ContributionPut(poolID, caller, prevRec)
			_ = e.state.PoolPut(prevPool)
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if err := tok.Transfer(e.vault, caller, refund); err != nil {
			// Atomic rollback: restore the staged effects and propagate.
			_ = e.state.ContributionPut(poolID, caller, prevRec)
			_ = e.state.PoolPut(prevPool)
			return fmt.Errorf("%w: %v", ErrExternalCall, err)
		}
	}

	if failedNow {
		e.emit(NewPoolFailedEvent(pool))
	}
	e.emit(NewContributionWithdrawnEvent(pool, caller, prevRec.Nominal, refund))
	return nil
}
