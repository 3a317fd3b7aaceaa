package crowdfund

import (
	"fmt"

	"cosmossdk.io/math"

	"otcpool/native/otc"
)

// ListPool offers the pooled asset at the trade venue in exchange for
// takeAmount of assetOut. The offer is sized net of the venue's maker fee:
// the venue charges its fee on top of the amount it custodies, so the engine
// divides by (1+fee), the same direction of division the venue itself uses,
// leaving no residue stranded in the vault beyond truncation dust.
func (e *Engine) ListPool(caller string, poolID [32]byte, assetOut string, takeAmount math.LegacyDec) (string, error) {
	if err := e.guard.Acquire(); err != nil {
		return "", err
	}
	defer e.guard.Release()
	if e.venue == nil {
		return "", errNilVenue
	}

	pool, err := e.loadPool(poolID)
	if err != nil {
		return "", err
	}
	if caller != pool.Creator {
		return "", fmt.Errorf("%w: only the pool creator may list", ErrUnauthorized)
	}
	if pool.Status != PoolOpen || pool.ListingID != "" {
		return "", fmt.Errorf("%w: pool is %s", ErrWrongPhase, pool.Status)
	}
	now := e.now()
	if now < pool.ContributionDeadline {
		return "", fmt.Errorf("%w: cannot list before the contribution deadline", ErrWrongPhase)
	}
	if now > pool.TradeDeadline {
		return "", fmt.Errorf("%w: trade window has passed", ErrWrongPhase)
	}
	if pool.TotalNominal.LT(pool.SoftCap) {
		return "", fmt.Errorf("%w: soft cap not met", ErrInvalidState)
	}
	if !pool.TotalReceived.IsPositive() {
		return "", fmt.Errorf("%w: nothing received to offer", ErrInvalidState)
	}
	if takeAmount.IsNil() || !takeAmount.IsPositive() {
		return "", fmt.Errorf("%w: take amount must be positive", ErrInvalidInput)
	}
	takeTok, err := e.resolveToken(assetOut)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	offerTok, err := e.resolveToken(pool.AssetIn)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	feeRate := e.venue.FeeRate()
	if feeRate.IsNil() || feeRate.IsNegative() {
		return "", fmt.Errorf("%w: venue reported an invalid fee rate", ErrExternalCall)
	}
	offerAmount := pool.TotalReceived.QuoTruncate(math.LegacyOneDec().Add(feeRate))
	if !offerAmount.IsPositive() {
		return "", fmt.Errorf("%w: fee-netted offer rounds to zero", ErrInvalidState)
	}

	// The venue pulls offerAmount*(1+fee) <= TotalReceived; approve the full
	// received total as the spec of the venue's fee schedule requires.
	if err := offerTok.Approve(e.vault, e.venue.Account(), pool.TotalReceived); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalCall, err)
	}
	listingID, err := e.venue.ListOffer(e.vault, offerTok, offerAmount, takeTok, takeAmount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalCall, err)
	}

	pool.Status = PoolListed
	pool.AssetOut = assetOut
	pool.ListingID = listingID
	if err := e.state.PoolPut(pool); err != nil {
		return "", err
	}
	e.emit(NewListedEvent(pool, offerAmount, takeAmount))
	return listingID, nil
}

// CancelListing withdraws the pool's open offer from the venue and marks the
// pool FAILED. Creator or operator only; a venue offer already in a terminal
// state cannot be cancelled again.
func (e *Engine) CancelListing(caller string, poolID [32]byte) error {
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
	if caller != pool.Creator && (e.params.Operator == "" || caller != e.params.Operator) {
		return fmt.Errorf("%w: only the creator or operator may cancel", ErrUnauthorized)
	}
	if pool.Status != PoolListed || pool.ListingID == "" {
		return fmt.Errorf("%w: pool is %s", ErrWrongPhase, pool.Status)
	}
	offer, found := e.venue.Offer(pool.ListingID)
	if !found {
		return fmt.Errorf("%w: venue has no record of listing %s", ErrExternalCall, pool.ListingID)
	}
	if offer.Status != otc.OfferOpen {
		return fmt.Errorf("%w: listing is %s", ErrWrongPhase, offer.Status)
	}
	if err := e.venue.CancelOffer(e.vault, pool.ListingID); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalCall, err)
	}

	pool.Status = PoolFailed
	if err := e.state.PoolPut(pool); err != nil {
		return err
	}
	e.emit(NewListingCancelledEvent(pool))
	e.emit(NewPoolFailedEvent(pool))
	return nil
}
