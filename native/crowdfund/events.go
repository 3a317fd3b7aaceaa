package crowdfund

import (
	"encoding/hex"
	"strconv"

	"cosmossdk.io/math"

	"otcpool/core/types"
)

const (
	EventTypePoolCreated           = "crowdfund.pool_created"
	EventTypeContributed           = "crowdfund.contributed"
	EventTypeContributionWithdrawn = "crowdfund.contribution_withdrawn"
	EventTypeListed                = "crowdfund.listed"
	EventTypeListingCancelled      = "crowdfund.listing_cancelled"
	EventTypeExecuted              = "crowdfund.executed"
	EventTypeShareClaimed          = "crowdfund.share_claimed"
	EventTypePoolFailed            = "crowdfund.pool_failed"
)

// NewPoolCreatedEvent returns the canonical payload for a newly created pool.
func NewPoolCreatedEvent(p *Pool) *types.Event {
	evt := newPoolEvent(EventTypePoolCreated, p)
	if p != nil {
		evt.Attributes["hardCap"] = p.HardCap.String()
		evt.Attributes["softCap"] = p.SoftCap.String()
		evt.Attributes["contributionDeadline"] = strconv.FormatInt(p.ContributionDeadline, 10)
		evt.Attributes["tradeDeadline"] = strconv.FormatInt(p.TradeDeadline, 10)
	}
	return evt
}

// NewContributedEvent returns the payload emitted after a contribution commits.
func NewContributedEvent(p *Pool, account string, nominal, received math.LegacyDec) *types.Event {
	evt := newPoolEvent(EventTypeContributed, p)
	evt.Attributes["account"] = account
	evt.Attributes["nominal"] = nominal.String()
	evt.Attributes["received"] = received.String()
	return evt
}

// NewContributionWithdrawnEvent returns the payload emitted after a refund.
func NewContributionWithdrawnEvent(p *Pool, account string, nominal, refunded math.LegacyDec) *types.Event {
	evt := newPoolEvent(EventTypeContributionWithdrawn, p)
	evt.Attributes["account"] = account
	evt.Attributes["nominal"] = nominal.String()
	evt.Attributes["refunded"] = refunded.String()
	return evt
}

// NewListedEvent returns the payload emitted once the pool is offered at the
// venue.
func NewListedEvent(p *Pool, offerAmount, takeAmount math.LegacyDec) *types.Event {
	evt := newPoolEvent(EventTypeListed, p)
	evt.Attributes["offerAmount"] = offerAmount.String()
	evt.Attributes["takeAmount"] = takeAmount.String()
	if p != nil {
		evt.Attributes["listingId"] = p.ListingID
		evt.Attributes["assetOut"] = p.AssetOut
	}
	return evt
}

// NewListingCancelledEvent returns the payload emitted when the pool's offer
// is withdrawn from the venue.
func NewListingCancelledEvent(p *Pool) *types.Event {
	evt := newPoolEvent(EventTypeListingCancelled, p)
	if p != nil {
		evt.Attributes["listingId"] = p.ListingID
	}
	return evt
}

// NewExecutedEvent returns the payload emitted on first detection of an
// executed listing.
func NewExecutedEvent(p *Pool) *types.Event {
	evt := newPoolEvent(EventTypeExecuted, p)
	if p != nil {
		evt.Attributes["listingId"] = p.ListingID
		evt.Attributes["proceeds"] = p.Proceeds.String()
	}
	return evt
}

// NewShareClaimedEvent returns the payload emitted after a share payout.
func NewShareClaimedEvent(p *Pool, account string, share math.LegacyDec) *types.Event {
	evt := newPoolEvent(EventTypeShareClaimed, p)
	evt.Attributes["account"] = account
	evt.Attributes["share"] = share.String()
	return evt
}

// NewPoolFailedEvent returns the payload emitted on first detection of pool
// failure.
func NewPoolFailedEvent(p *Pool) *types.Event {
	return newPoolEvent(EventTypePoolFailed, p)
}

func newPoolEvent(eventType string, p *Pool) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(p.ID[:])
	attrs["creator"] = p.Creator
	attrs["assetIn"] = p.AssetIn
	attrs["status"] = p.Status.String()
	attrs["totalNominal"] = p.TotalNominal.String()
	attrs["totalReceived"] = p.TotalReceived.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
