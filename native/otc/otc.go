package otc

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"otcpool/native/token"
)

// OfferStatus is the lifecycle state the venue reports for a listing.
type OfferStatus string

const (
	// OfferOpen identifies listings that can still be taken or cancelled.
	OfferOpen OfferStatus = "OPEN"
	// OfferExecuted marks listings whose swap has been filled.
	OfferExecuted OfferStatus = "EXECUTED"
	// OfferCancelled marks listings withdrawn by their maker.
	OfferCancelled OfferStatus = "CANCELLED"
)

// Offer is the queryable per-listing record the venue exposes.
type Offer struct {
	ID          string
	Maker       string
	OfferAmount math.LegacyDec
	TakeAmount  math.LegacyDec
	Status      OfferStatus
	CreatedAt   int64
}

type legs struct {
	offerToken token.Token
	takeToken  token.Token
	// custody is the amount actually pulled from the maker: the offer size
	// plus the maker fee charged on top of it.
	custody math.LegacyDec
}

// Service is an in-process trade venue. It charges a maker fee as a percentage
// of the amount it is asked to custody, computed on top of the offer size:
// listing pulls offer*(1+fee) from the maker. Cancellation refunds the full
// custody, execution retains the fee.
type Service struct {
	account string
	feeRate math.LegacyDec
	nowFn   func() int64
	offers  map[string]*Offer
	legs    map[string]legs
}

// NewService constructs a venue holding custody under the given account
// identity. feeRate must be in [0, 1).
func NewService(account string, feeRate math.LegacyDec) (*Service, error) {
	if account == "" {
		return nil, fmt.Errorf("otc: venue account required")
	}
	if feeRate.IsNil() || feeRate.IsNegative() || feeRate.GTE(math.LegacyOneDec()) {
		return nil, fmt.Errorf("otc: fee rate out of range")
	}
	return &Service{
		account: account,
		feeRate: feeRate,
		nowFn:   func() int64 { return time.Now().Unix() },
		offers:  make(map[string]*Offer),
		legs:    make(map[string]legs),
	}, nil
}

// SetNowFunc overrides the time source, primarily used in tests.
func (s *Service) SetNowFunc(now func() int64) {
	if now == nil {
		s.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	s.nowFn = now
}

// Account returns the identity under which the venue holds custody. Makers
// approve this account before listing.
func (s *Service) Account() string { return s.account }

// FeeRate returns the maker fee rate.
func (s *Service) FeeRate() math.LegacyDec { return s.feeRate }

// Offer returns a copy of the listing record.
func (s *Service) Offer(id string) (Offer, bool) {
	offer, ok := s.offers[id]
	if !ok {
		return Offer{}, false
	}
	return *offer, true
}

// ListOffer pulls offerAmount plus the maker fee from the maker and records an
// open listing. The maker must have approved the venue account beforehand.
func (s *Service) ListOffer(maker string, offerToken token.Token, offerAmount math.LegacyDec, takeToken token.Token, takeAmount math.LegacyDec) (string, error) {
	if offerToken == nil || takeToken == nil {
		return "", fmt.Errorf("otc: offer and take tokens required")
	}
	if offerAmount.IsNil() || !offerAmount.IsPositive() {
		return "", fmt.Errorf("otc: offer amount must be positive")
	}
	if takeAmount.IsNil() || !takeAmount.IsPositive() {
		return "", fmt.Errorf("otc: take amount must be positive")
	}
	fee := offerAmount.MulTruncate(s.feeRate)
	custody := offerAmount.Add(fee)
	if err := offerToken.TransferFrom(s.account, maker, s.account, custody); err != nil {
		return "", fmt.Errorf("otc: listing transfer rejected: %w", err)
	}
	id := uuid.NewString()
	s.offers[id] = &Offer{
		ID:          id,
		Maker:       maker,
		OfferAmount: offerAmount,
		TakeAmount:  takeAmount,
		Status:      OfferOpen,
		CreatedAt:   s.nowFn(),
	}
	s.legs[id] = legs{offerToken: offerToken, takeToken: takeToken, custody: custody}
	return id, nil
}

// TakeOffer fills an open listing: the taker pays takeAmount to the maker and
// receives the offered amount. The maker fee stays with the venue.
func (s *Service) TakeOffer(taker, id string) error {
	offer, ok := s.offers[id]
	if !ok {
		return fmt.Errorf("otc: offer %s not found", id)
	}
	if offer.Status != OfferOpen {
		return fmt.Errorf("otc: offer %s is %s", id, offer.Status)
	}
	leg := s.legs[id]
	if err := leg.takeToken.TransferFrom(s.account, taker, offer.Maker, offer.TakeAmount); err != nil {
		return fmt.Errorf("otc: take transfer rejected: %w", err)
	}
	if err := leg.offerToken.Transfer(s.account, taker, offer.OfferAmount); err != nil {
		return fmt.Errorf("otc: fill transfer rejected: %w", err)
	}
	offer.Status = OfferExecuted
	return nil
}

// CancelOffer withdraws an open listing and refunds the full custody, fee
// included, to the maker.
func (s *Service) CancelOffer(caller, id string) error {
	offer, ok := s.offers[id]
	if !ok {
		return fmt.Errorf("otc: offer %s not found", id)
	}
	if caller != offer.Maker {
		return fmt.Errorf("otc: only the maker may cancel offer %s", id)
	}
	if offer.Status != OfferOpen {
		return fmt.Errorf("otc: offer %s is %s", id, offer.Status)
	}
	leg := s.legs[id]
	if err := leg.offerToken.Transfer(s.account, offer.Maker, leg.custody); err != nil {
		return fmt.Errorf("otc: cancel refund rejected: %w", err)
	}
	offer.Status = OfferCancelled
	return nil
}
