package crowdfund

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcpool/core/events"
	"otcpool/core/types"
	"otcpool/native/common"
	"otcpool/native/otc"
	"otcpool/native/token"
)

var (
	errNilState  = errors.New("crowdfund engine: state not configured")
	errNilTokens = errors.New("crowdfund engine: token resolver not configured")
	errNilVenue  = errors.New("crowdfund engine: trade venue not configured")
)

type engineState interface {
	PoolPut(*Pool) error
	PoolGet(id [32]byte) (*Pool, bool)
	ContributionPut(poolID [32]byte, account string, rec *Contribution) error
	ContributionGet(poolID [32]byte, account string) (*Contribution, bool)
}

// TradeVenue is the capability set the engine requires from the external trade
// service. The reference implementation lives in native/otc; the engine only
// ever talks through this interface.
type TradeVenue interface {
	// Account is the identity the venue custodies funds under. The engine
	// approves this account before listing.
	Account() string
	ListOffer(maker string, offerToken token.Token, offerAmount math.LegacyDec, takeToken token.Token, takeAmount math.LegacyDec) (string, error)
	CancelOffer(caller, listingID string) error
	FeeRate() math.LegacyDec
	Offer(listingID string) (otc.Offer, bool)
}

type crowdfundEvent struct {
	evt *types.Event
}

func (e crowdfundEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e crowdfundEvent) Event() *types.Event { return e.evt }

// Engine wires the crowdfund settlement logic with external state, the asset
// contracts, and the trade venue. Every call into a token or the venue is a
// suspension point at which foreign code may run; the guard plus the
// checks-effects-interactions ordering in each entry point keep the ledger
// consistent across those suspensions.
type Engine struct {
	state   engineState
	tokens  token.Resolver
	venue   TradeVenue
	emitter events.Emitter
	guard   common.Guard
	nowFn   func() int64
	vault   string
	params  Params
	nonce   uint64
}

// NewEngine creates an engine holding pooled funds under the vault account
// identity, with default params and a no-op emitter.
func NewEngine(vault string) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		vault:   vault,
		params:  DefaultParams(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokenResolver configures the asset lookup used to bind pool symbols to
// token capabilities.
func (e *Engine) SetTokenResolver(r token.Resolver) { e.tokens = r }

// SetVenue configures the external trade service.
func (e *Engine) SetVenue(v TradeVenue) { e.venue = v }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetParams replaces the engine settings wholesale, typically at wiring time
// from configuration. Runtime mutation goes through SetParam.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p
	return nil
}

// Params returns the current engine settings.
func (e *Engine) Params() Params { return e.params }

// Vault returns the account identity the engine holds pooled funds under.
func (e *Engine) Vault() string { return e.vault }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(crowdfundEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadPool(id [32]byte) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, ok := e.state.PoolGet(id)
	if !ok {
		return nil, ErrPoolNotFound
	}
	return SanitizePool(pool)
}

func (e *Engine) resolveToken(symbol string) (token.Token, error) {
	if e.tokens == nil {
		return nil, errNilTokens
	}
	return e.tokens.Resolve(symbol)
}

// SetParam mutates a single engine setting. Operator only; rejected while the
// guard is engaged so configuration can never change mid-operation.
func (e *Engine) SetParam(caller, key, value string) error {
	if err := e.guard.Acquire(); err != nil {
		return err
	}
	defer e.guard.Release()
	if e.params.Operator == "" || caller != e.params.Operator {
		return fmt.Errorf("%w: only the operator may change parameters", ErrUnauthorized)
	}
	updated, err := e.params.apply(key, value)
	if err != nil {
		return err
	}
	e.params = updated
	return nil
}

// CreatePool registers a new crowdfund for assetIn in status OPEN, with
// deadlines derived from the configured contribution and trade windows.
func (e *Engine) CreatePool(caller, description, assetIn string, hardCap, softCap math.LegacyDec) ([32]byte, error) {
	var id [32]byte
	if err := e.guard.Acquire(); err != nil {
		return id, err
	}
	defer e.guard.Release()
	if e.state == nil {
		return id, errNilState
	}
	if len(description) > e.params.DescriptionLimit {
		return id, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, e.params.DescriptionLimit)
	}
	if softCap.IsNil() || !softCap.IsPositive() {
		return id, fmt.Errorf("%w: soft cap must be positive", ErrInvalidInput)
	}
	if hardCap.IsNil() || hardCap.LTE(softCap) {
		return id, fmt.Errorf("%w: hard cap must exceed soft cap", ErrInvalidInput)
	}
	if _, err := e.resolveToken(assetIn); err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := e.now()
	id = e.newPoolID(caller, description, now)
	if _, exists := e.state.PoolGet(id); exists {
		return [32]byte{}, fmt.Errorf("%w: pool identifier collision", ErrInvalidState)
	}
	pool := &Pool{
		ID:                   id,
		Description:          description,
		Creator:              caller,
		AssetIn:              assetIn,
		HardCap:              hardCap,
		SoftCap:              softCap,
		ContributionDeadline: now + e.params.ContributionWindow,
		TradeDeadline:        now + e.params.ContributionWindow + e.params.TradeWindow,
		TotalNominal:         math.LegacyZeroDec(),
		TotalReceived:        math.LegacyZeroDec(),
		Status:               PoolOpen,
		Proceeds:             math.LegacyZeroDec(),
		CreatedAt:            now,
	}
	if err := e.state.PoolPut(pool); err != nil {
		return [32]byte{}, err
	}
	e.emit(NewPoolCreatedEvent(pool))
	return id, nil
}

func (e *Engine) newPoolID(caller, description string, now int64) [32]byte {
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], uint64(now))
	binary.BigEndian.PutUint64(seed[8:], e.nonce)
	e.nonce++
	return ethcrypto.Keccak256Hash([]byte(caller), []byte(description), seed[:])
}

// GetPool returns a copy of the pool record. Read-only, guard-exempt.
func (e *Engine) GetPool(id [32]byte) (*Pool, bool) {
	if e.state == nil {
		return nil, false
	}
	pool, ok := e.state.PoolGet(id)
	if !ok {
		return nil, false
	}
	sanitized, err := SanitizePool(pool)
	if err != nil {
		return nil, false
	}
	return sanitized, true
}

// GetContribution returns a copy of the contribution record for (account,
// pool). Read-only, guard-exempt.
func (e *Engine) GetContribution(poolID [32]byte, account string) (*Contribution, bool) {
	if e.state == nil {
		return nil, false
	}
	rec, ok := e.state.ContributionGet(poolID, account)
	if !ok {
		return nil, false
	}
	sanitized, err := SanitizeContribution(rec)
	if err != nil {
		return nil, false
	}
	return sanitized, true
}

// GetListingInfo returns the venue's record for the pool's listing. Read-only,
// guard-exempt.
func (e *Engine) GetListingInfo(poolID [32]byte) (otc.Offer, bool) {
	if e.state == nil || e.venue == nil {
		return otc.Offer{}, false
	}
	pool, ok := e.state.PoolGet(poolID)
	if !ok || pool.ListingID == "" {
		return otc.Offer{}, false
	}
	return e.venue.Offer(pool.ListingID)
}
