package crowdfund

import (
	"errors"
	"testing"

	"cosmossdk.io/math"

	"otcpool/core/events"
	"otcpool/native/common"
	"otcpool/native/otc"
	"otcpool/native/token"
)

const (
	baseTime = int64(1_700_000_000)
	day      = int64(86_400)
)

type mockState struct {
	pools    map[[32]byte]*Pool
	contribs map[[32]byte]map[string]*Contribution
}

func newMockState() *mockState {
	return &mockState{
		pools:    make(map[[32]byte]*Pool),
		contribs: make(map[[32]byte]map[string]*Contribution),
	}
}

func (m *mockState) PoolPut(p *Pool) error {
	sanitized, err := SanitizePool(p)
	if err != nil {
		return err
	}
	m.pools[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) PoolGet(id [32]byte) (*Pool, bool) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, false
	}
	return pool.Clone(), true
}

func (m *mockState) ContributionPut(poolID [32]byte, account string, rec *Contribution) error {
	sanitized, err := SanitizeContribution(rec)
	if err != nil {
		return err
	}
	records, ok := m.contribs[poolID]
	if !ok {
		records = make(map[string]*Contribution)
		m.contribs[poolID] = records
	}
	records[account] = sanitized.Clone()
	return nil
}

func (m *mockState) ContributionGet(poolID [32]byte, account string) (*Contribution, bool) {
	records, ok := m.contribs[poolID]
	if !ok {
		return nil, false
	}
	rec, ok := records[account]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

type fixture struct {
	t       *testing.T
	engine  *Engine
	state   *mockState
	poolTok *token.Memory
	takeTok *token.Memory
	venue   *otc.Service
	emitter *recordingEmitter
	now     int64
}

func newFixture(t *testing.T, poolTax, venueFee string) *fixture {
	t.Helper()
	poolTok, err := token.NewMemory("POOL", math.LegacyMustNewDecFromStr(poolTax))
	if err != nil {
		t.Fatalf("pool token: %v", err)
	}
	takeTok, err := token.NewMemory("TKT", math.LegacyZeroDec())
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	venue, err := otc.NewService("venue", math.LegacyMustNewDecFromStr(venueFee))
	if err != nil {
		t.Fatalf("venue: %v", err)
	}

	f := &fixture{
		t:       t,
		state:   newMockState(),
		poolTok: poolTok,
		takeTok: takeTok,
		venue:   venue,
		emitter: &recordingEmitter{},
		now:     baseTime,
	}
	engine := NewEngine("vault")
	engine.SetState(f.state)
	engine.SetTokenResolver(token.Registry{"POOL": poolTok, "TKT": takeTok})
	engine.SetVenue(venue)
	engine.SetEmitter(f.emitter)
	engine.SetNowFunc(func() int64 { return f.now })
	params := DefaultParams()
	params.Operator = "operator"
	if err := engine.SetParams(params); err != nil {
		t.Fatalf("params: %v", err)
	}
	f.engine = engine

	for _, account := range []string{"alice", "bob", "charlie"} {
		poolTok.Mint(account, math.LegacyNewDec(1000))
		if err := poolTok.Approve(account, "vault", math.LegacyNewDec(500)); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	takeTok.Mint("charlie", math.LegacyNewDec(5000))
	if err := takeTok.Approve("charlie", "venue", math.LegacyNewDec(5000)); err != nil {
		t.Fatalf("approve take: %v", err)
	}
	return f
}

func (f *fixture) createPool(creator string, hardCap, softCap int64) [32]byte {
	f.t.Helper()
	id, err := f.engine.CreatePool(creator, "test pool", "POOL", math.LegacyNewDec(hardCap), math.LegacyNewDec(softCap))
	if err != nil {
		f.t.Fatalf("CreatePool: %v", err)
	}
	return id
}

func (f *fixture) contribute(account string, poolID [32]byte, amount int64) {
	f.t.Helper()
	if err := f.engine.Contribute(account, poolID, math.LegacyNewDec(amount)); err != nil {
		f.t.Fatalf("Contribute(%s, %d): %v", account, amount, err)
	}
}

func (f *fixture) advance(secs int64) { f.now += secs }

func TestCreatePoolPersistsOpenPool(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)

	pool, ok := f.engine.GetPool(id)
	if !ok {
		t.Fatal("pool not found after creation")
	}
	if pool.Creator != "alice" || pool.Status != PoolOpen {
		t.Fatalf("pool = %+v", pool)
	}
	if pool.ContributionDeadline != baseTime+5*day {
		t.Fatalf("contribution deadline = %d", pool.ContributionDeadline)
	}
	if pool.TradeDeadline != baseTime+8*day {
		t.Fatalf("trade deadline = %d", pool.TradeDeadline)
	}
	if !pool.TotalNominal.IsZero() || !pool.TotalReceived.IsZero() {
		t.Fatalf("fresh pool has non-zero totals: %s/%s", pool.TotalNominal, pool.TotalReceived)
	}
}

func TestCreatePoolValidation(t *testing.T) {
	f := newFixture(t, "0", "0")

	longDescription := make([]byte, 51)
	for i := range longDescription {
		longDescription[i] = 'x'
	}
	_, err := f.engine.CreatePool("alice", string(longDescription), "POOL", math.LegacyNewDec(100), math.LegacyNewDec(50))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("long description: %v", err)
	}

	_, err = f.engine.CreatePool("alice", "d", "POOL", math.LegacyNewDec(50), math.LegacyNewDec(50))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("hard cap <= soft cap: %v", err)
	}

	_, err = f.engine.CreatePool("alice", "d", "POOL", math.LegacyNewDec(50), math.LegacyZeroDec())
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero soft cap: %v", err)
	}

	_, err = f.engine.CreatePool("alice", "d", "MISSING", math.LegacyNewDec(100), math.LegacyNewDec(50))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown asset: %v", err)
	}
}

func TestSetParamOperatorOnly(t *testing.T) {
	f := newFixture(t, "0", "0")

	if err := f.engine.SetParam("mallory", ParamDescriptionLimit, "80"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-operator: %v", err)
	}
	if err := f.engine.SetParam("operator", ParamDescriptionLimit, "80"); err != nil {
		t.Fatalf("operator change: %v", err)
	}
	if f.engine.Params().DescriptionLimit != 80 {
		t.Fatalf("description limit = %d", f.engine.Params().DescriptionLimit)
	}
	if err := f.engine.SetParam("operator", "unknown_key", "1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown key: %v", err)
	}
	if err := f.engine.SetParam("operator", ParamContributionWindow, "not-a-number"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad value: %v", err)
	}
	if err := f.engine.SetParam("operator", ParamOperator, "ops-2"); err != nil {
		t.Fatalf("rotate operator: %v", err)
	}
	if err := f.engine.SetParam("operator", ParamOperator, "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old operator retained rights: %v", err)
	}
}

func TestContributeCapsOnNominalBasis(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)

	f.contribute("bob", id, 30)
	f.contribute("charlie", id, 20)

	pool, _ := f.engine.GetPool(id)
	if !pool.TotalNominal.Equal(math.LegacyNewDec(50)) {
		t.Fatalf("total nominal = %s, want 50", pool.TotalNominal)
	}
	if !pool.TotalReceived.Equal(math.LegacyNewDec(50)) {
		t.Fatalf("total received = %s, want 50", pool.TotalReceived)
	}

	err := f.engine.Contribute("alice", id, math.LegacyNewDec(51))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("over hard cap: %v", err)
	}
	// Exactly reaching the hard cap is allowed.
	f.contribute("alice", id, 50)
	pool, _ = f.engine.GetPool(id)
	if !pool.TotalNominal.Equal(pool.HardCap) {
		t.Fatalf("total nominal = %s, want hard cap", pool.TotalNominal)
	}
}

func TestContributeTracksNominalAndActual(t *testing.T) {
	f := newFixture(t, "0.05", "0")
	id := f.createPool("alice", 200, 50)

	f.contribute("bob", id, 100)

	pool, _ := f.engine.GetPool(id)
	if !pool.TotalNominal.Equal(math.LegacyNewDec(100)) {
		t.Fatalf("total nominal = %s, want 100", pool.TotalNominal)
	}
	if !pool.TotalReceived.Equal(math.LegacyNewDec(95)) {
		t.Fatalf("total received = %s, want 95 after 5%% tax", pool.TotalReceived)
	}
	rec, ok := f.engine.GetContribution(id, "bob")
	if !ok {
		t.Fatal("contribution record missing")
	}
	if !rec.Nominal.Equal(math.LegacyNewDec(100)) || !rec.Received.Equal(math.LegacyNewDec(95)) {
		t.Fatalf("record = %s/%s", rec.Nominal, rec.Received)
	}
	if !f.poolTok.BalanceOf("vault").Equal(math.LegacyNewDec(95)) {
		t.Fatalf("vault balance = %s, want 95", f.poolTok.BalanceOf("vault"))
	}
	// The cap check stays on the nominal basis even though less arrived.
	err := f.engine.Contribute("bob", id, math.LegacyNewDec(101))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("nominal cap: %v", err)
	}
}

func TestContributeRejections(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)

	if err := f.engine.Contribute("bob", id, math.LegacyZeroDec()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero amount: %v", err)
	}
	var missing [32]byte
	missing[0] = 0xEE
	if err := f.engine.Contribute("bob", missing, math.LegacyNewDec(1)); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("missing pool: %v", err)
	}
	f.advance(5*day + 1)
	if err := f.engine.Contribute("bob", id, math.LegacyNewDec(1)); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("after deadline: %v", err)
	}
}

func TestContributeFailedTransferLeavesNoEffects(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 1000, 50)

	// 600 exceeds bob's 500 allowance for the vault.
	err := f.engine.Contribute("bob", id, math.LegacyNewDec(600))
	if !errors.Is(err, ErrExternalCall) {
		t.Fatalf("expected external-call failure, got %v", err)
	}
	pool, _ := f.engine.GetPool(id)
	if !pool.TotalNominal.IsZero() || !pool.TotalReceived.IsZero() {
		t.Fatalf("totals mutated after failed transfer: %s/%s", pool.TotalNominal, pool.TotalReceived)
	}
	if _, ok := f.engine.GetContribution(id, "bob"); ok {
		t.Fatal("record created despite failed transfer")
	}
}

func TestWithdrawContributionRoundTrip(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)
	f.contribute("bob", id, 50)

	if err := f.engine.WithdrawContribution("bob", id); err != nil {
		t.Fatalf("WithdrawContribution: %v", err)
	}
	if !f.poolTok.BalanceOf("bob").Equal(math.LegacyNewDec(1000)) {
		t.Fatalf("bob balance = %s, want 1000", f.poolTok.BalanceOf("bob"))
	}
	pool, _ := f.engine.GetPool(id)
	if !pool.TotalNominal.IsZero() || !pool.TotalReceived.IsZero() {
		t.Fatalf("totals = %s/%s, want zero", pool.TotalNominal, pool.TotalReceived)
	}
	rec, _ := f.engine.GetContribution(id, "bob")
	if !rec.Nominal.IsZero() || !rec.Received.IsZero() {
		t.Fatalf("record = %s/%s, want zero", rec.Nominal, rec.Received)
	}
	// Early exit keeps the pool open.
	if pool.Status != PoolOpen {
		t.Fatalf("pool status = %s, want OPEN", pool.Status)
	}
}

func TestWithdrawContributionRefundsActualNotNominal(t *testing.T) {
	f := newFixture(t, "0.05", "0")
	id := f.createPool("alice", 200, 50)
	f.contribute("bob", id, 100)

	if err := f.engine.WithdrawContribution("bob", id); err != nil {
		t.Fatalf("WithdrawContribution: %v", err)
	}
	// The vault refunds the 95 actually received, not the 100 nominal; the
	// refund leg pays its own tax on the way back.
	if !f.poolTok.BalanceOf("vault").IsZero() {
		t.Fatalf("vault balance = %s, want 0", f.poolTok.BalanceOf("vault"))
	}
	want := math.LegacyNewDec(900).Add(math.LegacyMustNewDecFromStr("90.25"))
	if !f.poolTok.BalanceOf("bob").Equal(want) {
		t.Fatalf("bob balance = %s, want %s", f.poolTok.BalanceOf("bob"), want)
	}
}

func TestWithdrawContributionFailsPoolAfterDeadline(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)
	f.contribute("bob", id, 20)

	f.advance(5*day + 1)
	if err := f.engine.WithdrawContribution("bob", id); err != nil {
		t.Fatalf("WithdrawContribution: %v", err)
	}
	pool, _ := f.engine.GetPool(id)
	if pool.Status != PoolFailed {
		t.Fatalf("pool status = %s, want FAILED", pool.Status)
	}
}

func TestWithdrawContributionBlockedDuringListingWindow(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)
	f.contribute("bob", id, 60)

	// Soft cap met: the funds stay committed while the creator can still list.
	f.advance(5*day + 1)
	if err := f.engine.WithdrawContribution("bob", id); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("withdraw during listing window: %v", err)
	}
	pool, _ := f.engine.GetPool(id)
	if pool.Status != PoolOpen {
		t.Fatalf("pool status = %s, want OPEN", pool.Status)
	}
	if _, err := f.engine.ListPool("alice", id, "TKT", math.LegacyNewDec(350)); err != nil {
		t.Fatalf("ListPool after blocked withdrawal: %v", err)
	}
}

func TestWithdrawContributionAfterUnusedListingWindow(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)
	f.contribute("bob", id, 60)

	// Soft cap met but the creator never listed: refundable once the trade
	// deadline has passed too.
	f.advance(8*day + 1)
	if err := f.engine.WithdrawContribution("bob", id); err != nil {
		t.Fatalf("WithdrawContribution: %v", err)
	}
	pool, _ := f.engine.GetPool(id)
	if pool.Status != PoolFailed {
		t.Fatalf("pool status = %s, want FAILED", pool.Status)
	}
	if !f.poolTok.BalanceOf("bob").Equal(math.LegacyNewDec(1000)) {
		t.Fatalf("bob balance = %s, want 1000", f.poolTok.BalanceOf("bob"))
	}
}

func TestWithdrawContributionRequiresRecord(t *testing.T) {
	f := newFixture(t, "0", "0")
	id := f.createPool("alice", 100, 50)
	if err := f.engine.WithdrawContribution("bob", id); !errors.Is(err, ErrNoContribution) {
		t.Fatalf("no record: %v", err)
	}
}

// reentrantToken reinvokes the engine from inside transfer_from, the way a
// hostile asset contract would.
type reentrantToken struct {
	*token.Memory
	engine     *Engine
	poolID     [32]byte
	amount     math.LegacyDec
	attempted  bool
	reentryErr error
}

func (r *reentrantToken) TransferFrom(spender, owner, to string, amount math.LegacyDec) error {
	if err := r.Memory.TransferFrom(spender, owner, to, amount); err != nil {
		return err
	}
	if !r.attempted {
		r.attempted = true
		r.reentryErr = r.engine.Contribute("attacker", r.poolID, r.amount)
	}
	return nil
}

func TestContributeRejectsReentrancy(t *testing.T) {
	f := newFixture(t, "0", "0")
	inner, err := token.NewMemory("EVIL", math.LegacyZeroDec())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	evil := &reentrantToken{Memory: inner, engine: f.engine, amount: math.LegacyNewDec(10)}
	f.engine.SetTokenResolver(token.Registry{"EVIL": evil, "TKT": f.takeTok})

	id, err := f.engine.CreatePool("alice", "evil pool", "EVIL", math.LegacyNewDec(100), math.LegacyNewDec(50))
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	evil.poolID = id
	inner.Mint("attacker", math.LegacyNewDec(100))
	if err := inner.Approve("attacker", "vault", math.LegacyNewDec(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.engine.Contribute("attacker", id, math.LegacyNewDec(50)); err != nil {
		t.Fatalf("outer contribute: %v", err)
	}
	if !evil.attempted {
		t.Fatal("reentry never attempted")
	}
	if !errors.Is(evil.reentryErr, common.ErrBusy) {
		t.Fatalf("reentry error = %v, want ErrBusy", evil.reentryErr)
	}
	pool, _ := f.engine.GetPool(id)
	if !pool.TotalNominal.Equal(math.LegacyNewDec(50)) {
		t.Fatalf("total nominal = %s, want single credit of 50", pool.TotalNominal)
	}
	rec, _ := f.engine.GetContribution(id, "attacker")
	if !rec.Nominal.Equal(math.LegacyNewDec(50)) || !rec.Received.Equal(math.LegacyNewDec(50)) {
		t.Fatalf("record = %s/%s, want 50/50", rec.Nominal, rec.Received)
	}
}

// reentrantPayoutToken reinvokes the engine from inside transfer, i.e. while an
// outbound refund or share payout is in flight.
type reentrantPayoutToken struct {
	*token.Memory
	reenter    func() error
	attempted  bool
	reentryErr error
}

func (r *reentrantPayoutToken) Transfer(from, to string, amount math.LegacyDec) error {
	if err := r.Memory.Transfer(from, to, amount); err != nil {
		return err
	}
	if !r.attempted && r.reenter != nil {
		r.attempted = true
		r.reentryErr = r.reenter()
	}
	return nil
}

func TestWithdrawContributionRejectsReentrantRefund(t *testing.T) {
	f := newFixture(t, "0", "0")
	inner, err := token.NewMemory("EVIL", math.LegacyZeroDec())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	evil := &reentrantPayoutToken{Memory: inner}
	f.engine.SetTokenResolver(token.Registry{"EVIL": evil, "TKT": f.takeTok})

	id, err := f.engine.CreatePool("alice", "evil pool", "EVIL", math.LegacyNewDec(100), math.LegacyNewDec(50))
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	inner.Mint("attacker", math.LegacyNewDec(100))
	if err := inner.Approve("attacker", "vault", math.LegacyNewDec(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.engine.Contribute("attacker", id, math.LegacyNewDec(30)); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	evil.reenter = func() error { return f.engine.WithdrawContribution("attacker", id) }

	// Soft cap unmet by the deadline, so the refund path is live.
	f.advance(5*day + 1)
	if err := f.engine.WithdrawContribution("attacker", id); err != nil {
		t.Fatalf("outer withdraw: %v", err)
	}
	if !evil.attempted {
		t.Fatal("reentry never attempted")
	}
	if !errors.Is(evil.reentryErr, common.ErrBusy) {
		t.Fatalf("reentry error = %v, want ErrBusy", evil.reentryErr)
	}
	// Exactly one refund moved.
	if !inner.BalanceOf("attacker").Equal(math.LegacyNewDec(100)) {
		t.Fatalf("attacker balance = %s, want 100", inner.BalanceOf("attacker"))
	}
	if !inner.BalanceOf("vault").IsZero() {
		t.Fatalf("vault balance = %s, want 0", inner.BalanceOf("vault"))
	}
	if err := f.engine.WithdrawContribution("attacker", id); !errors.Is(err, ErrNoContribution) {
		t.Fatalf("repeat withdraw: %v", err)
	}
}

func TestWithdrawShareRejectsReentrantClaim(t *testing.T) {
	f := newFixture(t, "0", "0")
	inner, err := token.NewMemory("CASH", math.LegacyZeroDec())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	evil := &reentrantPayoutToken{Memory: inner}
	f.engine.SetTokenResolver(token.Registry{"POOL": f.poolTok, "CASH": evil})

	id := f.createPool("alice", 100, 50)
	f.contribute("bob", id, 30)
	f.contribute("charlie", id, 40)
	inner.Mint("charlie", math.LegacyNewDec(5000))
	if err := inner.Approve("charlie", "venue", math.LegacyNewDec(5000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	f.advance(5*day + 1)
	listingID, err := f.engine.ListPool("alice", id, "CASH", math.LegacyNewDec(350))
	if err != nil {
		t.Fatalf("ListPool: %v", err)
	}
	if err := f.venue.TakeOffer("charlie", listingID); err != nil {
		t.Fatalf("TakeOffer: %v", err)
	}
	evil.reenter = func() error { return f.engine.WithdrawShare("bob", id) }

	if err := f.engine.WithdrawShare("bob", id); err != nil {
		t.Fatalf("outer claim: %v", err)
	}
	if !evil.attempted {
		t.Fatal("reentry never attempted")
	}
	if !errors.Is(evil.reentryErr, common.ErrBusy) {
		t.Fatalf("reentry error = %v, want ErrBusy", evil.reentryErr)
	}
	// Exactly one payout of 30/70 of 350 moved.
	if !inner.BalanceOf("bob").Equal(math.LegacyNewDec(150)) {
		t.Fatalf("bob balance = %s, want 150", inner.BalanceOf("bob"))
	}
	rec, _ := f.engine.GetContribution(id, "bob")
	if !rec.Claimed {
		t.Fatal("record not marked claimed")
	}
}
