package token

import (
	"fmt"

	"cosmossdk.io/math"
)

// Memory is an in-process token ledger used as the reference collaborator in
// tests and examples. A non-zero tax rate makes it deliver less than the
// requested amount: the sender is debited the full amount while the receiver
// is credited amount*(1-tax).
type Memory struct {
	symbol     string
	taxRate    math.LegacyDec
	balances   map[string]math.LegacyDec
	allowances map[string]map[string]math.LegacyDec
}

// NewMemory constructs an empty in-memory token. taxRate must be in [0, 1).
func NewMemory(symbol string, taxRate math.LegacyDec) (*Memory, error) {
	if taxRate.IsNil() || taxRate.IsNegative() || taxRate.GTE(math.LegacyOneDec()) {
		return nil, fmt.Errorf("token %s: tax rate out of range", symbol)
	}
	return &Memory{
		symbol:     symbol,
		taxRate:    taxRate,
		balances:   make(map[string]math.LegacyDec),
		allowances: make(map[string]map[string]math.LegacyDec),
	}, nil
}

// Symbol returns the token symbol.
func (m *Memory) Symbol() string { return m.symbol }

// Mint credits amount to the account without debiting anyone. Test setup
// helper mirroring a genesis allocation.
func (m *Memory) Mint(to string, amount math.LegacyDec) {
	m.balances[to] = m.BalanceOf(to).Add(amount)
}

// BalanceOf implements Token.
func (m *Memory) BalanceOf(account string) math.LegacyDec {
	bal, ok := m.balances[account]
	if !ok {
		return math.LegacyZeroDec()
	}
	return bal
}

// Allowance returns the remaining allowance owner granted to spender.
func (m *Memory) Allowance(owner, spender string) math.LegacyDec {
	grants, ok := m.allowances[owner]
	if !ok {
		return math.LegacyZeroDec()
	}
	amt, ok := grants[spender]
	if !ok {
		return math.LegacyZeroDec()
	}
	return amt
}

// Approve implements Token. A zero amount clears the approval.
func (m *Memory) Approve(owner, spender string, amount math.LegacyDec) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("token %s: cannot approve negative", m.symbol)
	}
	grants, ok := m.allowances[owner]
	if !ok {
		grants = make(map[string]math.LegacyDec)
		m.allowances[owner] = grants
	}
	grants[spender] = amount
	return nil
}

// Transfer implements Token.
func (m *Memory) Transfer(from, to string, amount math.LegacyDec) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("token %s: transfer amount must be positive", m.symbol)
	}
	bal := m.BalanceOf(from)
	if bal.LT(amount) {
		return fmt.Errorf("token %s: transfer amount exceeds balance of %s", m.symbol, from)
	}
	m.balances[from] = bal.Sub(amount)
	m.balances[to] = m.BalanceOf(to).Add(m.delivered(amount))
	return nil
}

// TransferFrom implements Token.
func (m *Memory) TransferFrom(spender, owner, to string, amount math.LegacyDec) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("token %s: transfer amount must be positive", m.symbol)
	}
	allowance := m.Allowance(owner, spender)
	if allowance.LT(amount) {
		return fmt.Errorf("token %s: transfer amount exceeds allowance of %s for %s", m.symbol, spender, owner)
	}
	bal := m.BalanceOf(owner)
	if bal.LT(amount) {
		return fmt.Errorf("token %s: transfer amount exceeds balance of %s", m.symbol, owner)
	}
	m.allowances[owner][spender] = allowance.Sub(amount)
	m.balances[owner] = bal.Sub(amount)
	m.balances[to] = m.BalanceOf(to).Add(m.delivered(amount))
	return nil
}

func (m *Memory) delivered(amount math.LegacyDec) math.LegacyDec {
	if m.taxRate.IsZero() {
		return amount
	}
	return amount.Sub(amount.MulTruncate(m.taxRate))
}

// Registry is a symbol-keyed Resolver over a fixed token set.
type Registry map[string]Token

// Resolve implements Resolver.
func (r Registry) Resolve(symbol string) (Token, error) {
	tok, ok := r[symbol]
	if !ok || tok == nil {
		return nil, fmt.Errorf("token: unknown asset %s", symbol)
	}
	return tok, nil
}
