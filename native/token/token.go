package token

import "cosmossdk.io/math"

// Token is the capability set the settlement engine requires from a fungible
// asset contract. Caller identities are explicit because the engine acts on
// behalf of the accounts the host ledger presents to it.
//
// Implementations MAY deliver less than the requested amount (transfer tax).
// Callers must never assume delivered == requested; the engine measures the
// credited delta with balance probes around each inbound transfer.
type Token interface {
	// Transfer moves amount from the from account to the to account.
	Transfer(from, to string, amount math.LegacyDec) error
	// TransferFrom moves amount from owner to the to account, spending the
	// allowance that owner previously granted to spender.
	TransferFrom(spender, owner, to string, amount math.LegacyDec) error
	// Approve grants spender the right to move up to amount from owner.
	Approve(owner, spender string, amount math.LegacyDec) error
	// BalanceOf returns the current balance of the account.
	BalanceOf(account string) math.LegacyDec
}

// Resolver maps an asset symbol recorded on a pool to the token capability
// bound for it at wiring time. Lookups happen through this typed interface
// rather than by dynamic dispatch on the symbol.
type Resolver interface {
	Resolve(symbol string) (Token, error)
}
