package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"otcpool/native/crowdfund"
)

// Key prefixes for the settlement state.
const (
	poolPrefix    = "crowdfund/pool/"
	contribPrefix = "crowdfund/contrib/"
)

// State persists pools and contribution records as JSON in a Database,
// implementing the crowdfund engine's state interface.
type State struct {
	db Database
}

// NewState wraps the given database.
func NewState(db Database) *State {
	return &State{db: db}
}

func poolKey(id [32]byte) []byte {
	return []byte(poolPrefix + hex.EncodeToString(id[:]))
}

func contribKey(poolID [32]byte, account string) []byte {
	return []byte(contribPrefix + hex.EncodeToString(poolID[:]) + "/" + account)
}

// PoolPut stores a sanitized copy of the pool.
func (s *State) PoolPut(p *crowdfund.Pool) error {
	sanitized, err := crowdfund.SanitizePool(p)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	bz, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("storage: encode pool: %w", err)
	}
	return s.db.Put(poolKey(sanitized.ID), bz)
}

// PoolGet loads the pool, reporting false when it does not exist or cannot be
// decoded.
func (s *State) PoolGet(id [32]byte) (*crowdfund.Pool, bool) {
	bz, err := s.db.Get(poolKey(id))
	if err != nil {
		return nil, false
	}
	var pool crowdfund.Pool
	if err := json.Unmarshal(bz, &pool); err != nil {
		return nil, false
	}
	return &pool, true
}

// ContributionPut stores a sanitized copy of the contribution record.
func (s *State) ContributionPut(poolID [32]byte, account string, rec *crowdfund.Contribution) error {
	sanitized, err := crowdfund.SanitizeContribution(rec)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	bz, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("storage: encode contribution: %w", err)
	}
	return s.db.Put(contribKey(poolID, account), bz)
}

// ContributionGet loads the contribution record for (account, pool).
func (s *State) ContributionGet(poolID [32]byte, account string) (*crowdfund.Contribution, bool) {
	bz, err := s.db.Get(contribKey(poolID, account))
	if err != nil {
		return nil, false
	}
	var rec crowdfund.Contribution
	if err := json.Unmarshal(bz, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}
