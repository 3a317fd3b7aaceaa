package crowdfund

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameter keys accepted by Engine.SetParam.
const (
	ParamOperator           = "operator"
	ParamDescriptionLimit   = "description_limit"
	ParamContributionWindow = "contribution_window"
	ParamTradeWindow        = "trade_window"
)

const (
	defaultDescriptionLimit         = 50
	defaultContributionWindow int64 = 5 * 24 * 60 * 60
	defaultTradeWindow        int64 = 3 * 24 * 60 * 60
)

// Params holds the process-wide, operator-mutable settings of the engine.
// Windows are expressed in seconds.
type Params struct {
	Operator           string
	DescriptionLimit   int
	ContributionWindow int64
	TradeWindow        int64
}

// DefaultParams returns the default engine settings. The operator must be set
// before SetParam can be used.
func DefaultParams() Params {
	return Params{
		DescriptionLimit:   defaultDescriptionLimit,
		ContributionWindow: defaultContributionWindow,
		TradeWindow:        defaultTradeWindow,
	}
}

// Validate verifies the parameter set is internally consistent.
func (p Params) Validate() error {
	if p.DescriptionLimit <= 0 {
		return fmt.Errorf("params: description limit must be positive")
	}
	if p.ContributionWindow <= 0 {
		return fmt.Errorf("params: contribution window must be positive")
	}
	if p.TradeWindow <= 0 {
		return fmt.Errorf("params: trade window must be positive")
	}
	return nil
}

func (p Params) apply(key, value string) (Params, error) {
	updated := p
	switch strings.TrimSpace(key) {
	case ParamOperator:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return p, fmt.Errorf("%w: operator must not be empty", ErrInvalidInput)
		}
		updated.Operator = trimmed
	case ParamDescriptionLimit:
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit <= 0 {
			return p, fmt.Errorf("%w: description limit must be a positive integer", ErrInvalidInput)
		}
		updated.DescriptionLimit = limit
	case ParamContributionWindow:
		window, err := parseWindow(value)
		if err != nil {
			return p, err
		}
		updated.ContributionWindow = window
	case ParamTradeWindow:
		window, err := parseWindow(value)
		if err != nil {
			return p, err
		}
		updated.TradeWindow = window
	default:
		return p, fmt.Errorf("%w: unknown parameter %q", ErrInvalidInput, key)
	}
	return updated, nil
}

func parseWindow(value string) (int64, error) {
	window, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || window <= 0 {
		return 0, fmt.Errorf("%w: window must be a positive number of seconds", ErrInvalidInput)
	}
	return window, nil
}
