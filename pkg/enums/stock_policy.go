package enums

import (
	"fmt"
	"strings"
)

// StockPolicy controls what a commit does when a sale would take quantity below zero.
type StockPolicy string

const (
	// StockPolicyAllowNegative commits anyway and reports the shortfall.
	StockPolicyAllowNegative StockPolicy = "allow_negative"
	// StockPolicyStrict rejects the whole sale.
	StockPolicyStrict StockPolicy = "strict"
)

var validStockPolicies = []StockPolicy{
	StockPolicyAllowNegative,
	StockPolicyStrict,
}

func (s StockPolicy) String() string {
	return string(s)
}

func (s StockPolicy) IsValid() bool {
	for _, candidate := range validStockPolicies {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseStockPolicy(value string) (StockPolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return StockPolicyAllowNegative, nil
	}
	for _, candidate := range validStockPolicies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock policy %q", value)
}
