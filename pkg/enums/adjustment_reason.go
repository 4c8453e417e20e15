package enums

import (
	"fmt"
	"strings"
)

// AdjustmentReason labels a manual stock movement made outside checkout.
type AdjustmentReason string

const (
	AdjustmentReasonRestock    AdjustmentReason = "restock"
	AdjustmentReasonCorrection AdjustmentReason = "correction"
	AdjustmentReasonShrinkage  AdjustmentReason = "shrinkage"
	AdjustmentReasonReturn     AdjustmentReason = "return"
)

var validAdjustmentReasons = []AdjustmentReason{
	AdjustmentReasonRestock,
	AdjustmentReasonCorrection,
	AdjustmentReasonShrinkage,
	AdjustmentReasonReturn,
}

func (r AdjustmentReason) String() string {
	return string(r)
}

func (r AdjustmentReason) IsValid() bool {
	for _, candidate := range validAdjustmentReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseAdjustmentReason(value string) (AdjustmentReason, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validAdjustmentReasons {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment reason %q", value)
}
