package enums

import "fmt"

// InventoryReason tags why an inventory history row was written.
type InventoryReason string

const (
	InventoryReasonOrderPlacement      InventoryReason = "order_placement"
	InventoryReasonCancellationRestore InventoryReason = "cancellation_restore"
	InventoryReasonSupply              InventoryReason = "supply"
	InventoryReasonManual              InventoryReason = "manual"
)

var validInventoryReasons = []InventoryReason{
	InventoryReasonOrderPlacement,
	InventoryReasonCancellationRestore,
	InventoryReasonSupply,
	InventoryReasonManual,
}

// String implements fmt.Stringer.
func (i InventoryReason) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InventoryReason.
func (i InventoryReason) IsValid() bool {
	for _, candidate := range validInventoryReasons {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInventoryReason converts raw input into a InventoryReason.
func ParseInventoryReason(value string) (InventoryReason, error) {
	for _, candidate := range validInventoryReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory reason %q", value)
}
