// Package units converts quantities between a product's packing unit and its
// base unit. All ledger arithmetic happens in base units; documents accept
// either unit and convert on entry.
package units

import (
	"errors"
	"fmt"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
)

// ErrInvalidUnit indicates a unit the product does not carry.
var ErrInvalidUnit = errors.New("units: invalid unit for product")

// Epsilon is the tolerance used for quantity comparisons across the engine.
const Epsilon = 0.01

// ToBase converts quantity expressed in unit into the product's base unit.
func ToBase(quantity float64, unit string, product catalog.Product) (float64, error) {
	switch {
	case unit == product.BaseUnit:
		return quantity, nil
	case product.HasPackingUnit() && unit == product.PackingUnit:
		return quantity * float64(product.ConversionRate), nil
	default:
		return 0, fmt.Errorf("%w: %q for product %s", ErrInvalidUnit, unit, product.Code)
	}
}

// ToPacking converts a base-unit quantity into unit. Inverse of ToBase.
func ToPacking(baseQuantity float64, unit string, product catalog.Product) (float64, error) {
	switch {
	case unit == product.BaseUnit:
		return baseQuantity, nil
	case product.HasPackingUnit() && unit == product.PackingUnit:
		return baseQuantity / float64(product.ConversionRate), nil
	default:
		return 0, fmt.Errorf("%w: %q for product %s", ErrInvalidUnit, unit, product.Code)
	}
}

// AvailableUnits lists the units a caller may enter quantities in. The
// packing unit comes first when present; it is the conventional default.
func AvailableUnits(product catalog.Product) []string {
	if product.HasPackingUnit() {
		return []string{product.PackingUnit, product.BaseUnit}
	}
	return []string{product.BaseUnit}
}

// DefaultUnit returns the unit preselected for new document lines.
func DefaultUnit(product catalog.Product) string {
	return AvailableUnits(product)[0]
}

// SplitDisplay renders a base quantity as whole packing units plus remaining
// base units, e.g. 50 bottles at rate 24 -> (2, 2).
func SplitDisplay(baseQuantity float64, product catalog.Product) (packs int64, rest int64) {
	if !product.HasPackingUnit() {
		return 0, int64(baseQuantity)
	}
	rate := int64(product.ConversionRate)
	whole := int64(baseQuantity)
	return whole / rate, whole % rate
}
