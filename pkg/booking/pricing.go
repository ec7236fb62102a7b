package booking

// ResolveNightlyPrice resolves the effective price of one night for a unit:
// override price, then the unit's own nightly price, then the category base
// price. A zero price is treated as unset at every level; when the whole
// chain is unset the unit is misconfigured and the caller gets
// ErrPriceNotConfigured instead of a free night.
func ResolveNightlyPrice(unit Unit, override *Override) (Amount, error) {
	if override != nil && override.PriceOverride != nil && *override.PriceOverride > 0 {
		return *override.PriceOverride, nil
	}
	if unit.NightlyPrice != nil && *unit.NightlyPrice > 0 {
		return *unit.NightlyPrice, nil
	}
	if unit.BasePrice != nil && *unit.BasePrice > 0 {
		return *unit.BasePrice, nil
	}
	return 0, WrapError(operationCheck, "price", "not_configured", ErrPriceNotConfigured)
}
