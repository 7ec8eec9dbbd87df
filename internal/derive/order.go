package derive

import (
	"fmt"

	"shopetl/internal/mapping"
)

// Order adds the order-level reconciliation fields to r:
//
//	net_sales          = current_total_price - shipping - taxes
//	net_sales_check    = |current_subtotal_price - net_sales| < 0.01
//	tax_check          = |sum(tax_i_value) - current_total_tax| < 0.01
//	total_tax_rate     = sum(tax_i_rate)
//	returns_excl_taxes = round(returns / (1 + total_tax_rate), 1) when returns > 0, else 0
//
// When 1+total_tax_rate is not positive the returns are reported unrounded.
func Order(r mapping.Record) mapping.Record {
	net := Float(r["current_total_price"]) - Float(r["shipping"]) - Float(r["taxes"])
	r["net_sales"] = net
	r["net_sales_check"] = Close(Float(r["current_subtotal_price"]), net)

	var taxSum, rate float64
	for i := 1; i <= TaxSlots; i++ {
		taxSum += Float(r[fmt.Sprintf("tax_%d_value", i)])
		rate += Float(r[fmt.Sprintf("tax_%d_rate", i)])
	}
	r["tax_check"] = Close(taxSum, Float(r["current_total_tax"]))
	r["total_tax_rate"] = rate
	r["returns_excl_taxes"] = ReturnsExclTaxes(Float(r["returns"]), rate)
	return r
}

// ReturnsExclTaxes strips the tax share from a returned amount. It yields the
// integer 0 when nothing was returned.
func ReturnsExclTaxes(returns, taxRate float64) any {
	if returns <= 0 {
		return int64(0)
	}
	denom := 1 + taxRate
	if denom <= 0 {
		return returns
	}
	return Round(returns/denom, 1)
}
