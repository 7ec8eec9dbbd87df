package derive

import (
	"encoding/json"
	"math"
	"testing"

	"shopetl/internal/mapping"
)

// TestOrder_NetSalesCheck: subtotal 50, total 60, shipping 5, taxes 5.
func TestOrder_NetSalesCheck(t *testing.T) {
	t.Parallel()

	r := Order(mapping.Record{
		"current_subtotal_price": 50.00,
		"current_total_price":    60.00,
		"shipping":               5.00,
		"taxes":                  5.00,
	})
	if got := r["net_sales"]; got != 50.0 {
		t.Fatalf("net_sales = %#v, want 50", got)
	}
	if got := r["net_sales_check"]; got != true {
		t.Fatalf("net_sales_check = %#v, want true", got)
	}
}

// TestOrder_ReturnsExclTaxes: returns 100 with tax rates 0.08 and 0.02 gives
// round(100/1.10, 1) = 90.9.
func TestOrder_ReturnsExclTaxes(t *testing.T) {
	t.Parallel()

	r := Order(mapping.Record{
		"returns":    100.0,
		"tax_1_rate": 0.08,
		"tax_2_rate": json.Number("0.02"),
		"tax_3_rate": nil,
	})
	if got := r["returns_excl_taxes"]; got != 90.9 {
		t.Fatalf("returns_excl_taxes = %#v, want 90.9", got)
	}
	if got := r["total_tax_rate"].(float64); math.Abs(got-0.10) > 1e-12 {
		t.Fatalf("total_tax_rate = %v, want 0.10", got)
	}
}

func TestOrder_NoReturnsIsIntegerZero(t *testing.T) {
	t.Parallel()

	for _, returns := range []any{nil, 0.0, -3.0, "junk"} {
		r := Order(mapping.Record{"returns": returns})
		if got, ok := r["returns_excl_taxes"].(int64); !ok || got != 0 {
			t.Fatalf("returns=%#v: returns_excl_taxes = %#v (%T), want int64(0)", returns, r["returns_excl_taxes"], r["returns_excl_taxes"])
		}
	}
}

func TestReturnsExclTaxes_NonPositiveDenominator(t *testing.T) {
	t.Parallel()

	if got := ReturnsExclTaxes(12.34, -1); got != 12.34 {
		t.Fatalf("ReturnsExclTaxes(12.34, -1) = %#v, want unrounded 12.34", got)
	}
	if got := ReturnsExclTaxes(12.34, -2.5); got != 12.34 {
		t.Fatalf("ReturnsExclTaxes(12.34, -2.5) = %#v, want unrounded 12.34", got)
	}
}

func TestOrder_TaxCheck(t *testing.T) {
	t.Parallel()

	ok := Order(mapping.Record{
		"current_total_tax": "4.20",
		"tax_1_value":       4.0,
		"tax_2_value":       0.195,
	})
	if ok["tax_check"] != true {
		t.Fatalf("tax_check = %#v, want true (|4.195-4.20| < 0.01)", ok["tax_check"])
	}

	bad := Order(mapping.Record{
		"current_total_tax": 4.20,
		"tax_1_value":       4.0,
	})
	if bad["tax_check"] != false {
		t.Fatalf("tax_check = %#v, want false", bad["tax_check"])
	}
}

func TestOrder_KeepsMappedKeys(t *testing.T) {
	t.Parallel()

	r := Order(mapping.Record{"id": int64(1), "name": "#1001"})
	if r["id"] != int64(1) || r["name"] != "#1001" {
		t.Fatalf("Order removed or rewrote mapped keys: %#v", r)
	}
	for _, k := range []string{"net_sales", "net_sales_check", "tax_check", "total_tax_rate", "returns_excl_taxes"} {
		if _, ok := r[k]; !ok {
			t.Fatalf("derived key %q missing", k)
		}
	}
}

func TestLineItem(t *testing.T) {
	t.Parallel()

	r := LineItem(mapping.Record{
		"price":            10.0,
		"quantity":         int64(3),
		"origin_quantity":  int64(3),
		"current_quantity": int64(2),
		"pre_tax_price":    9.0,
	})

	want := map[string]any{
		"amount_gross_sales": 30.0,
		"amount_returns":     10.0,
		"amount_discounts":   -2.0,
		"amount_net_sales":   18.0,
		"return_check":       true,
	}
	for k, v := range want {
		if r[k] != v {
			t.Fatalf("%s = %#v, want %#v", k, r[k], v)
		}
	}
	// 18 vs 30+10-2 = 38
	if r["amount_net_sales_check"] != false {
		t.Fatalf("amount_net_sales_check = %#v, want false", r["amount_net_sales_check"])
	}
}

func TestLineItem_MissingOperandsAreZero(t *testing.T) {
	t.Parallel()

	r := LineItem(mapping.Record{})
	if r["amount_gross_sales"] != 0.0 || r["return_check"] != false || r["amount_net_sales_check"] != true {
		t.Fatalf("unexpected derivation from empty record: %#v", r)
	}
}

func TestFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{"", 0},
		{"abc", 0},
		{" 2.5 ", 2.5},
		{json.Number("7"), 7},
		{int64(3), 3},
		{true, 0},
	}
	for _, tt := range tests {
		if got := Float(tt.in); got != tt.want {
			t.Fatalf("Float(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
