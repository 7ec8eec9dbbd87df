package entity

import (
	"strconv"

	"shopetl/internal/derive"
	"shopetl/internal/document"
	"shopetl/internal/mapping"
)

func init() {
	register(Entity{
		Kind:  "orders",
		Table: "orders",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{idKey("id")},
			Fields: append(fields(
				"name", "email", "currency", "financial_status", "fulfillment_status",
				"created_at", "updated_at", "processed_at", "cancelled_at", "closed_at",
				"cancel_reason", "source_name", "tags", "test",
				"subtotal_price", "total_price", "total_tax", "total_discounts",
				"current_subtotal_price", "current_total_price", "current_total_tax",
				"current_total_discounts", "total_weight",
			),
				mapping.Field{Column: "order_number", Path: "order_number"},
				mapping.Field{Column: "customer_id", Path: "customer > id", Transform: mapping.LegacyID},
				mapping.Field{Column: "location_id", Path: "location_id"},
				mapping.Field{Column: "shipping", Path: "total_shipping_price_set > shop_money > amount"},
				mapping.Field{Column: "taxes", Path: "current_total_tax"},
				mapping.Field{Column: "returns", Path: "refunds", Transform: refundedSubtotal},
				mapping.Field{Column: "billing_city", Path: "billing_address > city"},
				mapping.Field{Column: "billing_province", Path: "billing_address > province_code"},
				mapping.Field{Column: "billing_country", Path: "billing_address > country_code"},
				mapping.Field{Column: "shipping_city", Path: "shipping_address > city"},
				mapping.Field{Column: "shipping_province", Path: "shipping_address > province_code"},
				mapping.Field{Column: "shipping_country", Path: "shipping_address > country_code"},
			),
			Repeats: []mapping.Repeat{
				{
					Prefix: "tax",
					Path:   "tax_lines",
					Slots:  derive.TaxSlots,
					Fields: []mapping.Field{
						{Column: "title", Path: "title"},
						{Column: "rate", Path: "rate"},
						{Column: "value", Path: "price"},
					},
				},
				{
					Prefix: "discount",
					Path:   "discount_codes",
					Slots:  5,
					Fields: fields("code", "amount", "type"),
				},
			},
		},
		Required: []string{"name"},
		Derive:   derive.Order,
	})
}

// refundedSubtotal sums refunds[].refund_line_items[].subtotal. No refunds
// yields 0.
func refundedSubtotal(refunds document.Value) document.Value {
	var sum float64
	for _, r := range refunds.Elements() {
		for _, li := range r.Get("refund_line_items").Elements() {
			if f, ok := li.Get("subtotal").Float(); ok {
				sum += f
			}
		}
	}
	return document.NumberValue(strconv.FormatFloat(sum, 'f', -1, 64))
}
