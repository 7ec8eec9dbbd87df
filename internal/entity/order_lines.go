package entity

import (
	"shopetl/internal/derive"
	"shopetl/internal/document"
	"shopetl/internal/mapping"
)

func init() {
	register(Entity{
		Kind:  "order_lines",
		Table: "order_lines",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{idKey("id")},
			Fields: append(fields(
				"order_id", "order_name", "order_created_at",
				"name", "title", "variant_title", "sku", "vendor",
				"price", "quantity", "current_quantity", "pre_tax_price",
				"total_discount", "fulfillment_status", "fulfillable_quantity",
				"taxable", "gift_card", "requires_shipping",
			),
				mapping.Field{Column: "product_id", Path: "product_id", Transform: mapping.LegacyID},
				mapping.Field{Column: "variant_id", Path: "variant_id", Transform: mapping.LegacyID},
				mapping.Field{Column: "origin_quantity", Path: "quantity"},
			),
		},
		Required: []string{"order_id"},
		Expand:   orderLines,
		Derive:   derive.LineItem,
	})
}

// orderLines expands an order into its line items. A document that is not an
// order (no line_items array) is taken to be a line item already.
func orderLines(doc document.Value) []document.Value {
	if doc.Get("line_items").Kind() != document.Array {
		return []document.Value{doc}
	}
	return children(doc, "line_items", map[string]string{
		"order_id":         "id",
		"order_name":       "name",
		"order_created_at": "created_at",
	})
}
