package entity

import (
	"shopetl/internal/document"
	"shopetl/internal/mapping"
)

func init() {
	register(Entity{
		Kind:  "refund_lines",
		Table: "refund_lines",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{
				{Column: "refund_id", Aliases: []string{"refund_id", "refundId"}, Transform: mapping.LegacyID},
				{Column: "line_item_id", Aliases: []string{"line_item_id", "lineItemId", "line_item > id"}, Transform: mapping.LegacyID},
			},
			Fields: append(fields(
				"order_id", "refund_created_at", "processed_at",
				"quantity", "subtotal", "total_tax", "restock_type",
			),
				mapping.Field{Column: "id", Path: "id"},
				mapping.Field{Column: "location_id", Path: "location_id"},
				mapping.Field{Column: "sku", Path: "line_item > sku"},
				mapping.Field{Column: "variant_id", Path: "line_item > variant_id"},
				mapping.Field{Column: "price", Path: "line_item > price"},
			),
		},
		Required: []string{"order_id"},
		Expand:   refundLines,
	})
}

// refundLines accepts orders (refunds nested under "refunds") and bare refund
// documents, and expands both into refund line items carrying their refund
// and order identifiers.
func refundLines(doc document.Value) []document.Value {
	if doc.Get("refunds").Kind() == document.Array {
		var out []document.Value
		for _, r := range children(doc, "refunds", map[string]string{"order_id": "id"}) {
			out = append(out, refundLines(r)...)
		}
		return out
	}
	return children(doc, "refund_line_items", map[string]string{
		"refund_id":         "id",
		"order_id":          "order_id",
		"refund_created_at": "created_at",
		"processed_at":      "processed_at",
	})
}
