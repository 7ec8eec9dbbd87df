package entity

import (
	"shopetl/internal/document"
	"shopetl/internal/mapping"
)

func init() {
	register(Entity{
		Kind:  "product_variants",
		Table: "product_variants",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{idKey("id")},
			Fields: append(fields(
				"product_title", "product_type", "vendor", "title", "sku", "barcode",
				"price", "compare_at_price", "position", "inventory_quantity",
				"weight", "weight_unit", "taxable", "created_at", "updated_at",
			),
				mapping.Field{Column: "product_id", Path: "product_id", Transform: mapping.LegacyID},
				mapping.Field{Column: "inventory_item_id", Path: "inventory_item_id", Transform: mapping.LegacyID},
			),
		},
		Required: []string{"product_id"},
		Expand:   productVariants,
	})
}

// productVariants expands a product into its variants. Documents without a
// variants array are variants already.
func productVariants(doc document.Value) []document.Value {
	if doc.Get("variants").Kind() != document.Array {
		return []document.Value{doc}
	}
	return children(doc, "variants", map[string]string{
		"product_id":    "id",
		"product_title": "title",
		"product_type":  "product_type",
		"vendor":        "vendor",
	})
}
