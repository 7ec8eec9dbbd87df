package entity

import "shopetl/internal/mapping"

func init() {
	register(Entity{
		Kind:  "transactions",
		Table: "transactions",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{idKey("id")},
			Fields: append(fields(
				"order_id", "parent_id", "kind", "status", "gateway", "source_name",
				"amount", "currency", "authorization", "error_code", "message",
				"test", "created_at", "processed_at",
			),
				mapping.Field{Column: "card_brand", Path: "payment_details > credit_card_company"},
				mapping.Field{Column: "card_last4", Path: "payment_details > credit_card_number"},
				mapping.Field{Column: "fee", Path: "receipt > fee_amount"},
			),
		},
		Required: []string{"order_id"},
	})
}
