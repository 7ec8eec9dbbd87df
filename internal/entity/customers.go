package entity

import (
	"strings"

	"shopetl/internal/document"
	"shopetl/internal/mapping"
)

func init() {
	register(Entity{
		Kind:  "customers",
		Table: "customers",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{idKey("id")},
			Fields: append(fields(
				"email", "first_name", "last_name", "phone", "state", "currency",
				"orders_count", "total_spent", "verified_email", "tax_exempt",
				"tags", "note", "created_at", "updated_at",
			),
				mapping.Field{Column: "accepts_marketing", Path: "email_marketing_consent > state", Transform: subscribed},
				mapping.Field{Column: "last_order_id", Path: "last_order_id"},
				mapping.Field{Column: "city", Path: "default_address > city"},
				mapping.Field{Column: "province", Path: "default_address > province_code"},
				mapping.Field{Column: "country", Path: "default_address > country_code"},
				mapping.Field{Column: "zip", Path: "default_address > zip"},
			),
		},
	})
}

// subscribed maps the marketing consent state onto a boolean. A missing
// consent block stays null.
func subscribed(state document.Value) document.Value {
	s, ok := state.Str()
	if !ok {
		return state
	}
	return document.BoolValue(strings.EqualFold(s, "subscribed"))
}
