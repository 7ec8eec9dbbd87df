package entity

import "shopetl/internal/mapping"

func init() {
	register(Entity{
		Kind:  "locations",
		Table: "locations",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{idKey("id")},
			Fields: fields(
				"name", "address1", "address2", "city", "zip", "province",
				"province_code", "country_code", "phone", "active", "legacy",
				"created_at", "updated_at",
			),
		},
		Required: []string{"name"},
	})
}
