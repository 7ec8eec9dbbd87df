package entity

import "shopetl/internal/mapping"

func init() {
	register(Entity{
		Kind:  "inventory_levels",
		Table: "inventory_levels",
		Mapping: mapping.Table{
			Key: []mapping.KeyColumn{
				{Column: "inventory_item_id", Aliases: []string{"inventory_item_id", "inventoryItemId", "item > legacyResourceId"}, Transform: mapping.LegacyID},
				{Column: "location_id", Aliases: []string{"location_id", "locationId", "location > legacyResourceId"}, Transform: mapping.LegacyID},
			},
			Fields: fields("available", "updated_at"),
		},
	})
}
