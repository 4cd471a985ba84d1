package models

// EquipmentUnit is a selectable machine (work center) from the catalog.
type EquipmentUnit struct {
	ID         int64  `json:"workcenter_id"`
	Name       string `json:"name"`
	OEEEnabled bool   `json:"OEE"`
}

// TrackedUnits keeps the units with OEE tracking enabled, preserving catalog order.
func TrackedUnits(units []EquipmentUnit) []EquipmentUnit {
	out := make([]EquipmentUnit, 0, len(units))
	for _, u := range units {
		if u.OEEEnabled {
			out = append(out, u)
		}
	}
	return out
}
