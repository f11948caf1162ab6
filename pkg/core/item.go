// pkg/core/item.go
package core

// ItemKind categorizes catalog items.
type ItemKind string

const (
	ItemEquipment  ItemKind = "equipment"
	ItemConsumable ItemKind = "consumable"
	ItemArtifact   ItemKind = "artifact"
)

// Item is a catalog entry. Artifact types are items of kind artifact.
type Item struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      ItemKind `json:"kind"`
	BasePrice int64    `json:"basePrice"`
	Sellable  bool     `json:"sellable"`

	RadiationResist  float64 `json:"radiationResist,omitempty"` // percent
	BonusLives       int     `json:"bonusLives,omitempty"`
	RadiationRemoval float64 `json:"radiationRemoval,omitempty"` // flat points

	// Redeemable items (food, drinks) are exchanged at the bar for a code.
	Redeemable bool `json:"redeemable,omitempty"`

	Version int64 `json:"version"`
}

// Equippable reports whether the item can be worn.
func (i Item) Equippable() bool {
	return i.Kind == ItemEquipment || i.Kind == ItemArtifact
}

// Inventory maps item ids to quantities for a player or a trader.
type Inventory struct {
	OwnerID string         `json:"ownerId"`
	Items   map[string]int `json:"items"`

	Version int64 `json:"version"`
}

// Quantity returns how many units of itemID the inventory holds.
func (inv Inventory) Quantity(itemID string) int {
	return inv.Items[itemID]
}

// Add changes the quantity of itemID by delta, dropping empty entries.
func (inv *Inventory) Add(itemID string, delta int) {
	if inv.Items == nil {
		inv.Items = make(map[string]int)
	}
	n := inv.Items[itemID] + delta
	if n <= 0 {
		delete(inv.Items, itemID)
		return
	}
	inv.Items[itemID] = n
}
