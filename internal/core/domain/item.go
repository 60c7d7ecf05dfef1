package domain

import "time"

type ItemCategory string

const (
	CategoryFood       ItemCategory = "FOOD"
	CategoryClothing   ItemCategory = "CLOTHING"
	CategoryHygiene    ItemCategory = "HYGIENE"
	CategoryMedicine   ItemCategory = "MEDICINE"
	CategoryEducation  ItemCategory = "EDUCATION"
	CategoryAppliances ItemCategory = "APPLIANCES"
	CategoryFurniture  ItemCategory = "FURNITURE"
	CategoryToys       ItemCategory = "TOYS"
	CategoryOther      ItemCategory = "OTHER"
)

type ItemUnit string

const (
	UnitUnit  ItemUnit = "UNIT"
	UnitKg    ItemUnit = "KG"
	UnitLiter ItemUnit = "LITER"
	UnitBox   ItemUnit = "BOX"
	UnitPack  ItemUnit = "PACK"
	UnitBag   ItemUnit = "BAG"
	UnitPair  ItemUnit = "PAIR"
	UnitMeter ItemUnit = "METER"
)

// Item is a trackable good. Stock is the running counter maintained by
// contribution and distribution line mutations; it never drops below zero.
type Item struct {
	ID          int64
	Name        string
	Description string
	Category    ItemCategory
	Unit        ItemUnit
	Stock       int
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StockLevel classifies an on-hand quantity into the bands shown on the
// inventory views.
func StockLevel(qty int) string {
	switch {
	case qty == 0:
		return "EMPTY"
	case qty <= 10:
		return "LOW"
	case qty <= 50:
		return "MEDIUM"
	default:
		return "HIGH"
	}
}
