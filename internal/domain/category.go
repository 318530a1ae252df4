package domain

import "fmt"

// Category is a product category with its own pricing surcharges.
type Category string

const (
	CategoryShoes       Category = "shoes"
	CategoryBoots       Category = "boots"
	CategoryTShirts     Category = "tshirts"
	CategoryJackets     Category = "jackets"
	CategoryShorts      Category = "shorts"
	CategoryPants       Category = "pants"
	CategoryAccessories Category = "accessories"
	CategoryBags        Category = "bags"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryShoes,
	CategoryBoots,
	CategoryTShirts,
	CategoryJackets,
	CategoryShorts,
	CategoryPants,
	CategoryAccessories,
	CategoryBags,
}

var categoryLabels = map[Category]string{
	CategoryShoes:       "👟 Обувь",
	CategoryBoots:       "🥾 Ботинки",
	CategoryTShirts:     "👕 Футболки",
	CategoryJackets:     "🧥 Куртки",
	CategoryShorts:      "🩳 Шорты",
	CategoryPants:       "👖 Штаны",
	CategoryAccessories: "🎒 Аксессуары",
	CategoryBags:        "👜 Сумки",
}

// Label returns the button caption for c.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory validates a raw category name.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if _, ok := categoryLabels[c]; !ok {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}
