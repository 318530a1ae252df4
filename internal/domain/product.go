package domain

import (
	"fmt"
	"strings"
)

// Variant is one purchasable size/price combination of a product.
type Variant struct {
	ID        string  `json:"id"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
	SizeLabel string  `json:"size"`
}

// ProductSnapshot is a denormalized copy of a product-lookup response.
type ProductSnapshot struct {
	ID       string    `json:"id"`
	SPU      string    `json:"spu,omitempty"`
	Title    string    `json:"title"`
	ImageURL string    `json:"image,omitempty"`
	Variants []Variant `json:"variants"`
}

// Validate rejects snapshots that cannot be priced.
func (p ProductSnapshot) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedProduct)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrMalformedProduct)
	}
	if len(p.Variants) == 0 {
		return fmt.Errorf("%w: no variants", ErrMalformedProduct)
	}
	for i, v := range p.Variants {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("%w: variant %d has no id", ErrMalformedProduct, i)
		}
		if !(v.Price > 0) {
			return fmt.Errorf("%w: variant %s has non-positive price", ErrMalformedProduct, v.ID)
		}
	}
	return nil
}

// AvailableVariants returns in-stock variants in lookup order.
func (p ProductSnapshot) AvailableVariants() []Variant {
	out := make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.Available {
			out = append(out, v)
		}
	}
	return out
}

// Variant looks up a variant by identifier.
func (p ProductSnapshot) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
