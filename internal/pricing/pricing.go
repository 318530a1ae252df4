// Package pricing converts a marketplace price into delivery-tier totals.
package pricing

import "math"

// Rates holds every value that feeds a quote for one category.
type Rates struct {
	ConversionRate   float64
	CarrierFee       float64
	Markup           float64
	Shipping         float64
	ExpressSurcharge float64
}

// Quote is the result of pricing one variant.
type Quote struct {
	Local    float64
	Standard int64
	Express  int64
}

// Calculate prices a foreign-currency amount. Inputs are assumed non-negative.
func Calculate(foreignPrice float64, r Rates) Quote {
	local := foreignPrice * r.ConversionRate
	standard := roundHalfUp(local + r.Markup + r.Shipping + r.CarrierFee)
	express := roundHalfUp(float64(standard) + r.ExpressSurcharge)
	return Quote{Local: local, Standard: standard, Express: express}
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
