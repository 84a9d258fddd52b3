package forecast

import (
	"encoding/json"
	"math"
)

// finite returns nil for values JSON cannot represent. Days of stock are +Inf
// for items nobody consumes.
func finite(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// MarshalJSON encodes an infinite DaysOfStock as null.
func (s ItemStatus) MarshalJSON() ([]byte, error) {
	type alias ItemStatus
	return json.Marshal(struct {
		alias
		DaysOfStock *float64 `json:"days_of_stock"`
	}{alias(s), finite(s.DaysOfStock)})
}

// MarshalJSON encodes an infinite DaysUntilStockout as null.
func (p Prediction) MarshalJSON() ([]byte, error) {
	type alias Prediction
	return json.Marshal(struct {
		alias
		DaysUntilStockout *float64 `json:"days_until_stockout"`
	}{alias(p), finite(p.DaysUntilStockout)})
}
