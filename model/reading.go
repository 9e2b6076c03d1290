package model

import (
	"encoding/json"
	"strconv"
)

// Reading is a derived quantity that may be physically meaningless for the
// current state, e.g. the observed frequency of a source moving at or above
// the speed of sound. A zero Reading is "not applicable".
type Reading struct {
	Value float64
	Valid bool
}

// NotApplicable is the sentinel Reading for undefined results.
var NotApplicable = Reading{}

// Applicable wraps a meaningful value.
func Applicable(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Get returns the value and whether it is applicable.
func (r Reading) Get() (float64, bool) {
	return r.Value, r.Valid
}

// Or returns the value, or fallback when the reading is not applicable.
func (r Reading) Or(fallback float64) float64 {
	if !r.Valid {
		return fallback
	}
	return r.Value
}

func (r Reading) String() string {
	if !r.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// MarshalJSON encodes not-applicable readings as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = NotApplicable
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Applicable(v)
	return nil
}
