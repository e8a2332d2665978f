package fuzz

import (
	"fmt"
	"reflect"
)

// Bias holds every adversarial weighting the generator uses. All fields are
// probabilities in [0, 1].
type Bias struct {
	// Object properties
	KeepRequired     float64 `json:"keep_required" mapstructure:"keep_required"`
	KeepOptional     float64 `json:"keep_optional" mapstructure:"keep_optional"`
	ExtraProperty    float64 `json:"extra_property" mapstructure:"extra_property"`
	ExtraOpen        float64 `json:"extra_open" mapstructure:"extra_open"`
	DropOptionalBody float64 `json:"drop_optional_body" mapstructure:"drop_optional_body"`

	// Any node
	Null           float64 `json:"null" mapstructure:"null"`
	UnexpectedNull float64 `json:"unexpected_null" mapstructure:"unexpected_null"`
	TypeConfusion  float64 `json:"type_confusion" mapstructure:"type_confusion"`
	Enum           float64 `json:"enum" mapstructure:"enum"`
	Example        float64 `json:"example" mapstructure:"example"`

	// Numbers
	Boundary  float64 `json:"boundary" mapstructure:"boundary"`
	FullRange float64 `json:"full_range" mapstructure:"full_range"`

	// Strings
	EmptyString   float64 `json:"empty_string" mapstructure:"empty_string"`
	MaxLength     float64 `json:"max_length" mapstructure:"max_length"`
	Exotic        float64 `json:"exotic" mapstructure:"exotic"`
	HonorFormat   float64 `json:"honor_format" mapstructure:"honor_format"`
	FormatViolate float64 `json:"format_violate" mapstructure:"format_violate"`

	// Arrays
	ArrayBoundary  float64 `json:"array_boundary" mapstructure:"array_boundary"`
	DuplicateItems float64 `json:"duplicate_items" mapstructure:"duplicate_items"`
}

// DefaultBias drops a required property roughly one time in ten and spends
// about half of the scalar draws outside the declared bounds.
var DefaultBias = Bias{
	KeepRequired:     0.9,
	KeepOptional:     0.5,
	ExtraProperty:    0.05,
	ExtraOpen:        0.2,
	DropOptionalBody: 0.1,

	Null:           0.1,
	UnexpectedNull: 0.02,
	TypeConfusion:  0.05,
	Enum:           0.6,
	Example:        0.05,

	Boundary:  0.3,
	FullRange: 0.2,

	EmptyString:   0.08,
	MaxLength:     0.05,
	Exotic:        0.15,
	HonorFormat:   0.3,
	FormatViolate: 0.1,

	ArrayBoundary:  0.15,
	DuplicateItems: 0.1,
}

// Validate checks every weight is a probability and that required
// properties can both appear and be dropped.
func (b Bias) Validate() error {
	v := reflect.ValueOf(b)
	for i := 0; i < v.NumField(); i++ {
		p := v.Field(i).Float()
		if p < 0 || p > 1 {
			return fmt.Errorf("bias %s must be within [0, 1], got %v", v.Type().Field(i).Name, p)
		}
	}
	if b.Boundary+b.FullRange > 1 {
		return fmt.Errorf("boundary and full range weights exceed 1 combined")
	}
	if b.EmptyString+b.MaxLength+b.Exotic+b.FormatViolate+b.HonorFormat > 1 {
		return fmt.Errorf("string weights exceed 1 combined")
	}
	return nil
}
