package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// StructSchema validates a value by running it, as given, through
// struct-tag rules, for configs and task inputs that are
// already modeled as a concrete Go struct rather than assembled from
// String/Number/Object primitives.
type StructSchema struct {
	shape any
}

// FromStruct builds a Schema that validates values against zero's
// struct tags (`validate:"required,min=1"`, ...). zero is only used for
// its type; pass a zero value of the struct, e.g. FromStruct(Config{}).
func FromStruct(zero any) *StructSchema {
	return &StructSchema{shape: zero}
}

func (s *StructSchema) Validate(value any) (any, error) {
	if value == nil {
		return nil, &ValidationError{Message: fmt.Sprintf("value is nil, expected %T", s.shape)}
	}
	if err := structValidator.Struct(value); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return value, nil
}
