// Package validator provides request validation infrastructure.
// This is part of the platform layer and contains no business logic.
package validator

import "github.com/go-playground/validator/v10"

// Validator wraps the go-playground validator so handlers depend on a
// narrow surface and modules can register their own tags at wiring time.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with only the builtin tags registered.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates a struct based on its validate tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// RegisterValidation registers a custom validation function under a tag.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
