package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use once built.
var validate = validator.New(validator.WithRequiredStructEnabled())

// rule validates a Base field that is only mandatory for some variants.
type rule struct {
	field string
	value any
	tag   string
}

func validateEntity(e Entity, rules ...rule) error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, e.Kind(), err)
	}
	for _, r := range rules {
		if err := validate.Var(r.value, r.tag); err != nil {
			return fmt.Errorf("%w: %s: field %s failed on the '%s' tag", ErrValidation, e.Kind(), r.field, r.tag)
		}
	}
	return nil
}

// IsHandle reports whether s has the user@host shape of a Diaspora handle.
func IsHandle(s string) bool {
	return validate.Var(s, "required,email") == nil
}
