package protocol

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct tag validation on v and then its own Validate
// method, if any.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return err
	}
	if sv, ok := v.(interface{ Validate() error }); ok {
		return sv.Validate()
	}
	return nil
}
