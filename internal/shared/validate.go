package shared

import "github.com/go-playground/validator/v10"

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// NewValidator returns a validator with the "pwbytes" tag registered. The
// built-in max tag counts runes, so a multibyte password can pass it and still
// be too long for bcrypt.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	}); err != nil {
		panic(err)
	}
	return v
}
