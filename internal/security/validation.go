package security

import "github.com/go-playground/validator/v10"

// MaxPasswordBytes is bcrypt's input limit. validator's max counts runes, so
// multi-byte passwords need this separate check.
const MaxPasswordBytes = 72

// PasswordBytesRule is the validation tag for MaxPasswordBytes.
const PasswordBytesRule = "bcrypt_max"

func fitsBcrypt(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxPasswordBytes
}

// RegisterValidations adds the password rules to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation(PasswordBytesRule, fitsBcrypt)
}
