package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is the region used when an imported phone number has no
// international prefix.
var DefaultPhoneRegion = "IT"

func IsValidEmail(email string) bool {
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

// NormalizePhoneNumber returns the E.164 form of a phone number when it parses
// as a valid number for the region, and the trimmed input otherwise.
// POS exports carry free-form phone fields, so this never rejects.
func NormalizePhoneNumber(phoneNumber, region string) string {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return ""
	}
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return phoneNumber
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

func ProcessValidationErrors(err error) map[string]string {
	out := map[string]string{}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		out["error"] = err.Error()
		return out
	}
	for _, fieldErr := range validationErrors {
		out[fieldErr.Field()] = fmt.Sprintf("failed on %q", fieldErr.Tag())
	}
	return out
}

func NewFalse() *bool {
	b := false
	return &b
}

func NewTrue() *bool {
	b := true
	return &b
}
