package dto

import (
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"card-escrow-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Card ids travel in URL paths, so the HTTP surface restricts them to a
// path-safe alphabet.
var cardIDRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("card_id", validateCardID)
		_ = v.RegisterValidation("identity", validateIdentity)
	}
}

// ValidCardID reports whether id may be used in a card URL.
func ValidCardID(id string) bool {
	return cardIDRe.MatchString(id)
}

func validateCardID(fl validator.FieldLevel) bool {
	return ValidCardID(fl.Field().String())
}

// validateIdentity accepts a base58 32-byte identity.
func validateIdentity(fl validator.FieldLevel) bool {
	_, err := domain.ParseIdentity(fl.Field().String())
	return err == nil
}

// SanitizeStruct trims whitespace and drops control characters from every
// exported string field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
