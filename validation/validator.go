// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/beaconhill/compliance-tracker/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the tracker's custom tags
// registered: chamber, role, changelog_category.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// report json names so messages match the request body
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})

		mustRegister("chamber", oneOf(models.ChamberJoint, models.ChamberHouse, models.ChamberSenate))
		mustRegister("role", oneOf(models.RoleUser, models.RolePrivileged, models.RoleAdmin))
		mustRegister("changelog_category", oneOf(models.ChangelogCategories...))
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

func oneOf(allowed ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, fl.Field().String())
	}
}

// FieldError describes one failed rule.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e FieldError) Error() string { return Message(e) }

// Errors is returned by ValidateStruct when any rule fails.
type Errors []FieldError

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any failure used tag.
func (es Errors) Has(tag string) bool {
	for _, e := range es {
		if e.Tag == tag {
			return true
		}
	}
	return false
}

// First returns the first failure for tag.
func (es Errors) First(tag string) (FieldError, bool) {
	for _, e := range es {
		if e.Tag == tag {
			return e, true
		}
	}
	return FieldError{}, false
}

// ValidateStruct runs the validate tags on s. It returns nil or Errors.
func ValidateStruct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Email validates a single address.
func Email(addr string) error {
	if err := Validator().Var(addr, "required,email,max=254"); err != nil {
		return errors.New("The email address is not valid.")
	}
	return nil
}

// Message renders a FieldError as the API reports it.
func Message(e FieldError) string {
	field := displayName(e.Field)
	switch e.Tag {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email: The email address is not valid."
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, e.Param)
	case "max":
		return fmt.Sprintf("%s must be less than %s characters", field, e.Param)
	case "chamber":
		return "Chamber must be one of Joint, House, Senate"
	case "role":
		return "Invalid role. Must be one of: user, privileged, admin"
	case "changelog_category":
		return "Unknown changelog category"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func displayName(field string) string {
	if field == "" {
		return "Value"
	}
	field = strings.ReplaceAll(field, "_", " ")
	return strings.ToUpper(field[:1]) + field[1:]
}
