// Package validation validates decoded tool arguments and action bodies
// and reports every failing field as an Issue.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Issue is one field-level validation failure.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error carries every issue found in one input.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Validator wraps validator.Validate with JSON field names and custom tags.
type Validator struct {
	validator                *validator.Validate
	logger                   *zap.Logger
	tagValidationDetailsOnce sync.Once
	tagValidationDetailsMap  map[string]tagValidationDetails
}

type tagValidationDetails struct {
	validatorFunc validator.Func
	message       string
}

// New creates a Validator with custom tags registered.
func New(logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{validator: validator.New(), logger: logger}
	v.validator.RegisterTagNameFunc(useJSONFieldNames)
	if err := v.registerCustomValidatorsForTags(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks i against its `validate` tags and returns *Error listing all issues.
func (v *Validator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.Wrap(err, "validate")
	}

	issues := make([]Issue, 0, len(validationErrs))
	for _, fe := range validationErrs {
		issues = append(issues, Issue{Path: fieldPath(fe), Message: v.message(fe)})
	}
	v.logger.Debug("validation failed", zap.Int("issues", len(issues)))
	return &Error{Issues: issues}
}

// Issues extracts the issue list from err, nil when err is not a validation error.
func Issues(err error) []Issue {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Issues
	}
	return nil
}

func (v *Validator) message(fe validator.FieldError) string {
	if d, ok := v.getTagValidationDetails()[fe.Tag()]; ok {
		return d.message
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have length at least %s", fe.Param())
		}
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have length at most %s", fe.Param())
		}
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

func (v *Validator) getTagValidationDetails() map[string]tagValidationDetails {
	v.tagValidationDetailsOnce.Do(func() {
		v.tagValidationDetailsMap = map[string]tagValidationDetails{
			"valid_query":  {validatorFunc: v.isValidQuery, message: "must be a non-empty string"},
			"valid_filter": {validatorFunc: v.isValidFilter, message: "must be a non-empty filter query"},
		}
	})
	return v.tagValidationDetailsMap
}

func (v *Validator) registerCustomValidatorsForTags() error {
	for tag, d := range v.getTagValidationDetails() {
		if err := v.validator.RegisterValidation(tag, d.validatorFunc); err != nil {
			v.logger.Error("failed to register custom validator", zap.String("tag", tag), zap.Error(err))
			return errors.Wrapf(err, "register %s", tag)
		}
	}
	return nil
}

// fieldPath strips the root struct name from the namespace: "Input.fq[1]" -> "fq[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func useJSONFieldNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func (v *Validator) isValidQuery(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func (v *Validator) isValidFilter(fl validator.FieldLevel) bool {
	f := fl.Field().String()
	return strings.TrimSpace(f) != "" && !strings.Contains(f, "\x00")
}
