package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// ErrValidation is the kind every ValidationErrors value unwraps to.
var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ErrValidation.Error()
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, e.Field+" "+e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

func (ve ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Validator wraps go-playground/validator with the session rule set.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
	v.registerRules()
	return v
}

// Validate runs struct tags on s and returns ValidationErrors or nil.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	return ToValidationErrors(err)
}

// ToValidationErrors converts go-playground errors into ValidationErrors.
func ToValidationErrors(err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Message: errorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "exam_status":
		return "must be one of Draft, Published, Finished"
	case "question_type":
		return "must be one of MultipleChoice, TrueFalse, Essay"
	case "extra_minutes":
		return fmt.Sprintf("must be between 1 and %d minutes", MaxExtraMinutes)
	case "otp_validity":
		return fmt.Sprintf("must be between 1 and %d minutes", MaxOtpValidityMinutes)
	case "otp_code":
		return "must be 4 to 10 digits"
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

const (
	MaxExtraMinutes       = 300
	MaxOtpValidityMinutes = 1440
)

var otpCodePattern = regexp.MustCompile(`^[0-9]{4,10}$`)

func (v *Validator) registerRules() {
	v.validate.RegisterValidation("exam_status", func(fl validator.FieldLevel) bool {
		return models.ExamStatus(fl.Field().String()).IsValid()
	})

	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).IsValid()
	})

	v.validate.RegisterValidation("extra_minutes", func(fl validator.FieldLevel) bool {
		m := fl.Field().Int()
		return m >= 1 && m <= MaxExtraMinutes
	})

	v.validate.RegisterValidation("otp_validity", func(fl validator.FieldLevel) bool {
		m := fl.Field().Int()
		return m >= 1 && m <= MaxOtpValidityMinutes
	})

	v.validate.RegisterValidation("otp_code", func(fl validator.FieldLevel) bool {
		return otpCodePattern.MatchString(fl.Field().String())
	})
}
