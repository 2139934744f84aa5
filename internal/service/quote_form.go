package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
)

var (
	phoneCharsPattern = regexp.MustCompile(`^[\d\s()+-]+$`)
	nonDigits         = regexp.MustCompile(`\D`)
)

// fieldLabels maps form fields to the names shown in validation messages.
var fieldLabels = map[string]string{
	"Name":        "name",
	"Email":       "e-mail",
	"Phone":       "phone",
	"Address":     "address",
	"Message":     "project description",
	"ProjectType": "project type",
	"StartDate":   "start date",
	"BudgetRange": "budget range",
	"City":        "city",
	"Services":    "services",
}

// QuoteFormValidator checks a quote request against the form rules.
type QuoteFormValidator struct {
	validator *validator.Validate
}

// NewQuoteFormValidator registers the quote-specific rules on validate (or a fresh validator).
func NewQuoteFormValidator(validate *validator.Validate) *QuoteFormValidator {
	if validate == nil {
		validate = validator.New()
	}
	v := &QuoteFormValidator{validator: validate}
	v.validator.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		digits := nonDigits.ReplaceAllString(fl.Field().String(), "")
		return len(digits) >= 10 && len(digits) <= 15
	})
	v.validator.RegisterValidation("phone_chars", func(fl validator.FieldLevel) bool {
		return phoneCharsPattern.MatchString(fl.Field().String())
	})
	v.validator.RegisterValidation("project_type", func(fl validator.FieldLevel) bool {
		value := strings.ToLower(fl.Field().String())
		for _, allowed := range dto.ProjectTypes {
			if value == allowed {
				return true
			}
		}
		return false
	})
	return v
}

// Validate returns nil or a VALIDATION_ERROR listing one message per invalid field.
func (v *QuoteFormValidator) Validate(req dto.QuoteRequest) error {
	err := v.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	seen := make(map[string]struct{}, len(verrs))
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.StructField()
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		details = append(details, fieldMessage(fe))
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, strings.Join(details, ". ")), details...)
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.StructField()]
	if !ok {
		label = strings.ToLower(fe.StructField())
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		return fmt.Sprintf("%s must have at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s characters", label, fe.Param())
	case "email":
		return "e-mail is invalid"
	case "phone_digits":
		return "phone must contain between 10 and 15 digits"
	case "phone_chars":
		return "phone may only contain digits, spaces, parentheses, dashes and plus"
	case "project_type":
		return fmt.Sprintf("project type must be one of %s", strings.Join(dto.ProjectTypes, ", "))
	case "datetime":
		return fmt.Sprintf("%s must use the YYYY-MM-DD format", label)
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}
