package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
)

func validQuoteRequest() dto.QuoteRequest {
	return dto.QuoteRequest{
		Name:        "Maria Souza",
		Email:       "maria@example.com",
		Phone:       "(27) 99999-8888",
		Address:     "Rua das Palmeiras, 45, Praia do Canto",
		Message:     "Gostaria de um orçamento para reformar o banheiro social.",
		ProjectType: dto.ProjectTypePartialRenovation,
		StartDate:   "2024-04-01",
	}
}

func TestQuoteFormValidatorAcceptsValidRequest(t *testing.T) {
	v := NewQuoteFormValidator(nil)
	require.NoError(t, v.Validate(validQuoteRequest()))
}

func TestQuoteFormValidatorReportsEveryField(t *testing.T) {
	v := NewQuoteFormValidator(nil)
	req := validQuoteRequest()
	req.Name = "M"
	req.Email = "not-an-email"
	req.Phone = "12345"
	req.ProjectType = "piscina"
	req.StartDate = "01/04/2024"

	err := v.Validate(req)
	require.Error(t, err)
	require.True(t, appErrors.IsCategory(err, appErrors.ErrValidation))

	appErr := appErrors.FromError(err)
	require.Len(t, appErr.Details, 5)
	require.Contains(t, appErr.Details, "name must have at least 2 characters")
	require.Contains(t, appErr.Details, "e-mail is invalid")
	require.Contains(t, appErr.Details, "phone must contain between 10 and 15 digits")
	require.Contains(t, appErr.Details, "start date must use the YYYY-MM-DD format")
}

func TestQuoteFormValidatorPhoneRules(t *testing.T) {
	v := NewQuoteFormValidator(nil)
	cases := map[string]bool{
		"+55 27 99999-8888": true,
		"2799999888":        true,
		"27 9999a-8888":     false,
		"1234567890123456":  false,
	}
	for phone, ok := range cases {
		req := validQuoteRequest()
		req.Phone = phone
		err := v.Validate(req)
		if ok {
			require.NoError(t, err, phone)
		} else {
			require.Error(t, err, phone)
		}
	}
}

func TestQuoteFormValidatorRequiredFields(t *testing.T) {
	v := NewQuoteFormValidator(nil)
	err := v.Validate(dto.QuoteRequest{})
	appErr := appErrors.FromError(err)
	require.Contains(t, appErr.Details, "name is required")
	require.Contains(t, appErr.Details, "project description is required")
	require.Contains(t, appErr.Details, "project type is required")
}
