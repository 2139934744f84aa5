package dto

import "strings"

// Project types offered by the quote form.
const (
	ProjectTypeFullRenovation    = "reforma-completa"
	ProjectTypePartialRenovation = "reforma-parcial"
	ProjectTypeConstruction      = "construcao"
	ProjectTypeMaintenance       = "manutencao"
	ProjectTypeExpressService    = "servico-express"
	ProjectTypeOther             = "outro"
)

// ProjectTypes lists the accepted project-type values.
var ProjectTypes = []string{
	ProjectTypeFullRenovation,
	ProjectTypePartialRenovation,
	ProjectTypeConstruction,
	ProjectTypeMaintenance,
	ProjectTypeExpressService,
	ProjectTypeOther,
}

// QuoteRequest is the quote form as posted by the website.
type QuoteRequest struct {
	Name        string   `form:"name" json:"name" validate:"required,min=2,max=100"`
	Email       string   `form:"email" json:"email" validate:"required,email,max=255"`
	Phone       string   `form:"phone" json:"phone" validate:"required,phone_chars,phone_digits"`
	Address     string   `form:"address" json:"address" validate:"required,min=10,max=500"`
	Message     string   `form:"message" json:"message" validate:"required,min=20,max=3000"`
	ProjectType string   `form:"project-type" json:"projectType" validate:"required,project_type"`
	StartDate   string   `form:"start-date" json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	BudgetRange string   `form:"budget-range" json:"budgetRange" validate:"max=100"`
	City        string   `form:"city" json:"city" validate:"max=100"`
	Services    []string `form:"services[]" json:"services" validate:"max=20,dive,max=100"`
}

// Normalize trims every text field and drops empty service entries.
func (r *QuoteRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.Message = strings.TrimSpace(r.Message)
	r.ProjectType = strings.ToLower(strings.TrimSpace(r.ProjectType))
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.BudgetRange = strings.TrimSpace(r.BudgetRange)
	r.City = strings.TrimSpace(r.City)

	services := r.Services[:0]
	for _, s := range r.Services {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}
	r.Services = services
}

// QuoteResponse is the JSON answer to a successful submission.
type QuoteResponse struct {
	ID       string   `json:"id"`
	Sent     bool     `json:"sent"`
	Files    int      `json:"files"`
	Uploaded []string `json:"uploaded,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	City     string   `json:"city"`
}
