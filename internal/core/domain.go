package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Monthly      BillingPeriod = "monthly"
	Biweekly     BillingPeriod = "biweekly"
	Weekly       BillingPeriod = "weekly"
	Semiannually BillingPeriod = "semiannually"
)

const (
	SourceBank       PaymentSourceType = "bank"
	SourceCreditCard PaymentSourceType = "creditCard"
	SourceCash       PaymentSourceType = "cash"
)

type (
	// BillingPeriod is the recurrence rule governing how many instances a
	// template yields in a given month.
	BillingPeriod string

	// PaymentSourceType distinguishes asset sources (bank, cash) from
	// liability sources (creditCard).
	PaymentSourceType string

	// Template is a recurring bill or income definition. It is never spent
	// against directly; the generator expands it into per-month instances.
	// Whether a template is a bill or an income is determined by the
	// collection that owns it.
	Template struct {
		ID              string        `json:"id"`
		Name            string        `json:"name"`
		Amount          Money         `json:"amount"`
		Period          BillingPeriod `json:"billingPeriod"`
		PaymentSourceID string        `json:"paymentSourceId"`
		CategoryID      string        `json:"categoryId,omitempty"`
		// AnchorWeekday anchors weekly and biweekly schedules.
		AnchorWeekday time.Weekday `json:"anchorWeekday"`
		// DueMonth is the first of the two due months for semiannual
		// templates; the second is six months later.
		DueMonth time.Month `json:"dueMonth,omitempty"`
		Active   bool       `json:"active"`
	}

	// Instance is one concrete occurrence of a template within a month.
	// Instances are created only by the month generator and edited
	// independently of their template afterwards.
	Instance struct {
		ID         string    `json:"id"`
		TemplateID string    `json:"templateId"`
		Month      Month     `json:"month"`
		DueDate    time.Time `json:"dueDate"`
		Amount     Money     `json:"amount"`
		// IsDefault reports whether Amount still matches the template's
		// current default. It is recomputed on every edit, not latched.
		IsDefault bool `json:"isDefault"`
		Paid      bool `json:"paid"`
	}

	// PaymentSource is an account money moves through. Balance follows the
	// sign convention: bank and cash hold funds (>= 0), creditCard holds
	// debt (<= 0).
	PaymentSource struct {
		ID      string            `json:"id"`
		Name    string            `json:"name"`
		Type    PaymentSourceType `json:"type"`
		Balance Money             `json:"balance"`
		Active  bool              `json:"active"`
	}

	// Expense is a one-off, month-scoped expense with no template behind
	// it. Variable and free-flowing expenses share this shape and live in
	// separate collections on MonthlyData.
	Expense struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Amount          Money  `json:"amount"`
		PaymentSourceID string `json:"paymentSourceId"`
		Month           Month  `json:"month"`
	}

	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// MonthlyData is the materialized record for one calendar month. It
	// exclusively owns its instance and expense slices; nothing in it is
	// shared with other months.
	MonthlyData struct {
		Month               Month            `json:"month"`
		BillInstances       []Instance       `json:"billInstances"`
		IncomeInstances     []Instance       `json:"incomeInstances"`
		VariableExpenses    []Expense        `json:"variableExpenses"`
		FreeFlowingExpenses []Expense        `json:"freeFlowingExpenses"`
		BankBalances        map[string]Money `json:"bankBalances"`
	}

	// Entities aggregates the template-side collections loaded from the
	// store at session start.
	Entities struct {
		Bills          []Template      `json:"bills"`
		Incomes        []Template      `json:"incomes"`
		PaymentSources []PaymentSource `json:"paymentSources"`
		Categories     []Category      `json:"categories"`
	}
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidPeriod     = errors.New("invalid billing period")
	ErrInvalidSourceType = errors.New("invalid payment source type")
	ErrBalanceSign       = errors.New("balance violates sign convention")
	ErrNoPaymentSource   = errors.New("missing payment source reference")
)

// ValidationError carries a field-level message so callers can re-prompt
// for exactly the offending input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError for the named field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func (p BillingPeriod) Validate() error {
	switch p {
	case Monthly, Biweekly, Weekly, Semiannually:
		return nil
	default:
		return ErrInvalidPeriod
	}
}

func (t PaymentSourceType) Validate() error {
	switch t {
	case SourceBank, SourceCreditCard, SourceCash:
		return nil
	default:
		return ErrInvalidSourceType
	}
}

func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := t.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := t.Period.Validate(); err != nil {
		return Invalid("billingPeriod", err)
	}
	if strings.TrimSpace(t.PaymentSourceID) == "" {
		return Invalid("paymentSourceId", ErrNoPaymentSource)
	}
	if t.Period == Semiannually {
		if t.DueMonth < time.January || t.DueMonth > time.December {
			return Invalid("dueMonth", errors.New("due month must be 1-12"))
		}
	}
	if t.Period == Weekly || t.Period == Biweekly {
		if t.AnchorWeekday < time.Sunday || t.AnchorWeekday > time.Saturday {
			return Invalid("anchorWeekday", errors.New("anchor weekday must be 0-6"))
		}
	}
	return nil
}

func (i Instance) Validate() error {
	if err := i.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if strings.TrimSpace(i.TemplateID) == "" {
		return Invalid("templateId", errors.New("missing template reference"))
	}
	return i.Month.Validate()
}

func (ps PaymentSource) Validate() error {
	if strings.TrimSpace(ps.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := ps.Type.Validate(); err != nil {
		return Invalid("type", err)
	}
	switch ps.Type {
	case SourceCreditCard:
		if ps.Balance.Cents > 0 {
			return Invalid("balance", ErrBalanceSign)
		}
	default:
		if ps.Balance.Cents < 0 {
			return Invalid("balance", ErrBalanceSign)
		}
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if strings.TrimSpace(e.PaymentSourceID) == "" {
		return Invalid("paymentSourceId", ErrNoPaymentSource)
	}
	return e.Month.Validate()
}

// NewMonthlyData returns an empty record for the month with all collections
// initialized. BankBalances starts empty; the user fills balances per month.
func NewMonthlyData(m Month) *MonthlyData {
	return &MonthlyData{
		Month:               m,
		BillInstances:       []Instance{},
		IncomeInstances:     []Instance{},
		VariableExpenses:    []Expense{},
		FreeFlowingExpenses: []Expense{},
		BankBalances:        map[string]Money{},
	}
}

// BillTemplate looks up a bill template by id.
func (e Entities) BillTemplate(id string) (Template, bool) {
	return findTemplate(e.Bills, id)
}

// IncomeTemplate looks up an income template by id.
func (e Entities) IncomeTemplate(id string) (Template, bool) {
	return findTemplate(e.Incomes, id)
}

// Source looks up a payment source by id.
func (e Entities) Source(id string) (PaymentSource, bool) {
	for _, ps := range e.PaymentSources {
		if ps.ID == id {
			return ps, true
		}
	}
	return PaymentSource{}, false
}

func findTemplate(ts []Template, id string) (Template, bool) {
	for _, t := range ts {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
