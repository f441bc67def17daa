package http

import (
	"context"
	"net/http"
	"time"

	"leftover/internal/core"
)

type entityEngine interface {
	Entities() core.Entities
	CreateBillTemplate(ctx context.Context, t core.Template) (core.Template, error)
	UpdateBillTemplate(ctx context.Context, id string, t core.Template) (core.Template, error)
	CreateIncomeTemplate(ctx context.Context, t core.Template) (core.Template, error)
	UpdateIncomeTemplate(ctx context.Context, id string, t core.Template) (core.Template, error)
	CreatePaymentSource(ctx context.Context, ps core.PaymentSource) (core.PaymentSource, error)
	UpdatePaymentSource(ctx context.Context, id string, ps core.PaymentSource) (core.PaymentSource, error)
}

type templateBody struct {
	Name            string `json:"name"`
	Amount          string `json:"amount"`
	BillingPeriod   string `json:"billingPeriod"`
	PaymentSourceID string `json:"paymentSourceId"`
	CategoryID      string `json:"categoryId"`
	AnchorWeekday   int    `json:"anchorWeekday"`
	DueMonth        int    `json:"dueMonth"`
	Active          bool   `json:"active"`
}

func (b templateBody) toTemplate() (core.Template, error) {
	amount, err := parseAmount("amount", b.Amount)
	if err != nil {
		return core.Template{}, err
	}
	return core.Template{
		Name:            b.Name,
		Amount:          amount,
		Period:          core.BillingPeriod(b.BillingPeriod),
		PaymentSourceID: b.PaymentSourceID,
		CategoryID:      b.CategoryID,
		AnchorWeekday:   time.Weekday(b.AnchorWeekday),
		DueMonth:        time.Month(b.DueMonth),
		Active:          b.Active,
	}, nil
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Entities().Bills)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Entities().Incomes)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	s.createTemplate(w, r, s.session.CreateBillTemplate)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	s.createTemplate(w, r, s.session.CreateIncomeTemplate)
}

func (s *Server) createTemplate(
	w http.ResponseWriter,
	r *http.Request,
	create func(context.Context, core.Template) (core.Template, error),
) {
	var body templateBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	tpl, err := body.toTemplate()
	if err != nil {
		respondError(w, r, err)
		return
	}
	created, err := create(r.Context(), tpl)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	s.updateTemplate(w, r, s.session.UpdateBillTemplate)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	s.updateTemplate(w, r, s.session.UpdateIncomeTemplate)
}

func (s *Server) updateTemplate(
	w http.ResponseWriter,
	r *http.Request,
	update func(context.Context, string, core.Template) (core.Template, error),
) {
	var body templateBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	tpl, err := body.toTemplate()
	if err != nil {
		respondError(w, r, err)
		return
	}
	updated, err := update(r.Context(), r.PathValue("id"), tpl)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// sourceBody uses signed integer cents for the opening balance, matching
// the credit card sign convention.
type sourceBody struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	BalanceCents int64  `json:"balanceCents"`
	Active       bool   `json:"active"`
}

func (b sourceBody) toSource() core.PaymentSource {
	return core.PaymentSource{
		Name:    b.Name,
		Type:    core.PaymentSourceType(b.Type),
		Balance: core.Money{Cents: b.BalanceCents},
		Active:  b.Active,
	}
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Entities().PaymentSources)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var body sourceBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	created, err := s.session.CreatePaymentSource(r.Context(), body.toSource())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var body sourceBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	updated, err := s.session.UpdatePaymentSource(r.Context(), r.PathValue("id"), body.toSource())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Entities().Categories)
}
