package http

import (
	"context"
	"net/http"

	"leftover/internal/core"
	"leftover/internal/services"
)

type monthEngine interface {
	GenerateMonth(ctx context.Context, month core.Month) (*core.MonthlyData, error)
	Month(ctx context.Context, month core.Month) (*core.MonthlyData, error)
	ComputeLeftover(ctx context.Context, month core.Month) (core.LeftoverBreakdown, error)
	UpdateBillInstance(ctx context.Context, month core.Month, id string, patch services.InstancePatch) (core.Instance, error)
	UpdateIncomeInstance(ctx context.Context, month core.Month, id string, patch services.InstancePatch) (core.Instance, error)
	UpdateBankBalance(ctx context.Context, month core.Month, sourceID string, balance core.Money) error
	AddVariableExpense(ctx context.Context, month core.Month, e core.Expense) (core.Expense, error)
	AddFreeFlowingExpense(ctx context.Context, month core.Month, e core.Expense) (core.Expense, error)
}

func (s *Server) handleGenerateMonth(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	data, err := s.session.GenerateMonth(r.Context(), month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, data)
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	data, err := s.session.Month(r.Context(), month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, data)
}

func (s *Server) handleLeftover(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	breakdown, err := s.session.ComputeLeftover(r.Context(), month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, breakdown)
}

// instancePatchBody carries a partial instance update. Amount is a
// user-entered decimal string; absent fields are left untouched.
type instancePatchBody struct {
	Amount *string `json:"amount"`
	Paid   *bool   `json:"paid"`
}

func (b instancePatchBody) toPatch() (services.InstancePatch, error) {
	var patch services.InstancePatch
	if b.Amount != nil {
		amount, err := parseAmount("amount", *b.Amount)
		if err != nil {
			return services.InstancePatch{}, err
		}
		patch.Amount = &amount
	}
	patch.Paid = b.Paid
	return patch, nil
}

func (s *Server) handleUpdateBillInstance(w http.ResponseWriter, r *http.Request) {
	s.updateInstance(w, r, s.session.UpdateBillInstance)
}

func (s *Server) handleUpdateIncomeInstance(w http.ResponseWriter, r *http.Request) {
	s.updateInstance(w, r, s.session.UpdateIncomeInstance)
}

func (s *Server) updateInstance(
	w http.ResponseWriter,
	r *http.Request,
	update func(context.Context, core.Month, string, services.InstancePatch) (core.Instance, error),
) {
	month, err := monthParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var body instancePatchBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	patch, err := body.toPatch()
	if err != nil {
		respondError(w, r, err)
		return
	}
	inst, err := update(r.Context(), month, r.PathValue("id"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// balanceBody uses signed integer cents: credit card balances are
// negative, which the decimal amount format does not admit.
type balanceBody struct {
	BalanceCents int64 `json:"balanceCents"`
}

func (s *Server) handleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var body balanceBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	sourceID := r.PathValue("source")
	if err := s.session.UpdateBankBalance(r.Context(), month, sourceID, core.Money{Cents: body.BalanceCents}); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sourceId":     sourceID,
		"month":        month,
		"balanceCents": body.BalanceCents,
	})
}

type expenseBody struct {
	Name            string `json:"name"`
	Amount          string `json:"amount"`
	PaymentSourceID string `json:"paymentSourceId"`
}

func (s *Server) handleAddVariableExpense(w http.ResponseWriter, r *http.Request) {
	s.addExpense(w, r, s.session.AddVariableExpense)
}

func (s *Server) handleAddFreeFlowingExpense(w http.ResponseWriter, r *http.Request) {
	s.addExpense(w, r, s.session.AddFreeFlowingExpense)
}

func (s *Server) addExpense(
	w http.ResponseWriter,
	r *http.Request,
	add func(context.Context, core.Month, core.Expense) (core.Expense, error),
) {
	month, err := monthParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var body expenseBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	expense, err := add(r.Context(), month, core.Expense{
		Name:            body.Name,
		Amount:          amount,
		PaymentSourceID: body.PaymentSourceID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, expense)
}
