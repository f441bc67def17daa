package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"leftover/internal/core"
)

// Entities returns a copy of the template-side collections.
func (s *Session) Entities() core.Entities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Entities{
		Bills:          append([]core.Template(nil), s.entities.Bills...),
		Incomes:        append([]core.Template(nil), s.entities.Incomes...),
		PaymentSources: append([]core.PaymentSource(nil), s.entities.PaymentSources...),
		Categories:     append([]core.Category(nil), s.entities.Categories...),
	}
}

// CreateBillTemplate validates and stores a new bill template. New
// templates only affect months generated afterwards.
func (s *Session) CreateBillTemplate(ctx context.Context, t core.Template) (core.Template, error) {
	return s.createTemplate(ctx, t, false)
}

// CreateIncomeTemplate is CreateBillTemplate for the income collection.
func (s *Session) CreateIncomeTemplate(ctx context.Context, t core.Template) (core.Template, error) {
	return s.createTemplate(ctx, t, true)
}

func (s *Session) createTemplate(ctx context.Context, t core.Template, income bool) (core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.NewString()
	if err := t.Validate(); err != nil {
		return core.Template{}, err
	}
	if _, ok := s.entities.Source(t.PaymentSourceID); !ok {
		return core.Template{}, core.Invalid("paymentSourceId", ErrSourceNotFound)
	}

	list := &s.entities.Bills
	if income {
		list = &s.entities.Incomes
	}
	*list = append(*list, t)
	if err := s.store.SaveEntities(ctx, s.entities); err != nil {
		*list = (*list)[:len(*list)-1]
		return core.Template{}, fmt.Errorf("save entities: %w", err)
	}
	created := t
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: t.ID,
		At:       s.now(),
		Change:   TemplateChange{Income: income, Old: nil, New: &created},
	})
	s.log.InfoContext(ctx, "Template created",
		"template", t.ID, "name", t.Name, "income", income, "period", t.Period)
	return t, nil
}

// UpdateBillTemplate replaces a bill template's definition. Instances
// already generated from it are untouched; only future generations and
// the live isDefault comparison see the new default.
func (s *Session) UpdateBillTemplate(ctx context.Context, id string, t core.Template) (core.Template, error) {
	return s.updateTemplate(ctx, id, t, false)
}

// UpdateIncomeTemplate is UpdateBillTemplate for the income collection.
func (s *Session) UpdateIncomeTemplate(ctx context.Context, id string, t core.Template) (core.Template, error) {
	return s.updateTemplate(ctx, id, t, true)
}

func (s *Session) updateTemplate(ctx context.Context, id string, t core.Template, income bool) (core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = id
	if err := t.Validate(); err != nil {
		return core.Template{}, err
	}
	if _, ok := s.entities.Source(t.PaymentSourceID); !ok {
		return core.Template{}, core.Invalid("paymentSourceId", ErrSourceNotFound)
	}

	list := &s.entities.Bills
	if income {
		list = &s.entities.Incomes
	}
	idx := indexOfTemplate(*list, id)
	if idx < 0 {
		return core.Template{}, fmt.Errorf("%s: %w", id, ErrTemplateNotFound)
	}
	old := (*list)[idx]
	if old == t {
		return old, nil
	}
	(*list)[idx] = t
	if err := s.store.SaveEntities(ctx, s.entities); err != nil {
		(*list)[idx] = old
		return core.Template{}, fmt.Errorf("save entities: %w", err)
	}
	oldCopy, newCopy := old, t
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: id,
		At:       s.now(),
		Change:   TemplateChange{Income: income, Old: &oldCopy, New: &newCopy},
	})
	return t, nil
}

// CreatePaymentSource validates and stores a new payment source.
func (s *Session) CreatePaymentSource(ctx context.Context, ps core.PaymentSource) (core.PaymentSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps.ID = uuid.NewString()
	if err := ps.Validate(); err != nil {
		return core.PaymentSource{}, err
	}
	s.entities.PaymentSources = append(s.entities.PaymentSources, ps)
	if err := s.store.SaveEntities(ctx, s.entities); err != nil {
		s.entities.PaymentSources = s.entities.PaymentSources[:len(s.entities.PaymentSources)-1]
		return core.PaymentSource{}, fmt.Errorf("save entities: %w", err)
	}
	created := ps
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: ps.ID,
		At:       s.now(),
		Change:   PaymentSourceChange{Old: nil, New: &created},
	})
	return ps, nil
}

// UpdatePaymentSource replaces a payment source's definition.
func (s *Session) UpdatePaymentSource(ctx context.Context, id string, ps core.PaymentSource) (core.PaymentSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps.ID = id
	if err := ps.Validate(); err != nil {
		return core.PaymentSource{}, err
	}
	idx := indexOfSource(s.entities.PaymentSources, id)
	if idx < 0 {
		return core.PaymentSource{}, fmt.Errorf("%s: %w", id, ErrSourceNotFound)
	}
	old := s.entities.PaymentSources[idx]
	if old == ps {
		return old, nil
	}
	s.entities.PaymentSources[idx] = ps
	if err := s.store.SaveEntities(ctx, s.entities); err != nil {
		s.entities.PaymentSources[idx] = old
		return core.PaymentSource{}, fmt.Errorf("save entities: %w", err)
	}
	oldCopy, newCopy := old, ps
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: id,
		At:       s.now(),
		Change:   PaymentSourceChange{Old: &oldCopy, New: &newCopy},
	})
	return ps, nil
}
