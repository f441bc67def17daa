package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"leftover/internal/core"
	"leftover/internal/log"
)

// Store is the persistence collaborator the engine writes through. All
// methods look synchronous to the engine; the file implementation
// debounces the actual disk writes.
type Store interface {
	LoadEntities(ctx context.Context) (core.Entities, error)
	SaveEntities(ctx context.Context, entities core.Entities) error
	// LoadMonth returns (nil, nil) when no record exists for the month.
	LoadMonth(ctx context.Context, month core.Month) (*core.MonthlyData, error)
	SaveMonth(ctx context.Context, data *core.MonthlyData) error
}

// UndoStore is the optional extension a Store may implement to persist
// the undo history across restarts.
type UndoStore interface {
	LoadUndo(ctx context.Context) ([]UndoEntry, error)
	SaveUndo(ctx context.Context, entries []UndoEntry) error
}

var (
	ErrMonthExists      = errors.New("month already generated")
	ErrMonthNotFound    = errors.New("month not generated yet")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrSourceNotFound   = errors.New("payment source not found")
	ErrExpenseNotFound  = errors.New("expense not found")
	// ErrUndoMismatch means an undo entry references state that no longer
	// exists. That cannot happen through the engine's own operations, so
	// it fails fast instead of being papered over.
	ErrUndoMismatch = errors.New("undo entry does not match current state")
)

// Session owns the engine's state for one application run: the template
// collections, the cache of materialized months and the undo history.
// All engine operations go through it; nothing lives in package globals,
// so tests construct isolated sessions freely.
type Session struct {
	mu    sync.Mutex
	store Store
	log   *log.Logger
	now   func() time.Time

	entities    core.Entities
	months      map[core.Month]*core.MonthlyData
	undo        *UndoStack
	persistUndo bool
}

// Options configures session construction.
type Options struct {
	Logger *log.Logger
	// PersistUndo keeps the undo history on disk across restarts. Off by
	// default: the history is session-scoped.
	PersistUndo bool
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// NewSession loads the entity collections (and, when configured, the
// persisted undo history) and returns a ready session.
func NewSession(ctx context.Context, store Store, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(0, "engine")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	entities, err := store.LoadEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	s := &Session{
		store:       store,
		log:         logger,
		now:         now,
		entities:    entities,
		months:      make(map[core.Month]*core.MonthlyData),
		undo:        NewUndoStack(),
		persistUndo: opts.PersistUndo,
	}

	if opts.PersistUndo {
		us, ok := store.(UndoStore)
		if !ok {
			return nil, errors.New("undo persistence enabled but store cannot persist undo history")
		}
		entries, err := us.LoadUndo(ctx)
		if err != nil {
			return nil, fmt.Errorf("load undo history: %w", err)
		}
		s.undo.Restore(entries)
	}

	logger.InfoContext(ctx, "Session ready",
		"bill_templates", len(entities.Bills),
		"income_templates", len(entities.Incomes),
		"payment_sources", len(entities.PaymentSources),
		"undo_depth", s.undo.Depth())
	return s, nil
}

// Close persists the undo history if configured to. The store itself is
// closed by its owner.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.persistUndo {
		return nil
	}
	us, ok := s.store.(UndoStore)
	if !ok {
		return nil
	}
	if err := us.SaveUndo(ctx, s.undo.Entries()); err != nil {
		return fmt.Errorf("save undo history: %w", err)
	}
	return nil
}

// GenerateMonth materializes a month from the current template snapshot.
// A month that already exists (cached or persisted) is never regenerated;
// that would discard user edits, so it fails fast.
func (s *Session) GenerateMonth(ctx context.Context, month core.Month) (*core.MonthlyData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := month.Validate(); err != nil {
		return nil, err
	}
	if _, ok := s.months[month]; ok {
		return nil, fmt.Errorf("%s: %w", month, ErrMonthExists)
	}
	existing, err := s.store.LoadMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("check month %s: %w", month, err)
	}
	if existing != nil {
		s.months[month] = existing
		return nil, fmt.Errorf("%s: %w", month, ErrMonthExists)
	}

	data, err := GenerateMonth(month, s.entities)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveMonth(ctx, data); err != nil {
		return nil, fmt.Errorf("save month %s: %w", month, err)
	}
	s.months[month] = data

	s.log.InfoContext(ctx, "Month generated",
		"month", month,
		"bill_instances", len(data.BillInstances),
		"income_instances", len(data.IncomeInstances))
	return copyMonth(data), nil
}

// Month returns the materialized record for the month, loading it from
// the store on first access.
func (s *Session) Month(ctx context.Context, month core.Month) (*core.MonthlyData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.monthLocked(ctx, month)
	if err != nil {
		return nil, err
	}
	return copyMonth(data), nil
}

func (s *Session) monthLocked(ctx context.Context, month core.Month) (*core.MonthlyData, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}
	if data, ok := s.months[month]; ok {
		return data, nil
	}
	data, err := s.store.LoadMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("load month %s: %w", month, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%s: %w", month, ErrMonthNotFound)
	}
	s.months[month] = data
	return data, nil
}

// InstancePatch is a partial update for a generated instance.
type InstancePatch struct {
	Amount *core.Money
	Paid   *bool
}

// UpdateBillInstance applies a patch to a bill instance, records an undo
// entry and persists the month.
func (s *Session) UpdateBillInstance(ctx context.Context, month core.Month, id string, patch InstancePatch) (core.Instance, error) {
	return s.updateInstance(ctx, month, id, patch, false)
}

// UpdateIncomeInstance is UpdateBillInstance for the income collection.
func (s *Session) UpdateIncomeInstance(ctx context.Context, month core.Month, id string, patch InstancePatch) (core.Instance, error) {
	return s.updateInstance(ctx, month, id, patch, true)
}

func (s *Session) updateInstance(ctx context.Context, month core.Month, id string, patch InstancePatch, income bool) (core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.monthLocked(ctx, month)
	if err != nil {
		return core.Instance{}, err
	}
	list := data.BillInstances
	if income {
		list = data.IncomeInstances
	}
	idx := indexOfInstance(list, id)
	if idx < 0 {
		return core.Instance{}, fmt.Errorf("%s in %s: %w", id, month, ErrInstanceNotFound)
	}
	old := list[idx]

	tpl, ok := s.entities.BillTemplate(old.TemplateID)
	if income {
		tpl, ok = s.entities.IncomeTemplate(old.TemplateID)
	}
	if !ok {
		return core.Instance{}, fmt.Errorf("template %s: %w", old.TemplateID, ErrTemplateNotFound)
	}

	updated := old
	if patch.Amount != nil {
		updated, err = SetInstanceAmount(updated, tpl, *patch.Amount)
		if err != nil {
			return core.Instance{}, err
		}
	}
	if patch.Paid != nil {
		updated = SetPaid(updated, *patch.Paid)
	}
	if updated == old {
		return old, nil
	}

	list[idx] = updated
	if err := s.store.SaveMonth(ctx, data); err != nil {
		list[idx] = old
		return core.Instance{}, fmt.Errorf("save month %s: %w", month, err)
	}
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: id,
		Month:    month,
		At:       s.now(),
		Change:   InstanceChange{Income: income, Old: old, New: updated},
	})

	s.log.InfoContext(ctx, "Instance updated",
		"month", month,
		"instance", id,
		"income", income,
		"amount_cents", updated.Amount.Cents,
		"is_default", updated.IsDefault,
		"paid", updated.Paid)
	return updated, nil
}

// UpdateBankBalance records a payment source's balance for the month.
func (s *Session) UpdateBankBalance(ctx context.Context, month core.Month, sourceID string, balance core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.entities.Source(sourceID)
	if !ok {
		return fmt.Errorf("%s: %w", sourceID, ErrSourceNotFound)
	}
	if source.Type == core.SourceCreditCard {
		if balance.Cents > 0 {
			return core.Invalid("balance", core.ErrBalanceSign)
		}
	} else if balance.Cents < 0 {
		return core.Invalid("balance", core.ErrBalanceSign)
	}

	data, err := s.monthLocked(ctx, month)
	if err != nil {
		return err
	}

	var oldPtr *core.Money
	if old, had := data.BankBalances[sourceID]; had {
		o := old
		oldPtr = &o
	}
	data.BankBalances[sourceID] = balance
	if err := s.store.SaveMonth(ctx, data); err != nil {
		if oldPtr != nil {
			data.BankBalances[sourceID] = *oldPtr
		} else {
			delete(data.BankBalances, sourceID)
		}
		return fmt.Errorf("save month %s: %w", month, err)
	}
	newVal := balance
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: sourceID,
		Month:    month,
		At:       s.now(),
		Change:   BankBalanceChange{SourceID: sourceID, Old: oldPtr, New: &newVal},
	})
	return nil
}

// AddVariableExpense appends a one-off expense to the month.
func (s *Session) AddVariableExpense(ctx context.Context, month core.Month, e core.Expense) (core.Expense, error) {
	return s.addExpense(ctx, month, e, false)
}

// AddFreeFlowingExpense appends a free-flowing expense to the month.
func (s *Session) AddFreeFlowingExpense(ctx context.Context, month core.Month, e core.Expense) (core.Expense, error) {
	return s.addExpense(ctx, month, e, true)
}

func (s *Session) addExpense(ctx context.Context, month core.Month, e core.Expense, freeFlowing bool) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.NewString()
	e.Month = month
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, ok := s.entities.Source(e.PaymentSourceID); !ok {
		return core.Expense{}, core.Invalid("paymentSourceId", ErrSourceNotFound)
	}

	data, err := s.monthLocked(ctx, month)
	if err != nil {
		return core.Expense{}, err
	}
	list := &data.VariableExpenses
	if freeFlowing {
		list = &data.FreeFlowingExpenses
	}
	*list = append(*list, e)
	if err := s.store.SaveMonth(ctx, data); err != nil {
		*list = (*list)[:len(*list)-1]
		return core.Expense{}, fmt.Errorf("save month %s: %w", month, err)
	}
	added := e
	s.pushUndoLocked(UndoEntry{
		ID:       uuid.NewString(),
		EntityID: e.ID,
		Month:    month,
		At:       s.now(),
		Change:   ExpenseChange{FreeFlowing: freeFlowing, Old: nil, New: &added},
	})
	return e, nil
}

// ComputeLeftover recomputes the month's breakdown from the latest
// in-memory state.
func (s *Session) ComputeLeftover(ctx context.Context, month core.Month) (core.LeftoverBreakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.monthLocked(ctx, month)
	if err != nil {
		return core.LeftoverBreakdown{}, err
	}
	return ComputeLeftover(data, s.entities.PaymentSources), nil
}

// PushUndo records an externally-produced entry on the history.
func (s *Session) PushUndo(e UndoEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushUndoLocked(e)
}

func (s *Session) pushUndoLocked(e UndoEntry) {
	s.undo.Push(e)
}

// UndoDepth reports the number of undoable mutations, 0..UndoCapacity.
func (s *Session) UndoDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.Depth()
}

// Reverted describes the entity restored by an Undo call.
type Reverted struct {
	Kind     EntityKind `json:"kind"`
	EntityID string     `json:"entityId"`
	Month    core.Month `json:"month,omitempty"`
	Entity   any        `json:"entity"`
}

// Undo reverts the single most recent mutation and persists the result.
// On an empty history it returns (nil, nil): nothing to undo is a defined
// no-op. There is no redo.
func (s *Session) Undo(ctx context.Context) (*Reverted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.undo.Pop()
	if !ok {
		return nil, nil
	}

	reverted, err := s.applyRevertLocked(ctx, entry)
	if err != nil {
		// The entry stays consumed only if it was applied; a failed
		// revert goes back on the stack so the user can retry.
		s.undo.Push(entry)
		return nil, err
	}

	s.log.InfoContext(ctx, "Mutation undone",
		"entry", entry.ID,
		"kind", entry.Change.Kind(),
		"entity", entry.EntityID,
		"month", entry.Month)
	return reverted, nil
}

// applyRevertLocked dispatches on the change variant and writes the old
// snapshot back. The switch is exhaustive over every EntityKind.
func (s *Session) applyRevertLocked(ctx context.Context, entry UndoEntry) (*Reverted, error) {
	switch c := entry.Change.(type) {
	case InstanceChange:
		data, err := s.monthLocked(ctx, entry.Month)
		if err != nil {
			return nil, err
		}
		list := data.BillInstances
		if c.Income {
			list = data.IncomeInstances
		}
		idx := indexOfInstance(list, entry.EntityID)
		if idx < 0 {
			return nil, fmt.Errorf("instance %s: %w", entry.EntityID, ErrUndoMismatch)
		}
		prev := list[idx]
		list[idx] = c.Old
		if err := s.store.SaveMonth(ctx, data); err != nil {
			list[idx] = prev
			return nil, fmt.Errorf("save month %s: %w", entry.Month, err)
		}
		return &Reverted{Kind: c.Kind(), EntityID: entry.EntityID, Month: entry.Month, Entity: c.Old}, nil

	case BankBalanceChange:
		data, err := s.monthLocked(ctx, entry.Month)
		if err != nil {
			return nil, err
		}
		prev, had := data.BankBalances[c.SourceID]
		if c.Old != nil {
			data.BankBalances[c.SourceID] = *c.Old
		} else {
			delete(data.BankBalances, c.SourceID)
		}
		if err := s.store.SaveMonth(ctx, data); err != nil {
			if had {
				data.BankBalances[c.SourceID] = prev
			} else {
				delete(data.BankBalances, c.SourceID)
			}
			return nil, fmt.Errorf("save month %s: %w", entry.Month, err)
		}
		return &Reverted{Kind: c.Kind(), EntityID: c.SourceID, Month: entry.Month, Entity: c.Old}, nil

	case ExpenseChange:
		data, err := s.monthLocked(ctx, entry.Month)
		if err != nil {
			return nil, err
		}
		list := &data.VariableExpenses
		if c.FreeFlowing {
			list = &data.FreeFlowingExpenses
		}
		idx := indexOfExpense(*list, entry.EntityID)
		if idx < 0 {
			return nil, fmt.Errorf("expense %s: %w", entry.EntityID, ErrUndoMismatch)
		}
		backup := append([]core.Expense(nil), *list...)
		if c.Old != nil {
			(*list)[idx] = *c.Old
		} else {
			*list = append((*list)[:idx], (*list)[idx+1:]...)
		}
		if err := s.store.SaveMonth(ctx, data); err != nil {
			*list = backup
			return nil, fmt.Errorf("save month %s: %w", entry.Month, err)
		}
		return &Reverted{Kind: c.Kind(), EntityID: entry.EntityID, Month: entry.Month, Entity: c.Old}, nil

	case TemplateChange:
		list := &s.entities.Bills
		if c.Income {
			list = &s.entities.Incomes
		}
		backup := append([]core.Template(nil), *list...)
		idx := indexOfTemplate(*list, entry.EntityID)
		switch {
		case c.Old == nil && idx >= 0:
			*list = append((*list)[:idx], (*list)[idx+1:]...)
		case c.Old != nil && idx >= 0:
			(*list)[idx] = *c.Old
		default:
			return nil, fmt.Errorf("template %s: %w", entry.EntityID, ErrUndoMismatch)
		}
		if err := s.store.SaveEntities(ctx, s.entities); err != nil {
			*list = backup
			return nil, fmt.Errorf("save entities: %w", err)
		}
		return &Reverted{Kind: c.Kind(), EntityID: entry.EntityID, Entity: c.Old}, nil

	case PaymentSourceChange:
		backup := append([]core.PaymentSource(nil), s.entities.PaymentSources...)
		idx := indexOfSource(s.entities.PaymentSources, entry.EntityID)
		switch {
		case c.Old == nil && idx >= 0:
			s.entities.PaymentSources = append(s.entities.PaymentSources[:idx], s.entities.PaymentSources[idx+1:]...)
		case c.Old != nil && idx >= 0:
			s.entities.PaymentSources[idx] = *c.Old
		default:
			return nil, fmt.Errorf("payment source %s: %w", entry.EntityID, ErrUndoMismatch)
		}
		if err := s.store.SaveEntities(ctx, s.entities); err != nil {
			s.entities.PaymentSources = backup
			return nil, fmt.Errorf("save entities: %w", err)
		}
		return &Reverted{Kind: c.Kind(), EntityID: entry.EntityID, Entity: c.Old}, nil

	default:
		return nil, fmt.Errorf("undo entry %s: unknown change type %T: %w", entry.ID, entry.Change, ErrUndoMismatch)
	}
}

func copyMonth(data *core.MonthlyData) *core.MonthlyData {
	out := *data
	out.BillInstances = append([]core.Instance(nil), data.BillInstances...)
	out.IncomeInstances = append([]core.Instance(nil), data.IncomeInstances...)
	out.VariableExpenses = append([]core.Expense(nil), data.VariableExpenses...)
	out.FreeFlowingExpenses = append([]core.Expense(nil), data.FreeFlowingExpenses...)
	out.BankBalances = make(map[string]core.Money, len(data.BankBalances))
	for k, v := range data.BankBalances {
		out.BankBalances[k] = v
	}
	return &out
}

func indexOfInstance(list []core.Instance, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfExpense(list []core.Expense, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfTemplate(list []core.Template, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfSource(list []core.PaymentSource, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
