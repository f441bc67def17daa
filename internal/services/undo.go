package services

import (
	"encoding/json"
	"fmt"
	"time"

	"leftover/internal/core"
)

// UndoCapacity bounds the history; pushing beyond it discards the oldest
// entry. There is no redo and no selective undo.
const UndoCapacity = 5

// EntityKind tags the variant carried by an undo entry.
type EntityKind string

const (
	KindBillTemplate       EntityKind = "billTemplate"
	KindIncomeTemplate     EntityKind = "incomeTemplate"
	KindBillInstance       EntityKind = "billInstance"
	KindIncomeInstance     EntityKind = "incomeInstance"
	KindPaymentSource      EntityKind = "paymentSource"
	KindVariableExpense    EntityKind = "variableExpense"
	KindFreeFlowingExpense EntityKind = "freeFlowingExpense"
	KindBankBalance        EntityKind = "bankBalance"
)

// Change is the tagged union of before/after snapshots. Each variant
// carries its own strongly-typed pair; revert dispatch is an exhaustive
// type switch in Session.Undo rather than untyped field copying.
type Change interface {
	Kind() EntityKind
}

// TemplateChange covers bill and income template edits; Income selects
// the collection. A nil Old means the template was created by the change.
type TemplateChange struct {
	Income   bool
	Old, New *core.Template
}

func (c TemplateChange) Kind() EntityKind {
	if c.Income {
		return KindIncomeTemplate
	}
	return KindBillTemplate
}

// InstanceChange covers amount/paid edits on a generated instance.
type InstanceChange struct {
	Income   bool
	Old, New core.Instance
}

func (c InstanceChange) Kind() EntityKind {
	if c.Income {
		return KindIncomeInstance
	}
	return KindBillInstance
}

// PaymentSourceChange covers payment source edits and creation.
type PaymentSourceChange struct {
	Old, New *core.PaymentSource
}

func (PaymentSourceChange) Kind() EntityKind { return KindPaymentSource }

// ExpenseChange covers variable and free-flowing expenses; FreeFlowing
// selects the collection. A nil Old means the expense was added.
type ExpenseChange struct {
	FreeFlowing bool
	Old, New    *core.Expense
}

func (c ExpenseChange) Kind() EntityKind {
	if c.FreeFlowing {
		return KindFreeFlowingExpense
	}
	return KindVariableExpense
}

// BankBalanceChange covers one month's balance entry for one source.
// A nil Old means the balance had not been recorded for the month.
type BankBalanceChange struct {
	SourceID string
	Old, New *core.Money
}

func (BankBalanceChange) Kind() EntityKind { return KindBankBalance }

// UndoEntry records one mutation: which entity changed, in which month
// (zero for month-independent entities), and the typed snapshots.
type UndoEntry struct {
	ID       string
	EntityID string
	Month    core.Month
	At       time.Time
	Change   Change
}

// UndoStack is a capacity-bounded LIFO history. It only stores entries;
// applying a revert is the Session's job, because reverting touches the
// in-memory collections and the store.
type UndoStack struct {
	entries []UndoEntry
}

func NewUndoStack() *UndoStack {
	return &UndoStack{entries: make([]UndoEntry, 0, UndoCapacity)}
}

// Push appends an entry, evicting the oldest when the stack is full.
// Push never fails.
func (s *UndoStack) Push(e UndoEntry) {
	if len(s.entries) == UndoCapacity {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:UndoCapacity-1]
	}
	s.entries = append(s.entries, e)
}

// Pop removes and returns the most recent entry. The second return is
// false when there is nothing to undo; that is a defined no-op, not an
// error.
func (s *UndoStack) Pop() (UndoEntry, bool) {
	if len(s.entries) == 0 {
		return UndoEntry{}, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// Depth returns the current number of entries, 0..UndoCapacity.
func (s *UndoStack) Depth() int { return len(s.entries) }

// Entries returns a copy of the stack, oldest first. Used when the undo
// history is configured to persist across restarts.
func (s *UndoStack) Entries() []UndoEntry {
	out := make([]UndoEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Restore replaces the stack contents, oldest first, truncating to
// capacity from the front so the newest entries win.
func (s *UndoStack) Restore(entries []UndoEntry) {
	if len(entries) > UndoCapacity {
		entries = entries[len(entries)-UndoCapacity:]
	}
	s.entries = append(s.entries[:0], entries...)
}

// undoEntryJSON is the wire form of an UndoEntry when undo persistence is
// enabled. The change variant is flattened next to its kind tag.
type undoEntryJSON struct {
	ID       string          `json:"id"`
	EntityID string          `json:"entityId"`
	Month    core.Month      `json:"month,omitempty"`
	At       time.Time       `json:"at"`
	Kind     EntityKind      `json:"kind"`
	SourceID string          `json:"sourceId,omitempty"`
	Old      json.RawMessage `json:"old,omitempty"`
	New      json.RawMessage `json:"new,omitempty"`
}

func (e UndoEntry) MarshalJSON() ([]byte, error) {
	w := undoEntryJSON{
		ID:       e.ID,
		EntityID: e.EntityID,
		Month:    e.Month,
		At:       e.At,
		Kind:     e.Change.Kind(),
	}
	var oldVal, newVal any
	switch c := e.Change.(type) {
	case TemplateChange:
		oldVal, newVal = nilable(c.Old), nilable(c.New)
	case InstanceChange:
		oldVal, newVal = c.Old, c.New
	case PaymentSourceChange:
		oldVal, newVal = nilable(c.Old), nilable(c.New)
	case ExpenseChange:
		oldVal, newVal = nilable(c.Old), nilable(c.New)
	case BankBalanceChange:
		w.SourceID = c.SourceID
		oldVal, newVal = nilable(c.Old), nilable(c.New)
	default:
		return nil, fmt.Errorf("undo entry %s: unknown change type %T", e.ID, e.Change)
	}
	var err error
	if w.Old, err = marshalOptional(oldVal); err != nil {
		return nil, err
	}
	if w.New, err = marshalOptional(newVal); err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (e *UndoEntry) UnmarshalJSON(data []byte) error {
	var w undoEntryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.EntityID = w.EntityID
	e.Month = w.Month
	e.At = w.At

	switch w.Kind {
	case KindBillTemplate, KindIncomeTemplate:
		c := TemplateChange{Income: w.Kind == KindIncomeTemplate}
		if err := unmarshalOptional(w.Old, &c.Old); err != nil {
			return err
		}
		if err := unmarshalOptional(w.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	case KindBillInstance, KindIncomeInstance:
		c := InstanceChange{Income: w.Kind == KindIncomeInstance}
		if err := json.Unmarshal(w.Old, &c.Old); err != nil {
			return err
		}
		if err := json.Unmarshal(w.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	case KindPaymentSource:
		var c PaymentSourceChange
		if err := unmarshalOptional(w.Old, &c.Old); err != nil {
			return err
		}
		if err := unmarshalOptional(w.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	case KindVariableExpense, KindFreeFlowingExpense:
		c := ExpenseChange{FreeFlowing: w.Kind == KindFreeFlowingExpense}
		if err := unmarshalOptional(w.Old, &c.Old); err != nil {
			return err
		}
		if err := unmarshalOptional(w.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	case KindBankBalance:
		c := BankBalanceChange{SourceID: w.SourceID}
		if err := unmarshalOptional(w.Old, &c.Old); err != nil {
			return err
		}
		if err := unmarshalOptional(w.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	default:
		return fmt.Errorf("undo entry %s: unknown kind %q", w.ID, w.Kind)
	}
	return nil
}

func nilable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalOptional[T any](data json.RawMessage, out **T) error {
	if len(data) == 0 || string(data) == "null" {
		*out = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*out = &v
	return nil
}
