package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"leftover/internal/core"
)

// memStore is an in-memory Store (and UndoStore) for session tests.
type memStore struct {
	entities core.Entities
	months   map[core.Month]*core.MonthlyData
	undo     []UndoEntry
	failSave bool
}

func newMemStore(entities core.Entities) *memStore {
	return &memStore{
		entities: entities,
		months:   make(map[core.Month]*core.MonthlyData),
	}
}

func (m *memStore) LoadEntities(context.Context) (core.Entities, error) {
	return m.entities, nil
}

func (m *memStore) SaveEntities(_ context.Context, entities core.Entities) error {
	if m.failSave {
		return errors.New("disk full")
	}
	m.entities = entities
	return nil
}

func (m *memStore) LoadMonth(_ context.Context, month core.Month) (*core.MonthlyData, error) {
	data, ok := m.months[month]
	if !ok {
		return nil, nil
	}
	return copyMonth(data), nil
}

func (m *memStore) SaveMonth(_ context.Context, data *core.MonthlyData) error {
	if m.failSave {
		return errors.New("disk full")
	}
	m.months[data.Month] = copyMonth(data)
	return nil
}

func (m *memStore) LoadUndo(context.Context) ([]UndoEntry, error) {
	return m.undo, nil
}

func (m *memStore) SaveUndo(_ context.Context, entries []UndoEntry) error {
	m.undo = entries
	return nil
}

func newTestSession(t *testing.T, store Store) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), store, Options{
		Now: func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func TestSession_GenerateMonthOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())
	s := newTestSession(t, store)

	data, err := s.GenerateMonth(ctx, "2025-03")
	if err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	if len(data.BillInstances) == 0 {
		t.Fatal("GenerateMonth() produced no bill instances")
	}

	if _, err := s.GenerateMonth(ctx, "2025-03"); !errors.Is(err, ErrMonthExists) {
		t.Errorf("second GenerateMonth() error = %v, want ErrMonthExists", err)
	}
}

// A month present on disk but not yet in the cache must not be regenerated
// either; that would discard the user's edits.
func TestSession_GenerateMonthRefusesPersisted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())
	store.months["2025-03"] = core.NewMonthlyData("2025-03")

	s := newTestSession(t, store)
	if _, err := s.GenerateMonth(ctx, "2025-03"); !errors.Is(err, ErrMonthExists) {
		t.Errorf("GenerateMonth() error = %v, want ErrMonthExists", err)
	}
}

func TestSession_MonthNotGenerated(t *testing.T) {
	s := newTestSession(t, newMemStore(testEntities()))
	if _, err := s.Month(context.Background(), "2031-01"); !errors.Is(err, ErrMonthNotFound) {
		t.Errorf("Month() error = %v, want ErrMonthNotFound", err)
	}
}

func TestSession_UpdateBillInstanceAndUndo(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())
	s := newTestSession(t, store)

	data, err := s.GenerateMonth(ctx, "2025-03")
	if err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	var rent core.Instance
	for _, inst := range data.BillInstances {
		if inst.TemplateID == "b-rent" {
			rent = inst
		}
	}

	override := core.Money{Cents: 130000}
	updated, err := s.UpdateBillInstance(ctx, "2025-03", rent.ID, InstancePatch{Amount: &override})
	if err != nil {
		t.Fatalf("UpdateBillInstance() error = %v", err)
	}
	if updated.Amount.Cents != 130000 || updated.IsDefault {
		t.Errorf("updated = %+v, want overridden non-default", updated)
	}
	if s.UndoDepth() != 1 {
		t.Fatalf("UndoDepth() = %d, want 1", s.UndoDepth())
	}

	// The edit survived into the store.
	persisted := store.months["2025-03"]
	if idx := indexOfInstance(persisted.BillInstances, rent.ID); persisted.BillInstances[idx].Amount.Cents != 130000 {
		t.Error("override not persisted")
	}

	reverted, err := s.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if reverted == nil || reverted.Kind != KindBillInstance || reverted.EntityID != rent.ID {
		t.Fatalf("Undo() = %+v, want bill instance revert", reverted)
	}

	after, err := s.Month(ctx, "2025-03")
	if err != nil {
		t.Fatalf("Month() error = %v", err)
	}
	idx := indexOfInstance(after.BillInstances, rent.ID)
	if got := after.BillInstances[idx]; got.Amount.Cents != 120000 || !got.IsDefault {
		t.Errorf("after undo = %+v, want original default", got)
	}

	// History is drained; further undo is a defined no-op.
	if reverted, err := s.Undo(ctx); err != nil || reverted != nil {
		t.Errorf("Undo() on empty = (%+v, %v), want (nil, nil)", reverted, err)
	}
}

func TestSession_NoOpPatchRecordsNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newMemStore(testEntities()))

	data, err := s.GenerateMonth(ctx, "2025-03")
	if err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	inst := data.BillInstances[0]

	same := inst.Amount
	if _, err := s.UpdateBillInstance(ctx, "2025-03", inst.ID, InstancePatch{Amount: &same}); err != nil {
		t.Fatalf("UpdateBillInstance() error = %v", err)
	}
	if s.UndoDepth() != 0 {
		t.Errorf("UndoDepth() = %d after no-op patch, want 0", s.UndoDepth())
	}
}

func TestSession_UndoCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newMemStore(testEntities()))

	data, err := s.GenerateMonth(ctx, "2025-03")
	if err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	inst := data.BillInstances[0]

	for i := 0; i < UndoCapacity+1; i++ {
		amount := core.Money{Cents: 10000 + int64(i)*100}
		if _, err := s.UpdateBillInstance(ctx, "2025-03", inst.ID, InstancePatch{Amount: &amount}); err != nil {
			t.Fatalf("UpdateBillInstance(%d) error = %v", i, err)
		}
	}

	if s.UndoDepth() != UndoCapacity {
		t.Fatalf("UndoDepth() = %d, want %d", s.UndoDepth(), UndoCapacity)
	}
	for i := 0; i < UndoCapacity; i++ {
		if reverted, err := s.Undo(ctx); err != nil || reverted == nil {
			t.Fatalf("Undo(%d) = (%+v, %v)", i, reverted, err)
		}
	}
	if reverted, err := s.Undo(ctx); err != nil || reverted != nil {
		t.Errorf("Undo() past capacity = (%+v, %v), want (nil, nil)", reverted, err)
	}

	// Five undos unwound five of the six edits; the first edit's value
	// remains, because its entry was evicted.
	after, _ := s.Month(ctx, "2025-03")
	idx := indexOfInstance(after.BillInstances, inst.ID)
	if got := after.BillInstances[idx].Amount.Cents; got != 10000 {
		t.Errorf("amount after full unwind = %d, want 10000", got)
	}
}

func TestSession_AddExpenseAndUndo(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newMemStore(testEntities()))

	if _, err := s.GenerateMonth(ctx, "2025-03"); err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}

	expense, err := s.AddVariableExpense(ctx, "2025-03", core.Expense{
		Name:            "Car repair",
		Amount:          core.Money{Cents: 42000},
		PaymentSourceID: "src-1",
	})
	if err != nil {
		t.Fatalf("AddVariableExpense() error = %v", err)
	}
	if expense.ID == "" {
		t.Fatal("expense created without id")
	}

	reverted, err := s.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if reverted.Kind != KindVariableExpense {
		t.Errorf("Undo() kind = %s, want %s", reverted.Kind, KindVariableExpense)
	}

	after, _ := s.Month(ctx, "2025-03")
	if len(after.VariableExpenses) != 0 {
		t.Errorf("expense survived undo: %+v", after.VariableExpenses)
	}
}

func TestSession_AddExpenseRejectsUnknownSource(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newMemStore(testEntities()))
	if _, err := s.GenerateMonth(ctx, "2025-03"); err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}

	_, err := s.AddFreeFlowingExpense(ctx, "2025-03", core.Expense{
		Name:            "Coffee",
		Amount:          core.Money{Cents: 450},
		PaymentSourceID: "nope",
	})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("AddFreeFlowingExpense() error = %v, want ErrSourceNotFound", err)
	}
}

func TestSession_UpdateBankBalance(t *testing.T) {
	ctx := context.Background()
	entities := testEntities()
	entities.PaymentSources = append(entities.PaymentSources, core.PaymentSource{
		ID: "src-card", Name: "Card", Type: core.SourceCreditCard, Active: true,
	})
	s := newTestSession(t, newMemStore(entities))
	if _, err := s.GenerateMonth(ctx, "2025-03"); err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}

	if err := s.UpdateBankBalance(ctx, "2025-03", "src-1", core.Money{Cents: 250000}); err != nil {
		t.Fatalf("UpdateBankBalance() error = %v", err)
	}
	if err := s.UpdateBankBalance(ctx, "2025-03", "src-card", core.Money{Cents: -80000}); err != nil {
		t.Fatalf("UpdateBankBalance(card) error = %v", err)
	}

	// Sign convention: assets never negative, debt never positive.
	if err := s.UpdateBankBalance(ctx, "2025-03", "src-1", core.Money{Cents: -1}); !errors.Is(err, core.ErrBalanceSign) {
		t.Errorf("negative bank balance error = %v, want ErrBalanceSign", err)
	}
	if err := s.UpdateBankBalance(ctx, "2025-03", "src-card", core.Money{Cents: 1}); !errors.Is(err, core.ErrBalanceSign) {
		t.Errorf("positive card balance error = %v, want ErrBalanceSign", err)
	}
	if err := s.UpdateBankBalance(ctx, "2025-03", "ghost", core.Money{Cents: 1}); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("unknown source error = %v, want ErrSourceNotFound", err)
	}

	// Undoing the card's first recording removes the entry entirely.
	reverted, err := s.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if reverted.Kind != KindBankBalance {
		t.Fatalf("Undo() kind = %s, want %s", reverted.Kind, KindBankBalance)
	}
	after, _ := s.Month(ctx, "2025-03")
	if _, ok := after.BankBalances["src-card"]; ok {
		t.Error("first balance recording survived undo")
	}
	if after.BankBalances["src-1"].Cents != 250000 {
		t.Error("unrelated balance was touched by undo")
	}
}

func TestSession_LeftoverReflectsEdits(t *testing.T) {
	ctx := context.Background()
	entities := core.Entities{
		Incomes: []core.Template{
			{ID: "i-pay", Name: "Salary", Amount: core.Money{Cents: 500000}, Period: core.Monthly, PaymentSourceID: "src-1", Active: true},
		},
		Bills: []core.Template{
			{ID: "b-rent", Name: "Rent", Amount: core.Money{Cents: 200000}, Period: core.Monthly, PaymentSourceID: "src-1", Active: true},
		},
		PaymentSources: []core.PaymentSource{
			{ID: "src-1", Name: "Checking", Type: core.SourceBank, Active: true},
		},
	}
	s := newTestSession(t, newMemStore(entities))
	if _, err := s.GenerateMonth(ctx, "2025-03"); err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	if err := s.UpdateBankBalance(ctx, "2025-03", "src-1", core.Money{Cents: 350000}); err != nil {
		t.Fatalf("UpdateBankBalance() error = %v", err)
	}

	breakdown, err := s.ComputeLeftover(ctx, "2025-03")
	if err != nil {
		t.Fatalf("ComputeLeftover() error = %v", err)
	}
	// 3500 + 5000 - 2000 = 6500
	if breakdown.Leftover.Cents != 650000 {
		t.Errorf("leftover = %d, want 650000", breakdown.Leftover.Cents)
	}

	if _, err := s.AddVariableExpense(ctx, "2025-03", core.Expense{
		Name: "Repair", Amount: core.Money{Cents: 50000}, PaymentSourceID: "src-1",
	}); err != nil {
		t.Fatalf("AddVariableExpense() error = %v", err)
	}
	breakdown, _ = s.ComputeLeftover(ctx, "2025-03")
	if breakdown.Leftover.Cents != 600000 {
		t.Errorf("leftover after expense = %d, want 600000", breakdown.Leftover.Cents)
	}
}

func TestSession_SaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())
	s := newTestSession(t, store)

	data, err := s.GenerateMonth(ctx, "2025-03")
	if err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	inst := data.BillInstances[0]

	store.failSave = true
	amount := core.Money{Cents: 99999}
	if _, err := s.UpdateBillInstance(ctx, "2025-03", inst.ID, InstancePatch{Amount: &amount}); err == nil {
		t.Fatal("UpdateBillInstance() succeeded despite save failure")
	}
	store.failSave = false

	if s.UndoDepth() != 0 {
		t.Errorf("UndoDepth() = %d after failed save, want 0", s.UndoDepth())
	}
	after, _ := s.Month(ctx, "2025-03")
	idx := indexOfInstance(after.BillInstances, inst.ID)
	if after.BillInstances[idx].Amount != inst.Amount {
		t.Error("in-memory state diverged from store after failed save")
	}
}

func TestSession_TemplateLifecycleAndUndo(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())
	s := newTestSession(t, store)

	created, err := s.CreateIncomeTemplate(ctx, core.Template{
		Name:            "Side gig",
		Amount:          core.Money{Cents: 50000},
		Period:          core.Monthly,
		PaymentSourceID: "src-1",
		Active:          true,
	})
	if err != nil {
		t.Fatalf("CreateIncomeTemplate() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("template created without id")
	}

	updated := created
	updated.Amount = core.Money{Cents: 60000}
	if _, err := s.UpdateIncomeTemplate(ctx, created.ID, updated); err != nil {
		t.Fatalf("UpdateIncomeTemplate() error = %v", err)
	}

	// Undo the edit, then undo the creation.
	reverted, err := s.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if reverted.Kind != KindIncomeTemplate {
		t.Fatalf("Undo() kind = %s, want %s", reverted.Kind, KindIncomeTemplate)
	}
	if got, _ := s.Entities().IncomeTemplate(created.ID); got.Amount.Cents != 50000 {
		t.Errorf("amount after undo = %d, want 50000", got.Amount.Cents)
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo() of creation error = %v", err)
	}
	if _, ok := s.Entities().IncomeTemplate(created.ID); ok {
		t.Error("created template survived undo of its creation")
	}
}

func TestSession_TemplateEditDoesNotTouchExistingMonths(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newMemStore(testEntities()))
	if _, err := s.GenerateMonth(ctx, "2025-03"); err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}

	tpl, _ := s.Entities().BillTemplate("b-rent")
	tpl.Amount = core.Money{Cents: 1}
	if _, err := s.UpdateBillTemplate(ctx, "b-rent", tpl); err != nil {
		t.Fatalf("UpdateBillTemplate() error = %v", err)
	}

	data, _ := s.Month(ctx, "2025-03")
	for _, inst := range data.BillInstances {
		if inst.TemplateID == "b-rent" && inst.Amount.Cents != 120000 {
			t.Errorf("materialized instance changed with template: %d", inst.Amount.Cents)
		}
	}
}

func TestSession_PersistUndoAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())

	s, err := NewSession(ctx, store, Options{PersistUndo: true})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	data, err := s.GenerateMonth(ctx, "2025-03")
	if err != nil {
		t.Fatalf("GenerateMonth() error = %v", err)
	}
	amount := core.Money{Cents: 77700}
	if _, err := s.UpdateBillInstance(ctx, "2025-03", data.BillInstances[0].ID, InstancePatch{Amount: &amount}); err != nil {
		t.Fatalf("UpdateBillInstance() error = %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	restarted, err := NewSession(ctx, store, Options{PersistUndo: true})
	if err != nil {
		t.Fatalf("NewSession() after restart error = %v", err)
	}
	if restarted.UndoDepth() != 1 {
		t.Fatalf("UndoDepth() after restart = %d, want 1", restarted.UndoDepth())
	}
	if reverted, err := restarted.Undo(ctx); err != nil || reverted == nil {
		t.Errorf("Undo() after restart = (%+v, %v)", reverted, err)
	}
}

func TestSession_DefaultUndoIsSessionScoped(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testEntities())

	s := newTestSession(t, store)
	data, _ := s.GenerateMonth(ctx, "2025-03")
	amount := core.Money{Cents: 88800}
	if _, err := s.UpdateBillInstance(ctx, "2025-03", data.BillInstances[0].ID, InstancePatch{Amount: &amount}); err != nil {
		t.Fatalf("UpdateBillInstance() error = %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	restarted := newTestSession(t, store)
	if restarted.UndoDepth() != 0 {
		t.Errorf("UndoDepth() after restart = %d, want 0", restarted.UndoDepth())
	}
}
