package services

import (
	"fmt"

	"github.com/google/uuid"

	"leftover/internal/core"
)

// GenerateMonth expands every active template into the month's instance
// collections. It is a pure function of (entities, month) modulo the
// generated instance ids: the same template snapshot always yields the
// same amounts, dates and counts.
//
// Callers must ensure no MonthlyData exists for the month yet; the engine
// deliberately has no regeneration path, because regenerating would
// silently discard user edits. Existence checking lives in the Session.
func GenerateMonth(month core.Month, entities core.Entities) (*core.MonthlyData, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}

	data := core.NewMonthlyData(month)

	bills, err := expandTemplates(month, entities.Bills)
	if err != nil {
		return nil, fmt.Errorf("expand bill templates: %w", err)
	}
	data.BillInstances = bills

	incomes, err := expandTemplates(month, entities.Incomes)
	if err != nil {
		return nil, fmt.Errorf("expand income templates: %w", err)
	}
	data.IncomeInstances = incomes

	return data, nil
}

func expandTemplates(month core.Month, templates []core.Template) ([]core.Instance, error) {
	instances := []core.Instance{}
	for _, tpl := range templates {
		if !tpl.Active {
			continue
		}
		sched, err := ComputeInstances(tpl.Period, month, Anchor{
			Weekday:  tpl.AnchorWeekday,
			DueMonth: tpl.DueMonth,
		})
		if err != nil {
			return nil, fmt.Errorf("template %s (%s): %w", tpl.ID, tpl.Name, err)
		}
		for _, date := range sched.Dates {
			// Amount is copied, never referenced: later template edits
			// must not reach into already-materialized months.
			instances = append(instances, core.Instance{
				ID:         uuid.NewString(),
				TemplateID: tpl.ID,
				Month:      month,
				DueDate:    date,
				Amount:     tpl.Amount,
				IsDefault:  true,
				Paid:       false,
			})
		}
	}
	return instances, nil
}
