// Package services implements the budget calculation engine: billing
// period expansion, month generation, instance overrides, the leftover
// aggregation and the undo stack, all orchestrated by a Session.
//
// This file implements the Strategy Pattern for billing period expansion.
// Each period (monthly, weekly, biweekly, semiannually) has its own rule
// that encapsulates how many occurrences fall in a calendar month.
package services

import (
	"fmt"
	"time"

	"leftover/internal/core"
)

// Anchor carries the template fields a period rule may need: the weekday
// for weekly/biweekly cadences and the first due month for semiannual
// templates.
type Anchor struct {
	Weekday  time.Weekday
	DueMonth time.Month
}

// Schedule is the expansion of one billing period within one month.
// Count is always an exact integer; annualized averages like 4.33 are a
// display concern and never appear here.
type Schedule struct {
	Count int
	Dates []time.Time
}

// PeriodRule is the strategy interface for expanding a billing period.
type PeriodRule interface {
	// Expand returns the occurrence dates within the month, in order.
	Expand(month core.Month, anchor Anchor) []time.Time
}

// MonthlyRule yields exactly one occurrence, on the first of the month.
type MonthlyRule struct{}

func (MonthlyRule) Expand(month core.Month, _ Anchor) []time.Time {
	return []time.Time{month.First()}
}

// WeeklyRule yields one occurrence per anchor weekday in the month,
// always 4 or 5.
type WeeklyRule struct{}

func (WeeklyRule) Expand(month core.Month, anchor Anchor) []time.Time {
	var dates []time.Time
	for d := firstWeekday(month, anchor.Weekday); d.Month() == month.MonthOfYear(); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}

// BiweeklyRule yields the anchor-weekday occurrences that fall on a
// 14-day cadence from a fixed epoch, always 2 or 3 per month.
type BiweeklyRule struct{}

// cadenceEpoch is the fixed starting point for biweekly cadences. The
// concrete date is arbitrary; it only needs to be stable so the same
// template always lands on the same alternating weeks.
var cadenceEpoch = time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)

func (BiweeklyRule) Expand(month core.Month, anchor Anchor) []time.Time {
	start := cadenceEpoch.AddDate(0, 0, weekdayOffset(cadenceEpoch.Weekday(), anchor.Weekday))
	var dates []time.Time
	for d := firstWeekday(month, anchor.Weekday); d.Month() == month.MonthOfYear(); d = d.AddDate(0, 0, 7) {
		days := int(d.Sub(start).Hours() / 24)
		if ((days%14)+14)%14 == 0 {
			dates = append(dates, d)
		}
	}
	return dates
}

// SemiannualRule yields one occurrence when the month is one of the
// template's two due months (DueMonth and DueMonth+6), zero otherwise.
// A single semiannual template never produces more than one instance in
// a month.
type SemiannualRule struct{}

func (SemiannualRule) Expand(month core.Month, anchor Anchor) []time.Time {
	second := anchor.DueMonth + 6
	if second > time.December {
		second -= 12
	}
	if m := month.MonthOfYear(); m == anchor.DueMonth || m == second {
		return []time.Time{month.First()}
	}
	return nil
}

// periodRules maps billing periods to their rules. The registry gives
// O(1) lookup and keeps the set of supported periods extensible.
var periodRules = map[core.BillingPeriod]PeriodRule{
	core.Monthly:      MonthlyRule{},
	core.Weekly:       WeeklyRule{},
	core.Biweekly:     BiweeklyRule{},
	core.Semiannually: SemiannualRule{},
}

// RegisterPeriodRule registers a rule for a new billing period, allowing
// extension without touching the built-in rules.
func RegisterPeriodRule(period core.BillingPeriod, rule PeriodRule) {
	periodRules[period] = rule
}

// ComputeInstances expands a billing period within a month. An unknown
// period or malformed month is rejected before any work; the expansion
// itself is deterministic and side-effect free.
func ComputeInstances(period core.BillingPeriod, month core.Month, anchor Anchor) (Schedule, error) {
	if err := month.Validate(); err != nil {
		return Schedule{}, err
	}
	rule, ok := periodRules[period]
	if !ok {
		return Schedule{}, fmt.Errorf("unknown billing period: %q", period)
	}
	dates := rule.Expand(month, anchor)
	return Schedule{Count: len(dates), Dates: dates}, nil
}

// firstWeekday returns the first occurrence of w in the month.
func firstWeekday(month core.Month, w time.Weekday) time.Time {
	first := month.First()
	return first.AddDate(0, 0, weekdayOffset(first.Weekday(), w))
}

// weekdayOffset returns the days from weekday `from` forward to `to`, 0-6.
func weekdayOffset(from, to time.Weekday) int {
	return (int(to) - int(from) + 7) % 7
}
