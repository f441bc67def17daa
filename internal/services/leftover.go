package services

import (
	"leftover/internal/core"
)

// ComputeLeftover aggregates the month into its headline figure:
//
//	totalCashNetWorth = Σ balance(bank, cash) + Σ balance(creditCard)
//	leftover          = totalCashNetWorth + totalIncome - totalBills - totalVariable
//
// Balances come from the month's BankBalances map; a source with no
// balance recorded for the month counts as 0. Credit card balances are
// stored negative, so plain summation yields the correct net worth. All
// arithmetic is integer cents; a negative leftover is a valid deficit.
func ComputeLeftover(data *core.MonthlyData, sources []core.PaymentSource) core.LeftoverBreakdown {
	var net int64
	for _, ps := range sources {
		if !ps.Active {
			continue
		}
		net += data.BankBalances[ps.ID].Cents
	}

	var income int64
	for _, inst := range data.IncomeInstances {
		income += inst.Amount.Cents
	}

	var bills int64
	for _, inst := range data.BillInstances {
		bills += inst.Amount.Cents
	}

	var variable int64
	for _, e := range data.VariableExpenses {
		variable += e.Amount.Cents
	}
	for _, e := range data.FreeFlowingExpenses {
		variable += e.Amount.Cents
	}

	return core.LeftoverBreakdown{
		Month:             data.Month,
		TotalCashNetWorth: core.Money{Cents: net},
		TotalIncome:       core.Money{Cents: income},
		TotalBills:        core.Money{Cents: bills},
		TotalVariable:     core.Money{Cents: variable},
		TotalExpenses:     core.Money{Cents: bills + variable},
		Leftover:          core.Money{Cents: net + income - bills - variable},
	}
}
