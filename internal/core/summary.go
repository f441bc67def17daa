package core

// LeftoverBreakdown is the headline monthly figure and its components.
// Leftover may be negative; a deficit is a meaningful result, not an error.
type LeftoverBreakdown struct {
	Month             Month `json:"month"`
	TotalCashNetWorth Money `json:"totalCashNetWorth"`
	TotalIncome       Money `json:"totalIncome"`
	TotalBills        Money `json:"totalBills"`
	TotalVariable     Money `json:"totalVariable"`
	TotalExpenses     Money `json:"totalExpenses"`
	Leftover          Money `json:"leftover"`
}
