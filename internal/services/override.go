package services

import (
	"leftover/internal/core"
)

// SetInstanceAmount returns a copy of the instance with a user-entered
// amount applied. IsDefault is a live comparison against the template's
// current default: editing away from the default and back to the exact
// default value flips it back to true.
func SetInstanceAmount(inst core.Instance, tpl core.Template, amount core.Money) (core.Instance, error) {
	if err := amount.Validate(); err != nil {
		return inst, core.Invalid("amount", err)
	}
	out := inst
	out.Amount = amount
	out.IsDefault = amount == tpl.Amount
	return out, nil
}

// TogglePaid flips the paid flag.
func TogglePaid(inst core.Instance) core.Instance {
	out := inst
	out.Paid = !out.Paid
	return out
}

// SetPaid sets the paid flag to an explicit value; used by the PATCH
// surface where the client sends the desired state rather than a toggle.
func SetPaid(inst core.Instance, paid bool) core.Instance {
	out := inst
	out.Paid = paid
	return out
}
