package models

// Status is the lifecycle state of a contribution due.
type Status string

const (
	// StatusPending: created, nothing paid, due date not yet past grace.
	StatusPending Status = "pending"
	// StatusPartial: some payment applied, balance remains.
	StatusPartial Status = "partial"
	// StatusPaid: fully settled. Terminal for payments.
	StatusPaid Status = "paid"
	// StatusLate: pending past the grace period. Still payable.
	StatusLate Status = "late"
	// StatusMissed: the cycle closed unpaid. No further payment accepted.
	StatusMissed Status = "missed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusLate, StatusMissed:
		return true
	}
	return false
}

// Payable reports whether a due in this state may still receive payment.
func (s Status) Payable() bool {
	switch s {
	case StatusPending, StatusPartial, StatusLate:
		return true
	}
	return false
}
