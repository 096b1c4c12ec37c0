package models

// transitions lists every legal move of the reconciliation state machine.
// Terminal states have no outgoing edges. CANCELLED is reachable from both
// open states so provider cancellations and refunds are recorded.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated: {PaymentStatusApproved, PaymentStatusPending, PaymentStatusRejected, PaymentStatusCancelled},
	PaymentStatusPending: {PaymentStatusApproved, PaymentStatusRejected, PaymentStatusCancelled},
}

// IsValid reports whether s is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusApproved, PaymentStatusPending,
		PaymentStatusRejected, PaymentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s can never change again
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusRejected, PaymentStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is not a transition and returns false.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsFulfillmentEdge reports whether moving from -> to is the first approval of an order
func IsFulfillmentEdge(from, to PaymentStatus) bool {
	return to == PaymentStatusApproved && (from == PaymentStatusCreated || from == PaymentStatusPending)
}
