package enums

// CheckoutSessionStatus maps to the checkout_session_status enum in Postgres.
// pending is the only non-terminal state.
type CheckoutSessionStatus string

const (
	CheckoutSessionStatusPending  CheckoutSessionStatus = "pending"
	CheckoutSessionStatusPaid     CheckoutSessionStatus = "paid"
	CheckoutSessionStatusFailed   CheckoutSessionStatus = "failed"
	CheckoutSessionStatusCanceled CheckoutSessionStatus = "canceled"
)

var validCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionStatusPending,
	CheckoutSessionStatusPaid,
	CheckoutSessionStatusFailed,
	CheckoutSessionStatusCanceled,
}

func (s CheckoutSessionStatus) String() string { return string(s) }

func (s CheckoutSessionStatus) IsValid() bool {
	return isOneOf(validCheckoutSessionStatuses, s)
}

func (s CheckoutSessionStatus) IsTerminal() bool {
	return s.IsValid() && s != CheckoutSessionStatusPending
}

// CanTransitionTo reports whether s may move to next.
func (s CheckoutSessionStatus) CanTransitionTo(next CheckoutSessionStatus) bool {
	return s == CheckoutSessionStatusPending && next.IsTerminal()
}

func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	return parseOneOf(validCheckoutSessionStatuses, value, "checkout session status")
}
