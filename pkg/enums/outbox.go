package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
)

var validAggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateCheckoutSession}

func (a OutboxAggregateType) IsValid() bool { return isOneOf(validAggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseOneOf(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderPaid                 OutboxEventType = "order_paid"
	EventOrderFulfillmentException OutboxEventType = "order_fulfillment_exception"
	EventCheckoutSessionExpired    OutboxEventType = "checkout_session_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderFulfillmentException,
	EventCheckoutSessionExpired,
}

func (e OutboxEventType) IsValid() bool { return isOneOf(validOutboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseOneOf(validOutboxEventTypes, value, "event type")
}

// OutboxDLQErrorReason records why a row was moved to outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return isOneOf([]OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}, r)
}
