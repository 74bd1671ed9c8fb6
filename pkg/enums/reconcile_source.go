package enums

// ReconcileSource identifies which path delivered a payment outcome.
type ReconcileSource string

const (
	ReconcileSourceClientPoll  ReconcileSource = "client_poll"
	ReconcileSourceWebhook     ReconcileSource = "webhook"
	ReconcileSourceExpirySweep ReconcileSource = "expiry_sweep"
)

var validReconcileSources = []ReconcileSource{
	ReconcileSourceClientPoll,
	ReconcileSourceWebhook,
	ReconcileSourceExpirySweep,
}

func (s ReconcileSource) String() string { return string(s) }

func (s ReconcileSource) IsValid() bool { return isOneOf(validReconcileSources, s) }

func ParseReconcileSource(value string) (ReconcileSource, error) {
	return parseOneOf(validReconcileSources, value, "reconcile source")
}
