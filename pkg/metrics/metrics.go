// Package metrics holds the Prometheus collectors the storefront binaries
// register. Every recorder is safe to use when nil or built without a
// registerer.
package metrics

const unknownLabel = "unknown"

func normalizeLabel(value string) string {
	if value == "" {
		return unknownLabel
	}
	return value
}
