package core

import "context"

// Every factory operation emits a counter "profiles.<operation>.total"
// and a histogram "profiles.<operation>.duration_ms", tagged with the
// operation, its status, and whichever of profile_id / address_id /
// instance_id / credentials_id the operation carries. MetricsRecorder
// (contracts.go) is the sink; hosts plug their own through
// WithMetricsRecorder.
const metricNamespace = "profiles"

func metricName(operation string, suffix string) string {
	return metricNamespace + "." + operation + "." + suffix
}

// NopMetricsRecorder drops every measurement. Factories built without
// WithMetricsRecorder fall back to it.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
