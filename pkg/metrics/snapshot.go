package metrics

import (
	"fmt"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// Snapshot flattens the current registry into a JSON-friendly map:
// metric name (with label suffix where labelled) to value. Counters and
// gauges report their value; histograms report _count and _sum. The
// admin endpoint serves this when callers want metrics without a
// Prometheus scraper.
func Snapshot() (map[string]float64, error) {
	reg := GetRegistry()
	if reg == nil {
		return map[string]float64{}, nil
	}

	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName() + labelSuffix(m)
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[name] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[name+"_count"] = float64(m.GetHistogram().GetSampleCount())
				out[name+"_sum"] = m.GetHistogram().GetSampleSum()
			case dto.MetricType_SUMMARY:
				out[name+"_count"] = float64(m.GetSummary().GetSampleCount())
				out[name+"_sum"] = m.GetSummary().GetSampleSum()
			}
		}
	}
	return out, nil
}

func labelSuffix(m *dto.Metric) string {
	labels := m.GetLabel()
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
