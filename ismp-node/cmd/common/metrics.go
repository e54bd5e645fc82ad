package common

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"

	"github.com/oasisprotocol/ismp/config"
)

// PushMetrics pushes the collected metrics to the configured Pushgateway.
// It is a no-op unless the push mode is enabled.
func PushMetrics(cfg *config.MetricsConfig) error {
	if cfg.Mode != config.MetricsModePush {
		return nil
	}

	pusher := push.New(cfg.Address, cfg.JobName).Gatherer(prometheus.DefaultGatherer)
	for k, v := range cfg.Labels {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// DumpMetrics writes the metrics collected by the gatherer to w in the
// Prometheus text exposition format.
func DumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err = enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}
