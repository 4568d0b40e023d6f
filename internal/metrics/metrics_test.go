package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveWalletCall("wager", "ok", 20*time.Millisecond)
	m.ObserveWalletCall("wager", "ok", 30*time.Millisecond)
	m.ObserveWalletCall("wager", "declined", time.Millisecond)
	m.ObserveBreakerRejected("op-thb")
	m.ObserveSettlement("aix", "wager", "OK")
	m.ObserveReplay("aix")
	m.ObserveHTTP("aix", 200)
	m.ObserveHTTP("aix", 502)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.walletCalls.WithLabelValues("wager", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletCalls.WithLabelValues("wager", "declined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerRejected.WithLabelValues("op-thb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("aix", "wager", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues("aix")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("aix", "5xx")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "seamless_wallet_call_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWalletCall("balance", "ok", time.Second)
		m.ObserveBreakerRejected("x")
		m.ObserveSettlement("aix", "balance", "OK")
		m.ObserveReplay("aix")
		m.ObserveHTTP("aix", 200)
	})
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 302: "3xx", 404: "4xx", 503: "5xx"}
	for status, want := range tests {
		assert.Equal(t, want, statusClass(status))
	}
}
