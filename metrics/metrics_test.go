package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveEventKindIncrementsCounter(t *testing.T) {
	m := New("tmtoolkit_test")
	m.ObserveEventKind("Connected")
	m.ObserveEventKind("Connected")
	m.ObserveEventKind("Upgraded")

	require.Equal(t, float64(2), testutil.ToFloat64(m.EventsTotal.WithLabelValues("Connected")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.EventsTotal.WithLabelValues("Upgraded")))
}

func TestObserveForkKindIncrementsCounter(t *testing.T) {
	m := New("tmtoolkit_test")
	m.ObserveForkKind("Forked")

	require.Equal(t, float64(1), testutil.ToFloat64(m.ForksDetectedTotal.WithLabelValues("Forked")))
}

func TestCollectorsRegisterWithoutError(t *testing.T) {
	m := New("tmtoolkit_test_registry")
	registry := prometheus.NewRegistry()
	for _, c := range m.Collectors() {
		require.NoError(t, registry.Register(c))
	}
}
