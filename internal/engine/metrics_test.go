package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
)

func TestMetrics_RunOutcomes(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := createTestEngine(t, s, WithMetrics(m))

	_, err := e.Run(ctx, runConfig(canon.KindProduct),
		newStubFetcher(pagesOf(2, productRaw("A"), productRaw("B"), productRaw("C"))...))
	require.NoError(t, err)

	cfg := runConfig(canon.KindProduct)
	cfg.Limits = limits.Plan{limits.ResourceProduct: 2}
	_, err = e.Run(ctx, cfg, newStubFetcher(pagesOf(2, productRaw("A"), productRaw("D"))...))
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("product", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("product", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("product", "limit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("product", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.deletes.WithLabelValues("product")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration), "one series per kind")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.record(canon.KindOrder, "created")
		m.finished(&canon.SyncRun{Kind: canon.KindOrder, Status: canon.RunCompleted})
		m.deleted(canon.KindProduct, 3)
	})
}

func TestNewMetrics_Unregistered(t *testing.T) {
	m := NewMetrics(nil)
	m.record(canon.KindClaim, "mapping")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("claim", "mapping")))
}
