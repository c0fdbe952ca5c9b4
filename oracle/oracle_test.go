package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/oracle/mock"
	"github.com/snow-ghost/bindopt/pkg/cache"
	"github.com/snow-ghost/bindopt/pkg/limiter"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/pkg/tracing"
)

func pairs(candidates ...string) []core.Pair {
	out := make([]core.Pair, len(candidates))
	for i, c := range candidates {
		out[i] = core.Pair{Candidate: c, Target: "KKLL"}
	}
	return out
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCheckReportsMismatch(t *testing.T) {
	require.NoError(t, Check(pairs("A", "B"), []float64{1, 2}))
	err := Check(pairs("A", "B"), []float64{1})
	require.ErrorIs(t, err, core.ErrOracleMismatch)

	_, err = Score(context.Background(), mock.ShortOracle{}, pairs("A", "B"))
	require.ErrorIs(t, err, core.ErrOracleMismatch)
}

func TestHTTPOracleRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Pairs))
		for i, p := range req.Pairs {
			scores[i] = float64(len(p.Candidate))
		}
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	o, err := NewHTTPOracle(HTTPConfig{BaseURL: server.URL + "/", APIKey: "secret"})
	require.NoError(t, err)

	scores, err := o.Score(context.Background(), pairs("ACD", "A", "ACDEF"))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 5}, scores)
}

func TestHTTPOracleErrors(t *testing.T) {
	_, err := NewHTTPOracle(HTTPConfig{})
	require.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	o, err := NewHTTPOracle(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = o.Score(context.Background(), pairs("A"))
	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"scores":[1]}`))
	}))
	defer short.Close()
	o, err = NewHTTPOracle(HTTPConfig{BaseURL: short.URL})
	require.NoError(t, err)
	_, err = o.Score(context.Background(), pairs("A", "B"))
	require.ErrorIs(t, err, core.ErrOracleMismatch)
}

func TestBatchedChunksInOrder(t *testing.T) {
	inner := mock.NewFuncOracle(mock.Length)
	b := NewBatched(inner, 2)

	scores, err := b.Score(context.Background(), pairs("A", "AA", "AAA", "AAAA", "AAAAA"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, scores)

	batches := inner.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[2], 1)
}

func TestCachedForwardsOnlyMisses(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheusMetrics(reg)
	cm, err := cache.NewCacheManager[float64]("scores", cache.DefaultCacheConfig(), m)
	require.NoError(t, err)
	defer cm.Close()

	inner := mock.NewFuncOracle(mock.Length)
	c := NewCached(inner, cm)

	scores, err := c.Score(context.Background(), pairs("A", "AA", "A"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 1}, scores)
	require.Len(t, inner.Batches(), 1)
	assert.Len(t, inner.Batches()[0], 2, "duplicate pair forwarded once")

	scores, err = c.Score(context.Background(), pairs("AA", "AAA"))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, scores)
	require.Len(t, inner.Batches(), 2)
	assert.Equal(t, pairs("AAA"), inner.Batches()[1])

	_, err = c.Score(context.Background(), pairs("A", "AAA"))
	require.NoError(t, err)
	assert.Len(t, inner.Batches(), 2, "all hits, no call")

	assert.Equal(t, 3.0, counterValue(t, reg, "bindopt_cache_hits_total"))
	assert.Equal(t, 4.0, counterValue(t, reg, "bindopt_cache_misses_total"))
}

func TestCachedKeysByTarget(t *testing.T) {
	cm, err := cache.NewCacheManager[float64]("scores", nil, nil)
	require.NoError(t, err)
	defer cm.Close()

	inner := mock.NewFuncOracle(func(c, t string) float64 { return float64(len(c) * len(t)) })
	c := NewCached(inner, cm)

	scores, err := c.Score(context.Background(), []core.Pair{
		{Candidate: "AA", Target: "K"},
		{Candidate: "AA", Target: "KK"},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, scores)
}

func TestProtectedRetriesRetryableFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"scores":[7]}`))
	}))
	defer server.Close()

	inner, err := NewHTTPOracle(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	pm := limiter.NewProtectionManager(nil, metrics.NewPrometheusMetrics(reg))
	p := NewProtected(inner, "scorer", pm, limiter.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	scores, err := p.Score(context.Background(), pairs("A"))
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, scores)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, counterValue(t, reg, "bindopt_retries_total"))
}

func TestProtectedDoesNotRetryPermanentFailures(t *testing.T) {
	inner := &mock.FailingOracle{}
	pm := limiter.NewProtectionManager(nil, nil)
	p := NewProtected(inner, "broken", pm, limiter.Policy{MaxRetries: 3, BaseDelay: time.Millisecond})

	_, err := p.Score(context.Background(), pairs("A"))
	require.ErrorIs(t, err, mock.ErrUnavailable)
}

func TestInstrumentedRecordsCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheusMetrics(reg)

	ok := NewInstrumented(mock.NewConstantOracle(1), "const", tracing.NewNoopTracer(), m, nil)
	_, err := ok.Score(context.Background(), pairs("A", "B"))
	require.NoError(t, err)

	bad := NewInstrumented(&mock.FailingOracle{}, "fail", nil, m, nil)
	_, err = bad.Score(context.Background(), pairs("A"))
	require.Error(t, err)

	assert.Equal(t, 2.0, counterValue(t, reg, "bindopt_oracle_calls_total"))
	assert.Equal(t, 3.0, counterValue(t, reg, "bindopt_oracle_items_total"))
}
