package residue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/cache"
	"github.com/snow-ghost/bindopt/pkg/limiter"
)

func TestDefaultVocabulary(t *testing.T) {
	vocab := DefaultVocabulary()
	require.Len(t, vocab, 33)
	assert.Equal(t, MaskToken, vocab[32])

	seen := 0
	for _, tok := range vocab {
		if len(tok) == 1 && core.IsResidue(tok[0]) {
			seen++
		}
	}
	assert.Equal(t, len(core.Residues), seen)

	vocab[0] = "changed"
	assert.Equal(t, "<cls>", DefaultVocabulary()[0])
}

func TestProfileOracle(t *testing.T) {
	vocab := DefaultVocabulary()
	o, err := NewProfileOracle(vocab, map[string]float64{"W": 2, "A": 1})
	require.NoError(t, err)

	out, err := o.Predict(context.Background(), []string{"AC?", "W"})
	require.NoError(t, err)
	require.NoError(t, checkShape([]string{"AC?", "W"}, out, len(vocab)))
	assert.Equal(t, 2.0, out[0][2][22])
	assert.Equal(t, 1.0, out[1][0][5])

	out[0][0][22] = 100
	assert.Equal(t, 2.0, out[0][1][22], "positions do not share storage")

	_, err = NewProfileOracle(vocab, map[string]float64{"J": 1})
	require.Error(t, err)
	_, err = NewProfileOracle(vocab, map[string]float64{"A": -1})
	require.Error(t, err)
}

func TestUniformProfile(t *testing.T) {
	profile := UniformProfile(DefaultVocabulary(), core.Residues)
	assert.Len(t, profile, 20)
	assert.NotContains(t, profile, "X")
	assert.NotContains(t, profile, MaskToken)
}

// predictServer answers with a one-hot distribution on "W" and records the
// token lists it received.
func predictServer(t *testing.T, requests *atomic.Int32, seen *[][]string, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	vocab := DefaultVocabulary()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		requests.Add(1)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		*seen = append(*seen, req.Sequences...)
		mu.Unlock()

		out := predictResponse{Distributions: make([][][]float64, len(req.Sequences))}
		for i, toks := range req.Sequences {
			out.Distributions[i] = make([][]float64, len(toks))
			for pos := range toks {
				row := make([]float64, len(vocab))
				row[22] = 1
				out.Distributions[i][pos] = row
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestHTTPOracleTranslatesPlaceholders(t *testing.T) {
	var (
		requests atomic.Int32
		seen     [][]string
		mu       sync.Mutex
	)
	server := predictServer(t, &requests, &seen, &mu)
	defer server.Close()

	o, err := NewHTTPOracle(HTTPConfig{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	assert.Len(t, o.Vocabulary(), 33)

	out, err := o.Predict(context.Background(), []string{"A?C"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 3)
	assert.Equal(t, [][]string{{"A", MaskToken, "C"}}, seen)
}

func TestHTTPOracleShapeAndStatusErrors(t *testing.T) {
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"distributions":[[[1]]]}`))
	}))
	defer short.Close()

	o, err := NewHTTPOracle(HTTPConfig{BaseURL: short.URL}, nil)
	require.NoError(t, err)
	_, err = o.Predict(context.Background(), []string{"AC"})
	require.ErrorIs(t, err, core.ErrOracleMismatch)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer failing.Close()

	pm := limiter.NewProtectionManager(nil, nil)
	o, err = NewHTTPOracle(HTTPConfig{BaseURL: failing.URL}, pm)
	require.NoError(t, err)
	_, err = o.Predict(context.Background(), []string{"AC"})
	var httpErr *limiter.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)

	_, err = NewHTTPOracle(HTTPConfig{}, nil)
	require.Error(t, err)
}

func TestCachedSharesIdenticalQueries(t *testing.T) {
	var (
		requests atomic.Int32
		seen     [][]string
		mu       sync.Mutex
	)
	server := predictServer(t, &requests, &seen, &mu)
	defer server.Close()

	remote, err := NewHTTPOracle(HTTPConfig{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	cm, err := cache.NewCacheManager[[][]float64]("residue", nil, nil)
	require.NoError(t, err)
	defer cm.Close()
	c := NewCached(remote, cm)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Predict(context.Background(), []string{"??DE"})
			assert.NoError(t, err)
			assert.Len(t, out, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), requests.Load())

	out, err := c.Predict(context.Background(), []string{"??DE", "A?", "A?"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Len(t, out[1], 2)
	assert.Equal(t, int32(2), requests.Load())

	mu.Lock()
	last := seen[len(seen)-1]
	mu.Unlock()
	assert.Equal(t, []string{"A", MaskToken}, last, "only the distinct miss is forwarded")
}
