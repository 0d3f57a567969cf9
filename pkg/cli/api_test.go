package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/tally/pkg/config"
	"github.com/mchmarny/tally/pkg/counter"
	"github.com/mchmarny/tally/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBounds = config.Bounds{Lower: 1, Upper: 5}

func setupTestRouter(t *testing.T) *http.ServeMux {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, data.Init(data.DriverSQLite, path))
	db, err := data.GetDB(data.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = data.ImportValues(t.Context(), db, strings.NewReader(testValues), data.ImportOptions{Shards: 2})
	require.NoError(t, err)

	return makeRouter(db, testBounds)
}

func serve(mux *http.ServeMux, method, target string, body []byte) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestKeysAPI(t *testing.T) {
	mux := setupTestRouter(t)

	w := serve(mux, http.MethodGet, "/data/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var keys []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&keys))
	assert.Equal(t, []string{"beer-a", "beer-b", "beer-c"}, keys)
}

func TestStateAPI(t *testing.T) {
	mux := setupTestRouter(t)

	w := serve(mux, http.MethodGet, "/data/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state map[string]int64
	require.NoError(t, json.NewDecoder(w.Body).Decode(&state))
	assert.Equal(t, int64(3), state["keys"])
}

func TestStatsAPI(t *testing.T) {
	mux := setupTestRouter(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"found", "/data/stats?k=beer-a", http.StatusOK},
		{"missing key param", "/data/stats", http.StatusBadRequest},
		{"unknown key", "/data/stats?k=nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := serve(mux, http.MethodGet, "/data/stats?k=beer-a", nil)
	var s data.KeySummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&s))
	assert.Equal(t, uint64(2), s.Stats.Count)
	assert.Equal(t, 4.5, *s.Stats.Mean)
}

func TestRankAPI(t *testing.T) {
	mux := setupTestRouter(t)

	tests := []struct {
		name   string
		target string
		status int
		count  int
	}{
		{"defaults", "/data/rank", http.StatusOK, 3},
		{"limit", "/data/rank?limit=2", http.StatusOK, 2},
		{"bounds", "/data/rank?lower=0&upper=10", http.StatusOK, 3},
		{"bad lower", "/data/rank?lower=x", http.StatusBadRequest, 0},
		{"bad upper", "/data/rank?upper=x", http.StatusBadRequest, 0},
		{"inverted", "/data/rank?lower=5&upper=1", http.StatusBadRequest, 0},
		{"nan lower", "/data/rank?lower=NaN", http.StatusBadRequest, 0},
		{"inf upper", "/data/rank?upper=Inf", http.StatusBadRequest, 0},
		{"negative inf lower", "/data/rank?lower=-inf", http.StatusBadRequest, 0},
		{"bad limit", "/data/rank?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var list []*data.RankedItem
			require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
			assert.Len(t, list, tt.count)
			assert.Equal(t, "beer-a", list[0].Key)
		})
	}
}

func TestExportAPI(t *testing.T) {
	mux := setupTestRouter(t)

	w := serve(mux, http.MethodGet, "/data/export?k=beer-b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	require.Len(t, w.Body.Bytes(), counter.EncodedSize)

	c, err := counter.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Count())
	assert.Equal(t, 2.0, c.Min())
	assert.Equal(t, 3.0, c.Max())

	assert.Equal(t, http.StatusNotFound, serve(mux, http.MethodGet, "/data/export?k=nope", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/data/export", nil).Code)
}

func TestMergeAPI(t *testing.T) {
	mux := setupTestRouter(t)

	in := counter.New()
	in.Increment(1)
	in.Increment(2)

	w := serve(mux, http.MethodPost, "/data/merge?k=beer-b&s=1", in.ToBytes())
	require.Equal(t, http.StatusOK, w.Code)

	var s data.KeySummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&s))
	assert.Equal(t, uint64(4), s.Stats.Count)
	assert.Equal(t, 2.0, *s.Stats.Mean)
	assert.Equal(t, 1.0, *s.Stats.Min)

	// new key
	w = serve(mux, http.MethodPost, "/data/merge?k=fresh", in.ToBytes())
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name   string
		target string
		body   []byte
		status int
	}{
		{"missing key", "/data/merge", in.ToBytes(), http.StatusBadRequest},
		{"bad shard", "/data/merge?k=a&s=x", in.ToBytes(), http.StatusBadRequest},
		{"short body", "/data/merge?k=a", []byte{1, 2, 3}, http.StatusBadRequest},
		{"long body", "/data/merge?k=a", make([]byte, counter.EncodedSize+1), http.StatusBadRequest},
		{"empty body", "/data/merge?k=a", []byte{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, serve(mux, http.MethodPost, tt.target, tt.body).Code)
		})
	}

	assert.Equal(t, http.StatusMethodNotAllowed, serve(mux, http.MethodGet, "/data/merge?k=a", nil).Code)
}
