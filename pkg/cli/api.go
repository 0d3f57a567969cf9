package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/mchmarny/tally/pkg/config"
	"github.com/mchmarny/tally/pkg/counter"
	"github.com/mchmarny/tally/pkg/data"
)

const maxMergeBodyBytes = counter.EncodedSize * 2

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a finite number: %s", key, v)
	}
	return f, nil
}

func queryParamInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func keysAPIHandler(db *data.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := data.ListKeys(db)
		if err != nil {
			slog.Error("failed to list keys", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list keys")
			return
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func stateAPIHandler(db *data.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := data.GetDataState(db)
		if err != nil {
			slog.Error("failed to get state", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get state")
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func statsAPIHandler(db *data.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("k")
		if key == "" {
			writeError(w, http.StatusBadRequest, "key required")
			return
		}

		s, err := data.GetSummary(db, key)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				writeError(w, http.StatusNotFound, "key not found")
				return
			}
			slog.Error("failed to get summary", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func rankAPIHandler(db *data.DB, bounds config.Bounds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lower, err := queryParamFloat(r, "lower", bounds.Lower)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lower bound")
			return
		}
		upper, err := queryParamFloat(r, "upper", bounds.Upper)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upper bound")
			return
		}
		if upper < lower {
			writeError(w, http.StatusBadRequest, "upper bound is less than lower bound")
			return
		}
		limit, err := queryParamInt(r, "limit", 0)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		list, err := data.RankKeys(db, lower, upper, limit)
		if err != nil {
			slog.Error("failed to rank keys", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to rank keys")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func exportAPIHandler(db *data.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("k")
		if key == "" {
			writeError(w, http.StatusBadRequest, "key required")
			return
		}

		c, err := data.GetCounter(db, key)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				writeError(w, http.StatusNotFound, "key not found")
				return
			}
			slog.Error("failed to get counter", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export counter")
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		if _, err := c.WriteTo(w); err != nil {
			slog.Error("failed to write counter", "key", key, "error", err)
		}
	}
}

func mergeAPIHandler(db *data.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("k")
		if key == "" {
			writeError(w, http.StatusBadRequest, "key required")
			return
		}
		shard, err := queryParamInt(r, "s", 0)
		if err != nil || shard < 0 {
			writeError(w, http.StatusBadRequest, "invalid shard")
			return
		}

		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMergeBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}

		if _, err := data.MergeEncoded(db, key, shard, b); err != nil {
			if errors.Is(err, counter.ErrMalformedEncoding) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("failed to merge counter", "key", key, "shard", shard, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to merge counter")
			return
		}

		s, err := data.GetSummary(db, key)
		if err != nil {
			slog.Error("failed to get summary", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
