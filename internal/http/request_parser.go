package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"aviary/internal/core"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed requests: bad JSON, bad query parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are ignored. Field-level date and amount errors keep
// their core sentinel so they map to 422.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidAmount):
			return err
		default:
			return badRequest("invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// pathID returns the {id} route variable.
func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// queryString returns a trimmed, sanitized query parameter.
func queryString(q url.Values, key string) string {
	return sanitizeInput(q.Get(key))
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(q url.Values, key string) (core.Date, error) {
	v := queryString(q, key)
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("%s: expected YYYY-MM-DD, got %q", key, v)
	}
	return d, nil
}

// queryRange parses the optional from/to bounds of a date range.
func queryRange(q url.Values) (core.DateRangeFilter, error) {
	from, err := queryDate(q, "from")
	if err != nil {
		return core.DateRangeFilter{}, err
	}
	to, err := queryDate(q, "to")
	if err != nil {
		return core.DateRangeFilter{}, err
	}
	return core.DateRangeFilter{From: from, To: to}, nil
}

// queryInt parses an optional positive integer, returning def when absent.
func queryInt(q url.Values, key string, def int) (int, error) {
	v := queryString(q, key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badRequest("%s: expected a positive integer, got %q", key, v)
	}
	return n, nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
