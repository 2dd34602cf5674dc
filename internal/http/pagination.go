package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// page bounds the ?limit= and ?offset= of a list endpoint.
type page struct {
	defLimit int
	maxLimit int
}

var (
	jobPage    = page{defLimit: 50, maxLimit: 500}
	appPage    = page{defLimit: 100, maxLimit: 1000}
	backupPage = page{defLimit: 100, maxLimit: 1000}
)

// parse reads limit and offset from r. Missing or malformed values fall back
// to the defaults; limit is clamped to [1, maxLimit] and offset to >= 0.
func (p page) parse(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit = min(max(queryInt(q.Get("limit"), p.defLimit), 1), max(p.maxLimit, 1))
	offset = max(queryInt(q.Get("offset"), 0), 0)
	return limit, offset
}

func queryInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
