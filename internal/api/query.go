package api

import (
	"net/http"
	"strconv"
)

// queryInt reads an integer query parameter, falling back to def when
// absent or malformed. Range clamping is left to the services.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
