package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// getParam returns a pat path parameter (stored as ":name" in the query), a
// plain query parameter, or a net/http PathValue, in that order.
func getParam(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	if val := r.URL.Query().Get(":" + name); val != "" {
		return val
	}
	if val := r.URL.Query().Get(name); val != "" {
		return val
	}
	return r.PathValue(name)
}

// intParam parses a positive integer parameter; zero means absent or invalid.
func intParam(r *http.Request, name string) int {
	v, err := strconv.Atoi(strings.TrimSpace(getParam(r, name)))
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
