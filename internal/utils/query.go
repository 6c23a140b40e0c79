package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseOptionalID reads an integer id parameter. Missing, empty and "all"
// mean no filter and return nil.
//
//	?councilId=7    → 7
//	?councilId=all  → nil
func ParseOptionalID(q url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid %s %q", key, raw)
	}
	return &id, nil
}

// RequireParams returns the named parameters, or an error naming the first
// one that is missing.
func RequireParams(q url.Values, keys ...string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimSpace(q.Get(k))
		if out[i] == "" {
			return nil, fmt.Errorf("%s is required", k)
		}
	}
	return out, nil
}
