package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionalID(t *testing.T) {
	id, err := ParseOptionalID(url.Values{"councilId": {"7"}}, "councilId")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(7), *id)

	for _, raw := range []string{"", "all", "ALL", " "} {
		id, err := ParseOptionalID(url.Values{"councilId": {raw}}, "councilId")
		require.NoError(t, err)
		assert.Nil(t, id, raw)
	}

	for _, raw := range []string{"x", "-1", "0", "1.5"} {
		_, err := ParseOptionalID(url.Values{"councilId": {raw}}, "councilId")
		assert.Error(t, err, raw)
	}
}

func TestRequireParams(t *testing.T) {
	q := url.Values{"startDate": {"2025-06-01"}, "endDate": {" 2025-06-28 "}}

	got, err := RequireParams(q, "startDate", "endDate")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-01", "2025-06-28"}, got)

	_, err = RequireParams(url.Values{"startDate": {"2025-06-01"}}, "startDate", "endDate")
	assert.EqualError(t, err, "endDate is required")
}
