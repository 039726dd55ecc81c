package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	before := testutil.ToFloat64(IndexBuildsTotal.WithLabelValues("rebuild"))
	IndexBuildsTotal.WithLabelValues("rebuild").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(IndexBuildsTotal.WithLabelValues("rebuild")))

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kd_index_builds_total")
}
