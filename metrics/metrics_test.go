package metrics

import (
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetrics(t *testing.T) {
	t.Parallel()
	m := New("node1")

	l := ledger.New(&ledger.Options{Recorder: m})
	tx, _, err := transaction.Issue("doctor1", "patient1", "Aspirin")
	require.NoError(t, err)
	_, err = l.Append([]transaction.Transaction{*tx, *tx})
	require.NoError(t, err)
	_, err = l.Append(nil)
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BlocksProcessed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TransactionsProcessed))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ChainHeight))

	longer := ledger.New(nil)
	for i := 0; i < 5; i++ {
		_, err = longer.Append(nil)
		require.NoError(t, err)
	}
	replaced, err := l.ReplaceIfLonger(longer.Snapshot())
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, float64(6), testutil.ToFloat64(m.ChainHeight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChainReplacements))
	// replaced blocks are not counted as processed
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BlocksProcessed))

	m.SyncFailed("http://node2:8080")
	m.SyncFailed("http://node2:8080")
	m.SyncFailed("http://node3:8080")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SyncFailures.WithLabelValues("http://node2:8080")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SyncFailures.WithLabelValues("http://node3:8080")))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New("node7")
	m.BlockAppended(ledger.Block{Index: 1}, 2)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `blocks_processed_total{node_id="node7"} 1`)
	assert.Contains(t, string(body), `chain_height{node_id="node7"} 2`)
	assert.Contains(t, string(body), `go_goroutines`)
}

func TestMetrics_SeveralNodes(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		New("node1")
		New("node1")
	})
}
