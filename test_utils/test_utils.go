package test_utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/transaction"
	"github.com/stretchr/testify/require"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var Drugs = []string{"Aspirin", "Ibuprofen", "Amoxicillin", "Metformin", "Lisinopril", "Atorvastatin"}

var loggerRuns sync.Map

// loggerInstance names the n-th logger of a test, so two nodes of the same test log under different instances.
func loggerInstance(t testing.TB) string {
	counter, _ := loggerRuns.LoadOrStore(t.Name(), new(int64))
	n := atomic.AddInt64(counter.(*int64), 1) - 1
	return fmt.Sprintf("%s_%d", t.Name(), n)
}

// GetRandomString returns length random hex characters.
func GetRandomString(length int) string {
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic("cannot read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)[:length]
}

// GetTestLogger returns a console logger tagged with the test name. Set SECURERX_TEST_LOGS=1 to see the output.
func GetTestLogger(t testing.TB) zerolog.Logger {
	var out io.Writer = io.Discard
	if os.Getenv("SECURERX_TEST_LOGS") != "" {
		out = os.Stdout
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.StampMilli, NoColor: true}).
		With().Timestamp().Str("instance", loggerInstance(t)).Logger().
		Level(zerolog.TraceLevel)
}

// SignedTransaction issues a correctly signed prescription for payload, with random issuer and subject ids.
func SignedTransaction(t testing.TB, payload string) transaction.Transaction {
	tx, _, err := transaction.Issue("doctor-"+GetRandomString(6), "patient-"+GetRandomString(6), payload)
	require.NoError(t, err)
	return *tx
}

// BlockHash returns the hash of block, failing the test if it cannot be computed.
func BlockHash(t testing.TB, block ledger.Block) string {
	blockHash, err := block.Hash()
	require.NoError(t, err)
	return blockHash
}

// BuildLedger returns a ledger with nbBlocks blocks appended after genesis, each holding one signed prescription.
func BuildLedger(t testing.TB, nbBlocks int) *ledger.Ledger {
	l := ledger.New(&ledger.Options{Logger: GetTestLogger(t)})
	for i := 0; i < nbBlocks; i++ {
		_, err := l.Append([]transaction.Transaction{SignedTransaction(t, Drugs[i%len(Drugs)])})
		require.NoError(t, err)
	}
	return l
}
