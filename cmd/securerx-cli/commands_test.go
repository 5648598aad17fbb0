package main

import (
	"bytes"
	"encoding/json"
	"github.com/pterm/pterm"
	"github.com/securerx/go-securerx/api_server"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

func serveLedger(t *testing.T, l *ledger.Ledger) string {
	server := api_server.New(&api_server.Options{Ledger: l, NodeId: "node1", Logger: test_utils.GetTestLogger(t)})
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return httpServer.URL
}

func runCli(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCli_Health(t *testing.T) {
	url := serveLedger(t, ledger.New(nil))
	out, err := runCli(t, "health", "--node-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Node node1 is ok")

	out, err = runCli(t, "health", "--node-url", url, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","node_id":"node1"}`, out)
}

func TestCli_IssuePrescription(t *testing.T) {
	l := ledger.New(nil)
	url := serveLedger(t, l)

	out, err := runCli(t, "issue-prescription", "doctor1", "patient1", "Aspirin 100mg", "--node-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Prescription recorded")
	assert.Equal(t, 2, l.Len())
	assert.Contains(t, out, test_utils.BlockHash(t, l.Last()))
	assert.Contains(t, out, l.Last().Transactions[0].PublicKey.Hex())

	_, err = runCli(t, "issue-prescription", "doctor1", "", "Aspirin", "--node-url", url)
	assert.Error(t, err)
	assert.Equal(t, 2, l.Len())

	_, err = runCli(t, "issue-prescription", "doctor1", "patient1", "--node-url", url)
	assert.Error(t, err)
}

func TestCli_GetBlocks(t *testing.T) {
	l := test_utils.BuildLedger(t, 3)
	url := serveLedger(t, l)

	out, err := runCli(t, "get-blocks", "--node-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "4 blocks")
	assert.Contains(t, out, shortHash(test_utils.BlockHash(t, l.Last())))
	assert.Contains(t, out, ledger.GenesisPreviousHash)

	out, err = runCli(t, "get-blocks", "--node-url", url, "--json")
	require.NoError(t, err)
	var blocks []ledger.Block
	require.NoError(t, json.Unmarshal([]byte(out), &blocks))
	assert.Equal(t, l.Snapshot(), blocks)
}

func TestCli_GetBlock(t *testing.T) {
	l := test_utils.BuildLedger(t, 1)
	url := serveLedger(t, l)
	block, err := l.Get(1)
	require.NoError(t, err)

	out, err := runCli(t, "get-block", "1", "--node-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, test_utils.BlockHash(t, block))
	assert.Contains(t, out, block.Transactions[0].Payload)
	assert.Contains(t, out, "valid")

	out, err = runCli(t, "get-block", "0", "--node-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "No transactions")

	_, err = runCli(t, "get-block", "7", "--node-url", url)
	assert.Error(t, err)

	_, err = runCli(t, "get-block", "first", "--node-url", url)
	assert.ErrorIs(t, err, ErrorInvalidIndex)
}

func TestCli_Validate(t *testing.T) {
	l := test_utils.BuildLedger(t, 2)
	url := serveLedger(t, l)

	out, err := runCli(t, "validate", "--node-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Chain is valid (3 blocks)")

	blocks := l.Snapshot()
	blocks[1].PreviousHash = "corrupted"
	require.NoError(t, l.Replace(blocks))

	out, err = runCli(t, "validate", "--node-url", url)
	assert.ErrorIs(t, err, ErrorChainInvalid)
	assert.Contains(t, out, "Chain is invalid (3 blocks)")
	assert.Contains(t, out, ledger.ErrorBrokenLink.Code)
}

func TestCli_UnreachableNode(t *testing.T) {
	_, err := runCli(t, "health", "--node-url", "127.0.0.1:1", "--timeout", "1s")
	assert.Error(t, err)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0", shortHash("0"))
	assert.Equal(t, "0123456789abcdef…", shortHash("0123456789abcdef0123"))
}
