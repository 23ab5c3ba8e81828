package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"genproxy/core"
	"genproxy/core/genesis"
	"genproxy/crypto"
	"genproxy/rpc"
	"genproxy/storage"
)

const testSecret = "proxyctl-test-secret"

var testGenerator = crypto.Address{0x6e}

func startNode(t *testing.T) *httptest.Server {
	t.Helper()
	raw := fmt.Sprintf(`{
  "genesisTime": "2024-01-01T00:00:00Z",
  "tokens": [
    {"label": "lp", "symbol": "LP", "alloc": {%q: "5000"}},
    {"label": "reward", "symbol": "RWD"}
  ],
  "farm": {"label": "farm", "lpToken": "lp", "rewardToken": "reward"},
  "proxy": {"label": "proxy", "generator": %q, "lpToken": "lp", "rewardProtocol": "farm", "rewardToken": "reward"}
}`, testGenerator, testGenerator)
	spec, err := genesis.ParseGenesisSpec([]byte(raw))
	require.NoError(t, err)
	node, err := core.NewNode(context.Background(), storage.NewMemDB(), spec)
	require.NoError(t, err)
	t.Cleanup(node.Close)

	srv := rpc.NewServer(node, rpc.ServerConfig{
		JWTSecret:             testSecret,
		Issuer:                "proxyctl",
		Audience:              "proxyd",
		AllowAnonymousQueries: true,
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestKeygenAndToken(t *testing.T) {
	t.Setenv(jwtSecretEnv, testSecret)
	keyPath := filepath.Join(t.TempDir(), "caller.key")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"keygen", "-out", keyPath}, &stdout, &stderr), stderr.String())
	require.Contains(t, stdout.String(), "address: ")

	key, err := loadKey(keyPath)
	require.NoError(t, err)
	require.Contains(t, stdout.String(), key.PubKey().Address().String())

	stdout.Reset()
	require.Equal(t, 0, run([]string{"token", "-key", keyPath}, &stdout, &stderr), stderr.String())
	require.Equal(t, 3, len(strings.Split(strings.TrimSpace(stdout.String()), ".")))
}

func TestDepositAndQueryAgainstNode(t *testing.T) {
	t.Setenv(jwtSecretEnv, testSecret)
	ts := startNode(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"deposit", "-rpc", ts.URL, "-sub", testGenerator.String(), "1000"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	stdout.Reset()
	code = run([]string{"query", "-rpc", ts.URL, "deposit"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, `"1000"`, strings.TrimSpace(stdout.String()))

	stdout.Reset()
	code = run([]string{"call", "-rpc", ts.URL, "-anonymous", "node_height"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
}

func TestWithdrawRejectedForOtherCaller(t *testing.T) {
	t.Setenv(jwtSecretEnv, testSecret)
	ts := startNode(t)
	other := crypto.Address{0x5a}
	var stdout, stderr bytes.Buffer
	code := run([]string{"withdraw", "-rpc", ts.URL, "-sub", other.String(), other.String(), "1"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unauthorized")
}

func TestUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run(nil, &stdout, &stderr))
	require.Equal(t, 2, run([]string{"bogus"}, &stdout, &stderr))
	require.Equal(t, 2, run([]string{"query", "nope"}, &stdout, &stderr))
	require.Equal(t, 2, run([]string{"deposit"}, &stdout, &stderr))
}
