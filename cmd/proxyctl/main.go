package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"genproxy/cmd/internal/passphrase"
	"genproxy/crypto"
	"genproxy/rpc"
)

const (
	rpcURLEnv    = "PROXY_RPC_URL"
	jwtSecretEnv = "PROXY_JWT_SECRET"
	defaultRPC   = "http://127.0.0.1:8080"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	secrets := passphrase.NewSource(jwtSecretEnv, "JWT secret")
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], secrets, stdout, stderr)
	case "call":
		return runCall(args[1:], secrets, stdout, stderr)
	case "deposit", "update-rewards", "send-rewards", "withdraw", "emergency-withdraw":
		return runProxyCommand(args[0], args[1:], secrets, stdout, stderr)
	case "query":
		return runQuery(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: proxyctl <command> [flags]

Commands:
  keygen                         generate a key and print its address
  token  -key FILE | -sub ADDR   mint a JWT for the caller
  call   METHOD [PARAMS_JSON]    send a raw JSON-RPC request
  deposit AMOUNT                 deposit LP shares into the proxy
  update-rewards                 harvest pending rewards into the proxy
  send-rewards ACCOUNT AMOUNT    forward reward tokens to ACCOUNT
  withdraw ACCOUNT AMOUNT        withdraw LP shares to ACCOUNT
  emergency-withdraw ACCOUNT AMOUNT
  query deposit|reward|pending_token|reward_info

Environment:
  PROXY_RPC_URL      JSON-RPC endpoint (default http://127.0.0.1:8080)
  PROXY_JWT_SECRET   HS256 secret shared with proxyd`)
}

type authFlags struct {
	rpcURL   string
	keyFile  string
	subject  string
	issuer   string
	audience string
	ttl      time.Duration
}

func (a *authFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.rpcURL, "rpc", defaultRPCURL(), "JSON-RPC endpoint")
	fs.StringVar(&a.keyFile, "key", "", "hex private key file identifying the caller")
	fs.StringVar(&a.subject, "sub", "", "caller address (alternative to -key)")
	fs.StringVar(&a.issuer, "issuer", "proxyctl", "JWT issuer claim")
	fs.StringVar(&a.audience, "audience", "proxyd", "JWT audience claim")
	fs.DurationVar(&a.ttl, "ttl", 5*time.Minute, "JWT lifetime")
}

func (a *authFlags) caller() (crypto.Address, error) {
	if strings.TrimSpace(a.keyFile) != "" {
		key, err := loadKey(a.keyFile)
		if err != nil {
			return crypto.Address{}, err
		}
		return key.PubKey().Address(), nil
	}
	if strings.TrimSpace(a.subject) != "" {
		return crypto.ParseAddress(strings.TrimSpace(a.subject))
	}
	return crypto.Address{}, fmt.Errorf("caller required: pass -key or -sub")
}

func (a *authFlags) token(secrets *passphrase.Source) (string, error) {
	caller, err := a.caller()
	if err != nil {
		return "", err
	}
	secret, err := secrets.Get()
	if err != nil {
		return "", err
	}
	return rpc.IssueToken(secret, a.issuer, a.audience, caller, a.ttl)
}

func defaultRPCURL() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return defaultRPC
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "write the hex private key to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	key, addr, err := generateKey(*out)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	fmt.Fprintf(stdout, "address: %s\n", addr)
	if *out == "" {
		fmt.Fprintf(stdout, "private key: %s\n", key)
	} else {
		fmt.Fprintf(stdout, "private key written to %s\n", *out)
	}
	return 0
}

func runToken(args []string, secrets *passphrase.Source, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var auth authFlags
	auth.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	token, err := auth.token(secrets)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runCall(args []string, secrets *passphrase.Source, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var auth authFlags
	auth.register(fs)
	anonymous := fs.Bool("anonymous", false, "send without a bearer token")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(stderr, "Error: method required")
		return 2
	}
	var params []json.RawMessage
	if len(rest) > 1 {
		raw := json.RawMessage(rest[1])
		if !json.Valid(raw) {
			fmt.Fprintln(stderr, "Error: params must be valid JSON")
			return 2
		}
		params = append(params, raw)
	}
	token := ""
	if !*anonymous {
		var err error
		token, err = auth.token(secrets)
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
	}
	return printCall(newClient(auth.rpcURL, token), rest[0], params, stdout, stderr)
}

func runProxyCommand(command string, args []string, secrets *passphrase.Source, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var auth authFlags
	auth.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()

	var (
		method string
		params []json.RawMessage
	)
	switch command {
	case "deposit":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Error: usage: deposit AMOUNT")
			return 2
		}
		method = "proxy_deposit"
		params = mustParams(map[string]string{"amount": rest[0]})
	case "update-rewards":
		method = "proxy_updateRewards"
	default:
		if len(rest) != 2 {
			fmt.Fprintf(stderr, "Error: usage: %s ACCOUNT AMOUNT\n", command)
			return 2
		}
		method = map[string]string{
			"send-rewards":       "proxy_sendRewards",
			"withdraw":           "proxy_withdraw",
			"emergency-withdraw": "proxy_emergencyWithdraw",
		}[command]
		params = mustParams(map[string]string{"account": rest[0], "amount": rest[1]})
	}

	token, err := auth.token(secrets)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return printCall(newClient(auth.rpcURL, token), method, params, stdout, stderr)
}

func runQuery(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rpcURL := fs.String("rpc", defaultRPCURL(), "JSON-RPC endpoint")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	views := map[string]string{
		"deposit":       "proxy_getDeposit",
		"reward":        "proxy_getReward",
		"pending_token": "proxy_getPendingToken",
		"reward_info":   "proxy_getRewardInfo",
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: usage: query deposit|reward|pending_token|reward_info")
		return 2
	}
	method, ok := views[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown view %q\n", fs.Arg(0))
		return 2
	}
	return printCall(newClient(*rpcURL, ""), method, nil, stdout, stderr)
}

func mustParams(v interface{}) []json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return []json.RawMessage{raw}
}

func printCall(c *client, method string, params []json.RawMessage, stdout, stderr io.Writer) int {
	result, err := c.call(method, params)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}
