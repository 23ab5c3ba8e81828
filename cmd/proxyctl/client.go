package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"genproxy/crypto"
	"genproxy/rpc"
)

type client struct {
	endpoint string
	token    string
	http     *http.Client
}

func newClient(endpoint, token string) *client {
	return &client{
		endpoint: strings.TrimSpace(endpoint),
		token:    token,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *client) call(method string, params []json.RawMessage) (json.RawMessage, error) {
	if params == nil {
		params = []json.RawMessage{}
	}
	body, err := json.Marshal(rpc.RPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		if decoded.Error.Data != nil {
			return nil, fmt.Errorf("%d %s: %v", decoded.Error.Code, decoded.Error.Message, decoded.Error.Data)
		}
		return nil, fmt.Errorf("%d %s", decoded.Error.Code, decoded.Error.Message)
	}
	return decoded.Result, nil
}

// generateKey creates a key. When path is set the hex key is written there
// and the returned key string is empty.
func generateKey(path string) (string, crypto.Address, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", crypto.Address{}, err
	}
	encoded := hex.EncodeToString(key.Bytes())
	addr := key.PubKey().Address()
	if strings.TrimSpace(path) == "" {
		return encoded, addr, nil
	}
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return "", crypto.Address{}, fmt.Errorf("write key: %w", err)
	}
	return "", addr, nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	return crypto.PrivateKeyFromBytes(decoded)
}
