package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// KV is the raw key/value surface handed to contracts.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

// ReadKV is the read-only subset used by queries.
type ReadKV interface {
	Get(key []byte) ([]byte, error)
}

// Namespace scopes every key under ns and hashes the result with keccak256, so
// two contracts can never observe each other's keys.
type Namespace struct {
	parent KV
	prefix []byte
}

// NewNamespace returns a view of parent limited to ns.
func NewNamespace(parent KV, ns []byte) *Namespace {
	return &Namespace{parent: parent, prefix: append([]byte(nil), ns...)}
}

func (n *Namespace) key(key []byte) []byte {
	buf := make([]byte, 0, len(n.prefix)+1+len(key))
	buf = append(buf, n.prefix...)
	buf = append(buf, '/')
	buf = append(buf, key...)
	return ethcrypto.Keccak256(buf)
}

func (n *Namespace) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("kv: key must not be empty")
	}
	return n.parent.Get(n.key(key))
}

func (n *Namespace) Set(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return n.parent.Set(n.key(key), value)
}

func (n *Namespace) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return n.parent.Delete(n.key(key))
}

// ReadOnly wraps a KV so writes fail. Queries run against it.
type ReadOnly struct {
	ReadKV
}

func (ReadOnly) Set([]byte, []byte) error { return fmt.Errorf("kv: read-only view") }

func (ReadOnly) Delete([]byte) error { return fmt.Errorf("kv: read-only view") }

// KVPut stores the RLP encoding of value under key.
func KVPut(kv KV, key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return kv.Set(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func KVGet(kv ReadKV, key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := kv.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
