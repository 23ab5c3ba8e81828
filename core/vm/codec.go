package vm

import (
	"bytes"
	"encoding/json"
	"fmt"

	proxyerrors "genproxy/core/errors"
)

// Variant is implemented by externally tagged message unions
// ({"transfer":{...}}). Kind names the single populated arm.
type Variant interface {
	Kind() (string, error)
}

// DecodeVariant strictly decodes raw into out and checks that exactly one arm
// is populated. Unknown tags and malformed JSON wrap ErrUnknownMessage.
func DecodeVariant(raw []byte, out Variant) (string, error) {
	if err := DecodeJSON(raw, out); err != nil {
		return "", err
	}
	return out.Kind()
}

// SingleKind returns the name of the only true entry in set. It is the helper
// every Variant.Kind implementation uses.
func SingleKind(set map[string]bool) (string, error) {
	found := ""
	for name, ok := range set {
		if !ok {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: multiple variants set", proxyerrors.ErrUnknownMessage)
		}
		found = name
	}
	if found == "" {
		return "", fmt.Errorf("%w: no variant set", proxyerrors.ErrUnknownMessage)
	}
	return found, nil
}

// Marshal JSON-encodes a reply. Handlers use it for query results.
func Marshal(v interface{}) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("vm: encode reply: %w", err)
	}
	return out, nil
}

// DecodeJSON strictly decodes a non-variant message such as an instantiate
// payload.
func DecodeJSON(raw []byte, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty message", proxyerrors.ErrUnknownMessage)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", proxyerrors.ErrUnknownMessage, err)
	}
	return nil
}
