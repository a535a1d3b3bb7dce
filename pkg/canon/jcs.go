// Package canon implements RFC 8785 JSON Canonicalization Scheme (JCS)
// serialization, the one canonical-bytes primitive the gateway's three
// signed/hashed artifacts all build on: the nonce-response message an agent
// signs during the auth handshake (pkg/gateway/handshake.go), an audit
// entry's chained row_hash (pkg/audit), and a secure_call receipt's
// signature payload (pkg/receipts). All three need the same property —
// the same Go value always serializes to the identical byte string,
// independent of map iteration order or json.Marshal's HTML-escaping — so
// a signature or hash computed on one process and verified on another
// always agrees.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// JCS returns the RFC 8785 canonical JSON encoding of v: object keys sorted
// by UTF-8 byte order, no insignificant whitespace, and HTML escaping
// disabled (Go's encoding/json escapes '<', '>', '&' by default, which RFC
// 8785 forbids).
//
// v is first passed through a standard json.Marshal so struct tags,
// omitempty, and custom MarshalJSON methods behave exactly as every other
// encoder in the gateway expects; only the resulting generic value is
// re-serialized canonically.
func JCS(v interface{}) ([]byte, error) {
	viaStdlib, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal %T: %w", v, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(viaStdlib))
	decoder.UseNumber() // preserve integer/float literals exactly as written
	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: decode %T for re-encoding: %w", v, err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, fmt.Errorf("canon: canonicalize %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// encodeCanonical writes v's RFC 8785 form to buf. Object members are
// sorted lexicographically by key; arrays preserve source order (RFC 8785
// only mandates member ordering for objects).
func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case string:
		return encodeCanonicalString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		// Reached only if a custom MarshalJSON produced something other
		// than an object/array/string/number/bool/null, which standard
		// JSON cannot express; fall back to the stdlib encoder's own
		// (non-canonical) rendering rather than erroring outright.
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return err
		}
		trimmed := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
		buf.Reset()
		buf.Write(trimmed)
		return nil
	}
}

// encodeCanonicalString writes s as a JSON string literal without HTML
// escaping, matching RFC 8785 §3.2.2.
func encodeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}
