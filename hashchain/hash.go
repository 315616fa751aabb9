// Package hashchain implements the Canonical Hasher (spec.md §4.1): a pure
// function from any JSON-able value to a deterministic SHA-256 digest,
// independent of map insertion order or struct field order.
package hashchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Canonicalize serializes v to its canonical JSON form: keys sorted
// lexicographically at every nesting level, no insignificant whitespace,
// UTF-8 without BOM, and numbers encoded through Go's shortest
// round-trippable float representation. It is pure: the same logical value
// always serializes to the same bytes regardless of how it was constructed.
func Canonicalize(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, fmt.Errorf("hashchain: canonicalize: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, fmt.Errorf("hashchain: canonicalize: %w", err)
	}
	return buf.Bytes(), nil
}

// normalize round-trips v through encoding/json to collapse any concrete Go
// type (structs, typed maps, pointers) into the plain
// map[string]interface{}/[]interface{}/float64/string/bool/nil universe,
// so encode() only ever has to handle that universe.
func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// encode writes v's canonical form to buf. v is restricted to the universe
// produced by normalize: map[string]interface{}, []interface{},
// json.Number, string, bool, nil.
func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return encodeNumber(buf, val)
	case string:
		encodeString(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("hashchain: unsupported type %T in canonical value", v)
	}
	return nil
}

// encodeNumber renders a JSON number deterministically: integral values
// with no fractional part lose their trailing ".0"; everything else uses
// the shortest round-trippable decimal form.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("number %q is not finite", n.String())
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(fmt.Sprintf("%d", int64(f)))
		return nil
	}
	buf.WriteString(strconvFormatFloat(f))
	return nil
}

func strconvFormatFloat(f float64) string {
	out, _ := json.Marshal(f)
	return string(out)
}

// encodeString writes v as a JSON string literal using encoding/json's
// escaping rules, which are stable across calls.
func encodeString(buf *bytes.Buffer, v string) {
	out, _ := json.Marshal(v)
	buf.Write(out)
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical form.
func Hash(v interface{}) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash panics if v cannot be canonicalized. Reserved for call sites
// that already validated v's shape (e.g. internally constructed event
// payloads); never use it on caller-supplied data.
func MustHash(v interface{}) string {
	h, err := Hash(v)
	if err != nil {
		panic(err)
	}
	return h
}
