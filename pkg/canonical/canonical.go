// Package canonical produces a deterministic JSON serialization used to hash
// request and result payloads. Two logically identical payloads (same keys,
// any insertion order; same numbers, any source formatting) always serialize
// to identical bytes and therefore hash identically.
//
// Canonical form: object keys sorted bytewise, strings NFC-normalized,
// numbers rendered with the shortest round-trip representation (integral
// values without a fractional part), no insignificant whitespace.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// TruncatedHashLen is the number of hex characters kept in audit-trail
// correlation hashes.
const TruncatedHashLen = 16

// Marshal encodes v as canonical JSON bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the hex SHA-256 digest of the canonical serialization of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// TruncatedHash returns the first TruncatedHashLen characters of Hash(v).
func TruncatedHash(v any) (string, error) {
	full, err := Hash(v)
	if err != nil {
		return "", err
	}
	return full[:TruncatedHashLen], nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		return writeString(buf, value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return fmt.Errorf("canonical: bad number %q: %w", value.String(), err)
		}
		return writeFloat(buf, f)
	case float64:
		return writeFloat(buf, value)
	case float32:
		return writeFloat(buf, float64(value))
	case int:
		buf.WriteString(strconv.FormatInt(int64(value), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(value, 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(value, 10))
		return nil
	case []any:
		return writeArray(buf, value)
	case map[string]any:
		return writeObject(buf, value)
	case []string:
		arr := make([]any, len(value))
		for i, s := range value {
			arr[i] = s
		}
		return writeArray(buf, arr)
	}

	// Anything else (structs, typed maps/slices) goes through one
	// marshal/decode round-trip with json.Number preserved, then recurses.
	return writeForeign(buf, v)
}

func writeForeign(buf *bytes.Buffer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("canonical: marshal %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("canonical: decode %T: %w", v, err)
	}
	return writeValue(buf, decoded)
}

func writeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: non-finite number %v", f)
	}
	// Integral values render without a fractional part so 1 and 1.0 hash
	// identically regardless of how the payload was produced.
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
