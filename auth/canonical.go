// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var errNotJSON = errors.New("body is not valid JSON")

// canonicalJSON re-encodes body the way scanner clients serialize it before
// signing: compact separators, object keys in arrival order (a repeated key
// keeps its first position and takes the last value), string escapes
// resolved to literal UTF-8, and numbers in Python int/float notation.
// An empty or null body becomes "{}".
func canonicalJSON(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(trimmed) {
		return nil, errNotJSON
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	out, err := readValue(dec)
	if err != nil {
		return nil, err
	}
	if string(out) == "null" {
		return []byte("{}"), nil
	}
	return out, nil
}

func readValue(dec *json.Decoder) ([]byte, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return appendString(nil, t), nil
	case json.Number:
		return formatNumber(string(t))
	case bool:
		return strconv.AppendBool(nil, t), nil
	case nil:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("unexpected token %T", tok)
}

func readObject(dec *json.Decoder) ([]byte, error) {
	var (
		keys  []string
		vals  [][]byte
		index = map[string]int{}
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T", tok)
		}
		val, err := readValue(dec)
		if err != nil {
			return nil, err
		}
		if i, seen := index[key]; seen {
			vals[i] = val
			continue
		}
		index[key] = len(keys)
		keys = append(keys, key)
		vals = append(vals, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	out := []byte{'{'}
	for i, key := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendString(out, key)
		out = append(out, ':')
		out = append(out, vals[i]...)
	}
	return append(out, '}'), nil
}

func readArray(dec *json.Decoder) ([]byte, error) {
	out := []byte{'['}
	for n := 0; dec.More(); n++ {
		val, err := readValue(dec)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out = append(out, ',')
		}
		out = append(out, val...)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return append(out, ']'), nil
}

// appendString quotes s escaping only quotes, backslashes and control
// characters. Non-ASCII text and "/" stay literal.
func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b = append(b, '\\', '"')
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			if c < 0x20 {
				b = fmt.Appendf(b, `\u%04x`, c)
			} else {
				b = append(b, c)
			}
		}
	}
	return append(b, '"')
}

// formatNumber writes integers exactly and everything else as the shortest
// round-trip float: fixed notation with a trailing ".0" for exponents in
// [-4, 15], otherwise scientific with a two-digit exponent.
func formatNumber(lit string) ([]byte, error) {
	if !strings.ContainsAny(lit, ".eE") {
		n, ok := new(big.Int).SetString(lit, 10)
		if !ok {
			return nil, fmt.Errorf("invalid number %q", lit)
		}
		return []byte(n.String()), nil
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil, err
	}
	switch {
	case math.IsInf(f, 1):
		return []byte("Infinity"), nil
	case math.IsInf(f, -1):
		return []byte("-Infinity"), nil
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	_, exp, _ := strings.Cut(sci, "e")
	e, _ := strconv.Atoi(exp)
	if e < -4 || e > 15 {
		return []byte(sci), nil
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return []byte(fixed), nil
}
