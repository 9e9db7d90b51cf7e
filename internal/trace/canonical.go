package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders v as deterministic JSON: object keys sorted
// bytewise, strings NFC-normalized, HTML characters left unescaped.
// Two semantically equal values always produce identical bytes, which
// is what golden-file comparison relies on.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
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
	case string:
		return writeString(buf, t)
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case map[string]any:
		return writeObject(buf, t)
	case []any:
		return writeArray(buf, t)
	case []string:
		arr := make([]any, len(t))
		for i, s := range t {
			arr[i] = s
		}
		return writeArray(buf, arr)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fmt.Fprintf(buf, "%d", rv.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fmt.Fprintf(buf, "%d", rv.Uint())
		return nil
	case reflect.Float32, reflect.Float64:
		return writeNumber(buf, rv.Float())
	case reflect.String:
		return writeString(buf, rv.String())
	case reflect.Bool:
		fmt.Fprintf(buf, "%t", rv.Bool())
		return nil
	}

	// Anything else round-trips through encoding/json so struct values
	// come out as plain maps before canonical ordering applies.
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("canonical marshal %T: %w", v, err)
	}
	var plain any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&plain); err != nil {
		return fmt.Errorf("canonical marshal %T: %w", v, err)
	}
	return writeCanonical(buf, plain)
}

func writeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, norm.NFC.String(k))
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
		if err := writeCanonical(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, el := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, el); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return fmt.Errorf("canonical string: %w", err)
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func writeNumber(buf *bytes.Buffer, f float64) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("canonical number: %w", err)
	}
	buf.Write(raw)
	return nil
}
