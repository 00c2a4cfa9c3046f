package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	_ json.Marshaler           = Value{}
	_ json.Unmarshaler         = (*Value)(nil)
	_ json.Marshaler           = Map{}
	_ json.Unmarshaler         = (*Map)(nil)
	_ msgpack.CustomEncoder    = Value{}
	_ msgpack.CustomDecoder    = (*Value)(nil)
	_ msgpack.CustomEncoder    = Map{}
	_ msgpack.CustomDecoder    = (*Map)(nil)
	errUnexpectedJSONDelimiter = errors.New("payload: unexpected json delimiter")
)

// ──────────────────────────────────────────────────
// JSON
// ──────────────────────────────────────────────────

// MarshalJSON implements json.Marshaler. Floats with no fractional part
// keep a trailing ".0" so they decode back as floats; NaN and ±Inf become
// null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		// JSON has no NaN or Infinity; they are written as null.
		// MessagePack records keep them.
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		return v.m.writeJSON(buf)
	default:
		return fmt.Errorf("payload: unknown kind %s", v.kind)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fraction or
// exponent decode as ints; everything else numeric decodes as floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// MarshalJSON implements json.Marshaler, writing keys in insertion order.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := (&m).writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Map) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	var err error
	i := 0
	m.Range(func(k string, v Value) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var kb []byte
		if kb, err = json.Marshal(k); err != nil {
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')
		err = v.writeJSON(buf)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. JSON null yields an empty map.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	switch v.kind {
	case KindNull:
		*m = Map{}
	case KindMap:
		*m = *v.m
	default:
		return fmt.Errorf("payload: expected object, got %s", v.kind)
	}
	return nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("payload: %w", err)
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return Value{}, fmt.Errorf("payload: %w", err)
		}
		return Float(f), nil
	case json.Delim:
		switch t {
		case '{':
			return decodeJSONObject(dec)
		case '[':
			return decodeJSONArray(dec)
		}
	}
	return Value{}, errUnexpectedJSONDelimiter
}

func decodeJSONObject(dec *json.Decoder) (Value, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("payload: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("payload: object key %v is not a string", tok)
		}
		v, err := decodeJSONValue(dec)
		if err != nil {
			return Value{}, err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, fmt.Errorf("payload: %w", err)
	}
	return Object(m), nil
}

func decodeJSONArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for dec.More() {
		v, err := decodeJSONValue(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, fmt.Errorf("payload: %w", err)
	}
	return Value{kind: KindList, list: items}, nil
}

// ──────────────────────────────────────────────────
// MessagePack
// ──────────────────────────────────────────────────

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindList:
		if err := enc.EncodeArrayLen(len(v.list)); err != nil {
			return err
		}
		for _, e := range v.list {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		return v.m.EncodeMsgpack(enc)
	default:
		return fmt.Errorf("payload: unknown kind %s", v.kind)
	}
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}
	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		m := NewMap()
		if err := m.DecodeMsgpack(dec); err != nil {
			return err
		}
		*v = Object(m)
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		items := make([]Value, 0, max(n, 0))
		for range max(n, 0) {
			var e Value
			if err := e.DecodeMsgpack(dec); err != nil {
				return err
			}
			items = append(items, e)
		}
		*v = Value{kind: KindList, list: items}
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*v = Float(f)
	default:
		raw, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return err
		}
		conv, err := FromAny(raw)
		if err != nil {
			return err
		}
		*v = conv
	}
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder, writing keys in
// insertion order.
func (m Map) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(m.Len()); err != nil {
		return err
	}
	var err error
	(&m).Range(func(k string, v Value) bool {
		if err = enc.EncodeString(k); err != nil {
			return false
		}
		err = v.EncodeMsgpack(enc)
		return err == nil
	})
	return err
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (m *Map) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	*m = Map{}
	for range max(n, 0) {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var v Value
		if err := v.DecodeMsgpack(dec); err != nil {
			return err
		}
		m.Set(key, v)
	}
	return nil
}
