package property

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// DocumentType is the "__type" tag of a serialized property object.
const DocumentType = "PropertyObject"

// Document is the serialized form of a property object.
type Document struct {
	Type          string             `json:"__type" cbor:"__type"`
	ClassName     string             `json:"className,omitempty" cbor:"className,omitempty"`
	Frozen        bool               `json:"frozen,omitempty" cbor:"frozen,omitempty"`
	PropValues    *Values            `json:"propValues,omitempty" cbor:"propValues,omitempty"`
	PropertyOrder []string           `json:"propertyOrder,omitempty" cbor:"propertyOrder,omitempty"`
	Properties    []PropertyDocument `json:"properties,omitempty" cbor:"properties,omitempty"`
}

// PropertyDocument is the serialized definition of a local property.
type PropertyDocument struct {
	Name            string `json:"name" cbor:"name"`
	ValueType       string `json:"valueType,omitempty" cbor:"valueType,omitempty"`
	Default         any    `json:"defaultValue,omitempty" cbor:"defaultValue,omitempty"`
	Min             any    `json:"minValue,omitempty" cbor:"minValue,omitempty"`
	Max             any    `json:"maxValue,omitempty" cbor:"maxValue,omitempty"`
	Selection       any    `json:"selectionValues,omitempty" cbor:"selectionValues,omitempty"`
	ItemType        string `json:"itemType,omitempty" cbor:"itemType,omitempty"`
	KeyType         string `json:"keyType,omitempty" cbor:"keyType,omitempty"`
	ReadOnly        bool   `json:"readOnly,omitempty" cbor:"readOnly,omitempty"`
	Hidden          bool   `json:"hidden,omitempty" cbor:"hidden,omitempty"`
	Description     string `json:"description,omitempty" cbor:"description,omitempty"`
	Unit            string `json:"unit,omitempty" cbor:"unit,omitempty"`
	Reference       string `json:"referencedProperty,omitempty" cbor:"referencedProperty,omitempty"`
	Coercer         string `json:"coercer,omitempty" cbor:"coercer,omitempty"`
	Validator       string `json:"validator,omitempty" cbor:"validator,omitempty"`
	StructType      string `json:"structType,omitempty" cbor:"structType,omitempty"`
	EnumerationType string `json:"enumerationType,omitempty" cbor:"enumerationType,omitempty"`
}

// rawPropertyValues holds the value-carrying fields of a PropertyDocument
// before they are decoded.
type rawPropertyValues[M any] struct {
	Default   M `json:"defaultValue,omitempty" cbor:"defaultValue,omitempty"`
	Min       M `json:"minValue,omitempty" cbor:"minValue,omitempty"`
	Max       M `json:"maxValue,omitempty" cbor:"maxValue,omitempty"`
	Selection M `json:"selectionValues,omitempty" cbor:"selectionValues,omitempty"`
}

func (r rawPropertyValues[M]) decode(p *PropertyDocument, fn func(M) (any, error)) error {
	var err error
	if p.Default, err = fn(r.Default); err != nil {
		return err
	}
	if p.Min, err = fn(r.Min); err != nil {
		return err
	}
	if p.Max, err = fn(r.Max); err != nil {
		return err
	}
	p.Selection, err = fn(r.Selection)
	return err
}

// UnmarshalJSON decodes numbers as json.Number and nested objects as
// documents.
func (p *PropertyDocument) UnmarshalJSON(data []byte) error {
	type plain PropertyDocument
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var raw rawPropertyValues[json.RawMessage]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return raw.decode(p, decodeJSONValue)
}

// UnmarshalCBOR decodes nested objects as documents.
func (p *PropertyDocument) UnmarshalCBOR(data []byte) error {
	type plain PropertyDocument
	if err := cbor.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var raw rawPropertyValues[cbor.RawMessage]
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	return raw.decode(p, decodeCBORValue)
}

// Values is an insertion-ordered map of property names to encoded values.
// JSON keeps the order in the object; CBOR encodes it as an array of
// [name, value] pairs.
type Values struct {
	names  []string
	values map[string]any
}

// NewValues creates an empty value map.
func NewValues() *Values {
	return &Values{values: make(map[string]any)}
}

// Set adds or replaces name. Replacing keeps the original position.
func (v *Values) Set(name string, value any) {
	if v.values == nil {
		v.values = make(map[string]any)
	}
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
	}
	v.values[name] = value
}

// Get returns the encoded value of name.
func (v *Values) Get(name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	val, ok := v.values[name]
	return val, ok
}

// Names returns the names in order.
func (v *Values) Names() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.names...)
}

// Len returns the number of entries.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.names)
}

// MarshalJSON implements json.Marshaler.
func (v *Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range v.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.values[name])
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Values) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: propValues must be an object", ErrInvalidParameter)
	}
	*v = Values{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		val, err := decodeJSONValue(raw)
		if err != nil {
			return fmt.Errorf("value %s: %w", name, err)
		}
		v.Set(name, val)
	}
	_, err = dec.Token()
	return err
}

type valueEntry struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value any
}

type rawValueEntry struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value cbor.RawMessage
}

// valuesEncMode sorts map keys so tagged values encode deterministically.
var valuesEncMode, _ = cbor.CanonicalEncOptions().EncMode() //nolint:errcheck // static options

// MarshalCBOR implements cbor.Marshaler.
func (v *Values) MarshalCBOR() ([]byte, error) {
	entries := make([]valueEntry, len(v.names))
	for i, name := range v.names {
		entries[i] = valueEntry{Name: name, Value: v.values[name]}
	}
	return valuesEncMode.Marshal(entries)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Values) UnmarshalCBOR(data []byte) error {
	var entries []rawValueEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return err
	}
	*v = Values{values: make(map[string]any)}
	for _, e := range entries {
		val, err := decodeCBORValue(e.Value)
		if err != nil {
			return fmt.Errorf("value %s: %w", e.Name, err)
		}
		v.Set(e.Name, val)
	}
	return nil
}

type typeProbe struct {
	Type string `json:"__type" cbor:"__type"`
}

func decodeJSONValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var probe typeProbe
	if json.Unmarshal(raw, &probe) == nil && probe.Type == DocumentType {
		var d Document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeCBORValue(raw cbor.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var probe typeProbe
	if cbor.Unmarshal(raw, &probe) == nil && probe.Type == DocumentType {
		var d Document
		if err := cbor.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}
	var out any
	if err := cbor.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
