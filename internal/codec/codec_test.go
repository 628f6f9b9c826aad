package codec

import (
	"errors"
	"testing"

	"github.com/nerrad567/propcore/internal/permission"
	"github.com/nerrad567/propcore/internal/property"
)

func sampleDocument(t *testing.T) *property.Document {
	t.Helper()
	o := property.NewObject()
	for _, p := range []*property.Property{
		property.Int("Rate", 10, property.WithMin(1)),
		property.Float("Gain", 1),
		property.String("Label", "ch0"),
	} {
		if err := o.AddProperty(p); err != nil {
			t.Fatalf("AddProperty() error = %v", err)
		}
	}
	o.SetPropertyValue("Rate", 250)
	o.SetPropertyValue("Gain", 0.5)

	doc, err := o.Serialize(permission.Anonymous)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	return doc
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, c := range []Codec{JSON{}, JSON{Indent: true}, CBOR{}} {
		t.Run(c.ContentType(), func(t *testing.T) {
			data, err := c.Encode(sampleDocument(t))
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			doc, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			o, err := property.Deserialize(doc, property.DeserializeOptions{})
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if v, _ := o.GetPropertyValue("Rate"); v != int64(250) {
				t.Errorf("Rate = %#v, want 250", v)
			}
			if v, _ := o.GetPropertyValue("Gain"); v != 0.5 {
				t.Errorf("Gain = %#v, want 0.5", v)
			}
			if v, _ := o.GetPropertyValue("Label"); v != "ch0" {
				t.Errorf("Label = %#v, want ch0", v)
			}
		})
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	doc := sampleDocument(t)
	a, err := CBOR{}.Encode(doc)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, _ := CBOR{}.Encode(doc)
	if string(a) != string(b) {
		t.Error("CBOR encoding is not deterministic")
	}
	j, _ := JSON{}.Encode(doc)
	if len(a) >= len(j) {
		t.Errorf("CBOR size %d not smaller than JSON size %d", len(a), len(j))
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := (JSON{}).Decode([]byte(`{"__type":"Other"}`)); err == nil {
		t.Error("JSON Decode() accepted a foreign document type")
	}
	if _, err := (JSON{}).Decode([]byte(`{`)); err == nil {
		t.Error("JSON Decode() accepted truncated input")
	}
	if _, err := (CBOR{}).Decode([]byte{0xff}); err == nil {
		t.Error("CBOR Decode() accepted garbage")
	}
	if _, err := (JSON{}).Encode(nil); err == nil {
		t.Error("Encode(nil) should fail")
	}
}

func TestForContentType(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"", ContentTypeJSON, false},
		{"application/json", ContentTypeJSON, false},
		{"application/json; charset=utf-8", ContentTypeJSON, false},
		{"*/*", ContentTypeJSON, false},
		{"application/cbor", ContentTypeCBOR, false},
		{"text/xml", "", true},
		{"not a media type;;", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			c, err := ForContentType(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedContentType) {
					t.Errorf("ForContentType() error = %v, want ErrUnsupportedContentType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForContentType() error = %v", err)
			}
			if c.ContentType() != tt.want {
				t.Errorf("ForContentType() = %s, want %s", c.ContentType(), tt.want)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	doc := sampleDocument(t)
	j, _ := JSON{}.Encode(doc)
	c, _ := CBOR{}.Encode(doc)

	if got := Sniff(append([]byte("\n  "), j...)); got.ContentType() != ContentTypeJSON {
		t.Errorf("Sniff(json) = %s", got.ContentType())
	}
	if got := Sniff(c); got.ContentType() != ContentTypeCBOR {
		t.Errorf("Sniff(cbor) = %s", got.ContentType())
	}
}
