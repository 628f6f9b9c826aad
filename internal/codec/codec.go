// Package codec encodes property object documents for the wire.
//
// Two formats are supported: JSON for the HTTP API and snapshots, and
// canonical CBOR for compact MQTT update payloads.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/propcore/internal/property"
)

// Content types understood by ForContentType.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// ErrUnsupportedContentType is returned for a media type with no codec.
var ErrUnsupportedContentType = errors.New("codec: unsupported content type")

// Codec converts documents to and from one wire format.
type Codec interface {
	ContentType() string
	Encode(doc *property.Document) ([]byte, error)
	Decode(data []byte) (*property.Document, error)
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// JSON is the JSON codec. Indent pretty-prints the output.
type JSON struct {
	Indent bool
}

// ContentType implements Codec.
func (JSON) ContentType() string { return ContentTypeJSON }

// Encode implements Codec.
func (c JSON) Encode(doc *property.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("codec: nil document")
	}
	if c.Indent {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// Decode implements Codec.
func (JSON) Decode(data []byte) (*property.Document, error) {
	var doc property.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("codec: decoding json document: %w", err)
	}
	return checkType(&doc)
}

// CBOR is the canonical CBOR codec (RFC 8949 core deterministic encoding).
type CBOR struct{}

// ContentType implements Codec.
func (CBOR) ContentType() string { return ContentTypeCBOR }

// Encode implements Codec.
func (CBOR) Encode(doc *property.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("codec: nil document")
	}
	return cborEncMode.Marshal(doc)
}

// Decode implements Codec.
func (CBOR) Decode(data []byte) (*property.Document, error) {
	var doc property.Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("codec: decoding cbor document: %w", err)
	}
	return checkType(&doc)
}

func checkType(doc *property.Document) (*property.Document, error) {
	if doc.Type != property.DocumentType {
		return nil, fmt.Errorf("codec: document type %q, want %q", doc.Type, property.DocumentType)
	}
	return doc, nil
}

// ForContentType returns the codec for a Content-Type or Accept header
// value. Parameters such as charset are ignored; an empty value selects JSON.
func ForContentType(contentType string) (Codec, error) {
	if contentType == "" {
		return JSON{}, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	switch mediaType {
	case ContentTypeJSON, "*/*", "application/*":
		return JSON{}, nil
	case ContentTypeCBOR:
		return CBOR{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, mediaType)
}

// Sniff picks a codec for an unlabelled payload: a JSON object starts
// with '{', everything else is treated as CBOR.
func Sniff(data []byte) Codec {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return JSON{}
	}
	return CBOR{}
}
