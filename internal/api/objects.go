package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/propcore/internal/audit"
	"github.com/nerrad567/propcore/internal/codec"
	"github.com/nerrad567/propcore/internal/permission"
	"github.com/nerrad567/propcore/internal/property"
	"github.com/nerrad567/propcore/internal/store"
)

// objectResponse summarises a registry object.
type objectResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	ClassName string             `json:"class_name"`
	Frozen    bool               `json:"frozen"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Document  *property.Document `json:"document,omitempty"`
}

type createObjectRequest struct {
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
}

// propertyResponse describes one visible property. Values are in their
// encoded document form.
type propertyResponse struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	ReadOnly    bool   `json:"read_only,omitempty"`
	Description string `json:"description,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Min         any    `json:"min,omitempty"`
	Max         any    `json:"max,omitempty"`
	Default     any    `json:"default,omitempty"`
	Selection   any    `json:"selection,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Explicit    bool   `json:"explicit"`
}

type valueResponse struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func toObjectResponse(e store.Entry) objectResponse {
	return objectResponse{
		ID:        e.ID,
		Name:      e.Name,
		ClassName: e.Object.ClassName(),
		Frozen:    e.Object.Frozen(),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// handleListObjects returns the objects the caller may read.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	objects := make([]objectResponse, 0)
	for _, e := range s.registry.List() {
		if s.registry.Authorize(e.ID, user, permission.Read) != nil {
			continue
		}
		objects = append(objects, toObjectResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

// handleCreateObject instantiates a registered class.
func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	var req createObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ClassName == "" {
		writeBadRequest(w, "class_name is required")
		return
	}

	e, err := s.registry.Create(r.Context(), req.Name, req.ClassName)
	if err != nil {
		if property.KindOf(err) == property.KindNotFound {
			writeBadRequest(w, fmt.Sprintf("unknown class %q", req.ClassName))
			return
		}
		writeObjectError(w, err)
		return
	}
	s.auditLog(userFromContext(r.Context()), audit.Entry{
		Action:     audit.ActionCreate,
		ObjectID:   e.ID,
		ObjectName: e.Name,
		Details:    map[string]any{"class_name": req.ClassName},
	})
	writeJSON(w, http.StatusCreated, toObjectResponse(e))
}

// handleImportObject creates an object from a serialized document. The
// body codec follows Content-Type.
func (s *Server) handleImportObject(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	e, err := s.registry.Import(r.Context(), r.URL.Query().Get("name"), doc)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	s.auditLog(userFromContext(r.Context()), audit.Entry{
		Action:     audit.ActionImport,
		ObjectID:   e.ID,
		ObjectName: e.Name,
		Details:    map[string]any{"class_name": doc.ClassName},
	})
	writeJSON(w, http.StatusCreated, toObjectResponse(e))
}

// handleGetObject returns an object summary with its document.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.registry.Get(id)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	doc, err := s.registry.Snapshot(id, userFromContext(r.Context()))
	if err != nil {
		writeObjectError(w, err)
		return
	}
	resp := toObjectResponse(e)
	resp.Document = doc
	writeJSON(w, http.StatusOK, resp)
}

// handleGetDocument returns the serialized object in the codec selected
// by Accept.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	c, err := negotiate(r.Header.Get("Accept"))
	if err != nil {
		writeError(w, http.StatusNotAcceptable, ErrCodeUnsupported, err.Error())
		return
	}
	doc, err := s.registry.Snapshot(chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		writeObjectError(w, err)
		return
	}
	data, err := c.Encode(doc)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleDeleteObject removes an object from the registry.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())
	if err := s.registry.Delete(r.Context(), id, user); err != nil {
		writeObjectError(w, err)
		return
	}
	s.auditLog(user, audit.Entry{Action: audit.ActionDelete, ObjectID: id})
	w.WriteHeader(http.StatusNoContent)
}

// handleListProperties describes the visible properties of an object.
func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	props, err := s.registry.Properties(id, userFromContext(r.Context()))
	if err != nil {
		writeObjectError(w, err)
		return
	}
	e, err := s.registry.Get(id)
	if err != nil {
		writeObjectError(w, err)
		return
	}

	out := make([]propertyResponse, 0, len(props))
	for _, p := range props {
		explicit, _ := e.Object.HasExplicitValue(p.Name())
		pr := propertyResponse{
			Name:        p.Name(),
			Type:        p.ValueType().String(),
			ReadOnly:    p.ReadOnly(),
			Description: p.Description(),
			Unit:        p.Unit(),
			Min:         encodeOrNil(p.Min()),
			Max:         encodeOrNil(p.Max()),
			Reference:   p.ReferencedProperty(),
			Explicit:    explicit,
		}
		if !p.IsDeferred() {
			pr.Default = encodeOrNil(p.Default())
		}
		if p.IsSelection() {
			pr.Selection = encodeOrNil(p.SelectionValues())
		}
		out = append(out, pr)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"properties": out,
		"count":      len(out),
	})
}

// handleGetValue reads the value at a property path. Child objects are
// returned as documents.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, ok := valuePath(w, r)
	if !ok {
		return
	}
	user := userFromContext(r.Context())

	v, err := s.registry.GetValue(id, path, user)
	if err != nil {
		writeObjectError(w, err)
		return
	}

	var enc any
	if child, isObject := v.(*property.Object); isObject {
		enc, err = child.Serialize(user)
	} else {
		enc, err = property.EncodeValue(v)
	}
	if err != nil {
		writeObjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Path: path, Value: enc})
}

// handleSetValue writes {"value": ...} at a property path. Numbers keep
// their integer or float form.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, ok := valuePath(w, r)
	if !ok {
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	raw, present := body["value"]
	if !present {
		writeBadRequest(w, "value is required")
		return
	}

	v, err := s.registry.DecodeValue(id, path, raw)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	user := userFromContext(r.Context())
	status, err := s.registry.SetValue(r.Context(), id, path, v, user)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	s.auditLog(user, audit.Entry{
		Action:   audit.ActionSet,
		ObjectID: id,
		Path:     path,
		Status:   status.String(),
		Details:  map[string]any{"value": raw},
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: status.String()})
}

// handleClearValue resets a property to its default.
func (s *Server) handleClearValue(w http.ResponseWriter, r *http.Request) {
	path, ok := valuePath(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())
	status, err := s.registry.ClearValue(r.Context(), id, path, user)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	s.auditLog(user, audit.Entry{Action: audit.ActionClear, ObjectID: id, Path: path, Status: status.String()})
	writeJSON(w, http.StatusOK, statusResponse{Status: status.String()})
}

// handleUpdateObject applies an update document in one transaction.
func (s *Server) handleUpdateObject(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())
	status, err := s.registry.ApplyUpdate(r.Context(), id, doc, user)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	s.auditLog(user, audit.Entry{Action: audit.ActionUpdate, ObjectID: id, Status: status.String()})
	writeJSON(w, http.StatusOK, statusResponse{Status: status.String()})
}

// handleFreezeObject makes an object permanently immutable.
func (s *Server) handleFreezeObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())
	status, err := s.registry.Freeze(r.Context(), id, user)
	if err != nil {
		writeObjectError(w, err)
		return
	}
	s.auditLog(user, audit.Entry{Action: audit.ActionFreeze, ObjectID: id, Status: status.String()})
	writeJSON(w, http.StatusOK, statusResponse{Status: status.String()})
}

// readDocument decodes the request body with the codec named by
// Content-Type. It writes the error response itself.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (*property.Document, bool) {
	c, err := codec.ForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		writeObjectError(w, err)
		return nil, false
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "document too large")
			return nil, false
		}
		writeBadRequest(w, "reading body")
		return nil, false
	}
	doc, err := c.Decode(data)
	if err != nil {
		writeBadRequest(w, err.Error())
		return nil, false
	}
	return doc, true
}

// valuePath returns the unescaped property path URL parameter.
func valuePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path, err := url.PathUnescape(chi.URLParam(r, "path"))
	if err != nil || path == "" {
		writeBadRequest(w, "invalid property path")
		return "", false
	}
	return path, true
}

// negotiate picks the first codec named in an Accept header. An empty
// header selects JSON.
func negotiate(accept string) (codec.Codec, error) {
	if strings.TrimSpace(accept) == "" {
		return codec.JSON{}, nil
	}
	for _, part := range strings.Split(accept, ",") {
		if c, err := codec.ForContentType(strings.TrimSpace(part)); err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", codec.ErrUnsupportedContentType, accept)
}

func encodeOrNil(v any) any {
	if v == nil {
		return nil
	}
	enc, err := property.EncodeValue(v)
	if err != nil {
		return nil
	}
	return enc
}
