package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/propcore/internal/codec"
	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/permission"
	"github.com/nerrad567/propcore/internal/property"
)

// Logger defines the logging interface used by the Registry.
// It matches property.Logger so the same logger reaches every object.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is notified when root objects enter or leave the registry.
// Callbacks run outside the registry lock.
type Observer interface {
	ObjectAdded(e Entry)
	ObjectRemoved(e Entry)
}

// System is the identity the registry persists snapshots as.
var System = permission.User{ID: "propcore", Groups: []string{permission.GroupAdmin}}

// Option configures a Registry.
type Option func(*Registry)

// WithCodec selects the document encoding for new snapshots.
// Existing rows are decoded by their stored content type. Default: JSON.
func WithCodec(c codec.Codec) Option {
	return func(r *Registry) { r.codec = c }
}

// WithPermissions installs registry-wide rules as the parent of every
// object's permission manager.
func WithPermissions(pm *permission.Manager) Option {
	return func(r *Registry) { r.perm = pm }
}

// Registry holds the live root objects of the service and keeps their
// snapshots in a Repository.
//
// Objects are loaded on startup via Load() and persisted after every
// mutation made through the registry.
//
// All public methods are thread-safe.
type Registry struct {
	repo  Repository
	types *coretype.Manager
	codec codec.Codec
	perm  *permission.Manager

	mu        sync.RWMutex // Protects entries and observers
	entries   map[string]*Entry
	observers []Observer

	logger Logger
}

// NewRegistry creates a registry. types resolves the classes, struct
// types and enumeration types of stored objects.
func NewRegistry(repo Repository, types *coretype.Manager, opts ...Option) *Registry {
	r := &Registry{
		repo:    repo,
		types:   types,
		codec:   codec.JSON{},
		entries: make(map[string]*Entry),
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger sets the logger for the registry and the objects it creates.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Types returns the registry's type manager.
func (r *Registry) Types() *coretype.Manager {
	return r.types
}

// AddObserver registers o and replays ObjectAdded for the current entries.
func (r *Registry) AddObserver(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	current := r.snapshotEntries()
	r.mu.Unlock()

	for _, e := range current {
		o.ObjectAdded(e)
	}
}

// Load replaces the live objects with the stored snapshots.
// This should be called on application startup, after the schema is loaded.
// Records that fail to decode are logged and skipped.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading objects: %w", err)
	}

	loaded := make(map[string]*Entry, len(records))
	for i := range records {
		rec := &records[i]
		obj, err := r.decode(rec)
		if err != nil {
			r.logger.Error("skipping stored object", "id", rec.ID, "name", rec.Name, "error", err)
			continue
		}
		loaded[rec.ID] = &Entry{
			ID:        rec.ID,
			Name:      rec.Name,
			Object:    obj,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
	}

	r.mu.Lock()
	previous := r.snapshotEntries()
	r.entries = loaded
	current := r.snapshotEntries()
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		for _, e := range previous {
			obs.ObjectRemoved(e)
		}
		for _, e := range current {
			obs.ObjectAdded(e)
		}
	}

	r.logger.Info("property objects loaded", "count", len(loaded), "stored", len(records))
	return nil
}

func (r *Registry) decode(rec *Record) (*property.Object, error) {
	c, err := codec.ForContentType(rec.ContentType)
	if err != nil {
		return nil, err
	}
	doc, err := c.Decode(rec.Document)
	if err != nil {
		return nil, err
	}
	obj, err := property.Deserialize(doc, property.DeserializeOptions{Manager: r.types, Logger: r.logger})
	if err != nil {
		return nil, err
	}
	r.attach(obj)
	return obj, nil
}

func (r *Registry) attach(obj *property.Object) {
	if r.perm != nil {
		//nolint:errcheck // a fresh object manager cannot form a cycle with the registry rules
		obj.PermissionManager().SetParent(r.perm)
	}
}

// Create instantiates className (or an empty object when className is
// empty) under a new ID and persists it.
func (r *Registry) Create(ctx context.Context, name, className string) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	var obj *property.Object
	if className == "" {
		obj = property.NewObject(property.WithLogger(r.logger))
	} else {
		var err error
		obj, err = property.NewObjectOfClass(r.types, className, property.WithLogger(r.logger))
		if err != nil {
			return Entry{}, err
		}
	}
	r.attach(obj)
	return r.insert(ctx, name, obj)
}

// Import builds an object from a serialized document and persists it.
func (r *Registry) Import(ctx context.Context, name string, doc *property.Document) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	obj, err := property.Deserialize(doc, property.DeserializeOptions{Manager: r.types, Logger: r.logger})
	if err != nil {
		return Entry{}, err
	}
	r.attach(obj)
	return r.insert(ctx, name, obj)
}

func (r *Registry) insert(ctx context.Context, name string, obj *property.Object) (Entry, error) {
	if _, err := r.GetByName(name); err == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrObjectExists, name)
	}

	rec, err := r.record(GenerateID(), name, obj)
	if err != nil {
		return Entry{}, err
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		return Entry{}, err
	}

	e := &Entry{ID: rec.ID, Name: name, Object: obj, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
	r.mu.Lock()
	r.entries[e.ID] = e
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		obs.ObjectAdded(*e)
	}
	r.logger.Info("property object created", "id", e.ID, "name", name, "class", obj.ClassName())
	return *e, nil
}

// record serializes obj into a snapshot. An object whose definitions
// cannot be serialized falls back to its update form, which keeps the
// values but not local property definitions.
func (r *Registry) record(id, name string, obj *property.Object) (*Record, error) {
	doc, err := obj.Serialize(System)
	if errors.Is(err, property.ErrInvalidState) {
		r.logger.Warn("storing values only, definitions are not serializable", "id", id, "error", err)
		doc, err = obj.SerializeForUpdate(System)
	}
	if err != nil {
		return nil, fmt.Errorf("serializing object %s: %w", name, err)
	}
	data, err := r.codec.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding object %s: %w", name, err)
	}
	return &Record{
		ID:          id,
		Name:        name,
		ClassName:   obj.ClassName(),
		ContentType: r.codec.ContentType(),
		Document:    data,
		Frozen:      obj.Frozen(),
	}, nil
}

// Get retrieves a live object by ID.
// Returns ErrObjectNotFound if the object does not exist.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return *e, nil
}

// GetByName retrieves a live object by name.
func (r *Registry) GetByName(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Name == name {
			return *e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
}

// List returns all live objects ordered by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotEntries()
}

// snapshotEntries copies the entries sorted by name. Caller holds mu.
func (r *Registry) snapshotEntries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of live objects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Delete removes an object. The live instance is disposed.
func (r *Registry) Delete(ctx context.Context, id string, user permission.User) error {
	e, err := r.authorized(id, user, permission.Write)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.entries, id)
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		obs.ObjectRemoved(e)
	}
	e.Object.Dispose()
	r.logger.Info("property object deleted", "id", id, "name", e.Name)
	return nil
}

func (r *Registry) authorized(id string, user permission.User, perm permission.Permission) (Entry, error) {
	e, err := r.Get(id)
	if err != nil {
		return Entry{}, err
	}
	if !e.Object.PermissionManager().IsAuthorized(user, perm) {
		return Entry{}, fmt.Errorf("%w: %s on %s", ErrAccessDenied, perm, e.Name)
	}
	return e, nil
}

// GetValue reads the value at path.
func (r *Registry) GetValue(id, path string, user permission.User) (any, error) {
	e, err := r.authorized(id, user, permission.Read)
	if err != nil {
		return nil, err
	}
	return e.Object.GetPropertyValue(path)
}

// Properties returns the visible properties of an object in property order.
func (r *Registry) Properties(id string, user permission.User) ([]*property.Property, error) {
	e, err := r.authorized(id, user, permission.Read)
	if err != nil {
		return nil, err
	}
	return e.Object.GetVisibleProperties(), nil
}

// DecodeValue raises an encoded value for the property at path of an object.
func (r *Registry) DecodeValue(id, path string, enc any) (any, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return e.Object.DecodeValue(path, enc)
}

// Authorize reports whether user holds perm on an object.
func (r *Registry) Authorize(id string, user permission.User, perm permission.Permission) error {
	_, err := r.authorized(id, user, perm)
	return err
}

// Snapshot serializes an object as seen by user.
func (r *Registry) Snapshot(id string, user permission.User) (*property.Document, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return e.Object.Serialize(user)
}

// SetValue writes value at path and persists the object when the write
// took effect. A failed write returns its Result error.
func (r *Registry) SetValue(ctx context.Context, id, path string, value any, user permission.User) (property.Status, error) {
	return r.mutate(ctx, id, user, func(o *property.Object) property.Result {
		return o.SetPropertyValue(path, value)
	})
}

// ClearValue restores the default at path.
func (r *Registry) ClearValue(ctx context.Context, id, path string, user permission.User) (property.Status, error) {
	return r.mutate(ctx, id, user, func(o *property.Object) property.Result {
		return o.ClearPropertyValue(path)
	})
}

// ApplyUpdate applies an update document inside one transaction.
func (r *Registry) ApplyUpdate(ctx context.Context, id string, doc *property.Document, user permission.User) (property.Status, error) {
	return r.mutate(ctx, id, user, func(o *property.Object) property.Result {
		return o.Update(doc)
	})
}

// Freeze freezes an object.
func (r *Registry) Freeze(ctx context.Context, id string, user permission.User) (property.Status, error) {
	return r.mutate(ctx, id, user, func(o *property.Object) property.Result {
		return o.Freeze()
	})
}

func (r *Registry) mutate(ctx context.Context, id string, user permission.User, fn func(*property.Object) property.Result) (property.Status, error) {
	e, err := r.authorized(id, user, permission.Write)
	if err != nil {
		return property.StatusFailed, err
	}
	res := fn(e.Object)
	if !res.OK() {
		return res.Status, res.Err
	}
	if res.Applied() {
		if err := r.save(ctx, e); err != nil {
			return res.Status, err
		}
	}
	return res.Status, nil
}

// Save persists the current state of an object.
func (r *Registry) Save(ctx context.Context, id string) error {
	e, err := r.Get(id)
	if err != nil {
		return err
	}
	return r.save(ctx, e)
}

func (r *Registry) save(ctx context.Context, e Entry) error {
	rec, err := r.record(e.ID, e.Name, e.Object)
	if err != nil {
		return err
	}
	rec.CreatedAt = e.CreatedAt
	if err := r.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persisting object %s: %w", e.Name, err)
	}

	r.mu.Lock()
	if live, ok := r.entries[e.ID]; ok {
		live.UpdatedAt = rec.UpdatedAt
	}
	r.mu.Unlock()

	r.logger.Debug("property object saved", "id", e.ID, "updated_at", rec.UpdatedAt.Format(time.RFC3339))
	return nil
}
