package property

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"

	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/permission"
)

// maxReferenceDepth bounds reference chains followed while resolving a name.
const maxReferenceDepth = 32

// Logger defines the logging interface used by objects.
// This allows different logging implementations to be used.
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

// Object is a property object: a mutable instance holding explicit values
// for some subset of its schema's properties.
//
// Public methods take the object's reentrant configuration lock for their
// full duration, so event handlers may call back into the same object.
// Methods suffixed NoLock expect the caller to hold ConfigLock.
type Object struct {
	cfg ReentrantMutex
	acq deadlock.Mutex

	className  string
	manager    *coretype.Manager
	classProps []*Property
	classIndex map[string]int

	local      []*Property
	localIndex map[string]int

	values      map[string]any
	valueOrder  []string
	customOrder []string

	frozen atomic.Bool
	owner  atomic.Pointer[Object]
	perm   *permission.Manager

	updateCount atomic.Int32
	updateDeep  []bool
	pending     []pendingWrite
	stack       updateStack

	writeEvents map[channel]*Emitter[*ValueEventArgs]
	readEvents  map[channel]*Emitter[*ValueEventArgs]
	endUpdateEv *Emitter[*EndUpdateEventArgs]

	coreTrigger CoreEventTrigger
	coreEnabled bool
	path        string

	logger Logger
}

// ObjectOption configures an object under construction.
type ObjectOption func(*Object)

// WithPermissionManager replaces the object's own permission manager.
func WithPermissionManager(pm *permission.Manager) ObjectOption {
	return func(o *Object) {
		if pm != nil {
			o.perm = pm
		}
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l Logger) ObjectOption {
	return func(o *Object) {
		if l != nil {
			o.logger = l
		}
	}
}

func newObject() *Object {
	return &Object{
		classIndex:  make(map[string]int),
		localIndex:  make(map[string]int),
		values:      make(map[string]any),
		stack:       make(updateStack),
		perm:        permission.NewManager(),
		writeEvents: map[channel]*Emitter[*ValueEventArgs]{anyChannel: NewEmitter[*ValueEventArgs]()},
		readEvents:  map[channel]*Emitter[*ValueEventArgs]{anyChannel: NewEmitter[*ValueEventArgs]()},
		endUpdateEv: NewEmitter[*EndUpdateEventArgs](),
		logger:      noopLogger{},
	}
}

// NewObject creates an empty object without a class.
func NewObject(opts ...ObjectOption) *Object {
	o := newObject()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewObjectOfClass creates an object whose schema is the named class.
// Object-typed class properties get a clone of their default as live child.
//
// Returns:
//   - ErrInvalidParameter if mgr is nil
//   - ErrNotFound if className is not registered
//   - ErrInvalidType if className is not a class
func NewObjectOfClass(mgr *coretype.Manager, className string, opts ...ObjectOption) (*Object, error) {
	if mgr == nil {
		return nil, fmt.Errorf("%w: nil type manager", ErrInvalidParameter)
	}
	t, err := mgr.GetType(className)
	if err != nil {
		return nil, fmt.Errorf("%w: class %s", ErrNotFound, className)
	}
	cls, ok := t.(*Class)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a class", ErrInvalidType, className)
	}
	props, err := cls.Properties(mgr)
	if err != nil {
		return nil, err
	}

	o := NewObject(opts...)
	o.className = className
	o.manager = mgr
	for _, p := range props {
		o.classIndex[p.name] = len(o.classProps)
		o.classProps = append(o.classProps, p.bind(o))
	}
	for _, p := range o.classProps {
		if p.ChildDefaultIsObject() {
			o.store(p, p.def.(*Object).Clone(), true)
		}
	}
	return o, nil
}

// CoreType implements coretype.Typed.
func (o *Object) CoreType() coretype.CoreType {
	return coretype.TypeObject
}

// ClassName returns the class the object was created from, or "".
func (o *Object) ClassName() string {
	return o.className
}

// TypeManager returns the manager the class was resolved through, or nil.
func (o *Object) TypeManager() *coretype.Manager {
	return o.manager
}

// SetLogger sets the logger for the object.
func (o *Object) SetLogger(l Logger) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	o.logger = l
}

// ConfigLock acquires the reentrant configuration lock. Release it with
// Unlock on the same goroutine.
func (o *Object) ConfigLock() Unlocker {
	o.cfg.Lock()
	return &o.cfg
}

// AcquisitionLock acquires the non-reentrant acquisition lock. It must not
// be taken recursively.
func (o *Object) AcquisitionLock() Unlocker {
	o.acq.Lock()
	return &o.acq
}

// PermissionManager returns the object's permission manager. It chains to
// the owner's manager while the object is a child.
func (o *Object) PermissionManager() *permission.Manager {
	return o.perm
}

// Owner returns the object holding this one as a property value, or nil.
func (o *Object) Owner() *Object {
	return o.owner.Load()
}

// SetOwner sets the back-reference to the enclosing object and re-parents
// the permission manager. Passing nil detaches the object.
func (o *Object) SetOwner(owner *Object) {
	o.owner.Store(owner)
	var parentPerm *permission.Manager
	if owner != nil {
		parentPerm = owner.perm
	}
	if err := o.perm.SetParent(parentPerm); err != nil {
		o.logger.Warn("permission manager not re-parented", "error", err)
	}
}

// Frozen reports whether the object rejects mutation.
func (o *Object) Frozen() bool {
	return o.frozen.Load()
}

// Freeze permanently bars mutation. Reads stay legal.
// Returns StatusIgnored if the object is already frozen.
func (o *Object) Freeze() Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	if !o.frozen.CompareAndSwap(false, true) {
		return resultIgnored
	}
	return resultApplied
}

// Dispose releases the owner back-reference of every child object.
func (o *Object) Dispose() {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	for _, child := range o.children() {
		o.releaseChild(child)
	}
}

// lookup finds the unresolved definition of a plain name, local first.
func (o *Object) lookup(name string) (*Property, bool) {
	if i, ok := o.localIndex[name]; ok {
		return o.local[i], true
	}
	if i, ok := o.classIndex[name]; ok {
		return o.classProps[i], true
	}
	return nil, false
}

func (o *Object) isLocal(name string) bool {
	_, ok := o.localIndex[name]
	return ok
}

// resolve finds a plain name and follows references to the target.
func (o *Object) resolve(name string) (*Property, error) {
	p, ok := o.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: property %q", ErrNotFound, name)
	}
	for depth := 0; p.refTarget != ""; depth++ {
		if depth >= maxReferenceDepth {
			return nil, fmt.Errorf("%w: reference chain from %q is too long", ErrInvalidState, name)
		}
		target := p.refTarget
		if p, ok = o.lookup(target); !ok {
			return nil, fmt.Errorf("%w: reference target %q of %q", ErrNotFound, target, name)
		}
	}
	return p, nil
}

// ancestor walks n owner hops toward the root.
func (o *Object) ancestor(n int) (*Object, error) {
	cur := o
	for i := 0; i < n; i++ {
		if cur = cur.Owner(); cur == nil {
			return nil, fmt.Errorf("%w: object has fewer than %d ancestors", ErrNotFound, n)
		}
	}
	return cur, nil
}

// childObject returns the live object held by the object-valued property name.
func (o *Object) childObject(name string) (*Object, error) {
	p, err := o.resolve(name)
	if err != nil {
		return nil, err
	}
	v, ok := o.values[p.name]
	if !ok {
		v = p.def
	}
	child, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: property %q does not hold an object", ErrNotFound, name)
	}
	return child, nil
}

// route runs fn on the object holding the final segment of p, with that
// object's configuration lock held. The caller holds o's lock.
func (o *Object) route(p Path, fn func(holder *Object, local Path) error) error {
	if p.IsParent() {
		anc, err := o.ancestor(p.Up)
		if err != nil {
			return err
		}
		anc.cfg.Lock()
		defer anc.cfg.Unlock()
		return anc.route(p.Local(), fn)
	}
	if p.IsChild() {
		child, err := o.childObject(p.Head())
		if err != nil {
			return err
		}
		child.cfg.Lock()
		defer child.cfg.Unlock()
		return child.route(p.Child(), fn)
	}
	return fn(o, p)
}

// children returns the live child objects in value insertion order.
func (o *Object) children() []*Object {
	var out []*Object
	for _, name := range o.valueOrder {
		if child, ok := o.values[name].(*Object); ok {
			out = append(out, child)
		}
	}
	return out
}

// adoptChild wires a child into this object's tree.
func (o *Object) adoptChild(name string, child *Object) {
	child.SetOwner(o)
	child.cfg.Lock()
	defer child.cfg.Unlock()
	child.setCoreTriggerNoLock(o.coreTrigger)
	child.setPathNoLock(joinPath(o.path, name))
	child.setCoreEnabledNoLock(o.coreEnabled)
}

func (o *Object) releaseChild(child *Object) {
	if child.Owner() == o {
		child.SetOwner(nil)
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// HasProperty reports whether name resolves to a property. Paths navigate
// to ancestors and children; index suffixes are ignored.
func (o *Object) HasProperty(name string) bool {
	p, err := ParsePath(name)
	if err != nil {
		return false
	}
	o.cfg.Lock()
	defer o.cfg.Unlock()
	err = o.route(p, func(h *Object, lp Path) error {
		if _, ok := h.lookup(lp.Head()); !ok {
			return ErrNotFound
		}
		return nil
	})
	return err == nil
}

// GetProperty returns the owner-bound definition name resolves to.
// Reference properties are returned as themselves, not their target.
func (o *Object) GetProperty(name string) (*Property, error) {
	p, err := ParsePath(name)
	if err != nil {
		return nil, err
	}
	o.cfg.Lock()
	defer o.cfg.Unlock()
	var prop *Property
	err = o.route(p, func(h *Object, lp Path) error {
		found, ok := h.lookup(lp.Head())
		if !ok {
			return fmt.Errorf("%w: property %q", ErrNotFound, lp.Head())
		}
		prop = found
		return nil
	})
	return prop, err
}

// AddProperty adds a local property. An object default becomes the live
// child value and the stored definition keeps a clone of it.
//
// Returns:
//   - ErrFrozen if the object is frozen
//   - ErrInvalidParameter for nil, invalid or already bound properties
//   - ErrAlreadyExists for a duplicate name or a second reference to the same target
//   - ErrInvalidValue for a reference whose target is itself a reference
func (o *Object) AddProperty(p *Property) error {
	o.cfg.Lock()
	defer o.cfg.Unlock()

	if o.frozen.Load() {
		return ErrFrozen
	}
	if p == nil {
		return fmt.Errorf("%w: nil property", ErrInvalidParameter)
	}
	if err := p.Err(); err != nil {
		return err
	}
	if p.owner != nil {
		return fmt.Errorf("%w: property %s is already bound", ErrInvalidParameter, p.name)
	}
	if _, exists := o.lookup(p.name); exists {
		return fmt.Errorf("%w: property %s", ErrAlreadyExists, p.name)
	}
	if err := o.checkReference(p); err != nil {
		return err
	}

	var child *Object
	bound := p.bind(o)
	if p.ChildDefaultIsObject() {
		child = p.def.(*Object)
		bound = p.withDefault(child.Clone()).bind(o)
	}

	o.localIndex[p.name] = len(o.local)
	o.local = append(o.local, bound)
	o.writeEvents[named(p.name)] = p.onWrite
	o.readEvents[named(p.name)] = p.onRead
	if child != nil {
		o.store(bound, child, true)
	}

	o.triggerCore(CoreEvent{ID: CorePropertyAdded, Name: p.name, Property: bound})
	return nil
}

func (o *Object) checkReference(p *Property) error {
	all := append(slices.Clone(o.classProps), o.local...)
	for _, existing := range all {
		if !existing.IsReference() {
			continue
		}
		if p.IsReference() && existing.refTarget == p.refTarget {
			return fmt.Errorf("%w: %s is already referenced by %s", ErrAlreadyExists, p.refTarget, existing.name)
		}
		if existing.refTarget == p.name && p.IsReference() {
			return fmt.Errorf("%w: %s is a reference target and cannot itself be a reference", ErrInvalidValue, p.name)
		}
	}
	if p.IsReference() {
		if p.refTarget == p.name {
			return fmt.Errorf("%w: %s references itself", ErrInvalidValue, p.name)
		}
		if target, ok := o.lookup(p.refTarget); ok && target.IsReference() {
			return fmt.Errorf("%w: %s references reference %s", ErrInvalidValue, p.name, p.refTarget)
		}
	}
	return nil
}

// RemoveProperty removes a local property and its value.
//
// Returns:
//   - ErrFrozen if the object is frozen
//   - ErrNotFound if no property has the name
//   - ErrInvalidParameter if the property comes from the class
func (o *Object) RemoveProperty(name string) error {
	o.cfg.Lock()
	defer o.cfg.Unlock()

	if o.frozen.Load() {
		return ErrFrozen
	}
	i, ok := o.localIndex[name]
	if !ok {
		if _, inClass := o.classIndex[name]; inClass {
			return fmt.Errorf("%w: class property %s cannot be removed", ErrInvalidParameter, name)
		}
		return fmt.Errorf("%w: property %q", ErrNotFound, name)
	}

	if child, ok := o.values[name].(*Object); ok {
		o.releaseChild(child)
	}
	o.deleteValue(name)
	o.local = slices.Delete(o.local, i, i+1)
	delete(o.localIndex, name)
	for j := i; j < len(o.local); j++ {
		o.localIndex[o.local[j].name] = j
	}
	delete(o.writeEvents, named(name))
	delete(o.readEvents, named(name))
	o.customOrder = slices.DeleteFunc(o.customOrder, func(n string) bool { return n == name })

	o.triggerCore(CoreEvent{ID: CorePropertyRemoved, Name: name})
	return nil
}

// orderedProperties lists class then local properties, with names in the
// custom order moved to the front.
func (o *Object) orderedProperties() []*Property {
	all := make([]*Property, 0, len(o.classProps)+len(o.local))
	all = append(all, o.classProps...)
	all = append(all, o.local...)
	if len(o.customOrder) == 0 {
		return all
	}

	out := make([]*Property, 0, len(all))
	placed := make(map[string]bool, len(o.customOrder))
	for _, name := range o.customOrder {
		if p, ok := o.lookup(name); ok && !placed[name] {
			out = append(out, p)
			placed[name] = true
		}
	}
	for _, p := range all {
		if !placed[p.name] {
			out = append(out, p)
		}
	}
	return out
}

// GetAllProperties returns every property in display order.
func (o *Object) GetAllProperties() []*Property {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.orderedProperties()
}

// GetVisibleProperties returns the visible properties in display order.
func (o *Object) GetVisibleProperties() []*Property {
	return o.FindProperties(VisibleOnly)
}

// Filter selects properties for FindProperties.
type Filter func(*Property) bool

// VisibleOnly selects visible properties.
func VisibleOnly(p *Property) bool { return p.Visible() }

// ByValueType selects properties of a core type.
func ByValueType(t coretype.CoreType) Filter {
	return func(p *Property) bool { return p.valueType == t }
}

// FindProperties returns the properties accepted by filter, in display order.
func (o *Object) FindProperties(filter Filter) []*Property {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	var out []*Property
	for _, p := range o.orderedProperties() {
		if filter == nil || filter(p) {
			out = append(out, p)
		}
	}
	return out
}

// SetPropertyOrder sets the names listed first by GetAllProperties and
// serialization. Unknown names are kept and ignored until they exist.
func (o *Object) SetPropertyOrder(names []string) error {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	if o.frozen.Load() {
		return ErrFrozen
	}
	o.customOrder = slices.Clone(names)
	o.triggerCore(CoreEvent{ID: CorePropertyOrderChanged, Order: slices.Clone(names)})
	return nil
}

// PropertyOrder returns the custom order.
func (o *Object) PropertyOrder() []string {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return slices.Clone(o.customOrder)
}

// OnPropertyValueWrite returns the write event of the named property.
func (o *Object) OnPropertyValueWrite(name string) *Emitter[*ValueEventArgs] {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return emitterFor(o.writeEvents, named(name))
}

// OnPropertyValueRead returns the read event of the named property.
func (o *Object) OnPropertyValueRead(name string) *Emitter[*ValueEventArgs] {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return emitterFor(o.readEvents, named(name))
}

// OnAnyPropertyValueWrite returns the event raised for writes to any property.
func (o *Object) OnAnyPropertyValueWrite() *Emitter[*ValueEventArgs] {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.writeEvents[anyChannel]
}

// OnAnyPropertyValueRead returns the event raised for reads of any property.
func (o *Object) OnAnyPropertyValueRead() *Emitter[*ValueEventArgs] {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.readEvents[anyChannel]
}

// OnEndUpdate returns the event raised when an update transaction ends.
func (o *Object) OnEndUpdate() *Emitter[*EndUpdateEventArgs] {
	return o.endUpdateEv
}

func emitterFor(m map[channel]*Emitter[*ValueEventArgs], ch channel) *Emitter[*ValueEventArgs] {
	e, ok := m[ch]
	if !ok {
		e = NewEmitter[*ValueEventArgs]()
		m[ch] = e
	}
	return e
}

// SetCoreEventTrigger sets the callback receiving core events from this
// object and its children.
func (o *Object) SetCoreEventTrigger(trigger CoreEventTrigger) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	o.setCoreTriggerNoLock(trigger)
}

func (o *Object) setCoreTriggerNoLock(trigger CoreEventTrigger) {
	o.coreTrigger = trigger
	for _, child := range o.children() {
		child.SetCoreEventTrigger(trigger)
	}
}

// EnableCoreEventTrigger turns core events on for the object and its children.
func (o *Object) EnableCoreEventTrigger() {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	o.setCoreEnabledNoLock(true)
}

// DisableCoreEventTrigger turns core events off for the object and its children.
func (o *Object) DisableCoreEventTrigger() {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	o.setCoreEnabledNoLock(false)
}

func (o *Object) setCoreEnabledNoLock(enabled bool) {
	o.coreEnabled = enabled
	for _, child := range o.children() {
		child.cfg.Lock()
		child.setCoreEnabledNoLock(enabled)
		child.cfg.Unlock()
	}
}

// CoreEventsEnabled reports whether core events are raised.
func (o *Object) CoreEventsEnabled() bool {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.coreEnabled
}

// SetPath sets the object's path in its tree. Children get
// "path.propertyName".
func (o *Object) SetPath(path string) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	o.setPathNoLock(path)
}

func (o *Object) setPathNoLock(path string) {
	o.path = path
	for _, name := range o.valueOrder {
		if child, ok := o.values[name].(*Object); ok {
			child.SetPath(joinPath(path, name))
		}
	}
}

// Path returns the object's path in its tree.
func (o *Object) Path() string {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.path
}

func (o *Object) triggerCore(ev CoreEvent) {
	if !o.coreEnabled || o.coreTrigger == nil {
		return
	}
	ev.Path = o.path
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("core event trigger panicked", "event", ev.ID.String(), "panic", r)
		}
	}()
	o.coreTrigger(o, ev)
}

// Clone returns a deep copy: class, local properties, values, order,
// emitters and core-event trigger. Child objects are cloned, the
// permission manager is cloned and detached, and the copy is not frozen.
func (o *Object) Clone() *Object {
	o.cfg.Lock()
	defer o.cfg.Unlock()

	c := newObject()
	c.className = o.className
	c.manager = o.manager
	c.logger = o.logger
	c.perm = o.perm.Clone()
	//nolint:errcheck // detaching never forms a cycle
	c.perm.SetParent(nil)
	c.coreTrigger = o.coreTrigger
	c.coreEnabled = o.coreEnabled
	c.path = o.path
	c.customOrder = slices.Clone(o.customOrder)

	for _, p := range o.classProps {
		c.classIndex[p.name] = len(c.classProps)
		c.classProps = append(c.classProps, p.bind(c))
	}
	for _, p := range o.local {
		c.localIndex[p.name] = len(c.local)
		c.local = append(c.local, p.bind(c))
	}
	for ch, e := range o.writeEvents {
		c.writeEvents[ch] = e.clone()
	}
	for ch, e := range o.readEvents {
		c.readEvents[ch] = e.clone()
	}
	c.endUpdateEv = o.endUpdateEv.clone()

	for _, name := range o.valueOrder {
		v := o.values[name]
		if child, ok := v.(*Object); ok {
			cc := child.Clone()
			c.storeValue(name, cc)
			c.adoptChild(name, cc)
			continue
		}
		c.storeValue(name, coretype.Clone(v))
	}
	return c
}
