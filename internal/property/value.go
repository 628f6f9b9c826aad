package property

import (
	"errors"
	"fmt"

	"github.com/nerrad567/propcore/internal/coretype"
)

// writeOutcome says what the write-event phase decided.
type writeOutcome int

const (
	// writeProceed: the caller stores the value it passed in.
	writeProceed writeOutcome = iota
	// writeUnchanged: nothing observable happened.
	writeUnchanged
	// writeSuperseded: a nested write from a handler already stored a value.
	writeSuperseded
	// writeOverridden: a handler replaced the value and it has been stored.
	writeOverridden
)

// GetPropertyValue returns the effective value of name: the explicit value,
// or the property's default. Lists and dicts are copies; object values are
// the live child. Read handlers may substitute the returned value.
//
// Returns:
//   - ErrInvalidParameter for a malformed path
//   - ErrNotFound for unknown names, short owner chains and properties without a value
//   - ErrOutOfRange for an index past the end of the list
func (o *Object) GetPropertyValue(name string) (any, error) {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.GetPropertyValueNoLock(name)
}

// GetPropertyValueNoLock is GetPropertyValue for callers holding ConfigLock.
func (o *Object) GetPropertyValueNoLock(name string) (any, error) {
	p, err := ParsePath(name)
	if err != nil {
		return nil, err
	}
	return o.getValue(p, true)
}

func (o *Object) getValue(p Path, events bool) (any, error) {
	var out any
	err := o.route(p, func(h *Object, lp Path) error {
		v, err := h.readValue(lp, events)
		out = v
		return err
	})
	return out, err
}

// peekValue reads without raising read events.
func (o *Object) peekValue(p Path) (any, error) {
	return o.getValue(p, false)
}

func (o *Object) readValue(p Path, events bool) (any, error) {
	prop, err := o.resolve(p.Head())
	if err != nil {
		return nil, err
	}
	v, err := o.storedOrDefault(prop)
	if err != nil {
		return nil, err
	}
	if p.HasIndex() {
		if v, err = elementAt(v, p.Index); err != nil {
			return nil, err
		}
	}
	if events {
		v = o.callRead(prop, v)
	}
	return v, nil
}

func (o *Object) storedOrDefault(prop *Property) (any, error) {
	if v, ok := o.values[prop.name]; ok {
		return coretype.Clone(v), nil
	}
	v, err := prop.DefaultValue()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: property %s has no value", ErrNotFound, prop.name)
	}
	return v, nil
}

func elementAt(v any, idx int) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: indexed value is %s, not a list", ErrInvalidType, coretype.TypeOf(v))
	}
	if idx >= len(list) {
		return nil, fmt.Errorf("%w: index %d, length %d", ErrOutOfRange, idx, len(list))
	}
	return list[idx], nil
}

func (o *Object) callRead(prop *Property, v any) any {
	emitters := make([]*Emitter[*ValueEventArgs], 0, 3)
	if !o.isLocal(prop.name) {
		emitters = append(emitters, prop.onRead)
	}
	emitters = append(emitters, o.readEvents[named(prop.name)], o.readEvents[anyChannel])

	var args *ValueEventArgs
	for _, e := range emitters {
		if !e.HasListeners() {
			continue
		}
		if args == nil {
			args = &ValueEventArgs{Property: prop, OldValue: v, Type: EventRead, value: v}
		}
		if err := e.Trigger(o, args); err != nil {
			o.logger.Warn("read handler failed", "property", prop.name, "error", err)
		}
	}
	if args == nil {
		return v
	}
	return args.value
}

// GetPropertySelectionValue returns the entry of the selection list or dict
// that the property's value selects.
// Returns ErrInvalidType if the property is not a selection property.
func (o *Object) GetPropertySelectionValue(name string) (any, error) {
	p, err := ParsePath(name)
	if err != nil {
		return nil, err
	}
	o.cfg.Lock()
	defer o.cfg.Unlock()

	var out any
	err = o.route(p, func(h *Object, lp Path) error {
		prop, err := h.resolve(lp.Head())
		if err != nil {
			return err
		}
		if prop.selection == nil {
			return fmt.Errorf("%w: %s is not a selection property", ErrInvalidType, prop.name)
		}
		v, err := h.readValue(lp, true)
		if err != nil {
			return err
		}
		out, err = selectionLookup(prop.selection, v)
		return err
	})
	return out, err
}

// HasExplicitValue reports whether name holds a value other than its default.
func (o *Object) HasExplicitValue(name string) (bool, error) {
	p, err := ParsePath(name)
	if err != nil {
		return false, err
	}
	o.cfg.Lock()
	defer o.cfg.Unlock()

	var has bool
	err = o.route(p, func(h *Object, lp Path) error {
		prop, err := h.resolve(lp.Head())
		if err != nil {
			return err
		}
		_, has = h.values[prop.name]
		return nil
	})
	return has, err
}

// SetPropertyValue writes name through the validation pipeline and the
// write events. Inside an update transaction the write is batched and
// reported as applied.
//
// Returns StatusIgnored when the value is unchanged, and failures with:
//   - ErrFrozen for frozen objects
//   - ErrAccessDenied for read-only and object-typed properties, and parent paths
//   - ErrNotFound for unknown names or selection keys
//   - ErrInvalidValue, ErrInvalidType, ErrCoerceFailed or ErrValidateFailed from the pipeline
func (o *Object) SetPropertyValue(name string, value any) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.setPath(name, value, false)
}

// SetPropertyValueNoLock is SetPropertyValue for callers holding ConfigLock.
func (o *Object) SetPropertyValueNoLock(name string, value any) Result {
	return o.setPath(name, value, false)
}

// SetProtectedPropertyValue writes name bypassing read-only checks. It is
// the only way to replace an object-typed value.
func (o *Object) SetProtectedPropertyValue(name string, value any) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.setPath(name, value, true)
}

func (o *Object) setPath(name string, value any, protected bool) Result {
	p, err := ParsePath(name)
	if err != nil {
		return failed(err)
	}
	if value == nil {
		return failed(fmt.Errorf("%w: nil value for %s", ErrInvalidParameter, name))
	}
	v, err := coretype.Normalize(value)
	if err != nil {
		return failed(fmt.Errorf("%w: %w", ErrInvalidValue, err))
	}
	return o.setValue(p, v, protected, o.Updating(), false)
}

func (o *Object) setValue(p Path, v any, protected, batch, isUpdating bool) Result {
	if o.frozen.Load() {
		return failed(ErrFrozen)
	}
	if batch {
		o.enqueue(pendingWrite{path: p, set: true, value: coretype.Clone(v), protected: protected})
		return resultApplied
	}
	if p.IsParent() {
		return failed(fmt.Errorf("%w: cannot set values through parent path %s", ErrAccessDenied, p))
	}
	if p.IsChild() {
		child, err := o.childObject(p.Head())
		if err != nil {
			return failed(err)
		}
		return child.setFromParent(p.Child(), v, protected)
	}

	prop, err := o.resolve(p.Head())
	if err != nil {
		return failed(err)
	}
	if !protected && (prop.readOnly || prop.valueType == coretype.TypeObject) {
		return failed(fmt.Errorf("%w: property %s", ErrAccessDenied, prop.name))
	}
	if p.HasIndex() {
		if v, err = o.replaceElement(prop, p.Index, v); err != nil {
			return failed(err)
		}
	}
	if v, err = o.check(prop, v); err != nil {
		return failed(err)
	}
	return o.write(prop, v, isUpdating)
}

func (o *Object) setFromParent(p Path, v any, protected bool) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.setValue(p, v, protected, o.Updating(), false)
}

func (o *Object) replaceElement(prop *Property, idx int, elem any) (any, error) {
	cur, err := o.storedOrDefault(prop)
	if err != nil {
		return nil, err
	}
	list, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", ErrInvalidType, prop.name)
	}
	if idx >= len(list) {
		return nil, fmt.Errorf("%w: index %d, length %d", ErrOutOfRange, idx, len(list))
	}
	if prop.itemType != coretype.TypeUndefined && coretype.TypeOf(elem) != prop.itemType {
		if elem, err = coretype.Convert(elem, prop.itemType); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
	}
	list[idx] = elem
	return list, nil
}

func (o *Object) write(prop *Property, v any, isUpdating bool) Result {
	outcome, final, err := o.callWrite(prop, v, EventUpdate, isUpdating)
	if err != nil {
		return failed(err)
	}
	switch outcome {
	case writeUnchanged:
		return resultIgnored
	case writeSuperseded:
		return resultApplied
	case writeProceed:
		if !o.store(prop, v, false) {
			return resultIgnored
		}
		final = v
	}
	if !isUpdating {
		o.triggerCore(CoreEvent{ID: CorePropertyValueChanged, Name: prop.name, Value: coretype.Clone(final)})
	}
	return resultApplied
}

// callWrite runs the write handlers: class-level (for class properties),
// per-name, then any-write. A handler may replace the value; the
// replacement is validated and stored here.
func (o *Object) callWrite(prop *Property, newValue any, typ ValueEventType, isUpdating bool) (writeOutcome, any, error) {
	name := prop.name
	if !o.stack.register(name, newValue) {
		return writeUnchanged, nil, nil
	}
	if o.stack.isBaseLevel(name) && newValue != nil && !o.shouldWrite(prop, newValue) {
		o.stack.unregister(name)
		return writeUnchanged, nil, nil
	}

	def, err := prop.DefaultValue()
	if err != nil {
		o.logger.Debug("default not available for write event", "property", name, "error", err)
	}
	old, ok := o.values[name]
	if !ok {
		old = def
	}
	args := &ValueEventArgs{Property: prop, OldValue: coretype.Clone(old), Type: typ, IsUpdating: isUpdating}
	if typ == EventClear {
		args.value = coretype.Clone(def)
	} else {
		args.value = coretype.Clone(newValue)
	}

	if !o.isLocal(name) {
		if err := prop.onWrite.Trigger(o, args); err != nil {
			o.logger.Warn("class write handler failed", "property", name, "error", err)
		}
	}
	handlerErr := o.writeEvents[named(name)].Trigger(o, args)
	if err := o.writeEvents[anyChannel].Trigger(o, args); err != nil {
		o.logger.Warn("write handler failed", "property", name, "error", err)
	}

	shouldUpdate := o.stack.unregister(name)
	if handlerErr != nil {
		return writeUnchanged, nil, handlerErr
	}
	if !shouldUpdate {
		return writeSuperseded, nil, nil
	}
	if !args.replaced ||
		(typ == EventClear && coretype.Equal(args.value, def)) ||
		(typ == EventUpdate && coretype.Equal(args.value, newValue)) {
		return writeProceed, newValue, nil
	}

	final, err := o.check(prop, args.value)
	if err != nil {
		return writeUnchanged, nil, err
	}
	if !o.store(prop, final, false) {
		return writeUnchanged, nil, nil
	}
	return writeOverridden, final, nil
}

// shouldWrite reports whether v differs from the current effective value.
func (o *Object) shouldWrite(prop *Property, v any) bool {
	if cur, ok := o.values[prop.name]; ok {
		return !coretype.Equal(cur, v)
	}
	def, err := prop.DefaultValue()
	if err != nil {
		return true
	}
	return !coretype.Equal(def, v)
}

// store writes v as the explicit value of prop. A value equal to the
// default removes the entry instead. Returns false if nothing changed.
func (o *Object) store(prop *Property, v any, force bool) bool {
	name := prop.name
	old, exists := o.values[name]
	if exists && coretype.Equal(old, v) {
		return false
	}
	if !force {
		if def, err := prop.DefaultValue(); err == nil && def != nil && coretype.Equal(def, v) {
			if !exists {
				return false
			}
			o.deleteValue(name)
			if oldChild, ok := old.(*Object); ok {
				o.releaseChild(oldChild)
			}
			return true
		}
	}

	o.storeValue(name, v)
	if child, ok := v.(*Object); ok {
		o.adoptChild(name, child)
	}
	if oldChild, ok := old.(*Object); ok && exists {
		o.releaseChild(oldChild)
	}
	return true
}

func (o *Object) storeValue(name string, v any) {
	if _, ok := o.values[name]; !ok {
		o.valueOrder = append(o.valueOrder, name)
	}
	o.values[name] = v
}

func (o *Object) deleteValue(name string) {
	if _, ok := o.values[name]; !ok {
		return
	}
	delete(o.values, name)
	for i, n := range o.valueOrder {
		if n == name {
			o.valueOrder = append(o.valueOrder[:i], o.valueOrder[i+1:]...)
			break
		}
	}
}

// ClearPropertyValue removes the explicit value of name so it resolves to
// its default again. Clearing an object-typed property clears every
// property of the child instead. Returns StatusIgnored when there was no
// explicit value.
func (o *Object) ClearPropertyValue(name string) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.clearPath(name, false)
}

// ClearPropertyValueNoLock is ClearPropertyValue for callers holding ConfigLock.
func (o *Object) ClearPropertyValueNoLock(name string) Result {
	return o.clearPath(name, false)
}

// ClearProtectedPropertyValue clears name bypassing read-only checks.
func (o *Object) ClearProtectedPropertyValue(name string) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.clearPath(name, true)
}

func (o *Object) clearPath(name string, protected bool) Result {
	p, err := ParsePath(name)
	if err != nil {
		return failed(err)
	}
	return o.clearValue(p, protected, o.Updating(), false)
}

func (o *Object) clearValue(p Path, protected, batch, isUpdating bool) Result {
	if o.frozen.Load() {
		return failed(ErrFrozen)
	}
	if batch {
		o.enqueue(pendingWrite{path: p, protected: protected})
		return resultApplied
	}
	if p.IsParent() {
		return failed(fmt.Errorf("%w: cannot clear values through parent path %s", ErrAccessDenied, p))
	}
	if p.IsChild() {
		child, err := o.childObject(p.Head())
		if err != nil {
			return failed(err)
		}
		return child.clearFromParent(p.Child(), protected)
	}
	if p.HasIndex() {
		return failed(fmt.Errorf("%w: list elements cannot be cleared", ErrInvalidParameter))
	}

	prop, err := o.resolve(p.Head())
	if err != nil {
		return failed(err)
	}
	if !protected && prop.readOnly {
		return failed(fmt.Errorf("%w: property %s", ErrAccessDenied, prop.name))
	}
	cur, ok := o.values[prop.name]
	if !ok {
		return resultIgnored
	}
	if child, isObj := cur.(*Object); isObj {
		return child.clearAll(protected)
	}

	outcome, final, err := o.callWrite(prop, nil, EventClear, isUpdating)
	if err != nil {
		return failed(err)
	}
	switch outcome {
	case writeUnchanged:
		return resultIgnored
	case writeSuperseded:
		return resultApplied
	case writeProceed:
		o.deleteValue(prop.name)
		if final, err = prop.DefaultValue(); err != nil {
			o.logger.Debug("default not available after clear", "property", prop.name, "error", err)
		}
	}
	if !isUpdating {
		o.triggerCore(CoreEvent{ID: CorePropertyValueChanged, Name: prop.name, Value: coretype.Clone(final)})
	}
	return resultApplied
}

func (o *Object) clearFromParent(p Path, protected bool) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.clearValue(p, protected, o.Updating(), false)
}

// clearAll clears every property. Unprotected calls skip read-only ones.
func (o *Object) clearAll(protected bool) Result {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	if o.frozen.Load() {
		return failed(ErrFrozen)
	}

	changed := false
	var errs []error
	for _, prop := range o.orderedProperties() {
		if prop.IsReference() || (!protected && prop.readOnly) {
			continue
		}
		r := o.clearValue(Path{Segments: []string{prop.name}, Index: -1}, protected, o.Updating(), false)
		switch {
		case !r.OK():
			errs = append(errs, r.Err)
		case r.Applied():
			changed = true
		}
	}
	if len(errs) > 0 {
		return failed(errors.Join(errs...))
	}
	if changed {
		return resultApplied
	}
	return resultIgnored
}
