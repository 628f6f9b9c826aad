package property

import (
	"errors"
	"fmt"

	"github.com/nerrad567/propcore/internal/coretype"
)

// stackItem tracks one property being written while its write handlers run.
type stackItem struct {
	value  any
	level  int
	pushed bool
}

// updateStack deduplicates reentrant writes to the same property made from
// inside its own write handlers. A nested write of the value already in
// flight is refused; a nested write of a different value supersedes the
// outer one.
type updateStack map[string]*stackItem

func (s updateStack) register(name string, value any) bool {
	it, ok := s[name]
	if !ok {
		s[name] = &stackItem{value: value, level: 1, pushed: true}
		return true
	}
	if coretype.Equal(it.value, value) {
		return false
	}
	it.value = value
	it.pushed = true
	it.level++
	return true
}

// unregister pops one level and reports whether no nested write
// superseded this one.
func (s updateStack) unregister(name string) bool {
	it, ok := s[name]
	if !ok {
		return false
	}
	pushed := it.pushed
	it.pushed = false
	it.level--
	if it.level <= 0 {
		delete(s, name)
	}
	return pushed
}

func (s updateStack) isBaseLevel(name string) bool {
	it, ok := s[name]
	return ok && it.level == 1
}

// pendingWrite is a set or clear deferred until the outermost EndUpdate.
type pendingWrite struct {
	path      Path
	set       bool
	value     any
	protected bool
}

// enqueue records w. Every write is replayed in call order, so the last
// write to a path wins; applyPending reports each changed path once.
func (o *Object) enqueue(w pendingWrite) {
	o.pending = append(o.pending, w)
}

// Updating reports whether the object is inside an update transaction.
func (o *Object) Updating() bool {
	return o.updateCount.Load() > 0
}

// BeginUpdate opens an update transaction on the object and every child
// object it holds. Writes are batched until the matching EndUpdate.
// Returns ErrFrozen if the object is frozen.
func (o *Object) BeginUpdate() error {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.beginUpdate(true)
}

// BeginUpdateShallow opens an update transaction on the object only.
func (o *Object) BeginUpdateShallow() error {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.beginUpdate(false)
}

func (o *Object) beginUpdate(deep bool) error {
	if o.frozen.Load() {
		return ErrFrozen
	}
	o.updateCount.Add(1)
	o.updateDeep = append(o.updateDeep, deep)
	if deep {
		for _, child := range o.children() {
			if err := child.BeginUpdate(); err != nil {
				o.logger.Debug("child not entered into update", "path", child.path, "error", err)
			}
		}
	}
	return nil
}

// EndUpdate closes the innermost update transaction. When the outermost
// one closes, batched writes are replayed in order, OnEndUpdate fires with
// the names that changed and one CoreUpdateEnd event carries their final
// values. Replay failures are joined into the returned error without
// stopping the remaining writes.
// Returns ErrInvalidState if no transaction is open.
func (o *Object) EndUpdate() error {
	o.cfg.Lock()
	defer o.cfg.Unlock()
	return o.endUpdate()
}

func (o *Object) endUpdate() error {
	if o.updateCount.Load() == 0 {
		return fmt.Errorf("%w: EndUpdate without BeginUpdate", ErrInvalidState)
	}
	deep := o.updateDeep[len(o.updateDeep)-1]
	o.updateDeep = o.updateDeep[:len(o.updateDeep)-1]
	remaining := o.updateCount.Add(-1)

	if deep {
		for _, child := range o.children() {
			if err := child.EndUpdate(); err != nil {
				o.logger.Debug("child update not ended", "path", child.path, "error", err)
			}
		}
	}
	if remaining > 0 {
		return nil
	}
	return o.applyPending()
}

func (o *Object) applyPending() error {
	pending := o.pending
	o.pending = nil

	var errs []error
	var names []string
	changes := coretype.NewDict()
	for _, w := range pending {
		var r Result
		if w.set {
			r = o.setValue(w.path, w.value, w.protected, false, true)
		} else {
			r = o.clearValue(w.path, w.protected, false, true)
		}
		if !r.OK() {
			errs = append(errs, fmt.Errorf("%s: %w", w.path, r.Err))
			continue
		}
		if r.Ignored() {
			continue
		}

		name := w.path.String()
		v, err := o.peekValue(w.path)
		if err != nil {
			o.logger.Debug("changed value not readable", "property", name, "error", err)
		}
		if !changes.Has(name) {
			names = append(names, name)
		}
		//nolint:errcheck // string keys are always valid
		changes.Set(name, v)
	}

	args := &EndUpdateEventArgs{Properties: names, ParentUpdating: o.parentUpdating()}
	if err := o.endUpdateEv.Trigger(o, args); err != nil {
		o.logger.Warn("end update handler failed", "error", err)
	}
	if changes.Len() > 0 {
		o.triggerCore(CoreEvent{ID: CoreUpdateEnd, Changes: changes})
	}
	return errors.Join(errs...)
}

func (o *Object) parentUpdating() bool {
	owner := o.Owner()
	return owner != nil && owner.Updating()
}
