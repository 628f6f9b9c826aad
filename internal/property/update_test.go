package property

import (
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/propcore/internal/coretype"
)

func TestUpdate_CoalescesWrites(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("A", 0), Int("B", 5))
	o.SetPropertyValue("B", 9)

	var core []CoreEvent
	o.SetCoreEventTrigger(func(_ *Object, ev CoreEvent) { core = append(core, ev) })
	o.EnableCoreEventTrigger()

	var writes []string
	o.OnAnyPropertyValueWrite().Subscribe(func(_ *Object, args *ValueEventArgs) {
		if !args.IsUpdating {
			t.Errorf("write event for %s during replay has IsUpdating = false", args.Property.Name())
		}
		writes = append(writes, args.Property.Name())
	})
	var ends []*EndUpdateEventArgs
	o.OnEndUpdate().Subscribe(func(_ *Object, args *EndUpdateEventArgs) { ends = append(ends, args) })

	if err := o.BeginUpdate(); err != nil {
		t.Fatalf("BeginUpdate() error = %v", err)
	}
	if !o.Updating() {
		t.Error("Updating() = false inside a transaction")
	}
	for _, r := range []Result{
		o.SetPropertyValue("A", 1),
		o.SetPropertyValue("A", 2),
		o.ClearPropertyValue("B"),
	} {
		if !r.Applied() {
			t.Errorf("batched write = %v, want applied", r)
		}
	}
	if v, _ := o.GetPropertyValue("A"); v != int64(0) {
		t.Errorf("A inside the transaction = %#v, want the old 0", v)
	}
	if len(writes) != 0 || len(core) != 0 {
		t.Fatalf("events before EndUpdate: writes %v, core %v", writes, core)
	}

	if err := o.EndUpdate(); err != nil {
		t.Fatalf("EndUpdate() error = %v", err)
	}

	if v, _ := o.GetPropertyValue("A"); v != int64(2) {
		t.Errorf("A = %#v, want 2", v)
	}
	if v, _ := o.GetPropertyValue("B"); v != int64(5) {
		t.Errorf("B = %#v, want default 5", v)
	}
	if want := []string{"A", "A", "B"}; !slices.Equal(writes, want) {
		t.Errorf("write events = %v, want %v", writes, want)
	}
	if len(ends) != 1 || !slices.Equal(ends[0].Properties, []string{"A", "B"}) {
		t.Fatalf("end update events = %+v, want one with [A B]", ends)
	}
	if len(core) != 1 || core[0].ID != CoreUpdateEnd {
		t.Fatalf("core events = %+v, want one CoreUpdateEnd", core)
	}
	want := coretype.DictOf("A", int64(2), "B", int64(5))
	if !coretype.Equal(core[0].Changes, want) {
		t.Errorf("changes = %v, want %v", core[0].Changes, want)
	}
}

func TestUpdate_ReplaysInCallOrder(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("A", 0), String("B", ""))

	type write struct {
		name  string
		value any
	}
	var writes []write
	o.OnAnyPropertyValueWrite().Subscribe(func(_ *Object, args *ValueEventArgs) {
		writes = append(writes, write{args.Property.Name(), args.Value()})
	})
	var ends []*EndUpdateEventArgs
	o.OnEndUpdate().Subscribe(func(_ *Object, args *EndUpdateEventArgs) { ends = append(ends, args) })

	if err := o.BeginUpdate(); err != nil {
		t.Fatalf("BeginUpdate() error = %v", err)
	}
	o.SetPropertyValue("A", 1)
	o.SetPropertyValue("B", "x")
	o.SetPropertyValue("A", 2)
	if err := o.EndUpdate(); err != nil {
		t.Fatalf("EndUpdate() error = %v", err)
	}

	want := []write{{"A", int64(1)}, {"B", "x"}, {"A", int64(2)}}
	if !slices.Equal(writes, want) {
		t.Errorf("write events = %v, want %v", writes, want)
	}
	if v, _ := o.GetPropertyValue("A"); v != int64(2) {
		t.Errorf("A = %#v, want 2", v)
	}
	if len(ends) != 1 || !slices.Equal(ends[0].Properties, []string{"A", "B"}) {
		t.Errorf("end update events = %+v, want one with [A B]", ends)
	}
}

func TestUpdate_Nesting(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("A", 0))

	//nolint:errcheck // object is not frozen
	o.BeginUpdate()
	//nolint:errcheck // object is not frozen
	o.BeginUpdate()
	o.SetPropertyValue("A", 1)
	if err := o.EndUpdate(); err != nil {
		t.Fatalf("inner EndUpdate() error = %v", err)
	}
	if v, _ := o.GetPropertyValue("A"); v != int64(0) {
		t.Errorf("A after inner EndUpdate = %#v, want 0", v)
	}
	if err := o.EndUpdate(); err != nil {
		t.Fatalf("outer EndUpdate() error = %v", err)
	}
	if v, _ := o.GetPropertyValue("A"); v != int64(1) {
		t.Errorf("A after outer EndUpdate = %#v, want 1", v)
	}

	if err := o.EndUpdate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("unbalanced EndUpdate() error = %v, want ErrInvalidState", err)
	}
}

func TestUpdate_ReplayFailuresDoNotStopTheBatch(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("A", 0), Int("B", 0))

	//nolint:errcheck // object is not frozen
	o.BeginUpdate()
	o.SetPropertyValue("A", "not a number")
	o.SetPropertyValue("B", 3)
	err := o.EndUpdate()

	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("EndUpdate() error = %v, want ErrInvalidValue", err)
	}
	if v, _ := o.GetPropertyValue("B"); v != int64(3) {
		t.Errorf("B = %#v, want 3", v)
	}
}

func TestUpdate_Frozen(t *testing.T) {
	o := NewObject()
	o.Freeze()
	if err := o.BeginUpdate(); !errors.Is(err, ErrFrozen) {
		t.Errorf("BeginUpdate() error = %v, want ErrFrozen", err)
	}
}

func TestUpdate_DeepIncludesChildren(t *testing.T) {
	device, channel := newChannelTree(t)

	//nolint:errcheck // object is not frozen
	device.BeginUpdate()
	if !channel.Updating() {
		t.Fatal("child Updating() = false inside a deep transaction")
	}
	channel.SetPropertyValue("Gain", 3.0)
	if v, _ := channel.GetPropertyValue("Gain"); v != 1.0 {
		t.Errorf("child Gain inside the transaction = %#v, want 1", v)
	}
	if err := device.EndUpdate(); err != nil {
		t.Fatalf("EndUpdate() error = %v", err)
	}
	if channel.Updating() {
		t.Error("child Updating() = true after EndUpdate")
	}
	if v, _ := channel.GetPropertyValue("Gain"); v != 3.0 {
		t.Errorf("child Gain = %#v, want 3", v)
	}
}

func TestUpdate_ParentUpdating(t *testing.T) {
	device, channel := newChannelTree(t)

	var args *EndUpdateEventArgs
	channel.OnEndUpdate().Subscribe(func(_ *Object, a *EndUpdateEventArgs) { args = a })

	//nolint:errcheck // object is not frozen
	device.BeginUpdateShallow()
	if channel.Updating() {
		t.Fatal("shallow transaction entered the child")
	}
	//nolint:errcheck // object is not frozen
	channel.BeginUpdate()
	channel.SetPropertyValue("Samples", 32)
	if err := channel.EndUpdate(); err != nil {
		t.Fatalf("child EndUpdate() error = %v", err)
	}
	//nolint:errcheck // transaction is open
	device.EndUpdate()

	if args == nil || !args.ParentUpdating {
		t.Errorf("end update args = %+v, want ParentUpdating", args)
	}
}
