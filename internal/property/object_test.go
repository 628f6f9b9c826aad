package property

import (
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/permission"
)

func mustAdd(t *testing.T, o *Object, props ...*Property) {
	t.Helper()
	for _, p := range props {
		if err := o.AddProperty(p); err != nil {
			t.Fatalf("AddProperty(%s) error = %v", p.Name(), err)
		}
	}
}

func propertyNames(props []*Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name()
	}
	return names
}

// newChannelTree builds a device object holding a channel object under
// the property "Channel".
func newChannelTree(t *testing.T) (device, channel *Object) {
	t.Helper()
	channel = NewObject()
	mustAdd(t, channel, Float("Gain", 1), Int("Samples", 16))

	device = NewObject()
	mustAdd(t, device, String("Name", "dev0"), ObjectProp("Channel", channel))
	return device, channel
}

func TestObject_AddProperty(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("Rate", 1))

	if err := o.AddProperty(Int("Rate", 2)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("AddProperty() duplicate error = %v, want ErrAlreadyExists", err)
	}
	if err := o.AddProperty(Int("", 2)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("AddProperty() invalid error = %v, want ErrInvalidParameter", err)
	}
	if err := o.AddProperty(nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("AddProperty(nil) error = %v, want ErrInvalidParameter", err)
	}

	bound, _ := o.GetProperty("Rate")
	other := NewObject()
	if err := other.AddProperty(bound); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("AddProperty() of a bound property error = %v, want ErrInvalidParameter", err)
	}

	o.Freeze()
	if err := o.AddProperty(Int("Late", 1)); !errors.Is(err, ErrFrozen) {
		t.Errorf("AddProperty() on frozen object error = %v, want ErrFrozen", err)
	}
}

func TestObject_RemoveProperty(t *testing.T) {
	types := coretype.NewManager()
	cls, err := NewClass("Sensor", "", Int("Rate", 1))
	if err != nil {
		t.Fatalf("NewClass() error = %v", err)
	}
	if err := types.AddType(cls); err != nil {
		t.Fatalf("AddType() error = %v", err)
	}
	o, err := NewObjectOfClass(types, "Sensor")
	if err != nil {
		t.Fatalf("NewObjectOfClass() error = %v", err)
	}
	mustAdd(t, o, Int("Local", 1))
	o.SetPropertyValue("Local", 5)

	if err := o.RemoveProperty("Local"); err != nil {
		t.Fatalf("RemoveProperty() error = %v", err)
	}
	if o.HasProperty("Local") {
		t.Error("HasProperty(Local) = true after removal")
	}
	if err := o.RemoveProperty("Local"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveProperty() twice error = %v, want ErrNotFound", err)
	}
	if err := o.RemoveProperty("Rate"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("RemoveProperty(class) error = %v, want ErrInvalidParameter", err)
	}

	// Re-adding starts from the default again.
	mustAdd(t, o, Int("Local", 1))
	if v, _ := o.GetPropertyValue("Local"); v != int64(1) {
		t.Errorf("GetPropertyValue(Local) = %#v, want 1", v)
	}
}

func TestObject_ClassInheritance(t *testing.T) {
	types := coretype.NewManager()
	base, _ := NewClass("Device", "", String("Name", "device"), Int("Rate", 100))
	daq, _ := NewClass("Daq", "Device", Int("Rate", 1000), Int("Channels", 8))
	for _, c := range []*Class{base, daq} {
		if err := types.AddType(c); err != nil {
			t.Fatalf("AddType(%s) error = %v", c.TypeName(), err)
		}
	}

	o, err := NewObjectOfClass(types, "Daq")
	if err != nil {
		t.Fatalf("NewObjectOfClass() error = %v", err)
	}
	if o.ClassName() != "Daq" {
		t.Errorf("ClassName() = %q, want Daq", o.ClassName())
	}
	if got, want := propertyNames(o.GetAllProperties()), []string{"Name", "Rate", "Channels"}; !slices.Equal(got, want) {
		t.Errorf("GetAllProperties() = %v, want %v", got, want)
	}
	if v, _ := o.GetPropertyValue("Rate"); v != int64(1000) {
		t.Errorf("GetPropertyValue(Rate) = %#v, want the subclass default 1000", v)
	}

	if !daq.HasProperty("Name", types) {
		t.Error("Class.HasProperty(Name) = false for an inherited property")
	}
}

func TestNewObjectOfClass_Errors(t *testing.T) {
	types := coretype.NewManager()
	if err := types.AddType(coretype.NewStructType("Limits")); err != nil {
		t.Fatalf("AddType() error = %v", err)
	}
	orphan, _ := NewClass("Orphan", "Missing", Int("A", 1))
	if err := types.AddType(orphan); err != nil {
		t.Fatalf("AddType() error = %v", err)
	}

	tests := []struct {
		name    string
		mgr     *coretype.Manager
		class   string
		wantErr error
	}{
		{"nil manager", nil, "Daq", ErrInvalidParameter},
		{"unknown class", types, "Daq", ErrNotFound},
		{"not a class", types, "Limits", ErrInvalidType},
		{"missing parent", types, "Orphan", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewObjectOfClass(tt.mgr, tt.class); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewObjectOfClass() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestObject_References(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("Target", 1), Reference("Alias", "Target"))

	if r := o.SetPropertyValue("Alias", 5); !r.Applied() {
		t.Fatalf("SetPropertyValue(Alias) = %v, want applied", r)
	}
	if v, _ := o.GetPropertyValue("Target"); v != int64(5) {
		t.Errorf("GetPropertyValue(Target) = %#v, want 5", v)
	}
	if r := o.SetPropertyValue("Alias", 5); !r.Ignored() {
		t.Errorf("SetPropertyValue(Alias) with the held value = %v, want ignored", r)
	}

	p, err := o.GetProperty("Alias")
	if err != nil {
		t.Fatalf("GetProperty(Alias) error = %v", err)
	}
	if !p.IsReference() || p.ReferencedProperty() != "Target" {
		t.Errorf("GetProperty(Alias) = %v, want the reference itself", p)
	}

	tests := []struct {
		name    string
		prop    *Property
		wantErr error
	}{
		{"second reference to the same target", Reference("Other", "Target"), ErrAlreadyExists},
		{"reference to a reference", Reference("Chain", "Alias"), ErrInvalidValue},
		{"self reference", Reference("Self", "Self"), ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := o.AddProperty(tt.prop); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddProperty() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestObject_ChildPaths(t *testing.T) {
	device, channel := newChannelTree(t)

	if channel.Owner() != device {
		t.Fatal("child Owner() is not the holding object")
	}
	if r := device.SetPropertyValue("Channel.Gain", 2.5); !r.Applied() {
		t.Fatalf("SetPropertyValue(Channel.Gain) = %v, want applied", r)
	}
	if v, _ := channel.GetPropertyValue("Gain"); v != 2.5 {
		t.Errorf("child GetPropertyValue(Gain) = %#v, want 2.5", v)
	}
	if v, _ := device.GetPropertyValue("Channel.Gain"); v != 2.5 {
		t.Errorf("GetPropertyValue(Channel.Gain) = %#v, want 2.5", v)
	}
	if !device.HasProperty("Channel.Samples") {
		t.Error("HasProperty(Channel.Samples) = false")
	}

	if v, err := channel.GetPropertyValue(".Name"); err != nil || v != "dev0" {
		t.Errorf("GetPropertyValue(.Name) = %#v, %v, want dev0", v, err)
	}
	if r := channel.SetPropertyValue(".Name", "x"); !errors.Is(r.Err, ErrAccessDenied) {
		t.Errorf("SetPropertyValue(.Name) = %v, want ErrAccessDenied", r)
	}
	if _, err := channel.GetPropertyValue("..Name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPropertyValue(..Name) error = %v, want ErrNotFound", err)
	}
	if _, err := device.GetPropertyValue("Name.Gain"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPropertyValue(Name.Gain) error = %v, want ErrNotFound", err)
	}
}

func TestObject_ObjectTypedProperties(t *testing.T) {
	device, channel := newChannelTree(t)

	replacement := NewObject()
	mustAdd(t, replacement, Float("Gain", 10))

	if r := device.SetPropertyValue("Channel", replacement); !errors.Is(r.Err, ErrAccessDenied) {
		t.Errorf("SetPropertyValue(Channel) = %v, want ErrAccessDenied", r)
	}
	if r := device.SetProtectedPropertyValue("Channel", replacement); !r.Applied() {
		t.Fatalf("SetProtectedPropertyValue(Channel) = %v, want applied", r)
	}
	if replacement.Owner() != device {
		t.Error("replacement Owner() is not the holding object")
	}
	if channel.Owner() != nil {
		t.Error("replaced child still has an owner")
	}
	if v, _ := device.GetPropertyValue("Channel.Gain"); v != 10.0 {
		t.Errorf("GetPropertyValue(Channel.Gain) = %#v, want 10", v)
	}
	if r := device.SetProtectedPropertyValue("Channel", int64(1)); !errors.Is(r.Err, ErrInvalidType) {
		t.Errorf("SetProtectedPropertyValue(Channel, 1) = %v, want ErrInvalidType", r)
	}
}

func TestObject_ClearObjectTypedProperty(t *testing.T) {
	device, channel := newChannelTree(t)
	device.SetPropertyValue("Channel.Gain", 3.0)
	device.SetPropertyValue("Channel.Samples", 64)

	if r := device.ClearPropertyValue("Channel"); !r.Applied() {
		t.Fatalf("ClearPropertyValue(Channel) = %v, want applied", r)
	}
	if v, _ := channel.GetPropertyValue("Gain"); v != 1.0 {
		t.Errorf("Gain after clear = %#v, want default 1", v)
	}
	if v, _ := channel.GetPropertyValue("Samples"); v != int64(16) {
		t.Errorf("Samples after clear = %#v, want default 16", v)
	}
	if channel.Owner() != device {
		t.Error("clearing an object-typed property detached the child")
	}
}

func TestObject_Freeze(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, Int("Rate", 1))
	o.SetPropertyValue("Rate", 2)

	if r := o.Freeze(); !r.Applied() {
		t.Fatalf("Freeze() = %v, want applied", r)
	}
	if r := o.Freeze(); !r.Ignored() {
		t.Errorf("Freeze() twice = %v, want ignored", r)
	}
	if !o.Frozen() {
		t.Error("Frozen() = false")
	}

	if r := o.SetPropertyValue("Rate", 3); !errors.Is(r.Err, ErrFrozen) {
		t.Errorf("SetPropertyValue() = %v, want ErrFrozen", r)
	}
	if r := o.ClearPropertyValue("Rate"); !errors.Is(r.Err, ErrFrozen) {
		t.Errorf("ClearPropertyValue() = %v, want ErrFrozen", r)
	}
	if err := o.RemoveProperty("Rate"); !errors.Is(err, ErrFrozen) {
		t.Errorf("RemoveProperty() error = %v, want ErrFrozen", err)
	}
	if err := o.SetPropertyOrder([]string{"Rate"}); !errors.Is(err, ErrFrozen) {
		t.Errorf("SetPropertyOrder() error = %v, want ErrFrozen", err)
	}
	if v, _ := o.GetPropertyValue("Rate"); v != int64(2) {
		t.Errorf("GetPropertyValue() on frozen object = %#v, want 2", v)
	}
}

func TestObject_PropertyListing(t *testing.T) {
	o := NewObject()
	mustAdd(t, o,
		Int("A", 1),
		String("B", "b", Hidden()),
		Float("C", 1),
		Int("D", 1),
	)

	if got, want := propertyNames(o.GetVisibleProperties()), []string{"A", "C", "D"}; !slices.Equal(got, want) {
		t.Errorf("GetVisibleProperties() = %v, want %v", got, want)
	}
	if got, want := propertyNames(o.FindProperties(ByValueType(coretype.TypeInt))), []string{"A", "D"}; !slices.Equal(got, want) {
		t.Errorf("FindProperties(int) = %v, want %v", got, want)
	}

	if err := o.SetPropertyOrder([]string{"D", "Missing", "B"}); err != nil {
		t.Fatalf("SetPropertyOrder() error = %v", err)
	}
	if got, want := propertyNames(o.GetAllProperties()), []string{"D", "B", "A", "C"}; !slices.Equal(got, want) {
		t.Errorf("GetAllProperties() = %v, want %v", got, want)
	}
}

func TestObject_Clone(t *testing.T) {
	device, channel := newChannelTree(t)
	device.SetPropertyValue("Name", "dev1")
	device.SetPropertyValue("Channel.Gain", 4.0)
	device.OnPropertyValueWrite("Name").Subscribe(func(*Object, *ValueEventArgs) {})
	device.Freeze()

	c := device.Clone()
	if c.Frozen() {
		t.Error("Clone() is frozen")
	}
	if v, _ := c.GetPropertyValue("Name"); v != "dev1" {
		t.Errorf("clone Name = %#v, want dev1", v)
	}
	if v, _ := c.GetPropertyValue("Channel.Gain"); v != 4.0 {
		t.Errorf("clone Channel.Gain = %#v, want 4", v)
	}
	if got := c.OnPropertyValueWrite("Name").HandlerCount(); got != 1 {
		t.Errorf("clone Name handlers = %d, want 1", got)
	}

	c.SetPropertyValue("Channel.Gain", 8.0)
	if v, _ := channel.GetPropertyValue("Gain"); v != 4.0 {
		t.Errorf("original Gain = %#v after writing the clone, want 4", v)
	}

	clonedChild, _ := c.GetPropertyValue("Channel")
	if clonedChild.(*Object) == channel {
		t.Fatal("Clone() shares the child object")
	}
	if clonedChild.(*Object).Owner() != c {
		t.Error("cloned child Owner() is not the clone")
	}
}

func TestObject_CoreEvents(t *testing.T) {
	device, _ := newChannelTree(t)

	var events []CoreEvent
	device.SetCoreEventTrigger(func(_ *Object, ev CoreEvent) {
		events = append(events, ev)
	})

	device.SetPropertyValue("Name", "quiet")
	if len(events) != 0 {
		t.Fatalf("core events raised while disabled: %v", events)
	}

	device.EnableCoreEventTrigger()
	device.SetPropertyValue("Name", "loud")
	device.SetPropertyValue("Channel.Gain", 2.0)
	mustAdd(t, device, Int("Extra", 1))
	if err := device.RemoveProperty("Extra"); err != nil {
		t.Fatalf("RemoveProperty() error = %v", err)
	}

	want := []struct {
		id   CoreEventID
		path string
		name string
	}{
		{CorePropertyValueChanged, "", "Name"},
		{CorePropertyValueChanged, "Channel", "Gain"},
		{CorePropertyAdded, "", "Extra"},
		{CorePropertyRemoved, "", "Extra"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d core events, want %d: %v", len(events), len(want), events)
	}
	for i, w := range want {
		if events[i].ID != w.id || events[i].Path != w.path || events[i].Name != w.name {
			t.Errorf("event %d = %s %q %q, want %s %q %q", i, events[i].ID, events[i].Path, events[i].Name, w.id, w.path, w.name)
		}
	}
	if events[0].Value != "loud" {
		t.Errorf("event value = %#v, want loud", events[0].Value)
	}
}

func TestObject_PermissionChaining(t *testing.T) {
	device, channel := newChannelTree(t)
	if channel.PermissionManager().Parent() != device.PermissionManager() {
		t.Error("child permission manager does not chain to the owner's")
	}

	device.PermissionManager().Deny(permission.GroupEveryone, permission.Read)
	if channel.PermissionManager().IsAuthorized(permission.Anonymous, permission.Read) {
		t.Error("child inherits no deny from the owner")
	}
}
