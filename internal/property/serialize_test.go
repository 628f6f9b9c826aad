package property

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/permission"
)

var admin = permission.User{ID: "root", Groups: []string{permission.GroupAdmin}}

// newDaqObject builds an object exercising every serializable value kind.
func newDaqObject(t *testing.T, types *coretype.Manager) *Object {
	t.Helper()
	limits := coretype.NewStructType("Limits",
		coretype.StructField{Name: "Low", Type: coretype.TypeFloat, Default: 0.0},
		coretype.StructField{Name: "High", Type: coretype.TypeFloat, Default: 1.0},
	)
	mode := coretype.NewEnumerationType("Mode", "Off", "On")
	for _, typ := range []coretype.Type{limits, mode} {
		if err := types.AddType(typ); err != nil {
			t.Fatalf("AddType() error = %v", err)
		}
	}

	channel := NewObject()
	mustAdd(t, channel, Float("Gain", 1))

	o := NewObject()
	mustAdd(t, o,
		Int("Rate", 10, WithMin(1), WithMax(1000), WithUnit("Hz")),
		Float("Gain", 1, WithCoercer(Snap{Step: 0.5})),
		String("Label", "ch", WithDescription("display name")),
		Bool("Enabled", false),
		List("Coefficients", []any{1.0}, WithItemType(coretype.TypeFloat)),
		Dict("Tags", nil),
		Ratio("Scale", coretype.Ratio{Num: 1, Den: 1}),
		Binary("Blob", nil),
		StructProp("Limits", mustStruct(limits, nil)),
		EnumerationProp("Mode", mustEnum(mode, "Off")),
		Selection("Range", []any{"1V", "10V"}, 0),
		Int("Percent", 0, WithValidator(MustConstraint(">=0 & <=100"))),
		String("Serial", "abc", ReadOnly()),
		String("Secret", "", Hidden()),
		New("Phase", coretype.TypeComplex, complex(0, 0)),
		Reference("Alias", "Rate"),
		ObjectProp("Channel", channel),
	)

	writes := map[string]any{
		"Rate":         500,
		"Gain":         2.5,
		"Label":        "front",
		"Enabled":      true,
		"Coefficients": []any{1.5, 2.5},
		"Tags":         coretype.DictOf("site", "lab", int64(3), "three"),
		"Scale":        coretype.Ratio{Num: 3, Den: 4},
		"Blob":         []byte{1, 2, 3},
		"Limits":       map[string]any{"High": 5.0},
		"Mode":         "On",
		"Range":        1,
		"Percent":      42,
		"Phase":        complex(1, 2),
		"Channel.Gain": 4.0,
	}
	for name, v := range writes {
		if r := o.SetPropertyValue(name, v); !r.Applied() {
			t.Fatalf("SetPropertyValue(%s) = %v", name, r)
		}
	}
	if r := o.SetProtectedPropertyValue("Serial", "S-1"); !r.Applied() {
		t.Fatalf("SetProtectedPropertyValue(Serial) = %v", r)
	}
	if err := o.SetPropertyOrder([]string{"Mode", "Rate"}); err != nil {
		t.Fatalf("SetPropertyOrder() error = %v", err)
	}
	o.Freeze()
	return o
}

var roundTripNames = []string{
	"Rate", "Gain", "Label", "Enabled", "Coefficients", "Tags", "Scale", "Blob",
	"Limits", "Mode", "Range", "Percent", "Serial", "Phase", "Alias", "Channel.Gain",
}

func assertSameValues(t *testing.T, got, want *Object) {
	t.Helper()
	for _, name := range roundTripNames {
		w, err := want.GetPropertyValue(name)
		if err != nil {
			t.Fatalf("original GetPropertyValue(%s) error = %v", name, err)
		}
		g, err := got.GetPropertyValue(name)
		if err != nil {
			t.Errorf("GetPropertyValue(%s) error = %v", name, err)
			continue
		}
		if !coretype.Equal(g, w) {
			t.Errorf("GetPropertyValue(%s) = %#v, want %#v", name, g, w)
		}
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	codecs := []struct {
		name      string
		marshal   func(any) ([]byte, error)
		unmarshal func([]byte, any) error
	}{
		{"json", json.Marshal, json.Unmarshal},
		{"cbor", cbor.Marshal, cbor.Unmarshal},
	}

	for _, c := range codecs {
		t.Run(c.name, func(t *testing.T) {
			types := coretype.NewManager()
			o := newDaqObject(t, types)

			doc, err := o.Serialize(permission.Anonymous)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			data, err := c.marshal(doc)
			if err != nil {
				t.Fatalf("marshal error = %v", err)
			}
			var decoded Document
			if err := c.unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal error = %v", err)
			}

			restored, err := Deserialize(&decoded, DeserializeOptions{Manager: types})
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if !restored.Frozen() {
				t.Error("Frozen() = false after round trip")
			}
			if got := restored.PropertyOrder(); !slices.Equal(got, []string{"Mode", "Rate"}) {
				t.Errorf("PropertyOrder() = %v, want [Mode Rate]", got)
			}
			assertSameValues(t, restored, o)

			rate, err := restored.GetProperty("Rate")
			if err != nil {
				t.Fatalf("GetProperty(Rate) error = %v", err)
			}
			if rate.Unit() != "Hz" || !coretype.Equal(rate.Max(), int64(1000)) {
				t.Errorf("Rate definition = unit %q max %v, want Hz 1000", rate.Unit(), rate.Max())
			}
			percent, _ := restored.GetProperty("Percent")
			if percent.Validator() == nil {
				t.Error("Percent validator lost in round trip")
			}
			serial, _ := restored.GetProperty("Serial")
			if !serial.ReadOnly() {
				t.Error("Serial is no longer read-only")
			}
			alias, _ := restored.GetProperty("Alias")
			if alias.ReferencedProperty() != "Rate" {
				t.Errorf("Alias target = %q, want Rate", alias.ReferencedProperty())
			}
		})
	}
}

func TestSerialize_ValueOrder(t *testing.T) {
	types := coretype.NewManager()
	o := newDaqObject(t, types)

	doc, err := o.Serialize(permission.Anonymous)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	names := doc.PropValues.Names()
	if len(names) < 2 || names[0] != "Mode" || names[1] != "Rate" {
		t.Errorf("PropValues.Names() = %v, want the custom order first", names)
	}
	if slices.Contains(names, "Alias") {
		t.Error("reference serialized as an explicit value")
	}

	v := NewValues()
	v.Set("b", int64(1))
	v.Set("a", int64(2))
	v.Set("b", int64(3))
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if got, want := string(data), `{"b":3,"a":2}`; got != want {
		t.Errorf("json.Marshal(Values) = %s, want %s", got, want)
	}
}

func TestSerialize_Permissions(t *testing.T) {
	device, channel := newChannelTree(t)
	device.SetPropertyValue("Channel.Gain", 2.0)

	channel.PermissionManager().Deny(permission.GroupEveryone, permission.Read)
	doc, err := device.Serialize(permission.Anonymous)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if _, ok := doc.PropValues.Get("Channel"); ok {
		t.Error("unreadable child object was serialized")
	}

	device.PermissionManager().Deny(permission.GroupEveryone, permission.Read)
	if _, err := device.Serialize(permission.Anonymous); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Serialize() error = %v, want ErrAccessDenied", err)
	}

	doc, err = device.Serialize(admin)
	if err != nil {
		t.Fatalf("Serialize(admin) error = %v", err)
	}
	if _, ok := doc.PropValues.Get("Channel"); !ok {
		t.Error("admin serialization left out the child object")
	}
}

func TestSerialize_UnserializableDefinitions(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, New("Computed", coretype.TypeInt, Deferred(func(*Object) (any, error) { return 1, nil })))
	if _, err := o.Serialize(permission.Anonymous); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Serialize() error = %v, want ErrInvalidState", err)
	}
	if _, err := o.SerializeForUpdate(permission.Anonymous); err != nil {
		t.Errorf("SerializeForUpdate() error = %v, want nil", err)
	}
}

func TestSerialize_SkipsCallableValues(t *testing.T) {
	o := NewObject()
	mustAdd(t, o,
		FuncProp("Calc", nil),
		ProcProp("Reset", nil),
		Int("Rate", 1),
	)
	calc := coretype.Func(func(...any) (any, error) { return int64(7), nil })
	reset := coretype.Proc(func(...any) error { return nil })
	for name, v := range map[string]any{"Calc": calc, "Reset": reset, "Rate": 5} {
		if r := o.SetPropertyValue(name, v); !r.Applied() {
			t.Fatalf("SetPropertyValue(%s) = %v", name, r)
		}
	}

	doc, err := o.Serialize(admin)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if got := doc.PropValues.Names(); !slices.Equal(got, []string{"Rate"}) {
		t.Errorf("PropValues.Names() = %v, want [Rate]", got)
	}
	if _, err := o.SerializeForUpdate(admin); err != nil {
		t.Errorf("SerializeForUpdate() error = %v", err)
	}
}

func TestSerialize_IntegralFloatsRoundTrip(t *testing.T) {
	o := NewObject()
	mustAdd(t, o,
		List("Coefficients", []any{1.5}, WithItemType(coretype.TypeFloat)),
		Dict("Offsets", nil, WithKeyType(coretype.TypeFloat), WithItemType(coretype.TypeFloat)),
	)
	if r := o.SetPropertyValue("Coefficients", []any{2.0, 3.0}); !r.Applied() {
		t.Fatalf("SetPropertyValue(Coefficients) = %v", r)
	}
	if r := o.SetPropertyValue("Offsets", coretype.DictOf(1.0, 4.0)); !r.Applied() {
		t.Fatalf("SetPropertyValue(Offsets) = %v", r)
	}

	doc, err := o.Serialize(admin)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	restored, err := Deserialize(&decoded, DeserializeOptions{})
	if err != nil {
		t.Fatalf("Deserialize() error = %v (document %s)", err, data)
	}

	got, _ := restored.GetPropertyValue("Coefficients")
	if !coretype.Equal(got, []any{2.0, 3.0}) {
		t.Errorf("Coefficients = %#v, want [2.0 3.0]", got)
	}
	for _, item := range got.([]any) {
		if _, ok := item.(float64); !ok {
			t.Errorf("Coefficients item %#v is %T, want float64", item, item)
		}
	}
	offsets, _ := restored.GetPropertyValue("Offsets")
	if v, ok := offsets.(*coretype.Dict).Get(1.0); !ok || v != 4.0 {
		t.Errorf("Offsets[1.0] = %#v, %v, want 4.0", v, ok)
	}
}

func TestObject_SetListConvertsNumericItems(t *testing.T) {
	o := NewObject()
	mustAdd(t, o, List("Coefficients", []any{1.5}, WithItemType(coretype.TypeFloat)))

	in := []any{int64(2), 2.5}
	if r := o.SetPropertyValue("Coefficients", in); !r.Applied() {
		t.Fatalf("SetPropertyValue() = %v", r)
	}
	got, _ := o.GetPropertyValue("Coefficients")
	if list := got.([]any); list[0] != 2.0 || list[1] != 2.5 {
		t.Errorf("Coefficients = %#v, want [2.0 2.5]", got)
	}
	if in[0] != int64(2) {
		t.Errorf("caller's list modified: %#v", in)
	}
	if r := o.SetPropertyValue("Coefficients", []any{"x"}); !errors.Is(r.Err, ErrInvalidType) {
		t.Errorf("SetPropertyValue([x]) error = %v, want ErrInvalidType", r.Err)
	}
}

func TestDeserialize_Errors(t *testing.T) {
	if _, err := Deserialize(nil, DeserializeOptions{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Deserialize(nil) error = %v, want ErrInvalidParameter", err)
	}
	if _, err := Deserialize(&Document{Type: "Other"}, DeserializeOptions{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Deserialize(Other) error = %v, want ErrInvalidParameter", err)
	}
	doc := &Document{Type: DocumentType, ClassName: "Daq"}
	if _, err := Deserialize(doc, DeserializeOptions{Manager: coretype.NewManager()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deserialize(unknown class) error = %v, want ErrNotFound", err)
	}
}

func newSensorClass(t *testing.T) *coretype.Manager {
	t.Helper()
	types := coretype.NewManager()
	cls, err := NewClass("Sensor", "", Int("Rate", 1), String("Label", ""), Float("Gain", 1))
	if err != nil {
		t.Fatalf("NewClass() error = %v", err)
	}
	if err := types.AddType(cls); err != nil {
		t.Fatalf("AddType() error = %v", err)
	}
	return types
}

func TestObject_Update(t *testing.T) {
	types := newSensorClass(t)
	src, _ := NewObjectOfClass(types, "Sensor")
	src.SetPropertyValue("Rate", 5)
	src.SetPropertyValue("Label", "north")

	doc, err := src.SerializeForUpdate(permission.Anonymous)
	if err != nil {
		t.Fatalf("SerializeForUpdate() error = %v", err)
	}
	if len(doc.Properties) != 0 {
		t.Errorf("SerializeForUpdate() wrote %d definitions, want 0", len(doc.Properties))
	}
	data, _ := json.Marshal(doc)
	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	dst, _ := NewObjectOfClass(types, "Sensor")
	dst.SetPropertyValue("Gain", 3.0)
	ends := 0
	dst.OnEndUpdate().Subscribe(func(*Object, *EndUpdateEventArgs) { ends++ })

	if r := dst.Update(&decoded); !r.Applied() {
		t.Fatalf("Update() = %v, want applied", r)
	}
	if v, _ := dst.GetPropertyValue("Rate"); v != int64(5) {
		t.Errorf("Rate = %#v, want 5", v)
	}
	if v, _ := dst.GetPropertyValue("Label"); v != "north" {
		t.Errorf("Label = %#v, want north", v)
	}
	if has, _ := dst.HasExplicitValue("Gain"); has {
		t.Error("Gain absent from the document was not cleared")
	}
	if ends != 1 {
		t.Errorf("end update events = %d, want 1", ends)
	}

	dst.Freeze()
	if r := dst.Update(&decoded); !r.Ignored() {
		t.Errorf("Update() on frozen object = %v, want ignored", r)
	}
}

func TestObject_UpdateChildInPlace(t *testing.T) {
	device, channel := newChannelTree(t)
	src := device.Clone()
	src.SetPropertyValue("Channel.Gain", 6.0)

	doc, err := src.SerializeForUpdate(permission.Anonymous)
	if err != nil {
		t.Fatalf("SerializeForUpdate() error = %v", err)
	}
	if r := device.Update(doc); !r.OK() {
		t.Fatalf("Update() = %v", r)
	}
	held, _ := device.GetPropertyValue("Channel")
	if held.(*Object) != channel {
		t.Error("Update() replaced the child object instead of updating it")
	}
	if v, _ := channel.GetPropertyValue("Gain"); v != 6.0 {
		t.Errorf("child Gain = %#v, want 6", v)
	}
}

func TestObject_DecodeValue(t *testing.T) {
	o := newDaqObject(t, coretype.NewManager())

	for _, path := range []string{"Mode", "Limits", "Scale", "Phase", "Channel.Gain", "Coefficients"} {
		t.Run(path, func(t *testing.T) {
			want, err := o.GetPropertyValue(path)
			if err != nil {
				t.Fatalf("GetPropertyValue() error = %v", err)
			}
			enc, err := EncodeValue(want)
			if err != nil {
				t.Fatalf("EncodeValue() error = %v", err)
			}
			got, err := o.DecodeValue(path, enc)
			if err != nil {
				t.Fatalf("DecodeValue() error = %v", err)
			}
			if !coretype.Equal(got, want) {
				t.Errorf("DecodeValue() = %v, want %v", got, want)
			}
		})
	}

	if _, err := o.DecodeValue("Missing.Gain", 1.0); !errors.Is(err, ErrNotFound) {
		t.Errorf("DecodeValue(Missing.Gain) error = %v, want ErrNotFound", err)
	}
}
