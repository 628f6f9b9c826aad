package property

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/nerrad567/propcore/internal/coretype"
)

// Coercer transforms a value before it is validated and stored.
type Coercer interface {
	Coerce(owner *Object, value any) (any, error)
}

// Validator rejects values that must not be stored.
type Validator interface {
	Validate(owner *Object, value any) error
}

// Expression is implemented by coercers and validators that can be
// written to a serialized property definition and parsed back.
type Expression interface {
	Expression() string
}

// CoercerFunc adapts a function to Coercer.
type CoercerFunc func(owner *Object, value any) (any, error)

// Coerce implements Coercer.
func (f CoercerFunc) Coerce(owner *Object, value any) (any, error) {
	return f(owner, value)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(owner *Object, value any) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(owner *Object, value any) error {
	return f(owner, value)
}

// Constraint validates values against a CUE expression such as
// ">=0 & <=100" or `=~"^[a-z]+$"`.
type Constraint struct {
	expr string

	mu     sync.Mutex // cue.Context is not safe for concurrent use
	ctx    *cue.Context
	schema cue.Value
}

// NewConstraint compiles expr.
// Returns ErrInvalidParameter if expr is not valid CUE.
func NewConstraint(expr string) (*Constraint, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(expr)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("%w: constraint %q: %v", ErrInvalidParameter, expr, err)
	}
	return &Constraint{expr: expr, ctx: ctx, schema: schema}, nil
}

// MustConstraint is NewConstraint for expressions known to be valid.
func MustConstraint(expr string) *Constraint {
	c, err := NewConstraint(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate implements Validator.
func (c *Constraint) Validate(_ *Object, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ctx.Encode(cueValue(value))
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidateFailed, err)
	}
	if err := c.schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v does not satisfy %s", ErrValidateFailed, value, c.expr)
	}
	return nil
}

// Expression implements Expression.
func (c *Constraint) Expression() string {
	return c.expr
}

// cueValue lowers a core value to the plain Go form cue.Context.Encode accepts.
func cueValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cueValue(item)
		}
		return out
	case *coretype.Dict:
		out := make(map[string]any, t.Len())
		t.Range(func(k, val any) bool {
			out[fmt.Sprint(k)] = cueValue(val)
			return true
		})
		return out
	case *coretype.Struct:
		return cueValue(t.AsDict())
	case coretype.Ratio:
		return t.Float()
	case coretype.Enumeration:
		return t.Name()
	case complex128:
		return fmt.Sprint(t)
	case bool, int64, float64, string, []byte:
		return t
	}
	return nil
}

// Snap rounds numeric values to the nearest multiple of Step.
type Snap struct {
	Step float64
}

// Coerce implements Coercer.
func (s Snap) Coerce(_ *Object, value any) (any, error) {
	if s.Step <= 0 {
		return nil, fmt.Errorf("%w: snap step must be positive", ErrCoerceFailed)
	}
	switch t := value.(type) {
	case int64:
		return int64(math.Round(float64(t)/s.Step) * s.Step), nil
	case float64:
		return math.Round(t/s.Step) * s.Step, nil
	}
	return nil, fmt.Errorf("%w: snap needs a number, got %s", ErrCoerceFailed, coretype.TypeOf(value))
}

// Expression implements Expression.
func (s Snap) Expression() string {
	return "snap(" + formatFloat(s.Step) + ")"
}

// Clamp limits numeric values to [Min, Max].
type Clamp struct {
	Min float64
	Max float64
}

// Coerce implements Coercer.
func (c Clamp) Coerce(_ *Object, value any) (any, error) {
	if c.Min > c.Max {
		return nil, fmt.Errorf("%w: clamp bounds reversed", ErrCoerceFailed)
	}
	switch t := value.(type) {
	case int64:
		switch f := float64(t); {
		case f < c.Min:
			return int64(math.Ceil(c.Min)), nil
		case f > c.Max:
			return int64(math.Floor(c.Max)), nil
		}
		return t, nil
	case float64:
		return math.Min(math.Max(t, c.Min), c.Max), nil
	}
	return nil, fmt.Errorf("%w: clamp needs a number, got %s", ErrCoerceFailed, coretype.TypeOf(value))
}

// Expression implements Expression.
func (c Clamp) Expression() string {
	return "clamp(" + formatFloat(c.Min) + "," + formatFloat(c.Max) + ")"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseCoercer parses the Expression form of a shipped coercer:
// "snap(step)" or "clamp(min,max)".
func ParseCoercer(expr string) (Coercer, error) {
	fn, args, err := parseCall(expr)
	if err != nil {
		return nil, err
	}
	switch {
	case fn == "snap" && len(args) == 1:
		return Snap{Step: args[0]}, nil
	case fn == "clamp" && len(args) == 2:
		return Clamp{Min: args[0], Max: args[1]}, nil
	}
	return nil, fmt.Errorf("%w: unknown coercer %q", ErrInvalidParameter, expr)
}

// ParseValidator parses a validator expression as a CUE constraint.
func ParseValidator(expr string) (Validator, error) {
	return NewConstraint(expr)
}

func parseCall(expr string) (string, []float64, error) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, fmt.Errorf("%w: malformed expression %q", ErrInvalidParameter, expr)
	}
	fn := strings.ToLower(strings.TrimSpace(expr[:open]))
	var args []float64
	for _, raw := range strings.Split(expr[open+1:len(expr)-1], ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: argument %q in %q", ErrInvalidParameter, raw, expr)
		}
		args = append(args, f)
	}
	return fn, args, nil
}
