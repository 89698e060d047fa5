package field

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/raillogistic/autogql/schema"
)

// Type is the scalar kind of a field. The set of kinds is open: Other
// declares a field of any kind, provided a mapping for it is registered in
// the generator's type map.
type Type string

// Builtin scalar kinds.
const (
	TypeInvalid Type = ""
	TypeString  Type = "string"
	TypeText    Type = "text"
	TypeInt     Type = "integer"
	TypeFloat   Type = "float"
	TypeDecimal Type = "decimal"
	TypeBool    Type = "boolean"
	TypeDate    Type = "date"
	TypeTime    Type = "datetime"
	TypeJSON    Type = "json"
	TypeBytes   Type = "binary"
	TypeEnum    Type = "enum"
	TypeUUID    Type = "uuid"
)

// String returns the kind name.
func (t Type) String() string {
	if t == TypeInvalid {
		return "invalid"
	}
	return string(t)
}

// Valid reports if the type is set.
func (t Type) Valid() bool { return t != TypeInvalid }

// Numeric reports if the type holds numbers.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeDecimal
}

// Textual reports if the type holds free text.
func (t Type) Textual() bool {
	return t == TypeString || t == TypeText
}

// Temporal reports if the type holds dates or timestamps.
func (t Type) Temporal() bool {
	return t == TypeDate || t == TypeTime
}

// Choice is one entry of a field's ordered choice set.
type Choice struct {
	Value string
	Label string
}

// A Descriptor for field configuration.
type Descriptor struct {
	Name              string              // field name.
	Type              Type                // scalar kind.
	Nullable          bool                // nullable field.
	ServerDefault     bool                // value supplied by the write path when omitted.
	ServerDefaultFunc func() any          // generator for the server default; nil leaves it to storage.
	Default           bool                // explicit static default declared.
	DefaultValue      any                 // static default value.
	AutoGenerated     bool                // value (re)assigned on write, e.g. auto-increment keys.
	UpdateFunc        func() any          // value assigned on every update.
	PrimaryKey        bool                // primary key field.
	Unique            bool                // unique index on field.
	Immutable         bool                // field cannot be updated.
	MaxLen            int                 // maximum length, 0 means unbounded.
	Choices           []Choice            // ordered choice set.
	Tags              []string            // format validation tags, e.g. "email".
	Validators        []func(any) error   // custom validators.
	StorageKey        string              // storage column name.
	Comment           string              // field comment.
	Annotations       []schema.Annotation // field annotations.
	Err               error
}

// HasChoices reports if the field restricts its values to a choice set.
func (d *Descriptor) HasChoices() bool { return len(d.Choices) > 0 }

// ChoiceValues returns the values of the choice set.
func (d *Descriptor) ChoiceValues() []string {
	values := make([]string, len(d.Choices))
	for i, c := range d.Choices {
		values[i] = c.Value
	}
	return values
}

// Column returns the storage column name of the field.
func (d *Descriptor) Column() string {
	if d.StorageKey != "" {
		return d.StorageKey
	}
	return d.Name
}

// Builder is the fluent builder shared by all field kinds.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Type: t}}
}

// String returns a new Field with type string.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Text returns a new Field with type text (unbounded string).
func Text(name string) *Builder { return newBuilder(name, TypeText) }

// Int returns a new Field with type integer.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Float returns a new Field with type float.
func Float(name string) *Builder { return newBuilder(name, TypeFloat) }

// Decimal returns a new Field with type decimal. Values are kept as strings
// to preserve precision.
func Decimal(name string) *Builder { return newBuilder(name, TypeDecimal) }

// Bool returns a new Field with type boolean.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Date returns a new Field with type date.
func Date(name string) *Builder { return newBuilder(name, TypeDate) }

// Time returns a new Field with type datetime.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// JSON returns a new Field with type json.
func JSON(name string) *Builder { return newBuilder(name, TypeJSON) }

// Bytes returns a new Field with type binary.
func Bytes(name string) *Builder { return newBuilder(name, TypeBytes) }

// UUID returns a new Field with type uuid.
func UUID(name string) *Builder { return newBuilder(name, TypeUUID) }

// Enum returns a new Field with type enum. Use Values or NamedValues to
// declare its choice set.
func Enum(name string) *Builder { return newBuilder(name, TypeEnum) }

// Other returns a new Field of a custom kind.
func Other(name string, t Type) *Builder {
	b := newBuilder(name, t)
	if !t.Valid() {
		b.desc.Err = fmt.Errorf("field %q: invalid type", name)
	}
	return b
}

// Nullable indicates that this field accepts null values.
func (b *Builder) Nullable() *Builder {
	b.desc.Nullable = true
	return b
}

// Default sets an explicit static default value.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = true
	b.desc.DefaultValue = v
	return b
}

// ServerDefault marks the field as supplied by the write path when it is
// omitted. fn is either nil (storage supplies the value) or a function with
// no arguments and a single result, e.g. time.Now or uuid.New.
func (b *Builder) ServerDefault(fn any) *Builder {
	b.desc.ServerDefault = true
	if fn == nil {
		return b
	}
	f, err := valueFunc(fn)
	if err != nil {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("field %q: server default: %w", b.desc.Name, err))
		return b
	}
	b.desc.ServerDefaultFunc = f
	return b
}

// UpdateDefault assigns the result of fn on every update, e.g. time.Now for
// an updated_at field. It provides no value on create: pair it with
// ServerDefault or Default to make the field optional there.
func (b *Builder) UpdateDefault(fn any) *Builder {
	f, err := valueFunc(fn)
	if err != nil {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("field %q: update default: %w", b.desc.Name, err))
		return b
	}
	b.desc.AutoGenerated = true
	b.desc.UpdateFunc = f
	return b
}

// AutoGenerated marks the field as assigned by storage on write, e.g. an
// auto-incrementing key.
func (b *Builder) AutoGenerated() *Builder {
	b.desc.AutoGenerated = true
	b.desc.ServerDefault = true
	return b
}

// PrimaryKey marks the field as the entity's primary key.
func (b *Builder) PrimaryKey() *Builder {
	b.desc.PrimaryKey = true
	b.desc.Unique = true
	b.desc.Immutable = true
	return b
}

// Unique makes the field unique within all records of the entity.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Immutable excludes the field from update inputs.
func (b *Builder) Immutable() *Builder {
	b.desc.Immutable = true
	return b
}

// MaxLen sets the maximum length of a text field.
func (b *Builder) MaxLen(n int) *Builder {
	if !b.desc.Type.Textual() && b.desc.Type != TypeBytes {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("field %q: MaxLen is not supported on %s", b.desc.Name, b.desc.Type))
		return b
	}
	if n <= 0 {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("field %q: MaxLen must be positive, got %d", b.desc.Name, n))
		return b
	}
	b.desc.MaxLen = n
	return b
}

// NotEmpty adds a validator rejecting empty strings.
func (b *Builder) NotEmpty() *Builder {
	return b.Validate(func(v any) error {
		if s, ok := v.(string); ok && s == "" {
			return errors.New("value must not be empty")
		}
		return nil
	})
}

// Min adds a validator rejecting numbers lower than i.
func (b *Builder) Min(i float64) *Builder {
	return b.Validate(func(v any) error {
		if n, ok := number(v); ok && n < i {
			return fmt.Errorf("value must be at least %v", i)
		}
		return nil
	})
}

// Max adds a validator rejecting numbers greater than i.
func (b *Builder) Max(i float64) *Builder {
	return b.Validate(func(v any) error {
		if n, ok := number(v); ok && n > i {
			return fmt.Errorf("value must be at most %v", i)
		}
		return nil
	})
}

// Values adds the given values to the field's choice set. Labels are
// derived from the values ("in_review" becomes "In Review").
func (b *Builder) Values(values ...string) *Builder {
	for _, v := range values {
		b.desc.Choices = append(b.desc.Choices, Choice{Value: v, Label: humanize(v)})
	}
	return b
}

// NamedValues adds (value, label) pairs to the field's choice set.
func (b *Builder) NamedValues(pairs ...string) *Builder {
	if len(pairs)%2 != 0 {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("field %q: NamedValues requires value/label pairs", b.desc.Name))
		return b
	}
	for i := 0; i < len(pairs); i += 2 {
		b.desc.Choices = append(b.desc.Choices, Choice{Value: pairs[i], Label: pairs[i+1]})
	}
	return b
}

// Format adds format validation tags understood by go-playground/validator,
// e.g. Format("email") or Format("url").
func (b *Builder) Format(tags ...string) *Builder {
	b.desc.Tags = append(b.desc.Tags, tags...)
	return b
}

// Validate adds a custom validator.
func (b *Builder) Validate(fn func(any) error) *Builder {
	b.desc.Validators = append(b.desc.Validators, fn)
	return b
}

// StorageKey sets the storage column name of the field.
func (b *Builder) StorageKey(key string) *Builder {
	b.desc.StorageKey = key
	return b
}

// Comment sets the comment of the field.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Annotations adds a list of annotations to the field.
func (b *Builder) Annotations(annotations ...schema.Annotation) *Builder {
	b.desc.Annotations = append(b.desc.Annotations, annotations...)
	return b
}

// Descriptor implements the autogql.Field interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	if b.desc.Type == TypeEnum && len(b.desc.Choices) == 0 && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: enum requires at least one value", b.desc.Name)
	}
	return b.desc
}

func humanize(v string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(v))
}

func valueFunc(fn any) (func() any, error) {
	if f, ok := fn.(func() any); ok {
		return f, nil
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.Type().NumIn() != 0 || rv.Type().NumOut() != 1 {
		return nil, fmt.Errorf("expect a function with no arguments and one result, got %T", fn)
	}
	return func() any {
		return rv.Call(nil)[0].Interface()
	}, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
