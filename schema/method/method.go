// Package method declares behavior methods of an entity. A method only
// becomes a mutation when it is explicitly exposed:
//
//	func (Post) Methods() []autogql.Method {
//	    return []autogql.Method{
//	        method.New("publish", publish).
//	            Param("at", field.TypeTime).
//	            Returns(field.TypeBool).
//	            Expose(),
//	    }
//	}
//
// The function runs inside a transaction; Call.Store reads and writes
// through that transaction.
package method

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/raillogistic/autogql/schema/field"
)

// Store gives a method access to records inside the mutation transaction.
type Store interface {
	Get(ctx context.Context, entity string, key any) (map[string]any, error)
	Update(ctx context.Context, entity string, key any, values map[string]any) (map[string]any, error)
}

// Call carries the invocation of a behavior method.
type Call struct {
	Entity   string         // Entity owning the method
	Key      any            // Primary key of the target instance
	Instance map[string]any // Target instance as loaded before the call
	Args     map[string]any // Coerced arguments
	Store    Store
}

// Arg returns the argument with the given name.
func (c *Call) Arg(name string) (any, bool) {
	v, ok := c.Args[name]
	return v, ok
}

// Func is the implementation of a behavior method.
type Func func(ctx context.Context, call *Call) (any, error)

// Param is a declared method parameter.
type Param struct {
	Name     string
	Type     field.Type
	Required bool
}

// A Descriptor for method configuration.
type Descriptor struct {
	Name          string     // method name.
	Params        []Param    // declared parameters.
	Returns       field.Type // scalar return kind; empty when ReturnsEntity is set or nothing is returned.
	ReturnsEntity string     // entity returned by the method.
	Func          Func       // implementation.
	Exposed       bool       // explicit opt-in to mutation generation.
	Comment       string     // method comment.
	Err           error
}

// Builder is the fluent builder for behavior methods.
type Builder struct {
	desc *Descriptor
}

// New returns a new method builder.
func New(name string, fn Func) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Func: fn}}
	if fn == nil {
		b.desc.Err = fmt.Errorf("method %q: missing implementation", name)
	}
	return b
}

// Param declares a required parameter.
func (b *Builder) Param(name string, t field.Type) *Builder {
	b.desc.Params = append(b.desc.Params, Param{Name: name, Type: t, Required: true})
	return b
}

// OptionalParam declares an optional parameter.
func (b *Builder) OptionalParam(name string, t field.Type) *Builder {
	b.desc.Params = append(b.desc.Params, Param{Name: name, Type: t})
	return b
}

// Returns sets the scalar kind of the method result.
func (b *Builder) Returns(t field.Type) *Builder {
	b.desc.Returns = t
	return b
}

// ReturnsEntity declares that the method returns a record of the given
// entity. t is a name or a method value such as Post.Type.
func (b *Builder) ReturnsEntity(t any) *Builder {
	name, err := entityName(t)
	if err != nil {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("method %q: %w", b.desc.Name, err))
		return b
	}
	b.desc.ReturnsEntity = name
	return b
}

// Expose marks the method as a mutation.
func (b *Builder) Expose() *Builder {
	b.desc.Exposed = true
	return b
}

// Comment sets the comment of the method.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the autogql.Method interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	if b.desc.Returns != field.TypeInvalid && b.desc.ReturnsEntity != "" && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("method %q: Returns and ReturnsEntity are mutually exclusive", b.desc.Name)
	}
	return b.desc
}

func entityName(t any) (string, error) {
	if s, ok := t.(string); ok {
		if s == "" {
			return "", errors.New("missing entity name")
		}
		return s, nil
	}
	if t == nil {
		return "", errors.New("missing entity name")
	}
	rt := reflect.TypeOf(t)
	if rt.Kind() == reflect.Func && rt.NumIn() > 0 {
		rt = rt.In(0)
	}
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return "", fmt.Errorf("invalid entity %s", rt)
	}
	return rt.Name(), nil
}
