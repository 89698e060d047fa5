package filter

import (
	"slices"
	"strconv"

	"github.com/raillogistic/autogql/schema/field"
)

// Op is a filter operator.
type Op string

// Operators.
const (
	Exact      Op = "exact"
	IExact     Op = "iexact"
	Contains   Op = "contains"
	IContains  Op = "icontains"
	StartsWith Op = "startsWith"
	EndsWith   Op = "endsWith"
	GT         Op = "gt"
	GTE        Op = "gte"
	LT         Op = "lt"
	LTE        Op = "lte"
	In         Op = "in"
	NotIn      Op = "notIn"
	Range      Op = "range"
	Year       Op = "year"
	Month      Op = "month"
	Day        Op = "day"
	IsNull     Op = "isNull"
)

// List reports if the operator takes a list of values.
func (o Op) List() bool {
	return o == In || o == NotIn || o == Range
}

// Kind groups field types sharing an operator set.
type Kind uint8

// Filter kinds.
const (
	KindNone Kind = iota
	KindText
	KindNumeric
	KindTemporal
	KindBool
	KindEnum
	KindRelation
	KindID
)

var kindNames = [...]string{
	KindNone:     "none",
	KindText:     "text",
	KindNumeric:  "numeric",
	KindTemporal: "temporal",
	KindBool:     "boolean",
	KindEnum:     "enum",
	KindRelation: "relation",
	KindID:       "id",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

var opsets = map[Kind][]Op{
	KindText:     {Exact, IExact, Contains, IContains, StartsWith, EndsWith},
	KindNumeric:  {Exact, GT, GTE, LT, LTE, In, Range},
	KindTemporal: {Exact, Year, Month, Day, GT, GTE, LT, LTE, Range},
	KindBool:     {Exact},
	KindEnum:     {Exact, In},
	KindRelation: {Exact, In, IsNull},
	KindID:       {Exact, In},
}

// KindOf returns the filter kind of a field type. JSON and binary fields
// are not filterable.
func KindOf(t field.Type) Kind {
	switch {
	case t.Textual():
		return KindText
	case t.Numeric():
		return KindNumeric
	case t.Temporal():
		return KindTemporal
	case t == field.TypeBool:
		return KindBool
	case t == field.TypeEnum:
		return KindEnum
	case t == field.TypeUUID:
		return KindID
	}
	return KindNone
}

// OpsFor returns the operators available for a kind.
func OpsFor(k Kind) []Op {
	return slices.Clone(opsets[k])
}

// Option is one filter offered for a field: the pair of a field and an
// operator, with the type of the value the operator takes.
type Option struct {
	Field string
	Op    Op
	Kind  Kind
	// Type of a single operand; list operators take a list of it.
	Type field.Type
}

// ForField returns the filter options of a scalar field. Nullable fields
// additionally accept isNull.
func ForField(name string, t field.Type, nullable bool) []Option {
	k := KindOf(t)
	ops := OpsFor(k)
	if len(ops) == 0 {
		return nil
	}
	if nullable {
		ops = append(ops, IsNull)
	}
	opts := make([]Option, 0, len(ops))
	for _, op := range ops {
		ot := t
		switch op {
		case Year, Month, Day:
			ot = field.TypeInt
		case IsNull:
			ot = field.TypeBool
		}
		opts = append(opts, Option{Field: name, Op: op, Kind: k, Type: ot})
	}
	return opts
}

// ForEdge returns the filter options of a relationship. Operands are
// primary keys of the target entity.
func ForEdge(name string, key field.Type) []Option {
	ops := OpsFor(KindRelation)
	opts := make([]Option, 0, len(ops))
	for _, op := range ops {
		t := key
		if op == IsNull {
			t = field.TypeBool
		}
		opts = append(opts, Option{Field: name, Op: op, Kind: KindRelation, Type: t})
	}
	return opts
}
