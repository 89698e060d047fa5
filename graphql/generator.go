package graphql

import (
	"context"
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/settings"
)

// Library defaults used when a setting cannot be resolved.
const (
	defaultPageSize = 25
	maxPageSize     = 100
	listMaxItems    = 1000
	bulkBatchSize   = 100
)

// Generator derives the GraphQL definitions and operations of a schema
// graph under the settings of one schema.
type Generator struct {
	graph    *gen.Graph
	view     settings.View
	entities []*entity
	byType   map[string]*entity
	filters  []*ast.Definition

	exposeReverse bool
	bulk          bool
	methods       bool
	nested        bool
}

// entity holds what is generated for one type of the graph.
type entity struct {
	*gen.Type
	names  Names
	skip   SkipMode
	fields []*gen.Field
	edges  []*gen.Edge
	where  *filter.Target
	order  map[string]bool

	defaultPageSize int
	maxPageSize     int
	listMaxItems    int
	batchSize       int
	bulkAtomic      bool
	bulkStop        bool
}

// NewGenerator returns a generator for the types of g. Settings are read
// once, from the view of the schema being built.
func NewGenerator(g *gen.Graph, v settings.View) *Generator {
	gr := &Generator{
		graph:         g,
		view:          v,
		byType:        make(map[string]*entity, len(g.Types)),
		exposeReverse: v.Bool(settings.ExposeReverseRelations, true),
		bulk:          v.Bool(settings.EnableBulkOperations, true),
		methods:       v.Bool(settings.EnableMethodMutations, true),
		nested:        v.Bool(settings.EnableNestedInputs, true),
	}
	for _, t := range g.Types {
		a := annotation(t.Annotations)
		if a.Skip.Is(SkipType) {
			continue
		}
		object := t.Name
		if a.Type != "" {
			object = a.Type
		}
		e := &entity{
			Type:            t,
			names:           names(object),
			skip:            a.Skip,
			order:           make(map[string]bool),
			defaultPageSize: v.ModelInt(t.Name, settings.DefaultPageSize, defaultPageSize),
			maxPageSize:     max(1, v.ModelInt(t.Name, settings.MaxPageSize, maxPageSize)),
			listMaxItems:    max(1, v.ModelInt(t.Name, settings.ListMaxItems, listMaxItems)),
			batchSize:       max(1, v.ModelInt(t.Name, settings.BulkBatchSize, bulkBatchSize)),
			bulkAtomic:      v.ModelBool(t.Name, settings.BulkAtomic, false),
			bulkStop:        v.ModelBool(t.Name, settings.BulkStopOnBatchFailure, false),
		}
		gr.entities = append(gr.entities, e)
		gr.byType[t.Name] = e
	}
	for _, e := range gr.entities {
		gr.resolve(e)
	}
	return gr
}

// resolve computes the visible fields, edges and filters of e.
func (g *Generator) resolve(e *entity) {
	for _, f := range e.UserFields() {
		skip := annotation(f.Annotations).Skip
		if !f.PrimaryKey && (skip.Is(SkipType) || g.view.IsExcluded(e.Name, f.Name)) {
			continue
		}
		e.fields = append(e.fields, f)
		if !skip.Is(SkipOrder) && filter.KindOf(f.Type) != filter.KindNone {
			e.order[f.Name] = true
		}
	}
	for _, ed := range e.Edges {
		if _, ok := g.byType[ed.Type.Name]; !ok {
			continue
		}
		if ed.Reverse && !g.exposeReverse {
			continue
		}
		if annotation(ed.Annotations).Skip.Is(SkipType) || g.view.IsExcluded(e.Name, ed.Name) {
			continue
		}
		e.edges = append(e.edges, ed)
	}
	e.where = filter.NewTarget(e.Name)
	for _, f := range e.fields {
		if annotation(f.Annotations).Skip.Is(SkipWhere) {
			continue
		}
		opts := filter.ForField(f.Name, f.Type, f.Nullable)
		if len(opts) == 0 {
			continue
		}
		e.where.Add(&filter.Input{
			Name:   f.Name,
			Column: f.Name,
			Kind:   opts[0].Kind,
			Type:   f.Type,
			Ops:    ops(opts),
			Coerce: f.Coerce,
		})
	}
	for _, ed := range e.edges {
		if annotation(ed.Annotations).Skip.Is(SkipWhere) {
			continue
		}
		id := ed.Type.ID
		in := &filter.Input{
			Name:   ed.Name,
			Column: id.Name,
			Edge:   ed.Name,
			Kind:   filter.KindRelation,
			Type:   id.Type,
			Ops:    ops(filter.ForEdge(ed.Name, id.Type)),
			Coerce: id.Coerce,
		}
		if ed.OwnFK() {
			in.Column, in.Edge = ed.FK.Name, ""
		}
		e.where.Add(in)
	}
}

func ops(opts []filter.Option) []filter.Op {
	out := make([]filter.Op, len(opts))
	for i, o := range opts {
		out[i] = o.Op
	}
	return out
}

// Names returns the generated names of an entity.
func (g *Generator) Names(entity string) (Names, bool) {
	e, ok := g.byType[entity]
	if !ok {
		return Names{}, false
	}
	return e.names, true
}

// entity returns the generation info of t, or nil when t is skipped.
func (g *Generator) entity(t *gen.Type) *entity {
	if t == nil {
		return nil
	}
	return g.byType[t.Name]
}

// GenerateObjectType returns the object type of t, or nil when t is
// skipped.
func (g *Generator) GenerateObjectType(t *gen.Type) *ast.Definition {
	e := g.entity(t)
	if e == nil {
		return nil
	}
	def := &ast.Definition{
		Kind:        ast.Object,
		Name:        e.names.Object,
		Description: t.Comment,
	}
	for _, f := range e.fields {
		typ := ast.NamedType(scalar(f), nil)
		if !f.Nullable {
			typ.NonNull = true
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        f.Name,
			Description: f.Comment,
			Type:        typ,
		})
	}
	for _, ed := range e.edges {
		target := g.byType[ed.Type.Name].names.Object
		var typ *ast.Type
		switch {
		case ed.Many():
			typ = ast.NonNullListType(ast.NonNullNamedType(target, nil), nil)
		case ed.Mandatory():
			typ = ast.NonNullNamedType(target, nil)
		default:
			typ = ast.NamedType(target, nil)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        ed.Name,
			Description: ed.Comment,
			Type:        typ,
		})
	}
	return def
}

// GenerateInputType returns the create or update input of t, or nil when
// it is skipped or has no fields.
//
// A create input marks a field non-null exactly when the field is required
// on create. Both inputs of a relationship stay nullable even when the
// relationship is mandatory: the "one of" rule is enforced when the
// mutation runs.
func (g *Generator) GenerateInputType(t *gen.Type, mode gen.Mode) *ast.Definition {
	e := g.entity(t)
	if e == nil {
		return nil
	}
	flag, name := SkipCreateInput, e.names.CreateInput
	if mode == gen.ModeUpdate {
		flag, name = SkipUpdateInput, e.names.UpdateInput
	}
	if e.skip.Is(flag) {
		return nil
	}
	def := &ast.Definition{
		Kind:        ast.InputObject,
		Name:        name,
		Description: fmt.Sprintf("%s input of %s.", gen.Pascal(mode.String()), e.names.Object),
	}
	for _, f := range e.fields {
		if !f.InputOn(mode) || annotation(f.Annotations).Skip.Is(flag) {
			continue
		}
		typ := ast.NamedType(scalar(f), nil)
		if f.RequiredOn(mode) {
			typ.NonNull = true
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: f.Name, Description: f.Comment, Type: typ})
	}
	for _, ed := range e.edges {
		if (mode == gen.ModeUpdate && ed.Immutable) || annotation(ed.Annotations).Skip.Is(flag) {
			continue
		}
		id := ast.NonNullNamedType("ID", nil)
		if ed.Unique() {
			def.Fields = append(def.Fields, &ast.FieldDefinition{Name: ed.Name, Description: ed.Comment, Type: ast.NamedType("ID", nil)})
		} else {
			def.Fields = append(def.Fields, &ast.FieldDefinition{Name: ed.Name, Description: ed.Comment, Type: ast.ListType(id, nil)})
		}
		if !g.nested {
			continue
		}
		if target := g.byType[ed.Type.Name]; !target.skip.Is(SkipCreateInput) {
			typ := ast.NamedType(target.names.CreateInput, nil)
			if ed.Many() {
				typ = ast.ListType(ast.NonNullNamedType(target.names.CreateInput, nil), nil)
			}
			def.Fields = append(def.Fields, &ast.FieldDefinition{Name: ed.NestedName(), Type: typ})
		}
		if ed.Many() && mode == gen.ModeUpdate {
			def.Fields = append(def.Fields,
				&ast.FieldDefinition{Name: ed.AddName(), Type: ast.ListType(ast.NonNullNamedType("ID", nil), nil)},
				&ast.FieldDefinition{Name: ed.RemoveName(), Type: ast.ListType(ast.NonNullNamedType("ID", nil), nil)},
			)
		}
	}
	if len(def.Fields) == 0 {
		return nil
	}
	return def
}

// GenerateWhereInput returns the filter input of t, or nil when filtering
// is skipped.
func (g *Generator) GenerateWhereInput(t *gen.Type) *ast.Definition {
	e := g.entity(t)
	if e == nil || e.skip.Is(SkipWhere) {
		return nil
	}
	name := e.names.WhereInput
	def := &ast.Definition{
		Kind:        ast.InputObject,
		Name:        name,
		Description: fmt.Sprintf("Filters %s records. Sibling entries are joined with AND.", e.names.Object),
		Fields: ast.FieldList{
			{Name: filter.KeyAnd, Type: ast.ListType(ast.NonNullNamedType(name, nil), nil)},
			{Name: filter.KeyOr, Type: ast.ListType(ast.NonNullNamedType(name, nil), nil)},
			{Name: filter.KeyNot, Type: ast.NamedType(name, nil)},
		},
	}
	for _, in := range e.where.Inputs() {
		operand := "ID"
		if f, ok := t.Field(in.Name); ok {
			operand = f.Scalar.GraphQL
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: in.Name,
			Type: ast.NamedType(g.filterType(in.Kind, operand), nil),
		})
	}
	return def
}

// filterType returns the name of the operator input shared by the fields
// of one kind and operand type, adding it on first use.
func (g *Generator) filterType(k filter.Kind, operand string) string {
	var name string
	switch k {
	case filter.KindRelation:
		name, operand = "RefFilter", "ID"
	case filter.KindEnum:
		name = operand + "ChoiceFilter"
	default:
		name = operand + "Filter"
	}
	if slices.ContainsFunc(g.filters, func(d *ast.Definition) bool { return d.Name == name }) {
		return name
	}
	opset := filter.OpsFor(k)
	if !slices.Contains(opset, filter.IsNull) {
		opset = append(opset, filter.IsNull)
	}
	def := &ast.Definition{
		Kind:        ast.InputObject,
		Name:        name,
		Description: fmt.Sprintf("Operators of %s fields. Operators given together are joined with AND.", k),
	}
	for _, op := range opset {
		var typ *ast.Type
		switch {
		case op == filter.IsNull:
			typ = ast.NamedType("Boolean", nil)
		case op == filter.Year || op == filter.Month || op == filter.Day:
			typ = ast.NamedType("Int", nil)
		case op.List():
			typ = ast.ListType(ast.NonNullNamedType(operand, nil), nil)
		default:
			typ = ast.NamedType(operand, nil)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: string(op), Type: typ})
	}
	g.filters = append(g.filters, def)
	return name
}

// scalar returns the GraphQL scalar of a field. Primary keys are IDs.
func scalar(f *gen.Field) string {
	if f.PrimaryKey {
		return "ID"
	}
	return f.Scalar.GraphQL
}

// OperationKind tells what a generated operation does.
type OperationKind uint8

// Operation kinds.
const (
	KindSingle OperationKind = iota + 1
	KindList
	KindPaginated
	KindCreate
	KindUpdate
	KindDelete
	KindBulkCreate
	KindBulkUpdate
	KindBulkDelete
	KindMethod
)

var kindNames = [...]string{
	KindSingle:     "single",
	KindList:       "list",
	KindPaginated:  "paginated",
	KindCreate:     "create",
	KindUpdate:     "update",
	KindDelete:     "delete",
	KindBulkCreate: "bulkCreate",
	KindBulkUpdate: "bulkUpdate",
	KindBulkDelete: "bulkDelete",
	KindMethod:     "method",
}

// String returns the kind name.
func (k OperationKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("OperationKind(%d)", k)
}

// Mutation reports if operations of the kind write records.
func (k OperationKind) Mutation() bool { return k >= KindCreate }

// Bulk reports if operations of the kind process a list of items.
func (k OperationKind) Bulk() bool { return k >= KindBulkCreate && k <= KindBulkDelete }

// Operation is a generated root field: a query or a mutation.
type Operation struct {
	Name   string
	Kind   OperationKind
	Entity string
	// Method is the behavior method run by method mutations.
	Method     string
	Definition *ast.FieldDefinition

	entity  *entity
	method  *load.Method
	types   ast.DefinitionList
	resolve func(ctx context.Context, s *Schema, args map[string]any) (any, error)
}

func (g *Generator) operation(e *entity, kind OperationKind, name string, args ast.ArgumentDefinitionList, typ *ast.Type, desc string) *Operation {
	return &Operation{
		Name:   name,
		Kind:   kind,
		Entity: e.Name,
		Definition: &ast.FieldDefinition{
			Name:        name,
			Description: desc,
			Arguments:   args,
			Type:        typ,
		},
		entity: e,
	}
}

// GenerateSingleItemQuery returns the query fetching one record of t by
// primary key or by any unique field.
func (g *Generator) GenerateSingleItemQuery(t *gen.Type) *Operation {
	e := g.entity(t)
	if e == nil {
		return nil
	}
	args := ast.ArgumentDefinitionList{{Name: t.ID.Name, Type: ast.NamedType("ID", nil)}}
	for _, f := range e.fields {
		if f.Unique && !f.PrimaryKey {
			args = append(args, &ast.ArgumentDefinition{Name: f.Name, Type: ast.NamedType(f.Scalar.GraphQL, nil)})
		}
	}
	op := g.operation(e, KindSingle, e.names.Single, args, ast.NamedType(e.names.Object, nil),
		fmt.Sprintf("Fetches one %s by exactly one of its unique fields.", e.names.Object))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.single(ctx, e, args)
	}
	return op
}

// listArgs returns the filter and order arguments of t.
func (g *Generator) listArgs(e *entity) ast.ArgumentDefinitionList {
	var args ast.ArgumentDefinitionList
	if !e.skip.Is(SkipWhere) {
		args = append(args, &ast.ArgumentDefinition{Name: argWhere, Type: ast.NamedType(e.names.WhereInput, nil)})
	}
	if !e.skip.Is(SkipOrder) {
		args = append(args, &ast.ArgumentDefinition{
			Name:        argOrderBy,
			Description: `Field names, prefixed with "-" for descending order.`,
			Type:        ast.ListType(ast.NonNullNamedType("String", nil), nil),
		})
	}
	return args
}

// GenerateListQuery returns the query listing records of t, capped at the
// listMaxItems setting.
func (g *Generator) GenerateListQuery(t *gen.Type) *Operation {
	e := g.entity(t)
	if e == nil {
		return nil
	}
	args := append(g.listArgs(e),
		&ast.ArgumentDefinition{Name: argLimit, Type: ast.NamedType("Int", nil)},
		&ast.ArgumentDefinition{Name: argOffset, Type: ast.NamedType("Int", nil)},
	)
	op := g.operation(e, KindList, e.names.List, args,
		ast.NonNullListType(ast.NonNullNamedType(e.names.Object, nil), nil),
		fmt.Sprintf("Lists %s records, at most %d.", e.names.Object, e.listMaxItems))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.list(ctx, e, args)
	}
	return op
}

// GeneratePaginatedQuery returns the query returning one page of records
// of t together with the page info.
func (g *Generator) GeneratePaginatedQuery(t *gen.Type) *Operation {
	e := g.entity(t)
	if e == nil {
		return nil
	}
	args := append(ast.ArgumentDefinitionList{
		{Name: argPage, Description: "1-indexed page number.", Type: ast.NamedType("Int", nil)},
		{Name: argPerPage, Description: fmt.Sprintf("Page size, clamped to [1, %d].", e.maxPageSize), Type: ast.NamedType("Int", nil)},
	}, g.listArgs(e)...)
	op := g.operation(e, KindPaginated, e.names.Paginated, args, ast.NonNullNamedType(e.names.Page, nil),
		fmt.Sprintf("Returns one page of %s records.", e.names.Object))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.paginate(ctx, e, args)
	}
	return op
}

// GenerateCreate returns the create mutation of t.
func (g *Generator) GenerateCreate(t *gen.Type) *Operation {
	e := g.entity(t)
	if e == nil || e.skip.Is(SkipMutationCreate) || g.GenerateInputType(t, gen.ModeCreate) == nil {
		return nil
	}
	op := g.operation(e, KindCreate, e.names.Create,
		ast.ArgumentDefinitionList{{Name: argInput, Type: ast.NonNullNamedType(e.names.CreateInput, nil)}},
		ast.NonNullNamedType(e.names.Payload, nil),
		fmt.Sprintf("Creates a %s with its nested records.", e.names.Object))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.create(ctx, e, args)
	}
	return op
}

// GenerateUpdate returns the update mutation of t.
func (g *Generator) GenerateUpdate(t *gen.Type) *Operation {
	e := g.entity(t)
	if e == nil || e.skip.Is(SkipMutationUpdate) || g.GenerateInputType(t, gen.ModeUpdate) == nil {
		return nil
	}
	op := g.operation(e, KindUpdate, e.names.Update,
		ast.ArgumentDefinitionList{{Name: argInput, Type: ast.NonNullNamedType(e.names.UpdateInput, nil)}},
		ast.NonNullNamedType(e.names.Payload, nil),
		fmt.Sprintf("Patches a %s. Omitted inputs are left untouched.", e.names.Object))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.update(ctx, e, args)
	}
	return op
}

// GenerateDelete returns the delete mutation of t.
func (g *Generator) GenerateDelete(t *gen.Type) *Operation {
	e := g.entity(t)
	if e == nil || e.skip.Is(SkipMutationDelete) {
		return nil
	}
	op := g.operation(e, KindDelete, e.names.Delete,
		ast.ArgumentDefinitionList{{Name: t.ID.Name, Type: ast.NonNullNamedType("ID", nil)}},
		ast.NonNullNamedType(e.names.Payload, nil),
		fmt.Sprintf("Deletes a %s, applying the delete policy of its dependents.", e.names.Object))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.delete(ctx, e, args)
	}
	return op
}

// GenerateBulkCreate returns the bulk create mutation of t.
func (g *Generator) GenerateBulkCreate(t *gen.Type) *Operation {
	if !g.bulk || g.GenerateCreate(t) == nil {
		return nil
	}
	e := g.entity(t)
	op := g.operation(e, KindBulkCreate, e.names.BulkCreate,
		ast.ArgumentDefinitionList{{Name: argInputs, Type: ast.NonNullListType(ast.NonNullNamedType(e.names.CreateInput, nil), nil)}},
		ast.NonNullNamedType(e.names.BulkPayload, nil),
		fmt.Sprintf("Creates %s records in batches of %d.", e.names.Object, e.batchSize))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.bulk(ctx, e, KindBulkCreate, args)
	}
	return op
}

// GenerateBulkUpdate returns the bulk update mutation of t.
func (g *Generator) GenerateBulkUpdate(t *gen.Type) *Operation {
	if !g.bulk || g.GenerateUpdate(t) == nil {
		return nil
	}
	e := g.entity(t)
	op := g.operation(e, KindBulkUpdate, e.names.BulkUpdate,
		ast.ArgumentDefinitionList{{Name: argInputs, Type: ast.NonNullListType(ast.NonNullNamedType(e.names.UpdateInput, nil), nil)}},
		ast.NonNullNamedType(e.names.BulkPayload, nil),
		fmt.Sprintf("Patches %s records in batches of %d.", e.names.Object, e.batchSize))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.bulk(ctx, e, KindBulkUpdate, args)
	}
	return op
}

// GenerateBulkDelete returns the bulk delete mutation of t.
func (g *Generator) GenerateBulkDelete(t *gen.Type) *Operation {
	if !g.bulk || g.GenerateDelete(t) == nil {
		return nil
	}
	e := g.entity(t)
	op := g.operation(e, KindBulkDelete, e.names.BulkDelete,
		ast.ArgumentDefinitionList{{Name: argIDs, Type: ast.NonNullListType(ast.NonNullNamedType("ID", nil), nil)}},
		ast.NonNullNamedType(e.names.BulkPayload, nil),
		fmt.Sprintf("Deletes %s records in batches of %d.", e.names.Object, e.batchSize))
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.bulk(ctx, e, KindBulkDelete, args)
	}
	return op
}

// GenerateMethodMutation returns the mutation running the behavior method
// m on one record of t. Declared parameters become arguments next to the
// primary key of the record.
func (g *Generator) GenerateMethodMutation(t *gen.Type, m *load.Method) *Operation {
	e := g.entity(t)
	if e == nil || !g.methods || m == nil {
		return nil
	}
	name, payload := methodNames(e.names.Object, m.Name)
	args := ast.ArgumentDefinitionList{{Name: t.ID.Name, Type: ast.NonNullNamedType("ID", nil)}}
	for _, p := range m.Params {
		s, ok := g.graph.TypeMap().Lookup(p.Type)
		if !ok {
			return nil
		}
		typ := ast.NamedType(s.GraphQL, nil)
		typ.NonNull = p.Required
		args = append(args, &ast.ArgumentDefinition{Name: p.Name, Type: typ})
	}
	object := e.names.Object
	if m.ReturnsEntity != "" {
		target, ok := g.byType[m.ReturnsEntity]
		if !ok {
			return nil
		}
		object = target.names.Object
	}
	def := &ast.Definition{
		Kind:        ast.Object,
		Name:        payload,
		Description: fmt.Sprintf("Result of %s.", name),
		Fields:      envelope(object),
	}
	if m.Returns.Valid() {
		s, ok := g.graph.TypeMap().Lookup(m.Returns)
		if !ok {
			return nil
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: "result", Type: ast.NamedType(s.GraphQL, nil)})
	}
	desc := m.Comment
	if desc == "" {
		desc = fmt.Sprintf("Runs %s on a %s.", m.Name, e.names.Object)
	}
	op := g.operation(e, KindMethod, name, args, ast.NonNullNamedType(payload, nil), desc)
	op.Method, op.method = m.Name, m
	op.types = ast.DefinitionList{def}
	op.resolve = func(ctx context.Context, s *Schema, args map[string]any) (any, error) {
		return s.call(ctx, e, m, payload, args)
	}
	return op
}

// envelope returns the fields shared by every mutation payload.
func envelope(object string) ast.FieldList {
	return ast.FieldList{
		{Name: "ok", Type: ast.NonNullNamedType("Boolean", nil)},
		{Name: "object", Type: ast.NamedType(object, nil)},
		{Name: "objects", Type: ast.ListType(ast.NonNullNamedType(object, nil), nil)},
		{Name: "errors", Type: ast.NonNullListType(ast.NonNullNamedType("String", nil), nil)},
	}
}

// checkCreateInput rejects a create input hiding a field that every create
// must supply, e.g. a non-null field without default listed in the
// excludedFields setting.
func (g *Generator) checkCreateInput(e *entity) error {
	def := g.GenerateInputType(e.Type, gen.ModeCreate)
	if def == nil {
		return nil
	}
	for _, f := range e.UserFields() {
		if f.RequiredOn(gen.ModeCreate) && def.Fields.ForName(f.Name) == nil {
			return autogql.NewConfigError("field", e.Name+"."+f.Name,
				"required on create but hidden from "+e.names.CreateInput+": make it nullable, give it a default or skip the create input")
		}
	}
	return nil
}

// Generate returns the schema document and the root operations of the
// graph. Operation names must be unique across entities.
func (g *Generator) Generate() (*ast.SchemaDocument, []*Operation, error) {
	doc := &ast.SchemaDocument{}
	add := func(defs ...*ast.Definition) {
		for _, d := range defs {
			if d != nil {
				doc.Definitions = append(doc.Definitions, d)
			}
		}
	}
	scalars := g.graph.TypeMap().Scalars()
	slices.Sort(scalars)
	for _, s := range scalars {
		add(&ast.Definition{Kind: ast.Scalar, Name: s})
	}
	add(pageInfo())
	var queries, mutations []*Operation
	for _, e := range g.entities {
		if err := g.checkCreateInput(e); err != nil {
			return nil, nil, err
		}
	}
	for _, e := range g.entities {
		t := e.Type
		add(
			g.GenerateObjectType(t),
			g.GenerateInputType(t, gen.ModeCreate),
			g.GenerateInputType(t, gen.ModeUpdate),
			g.GenerateWhereInput(t),
			&ast.Definition{
				Kind: ast.Object,
				Name: e.names.Page,
				Fields: ast.FieldList{
					{Name: "items", Type: ast.NonNullListType(ast.NonNullNamedType(e.names.Object, nil), nil)},
					{Name: "pageInfo", Type: ast.NonNullNamedType(pageInfoType, nil)},
				},
			},
		)
		queries = appendOps(queries, g.GenerateSingleItemQuery(t), g.GenerateListQuery(t), g.GeneratePaginatedQuery(t))
		muts := appendOps(nil, g.GenerateCreate(t), g.GenerateUpdate(t), g.GenerateDelete(t))
		bulk := appendOps(nil, g.GenerateBulkCreate(t), g.GenerateBulkUpdate(t), g.GenerateBulkDelete(t))
		if len(muts) > 0 {
			add(&ast.Definition{Kind: ast.Object, Name: e.names.Payload, Fields: envelope(e.names.Object)})
		}
		if len(bulk) > 0 {
			add(
				&ast.Definition{
					Kind:        ast.Object,
					Name:        e.names.BulkResult,
					Description: "Outcome of one item of a bulk mutation.",
					Fields: ast.FieldList{
						{Name: "index", Type: ast.NonNullNamedType("Int", nil)},
						{Name: "ok", Type: ast.NonNullNamedType("Boolean", nil)},
						{Name: "object", Type: ast.NamedType(e.names.Object, nil)},
						{Name: "errors", Type: ast.NonNullListType(ast.NonNullNamedType("String", nil), nil)},
					},
				},
				&ast.Definition{
					Kind: ast.Object,
					Name: e.names.BulkPayload,
					Fields: append(envelope(e.names.Object),
						&ast.FieldDefinition{Name: "results", Type: ast.NonNullListType(ast.NonNullNamedType(e.names.BulkResult, nil), nil)},
					),
				},
			)
		}
		mutations = append(append(mutations, muts...), bulk...)
		for _, m := range t.Methods {
			if op := g.GenerateMethodMutation(t, m); op != nil {
				add(op.types...)
				mutations = append(mutations, op)
			}
		}
	}
	add(g.filters...)
	if len(queries) == 0 {
		return nil, nil, autogql.NewConfigError("entities", len(g.graph.Types), "schema exposes no entity")
	}
	seen := make(map[string]bool)
	root := func(name string, ops []*Operation) (*ast.Definition, error) {
		def := &ast.Definition{Kind: ast.Object, Name: name}
		for _, op := range ops {
			if seen[op.Name] {
				return nil, autogql.NewConfigError("operation", op.Name, fmt.Sprintf("generated twice (entity %s)", op.Entity))
			}
			seen[op.Name] = true
			def.Fields = append(def.Fields, op.Definition)
		}
		return def, nil
	}
	q, err := root(queryType, queries)
	if err != nil {
		return nil, nil, err
	}
	add(q)
	if len(mutations) > 0 {
		m, err := root(mutationType, mutations)
		if err != nil {
			return nil, nil, err
		}
		add(m)
	}
	return doc, append(queries, mutations...), nil
}

func appendOps(ops []*Operation, more ...*Operation) []*Operation {
	for _, op := range more {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func pageInfo() *ast.Definition {
	return &ast.Definition{
		Kind:        ast.Object,
		Name:        pageInfoType,
		Description: "Position of a page within the filtered records.",
		Fields: ast.FieldList{
			{Name: "totalCount", Type: ast.NonNullNamedType("Int", nil)},
			{Name: "pageCount", Type: ast.NonNullNamedType("Int", nil)},
			{Name: "currentPage", Type: ast.NonNullNamedType("Int", nil)},
			{Name: "perPage", Type: ast.NonNullNamedType("Int", nil)},
			{Name: "hasNextPage", Type: ast.NonNullNamedType("Boolean", nil)},
			{Name: "hasPreviousPage", Type: ast.NonNullNamedType("Boolean", nil)},
		},
	}
}
