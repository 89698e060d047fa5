// Package schema holds the annotation contract shared by entity, field and
// edge definitions.
//
// The builders themselves live in the subpackages:
//
//   - [field]: scalar field builders
//   - [edge]: relationship builders
//   - [method]: behavior methods exposed as mutations
//   - [mixin]: reusable field sets
//
// # Quick Start
//
//	type Post struct{ autogql.Schema }
//
//	func (Post) Mixin() []autogql.Mixin {
//	    return []autogql.Mixin{mixin.ID{}, mixin.Time{}}
//	}
//
//	func (Post) Fields() []autogql.Field {
//	    return []autogql.Field{
//	        field.String("title").MaxLen(200),
//	        field.Enum("status").Values("draft", "published").Default("draft"),
//	    }
//	}
//
//	func (Post) Edges() []autogql.Edge {
//	    return []autogql.Edge{
//	        edge.To("category", Category.Type).Required().Ref("posts"),
//	        edge.ManyToMany("tags", Tag.Type).Ref("posts"),
//	    }
//	}
package schema
