// Package field provides fluent builders for declaring entity fields.
//
// Field names are snake_case; generated API names are camelCased:
//
//	field.String("title")                       // title: String!
//	field.Time("created_at").ServerDefault(time.Now)
//	field.Int("id").PrimaryKey().AutoGenerated()
//	field.Enum("status").Values("draft", "published").Default("draft")
//	field.String("email").Unique().Format("email")
//
// The attributes that drive create/update requiredness are Nullable,
// Default (explicit default), ServerDefault (value supplied on write),
// AutoGenerated and PrimaryKey.
//
// The set of kinds is open: Other declares a field of a custom kind, which
// must then be registered in the generator's type map.
package field
