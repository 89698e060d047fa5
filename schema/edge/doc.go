// Package edge provides fluent builders for declaring relationships.
//
// Two forward relationship kinds exist; reverse accessors are derived on the
// target entity from Ref:
//
//	// Post holds category_id; Category gets a reverse "posts" list.
//	edge.To("category", Category.Type).Required().Ref("posts")
//
//	// One-to-one: Profile holds user_id; User gets a reverse "profile".
//	edge.To("user", User.Type).Unique().Ref("profile")
//
//	// Many-to-many through a join table; Tag gets a reverse "posts" list.
//	edge.ManyToMany("tags", Tag.Type).Ref("posts")
//
// OnDelete decides what happens to the declaring records when the target is
// deleted: Cascade, Restrict, SetNull or SetDefault.
package edge
