// Package mixin provides the base mixin implementation.
//
// A mixin is a reusable set of fields, edges and methods that can be
// embedded in multiple entity definitions:
//
//	type AuditMixin struct {
//	    mixin.Schema
//	}
//
//	func (AuditMixin) Fields() []autogql.Field {
//	    return []autogql.Field{
//	        field.String("created_by").Nullable(),
//	    }
//	}
//
// Ready-made mixins (keys, timestamps) live in contrib/mixin.
package mixin
