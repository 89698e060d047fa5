// Package mixin provides ready-made mixins for common key and timestamp
// fields.
//
//	func (Post) Mixin() []autogql.Mixin {
//	    return []autogql.Mixin{
//	        mixin.ID{},
//	        mixin.Time{},
//	    }
//	}
package mixin

import (
	"time"

	"github.com/google/uuid"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/schema/field"
	"github.com/raillogistic/autogql/schema/mixin"
)

// ID adds an auto-incrementing integer primary key named id.
type ID struct{ mixin.Schema }

// Fields of the ID mixin.
func (ID) Fields() []autogql.Field {
	return []autogql.Field{
		field.Int("id").
			PrimaryKey().
			AutoGenerated(),
	}
}

var _ autogql.Mixin = (*ID)(nil)

// UUID adds a UUID primary key named id, generated on create.
type UUID struct{ mixin.Schema }

// Fields of the UUID mixin.
func (UUID) Fields() []autogql.Field {
	return []autogql.Field{
		field.UUID("id").
			PrimaryKey().
			ServerDefault(uuid.New),
	}
}

var _ autogql.Mixin = (*UUID)(nil)

// CreateTime adds an immutable created_at field set on create.
type CreateTime struct{ mixin.Schema }

// Fields of the create time mixin.
func (CreateTime) Fields() []autogql.Field {
	return []autogql.Field{
		field.Time("created_at").
			ServerDefault(time.Now).
			Immutable().
			Comment("Timestamp when the record was created"),
	}
}

var _ autogql.Mixin = (*CreateTime)(nil)

// UpdateTime adds an updated_at field refreshed on every write.
type UpdateTime struct{ mixin.Schema }

// Fields of the update time mixin.
func (UpdateTime) Fields() []autogql.Field {
	return []autogql.Field{
		field.Time("updated_at").
			ServerDefault(time.Now).
			UpdateDefault(time.Now).
			Comment("Timestamp when the record was last updated"),
	}
}

var _ autogql.Mixin = (*UpdateTime)(nil)

// Time composes CreateTime and UpdateTime.
type Time struct{ mixin.Schema }

// Fields of the time mixin.
func (Time) Fields() []autogql.Field {
	return append(
		CreateTime{}.Fields(),
		UpdateTime{}.Fields()...,
	)
}

var _ autogql.Mixin = (*Time)(nil)
