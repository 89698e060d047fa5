package mixin_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql/contrib/mixin"
	"github.com/raillogistic/autogql/schema/field"
)

func TestIDMixins(t *testing.T) {
	t.Parallel()

	fields := mixin.ID{}.Fields()
	require.Len(t, fields, 1)
	d := fields[0].Descriptor()
	assert.Equal(t, "id", d.Name)
	assert.Equal(t, field.TypeInt, d.Type)
	assert.True(t, d.PrimaryKey)
	assert.True(t, d.AutoGenerated)

	fields = mixin.UUID{}.Fields()
	require.Len(t, fields, 1)
	d = fields[0].Descriptor()
	assert.Equal(t, field.TypeUUID, d.Type)
	assert.True(t, d.PrimaryKey)
	require.NotNil(t, d.ServerDefaultFunc)
	id, ok := d.ServerDefaultFunc().(uuid.UUID)
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, id)
}

func TestTimeMixins(t *testing.T) {
	t.Parallel()

	created := mixin.CreateTime{}.Fields()[0].Descriptor()
	assert.Equal(t, "created_at", created.Name)
	assert.True(t, created.ServerDefault)
	assert.True(t, created.Immutable)
	assert.False(t, created.AutoGenerated)
	assert.WithinDuration(t, time.Now(), created.ServerDefaultFunc().(time.Time), time.Minute)

	updated := mixin.UpdateTime{}.Fields()[0].Descriptor()
	assert.Equal(t, "updated_at", updated.Name)
	assert.True(t, updated.AutoGenerated)
	assert.NotNil(t, updated.UpdateFunc)

	fields := mixin.Time{}.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "created_at", fields[0].Descriptor().Name)
	assert.Equal(t, "updated_at", fields[1].Descriptor().Name)
}
