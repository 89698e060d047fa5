package field_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql/schema"
	"github.com/raillogistic/autogql/schema/field"
)

func TestKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		b    *field.Builder
		want field.Type
	}{
		{field.String("a"), field.TypeString},
		{field.Text("a"), field.TypeText},
		{field.Int("a"), field.TypeInt},
		{field.Float("a"), field.TypeFloat},
		{field.Decimal("a"), field.TypeDecimal},
		{field.Bool("a"), field.TypeBool},
		{field.Date("a"), field.TypeDate},
		{field.Time("a"), field.TypeTime},
		{field.JSON("a"), field.TypeJSON},
		{field.Bytes("a"), field.TypeBytes},
		{field.UUID("a"), field.TypeUUID},
		{field.Other("a", "geo"), field.Type("geo")},
	}
	for _, tt := range tests {
		d := tt.b.Descriptor()
		assert.Equal(t, tt.want, d.Type)
		assert.NoError(t, d.Err)
	}
	assert.True(t, field.TypeDecimal.Numeric())
	assert.True(t, field.TypeText.Textual())
	assert.True(t, field.TypeDate.Temporal())
	assert.False(t, field.TypeBool.Numeric())
	assert.Equal(t, "invalid", field.TypeInvalid.String())
	assert.Error(t, field.Other("a", "").Descriptor().Err)
}

func TestRequirednessAttributes(t *testing.T) {
	t.Parallel()

	d := field.String("title").Descriptor()
	assert.False(t, d.Nullable)
	assert.False(t, d.Default)
	assert.False(t, d.ServerDefault)

	d = field.Time("created_at").ServerDefault(time.Now).Immutable().Descriptor()
	require.NoError(t, d.Err)
	assert.True(t, d.ServerDefault)
	assert.True(t, d.Immutable)
	require.NotNil(t, d.ServerDefaultFunc)
	assert.IsType(t, time.Time{}, d.ServerDefaultFunc())

	d = field.UUID("id").PrimaryKey().ServerDefault(uuid.New).Descriptor()
	require.NoError(t, d.Err)
	assert.True(t, d.PrimaryKey)
	assert.True(t, d.Unique)
	assert.IsType(t, uuid.UUID{}, d.ServerDefaultFunc())

	d = field.Int("id").PrimaryKey().AutoGenerated().Descriptor()
	assert.True(t, d.AutoGenerated)
	assert.True(t, d.ServerDefault)
	assert.Nil(t, d.ServerDefaultFunc)

	d = field.Time("updated_at").ServerDefault(time.Now).UpdateDefault(time.Now).Descriptor()
	assert.True(t, d.AutoGenerated)
	assert.NotNil(t, d.UpdateFunc)

	d = field.Int("views").Default(0).Descriptor()
	assert.True(t, d.Default)
	assert.Equal(t, 0, d.DefaultValue)

	d = field.String("subtitle").Nullable().Descriptor()
	assert.True(t, d.Nullable)

	assert.Error(t, field.Time("x").ServerDefault("now").Descriptor().Err)
	assert.Error(t, field.Time("x").UpdateDefault(func(int) time.Time { return time.Time{} }).Descriptor().Err)
}

func TestChoices(t *testing.T) {
	t.Parallel()

	d := field.Enum("status").Values("draft", "in_review").Descriptor()
	require.NoError(t, d.Err)
	assert.Equal(t, []field.Choice{
		{Value: "draft", Label: "Draft"},
		{Value: "in_review", Label: "In Review"},
	}, d.Choices)
	assert.Equal(t, []string{"draft", "in_review"}, d.ChoiceValues())

	d = field.String("size").NamedValues("s", "Small", "l", "Large").Descriptor()
	assert.True(t, d.HasChoices())
	assert.Equal(t, "Large", d.Choices[1].Label)

	assert.Error(t, field.String("size").NamedValues("s").Descriptor().Err)
	assert.Error(t, field.Enum("status").Descriptor().Err)
}

func TestValidators(t *testing.T) {
	t.Parallel()

	d := field.String("title").MaxLen(10).NotEmpty().Format("alphanum").Descriptor()
	require.NoError(t, d.Err)
	assert.Equal(t, 10, d.MaxLen)
	assert.Equal(t, []string{"alphanum"}, d.Tags)
	require.Len(t, d.Validators, 1)
	assert.Error(t, d.Validators[0](""))
	assert.NoError(t, d.Validators[0]("x"))

	d = field.Int("priority").Min(1).Max(5).Descriptor()
	require.Len(t, d.Validators, 2)
	assert.Error(t, d.Validators[0](int64(0)))
	assert.NoError(t, d.Validators[0](int64(3)))
	assert.Error(t, d.Validators[1](6))
	assert.NoError(t, d.Validators[1]("not a number"))

	assert.Error(t, field.Int("n").MaxLen(3).Descriptor().Err)
	assert.Error(t, field.String("n").MaxLen(0).Descriptor().Err)
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	d := field.String("title").
		StorageKey("post_title").
		Comment("Post title").
		Annotations(schema.Comment("x")).
		Descriptor()
	assert.Equal(t, "post_title", d.Column())
	assert.Equal(t, "Post title", d.Comment)
	assert.Len(t, d.Annotations, 1)
	assert.Equal(t, "name", field.String("name").Descriptor().Column())
}
