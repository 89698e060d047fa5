package autogql_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := autogql.NewNotFoundError("Post", nil)
		assert.Equal(t, "autogql: Post not found", err.Error())
		err = autogql.NewNotFoundError("Post", 7)
		assert.Equal(t, "autogql: Post not found (id=7)", err.Error())
		assert.Equal(t, 7, err.ID())
		assert.Equal(t, "Post", err.Label())
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := autogql.NewNotFoundError("Comment", 1)
		assert.True(t, errors.Is(err, autogql.ErrNotFound))
		assert.True(t, autogql.IsNotFound(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, autogql.IsNotFound(autogql.ErrNotFound))
		assert.False(t, autogql.IsNotFound(errors.New("other error")))
		assert.False(t, autogql.IsNotFound(nil))
	})
}

func TestValidationErrors(t *testing.T) {
	t.Run("Message", func(t *testing.T) {
		err := autogql.Invalidf("title", "field is required")
		assert.Equal(t, "title: field is required", err.Message())
		assert.Equal(t, `autogql: validator failed for field "title": field is required`, err.Error())

		err = autogql.NewValidationError("", errors.New("boom"))
		assert.Equal(t, "boom", err.Message())
	})

	t.Run("Prefix", func(t *testing.T) {
		errs := autogql.ValidationErrors{
			autogql.Invalidf("name", "field is required"),
			autogql.Invalidf("", "unknown entity"),
		}
		prefixed := errs.Prefix("nestedCategory")
		assert.Equal(t, []string{
			"nestedCategory.name: field is required",
			"nestedCategory: unknown entity",
		}, prefixed.Messages())
		// The original is untouched.
		assert.Equal(t, "name", errs[0].Name)
	})

	t.Run("Err", func(t *testing.T) {
		var errs autogql.ValidationErrors
		assert.NoError(t, errs.Err())
		errs = append(errs, autogql.Invalidf("title", "too long"))
		require.Error(t, errs.Err())
		assert.True(t, autogql.IsValidationError(errs.Err()))
		assert.True(t, autogql.IsValidationError(fmt.Errorf("wrap: %w", errs)))
	})
}

func TestConfigError(t *testing.T) {
	err := autogql.NewConfigError("maxPageSize", -1, "must be positive")
	assert.Equal(t, `autogql: config error for "maxPageSize" (value: -1): must be positive`, err.Error())
	assert.True(t, errors.Is(err, autogql.ErrInvalidConfig))
	assert.True(t, autogql.IsConfigError(fmt.Errorf("wrap: %w", err)))
	assert.False(t, autogql.IsConfigError(errors.New("x")))
}

func TestCycleAndIntegrityErrors(t *testing.T) {
	cycle := &autogql.CycleError{Path: []string{"Post", "nestedCategory", "Category", "nestedPosts", "Post"}}
	assert.Contains(t, cycle.Error(), "Post -> nestedCategory -> Category")
	assert.True(t, autogql.IsCycleError(cycle))
	assert.True(t, errors.Is(cycle, autogql.ErrCycle))

	integrity := &autogql.IntegrityError{Entity: "Category", Msg: "2 Post rows reference it", Err: autogql.ErrRestricted}
	assert.True(t, autogql.IsIntegrityError(integrity))
	assert.True(t, errors.Is(integrity, autogql.ErrRestricted))
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", context.DeadlineExceeded)
	err := autogql.Internal("posts", cause)
	assert.Equal(t, "autogql: internal error", err.Error())
	assert.True(t, autogql.IsInternal(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	// Wrapping twice keeps a single shape.
	assert.Same(t, err, autogql.Internal("other", err))
	assert.NoError(t, autogql.Internal("noop", nil))
}

func TestIsBusiness(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "validation", err: autogql.Invalidf("title", "required"), want: true},
		{name: "not_found", err: autogql.NewNotFoundError("Post", 1), want: true},
		{name: "permission", err: autogql.NewPermissionError("Post", "createPost", nil), want: true},
		{name: "cycle", err: &autogql.CycleError{}, want: true},
		{name: "constraint", err: autogql.NewConstraintError("unique", nil), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "deadline_wrapping_validation", err: fmt.Errorf("%w: %w", context.DeadlineExceeded, autogql.Invalidf("x", "y")), want: false},
		{name: "internal", err: autogql.Internal("op", autogql.NewNotFoundError("Post", 1)), want: false},
		{name: "plain", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, autogql.IsBusiness(tt.err))
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Nil(t, autogql.Messages(nil))
	assert.Equal(t, []string{"title: required"}, autogql.Messages(autogql.Invalidf("title", "required")))
	assert.Equal(t, []string{"Post not found (id=3)"}, autogql.Messages(autogql.NewNotFoundError("Post", 3)))
	errs := autogql.ValidationErrors{autogql.Invalidf("a", "x"), autogql.Invalidf("b", "y")}
	assert.Equal(t, []string{"a: x", "b: y"}, autogql.Messages(fmt.Errorf("wrap: %w", errs)))
}
