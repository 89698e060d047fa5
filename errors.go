package autogql

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("autogql: record not found")

	// ErrSchemaNotFound is returned when a schema name is not registered.
	ErrSchemaNotFound = errors.New("autogql: schema not found")

	// ErrSchemaExists is returned when registering a name that is already taken.
	ErrSchemaExists = errors.New("autogql: schema already registered")

	// ErrSchemaDisabled is returned when building a disabled schema.
	ErrSchemaDisabled = errors.New("autogql: schema disabled")

	// ErrInvalidConfig is the sentinel matched by every ConfigError.
	ErrInvalidConfig = errors.New("autogql: invalid configuration")

	// ErrCycle is the sentinel matched by every CycleError.
	ErrCycle = errors.New("autogql: nested payload cycle")

	// ErrRestricted is returned when a delete is blocked by a restrict policy.
	ErrRestricted = errors.New("autogql: delete restricted by dependents")

	// ErrPermission is the sentinel matched by every PermissionError.
	ErrPermission = errors.New("autogql: permission denied")

	// ErrInternal is the sentinel matched by every InternalError.
	ErrInternal = errors.New("autogql: internal error")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("autogql: cannot start a transaction within a transaction")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	label string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("autogql: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("autogql: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity.
func NewNotFoundError(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConstraintError represents a storage constraint violation.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("autogql: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation failure scoped to a field.
type ValidationError struct {
	Name string // Field path, e.g. "title" or "nestedCategory.name". Empty for entity-level errors.
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("autogql: validation failed: %s", e.Err)
	}
	return fmt.Sprintf("autogql: validator failed for field %q: %s", e.Name, e.Err)
}

// Message returns the human-readable, field-scoped message used in
// mutation envelopes.
func (e *ValidationError) Message() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return e.Name + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// Invalidf returns a ValidationError with a formatted message.
func Invalidf(name, format string, args ...any) *ValidationError {
	return &ValidationError{Name: name, Err: fmt.Errorf(format, args...)}
}

// ValidationErrors collects the validation errors of one validation step.
type ValidationErrors []*ValidationError

// Error returns the error string.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "autogql: no validation errors"
	case 1:
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("autogql: multiple validation errors:")
	for i, err := range e {
		fmt.Fprintf(&sb, "\n  [%d] %s", i+1, err.Message())
	}
	return sb.String()
}

// Messages returns the field-scoped messages of all errors.
func (e ValidationErrors) Messages() []string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Message()
	}
	return msgs
}

// Err returns nil if there are no errors, and e otherwise.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Prefix returns a copy of the errors with the given path prepended to each field name.
func (e ValidationErrors) Prefix(path string) ValidationErrors {
	out := make(ValidationErrors, len(e))
	for i, err := range e {
		name := path
		if err.Name != "" {
			name = path + "." + err.Name
		}
		out[i] = &ValidationError{Name: name, Err: err.Err}
	}
	return out
}

// IsValidationError returns true if the error is a ValidationError or ValidationErrors.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var (
		e  *ValidationError
		es ValidationErrors
	)
	return errors.As(err, &e) || errors.As(err, &es)
}

// ConfigError represents an invalid schema registration, settings shape or
// entity definition. It is surfaced at the registration or build call site.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("autogql: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("autogql: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches the sentinel error for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{Option: option, Value: value, Message: message}
}

// IsConfigError returns true if the error is a ConfigError or any other
// error matching ErrInvalidConfig.
func IsConfigError(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidConfig)
}

// CycleError is returned when a nested payload references itself through
// unsaved provisional references.
type CycleError struct {
	Path []string // Entity/relationship path that closes the cycle
}

// Error returns the error string.
func (e *CycleError) Error() string {
	return fmt.Sprintf("autogql: nested payload cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Is reports whether the target matches ErrCycle.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// IsCycleError returns true if the error is a CycleError.
func IsCycleError(err error) bool {
	return err != nil && errors.Is(err, ErrCycle)
}

// IntegrityError is returned when a delete violates a restrict policy or a
// nested write breaks referential integrity.
type IntegrityError struct {
	Entity string
	Msg    string
	Err    error
}

// Error returns the error string.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("autogql: integrity error on %s: %s", e.Entity, e.Msg)
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrityError returns true if the error is an IntegrityError.
func IsIntegrityError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntegrityError
	return errors.As(err, &e)
}

// PermissionError represents a privacy policy denial.
type PermissionError struct {
	Entity string // Entity name
	Op     string // Operation name
	Err    error  // Decision returned by the policy
}

// Error returns the error string.
func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("autogql: permission denied for %s on %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("autogql: permission denied for %s on %s", e.Op, e.Entity)
}

// Unwrap returns the underlying error.
func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrPermission.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermission
}

// NewPermissionError returns a new PermissionError.
func NewPermissionError(entity, op string, err error) *PermissionError {
	return &PermissionError{Entity: entity, Op: op, Err: err}
}

// IsPermissionError returns true if the error is a PermissionError.
func IsPermissionError(err error) bool {
	return err != nil && errors.Is(err, ErrPermission)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("autogql: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// InternalError is the single shape infrastructural failures take when they
// cross the query/mutation boundary. The cause stays reachable through
// errors.Is and errors.As, but is never rendered in the message.
type InternalError struct {
	Op  string // Operation being executed
	Err error  // Underlying error
}

// Error returns the error string.
func (e *InternalError) Error() string {
	return "autogql: internal error"
}

// Unwrap returns the underlying error.
func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrInternal.
func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// Internal wraps err in an InternalError unless it already is one.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *InternalError
	if errors.As(err, &e) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// IsInternal returns true if the error is an InternalError.
func IsInternal(err error) bool {
	return err != nil && errors.Is(err, ErrInternal)
}

// IsBusiness reports whether err is a business-logic failure that belongs in
// the mutation envelope rather than the fatal-error channel. Deadline and
// cancellation errors are never business errors.
func IsBusiness(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), IsInternal(err):
		return false
	default:
		return IsValidationError(err) ||
			IsNotFound(err) ||
			IsPermissionError(err) ||
			IsCycleError(err) ||
			IsIntegrityError(err) ||
			IsConstraintError(err)
	}
}

// Messages renders a business error as the list of human-readable messages
// placed in a mutation envelope.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var es ValidationErrors
	if errors.As(err, &es) {
		return es.Messages()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return []string{ve.Message()}
	}
	msg := strings.TrimPrefix(err.Error(), "autogql: ")
	return []string{msg}
}
