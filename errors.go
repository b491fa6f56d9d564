package fabrica

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for the generation pipeline and runtime.
var (
	// ErrConfig is returned for invalid configuration, including
	// hardcoded secrets that must use the env:NAME indirection.
	ErrConfig = errors.New("fabrica: invalid configuration")

	// ErrIntrospection is returned when the database model cannot be read.
	ErrIntrospection = errors.New("fabrica: introspection failed")

	// ErrClassification is returned when the model is internally
	// inconsistent and no relation graph can be built from it.
	ErrClassification = errors.New("fabrica: classification failed")

	// ErrEmission is returned when generated files cannot be produced
	// or written.
	ErrEmission = errors.New("fabrica: emission failed")

	// ErrValidation is returned when request input (body, filter,
	// include spec, ordering, vector spec) violates the wire rules.
	ErrValidation = errors.New("fabrica: validation failed")

	// ErrNotFound is returned when a primary-key target does not exist.
	ErrNotFound = errors.New("fabrica: row not found")

	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errors.New("fabrica: unauthorized")

	// ErrDatabase is returned for SQL execution failures at request time.
	ErrDatabase = errors.New("fabrica: database error")

	// ErrStitch is returned for a per-edge failure during include
	// loading. It is caught at each edge and never propagates above
	// the loader unless strict mode is enabled.
	ErrStitch = errors.New("fabrica: include stitch failed")
)

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("fabrica: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("fabrica: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches the sentinel error for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError returns a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{Option: option, Value: value, Message: message}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e) || errors.Is(err, ErrConfig)
}

// IntrospectionError represents a failure while reading the database model.
type IntrospectionError struct {
	Schema string // Target schema, when known
	Stage  string // Catalog stage: "connect", "tables", "columns", ...
	Err    error
}

// Error returns the error string.
func (e *IntrospectionError) Error() string {
	var b strings.Builder
	b.WriteString("fabrica: introspection failed")
	if e.Stage != "" {
		b.WriteString(" at ")
		b.WriteString(e.Stage)
	}
	if e.Schema != "" {
		fmt.Fprintf(&b, " (schema %q)", e.Schema)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the sentinel error for IntrospectionError.
func (e *IntrospectionError) Is(target error) bool {
	return target == ErrIntrospection
}

// NewIntrospectionError returns a new IntrospectionError.
func NewIntrospectionError(schema, stage string, err error) *IntrospectionError {
	return &IntrospectionError{Schema: schema, Stage: stage, Err: err}
}

// IsIntrospectionError returns true if the error is an IntrospectionError.
func IsIntrospectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntrospectionError
	return errors.As(err, &e) || errors.Is(err, ErrIntrospection)
}

// ClassificationError represents a model inconsistency discovered while
// building the relation graph.
type ClassificationError struct {
	Table   string
	Message string
}

// Error returns the error string.
func (e *ClassificationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("fabrica: classification failed on table %q: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("fabrica: classification failed: %s", e.Message)
}

// Is reports whether the target matches the sentinel error for ClassificationError.
func (e *ClassificationError) Is(target error) bool {
	return target == ErrClassification
}

// NewClassificationError returns a new ClassificationError.
func NewClassificationError(table, message string) *ClassificationError {
	return &ClassificationError{Table: table, Message: message}
}

// IsClassificationError returns true if the error is a ClassificationError.
func IsClassificationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ClassificationError
	return errors.As(err, &e) || errors.Is(err, ErrClassification)
}

// EmissionError represents a code generation or write failure.
// No partial output is kept when one is returned.
type EmissionError struct {
	Stage string // "types", "routes", "client", "contract", "write", ...
	File  string
	Err   error
}

// Error returns the error string.
func (e *EmissionError) Error() string {
	var b strings.Builder
	b.WriteString("fabrica: emission failed")
	if e.Stage != "" {
		b.WriteString(" in stage ")
		b.WriteString(e.Stage)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " (file %s)", e.File)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *EmissionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the sentinel error for EmissionError.
func (e *EmissionError) Is(target error) bool {
	return target == ErrEmission
}

// NewEmissionError returns a new EmissionError.
func NewEmissionError(stage, file string, err error) *EmissionError {
	return &EmissionError{Stage: stage, File: file, Err: err}
}

// IsEmissionError returns true if the error is an EmissionError.
func IsEmissionError(err error) bool {
	if err == nil {
		return false
	}
	var e *EmissionError
	return errors.As(err, &e) || errors.Is(err, ErrEmission)
}

// Issue is a single structured validation problem. Path addresses the
// offending input element ("where.name.$gt", "include.books.limit").
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// String returns the issue in path: message form.
func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError carries one or more issues found while validating
// request input. It maps to HTTP 400 with the issue list in the body.
type ValidationError struct {
	Issues []Issue
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "fabrica: validation failed"
	case 1:
		return "fabrica: validation failed: " + e.Issues[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "fabrica: validation failed (%d issues):", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// Is reports whether the target matches the sentinel error for ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Append adds an issue and returns the receiver for chaining.
func (e *ValidationError) Append(path, message string) *ValidationError {
	e.Issues = append(e.Issues, Issue{Path: path, Message: message})
	return e
}

// Empty reports whether no issues were collected.
func (e *ValidationError) Empty() bool {
	return len(e.Issues) == 0
}

// NewValidationError returns a new ValidationError with the given issues.
func NewValidationError(issues ...Issue) *ValidationError {
	return &ValidationError{Issues: issues}
}

// NewIssueError returns a ValidationError with a single issue.
func NewIssueError(path, message string) *ValidationError {
	return &ValidationError{Issues: []Issue{{Path: path, Message: message}}}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e) || errors.Is(err, ErrValidation)
}

// NotFoundError represents a missing primary-key target.
type NotFoundError struct {
	label string
	key   any // Optional: the key tuple that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.key != nil {
		return fmt.Sprintf("fabrica: %s not found (key=%v)", e.label, e.key)
	}
	return fmt.Sprintf("fabrica: %s not found", e.label)
}

// Is reports whether the target matches the sentinel error for NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Label returns the table or resource label.
func (e *NotFoundError) Label() string {
	return e.label
}

// Key returns the key that was searched for, if available.
func (e *NotFoundError) Key() any {
	return e.key
}

// NewNotFoundError returns a new NotFoundError for the given label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithKey returns a new NotFoundError with the key that
// was searched for.
func NewNotFoundErrorWithKey(label string, key any) *NotFoundError {
	return &NotFoundError{label: label, key: key}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// AuthError represents missing or invalid request credentials.
type AuthError struct {
	Reason string
}

// Error returns the error string.
func (e *AuthError) Error() string {
	if e.Reason != "" {
		return "fabrica: unauthorized: " + e.Reason
	}
	return "fabrica: unauthorized"
}

// Is reports whether the target matches the sentinel error for AuthError.
func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

// NewAuthError returns a new AuthError.
func NewAuthError(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

// IsAuthError returns true if the error is an AuthError.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var e *AuthError
	return errors.As(err, &e) || errors.Is(err, ErrUnauthorized)
}

// DatabaseError wraps a SQL execution failure with request context.
type DatabaseError struct {
	Table string // Table being queried or mutated
	Op    string // Operation: "select", "count", "insert", "update", "delete"
	Err   error
}

// Error returns the error string.
func (e *DatabaseError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("fabrica: %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("fabrica: querying %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the sentinel error for DatabaseError.
func (e *DatabaseError) Is(target error) bool {
	return target == ErrDatabase
}

// NewDatabaseError returns a new DatabaseError.
func NewDatabaseError(table, op string, err error) *DatabaseError {
	return &DatabaseError{Table: table, Op: op, Err: err}
}

// IsDatabaseError returns true if the error is a DatabaseError.
func IsDatabaseError(err error) bool {
	if err == nil {
		return false
	}
	var e *DatabaseError
	return errors.As(err, &e) || errors.Is(err, ErrDatabase)
}

// StitchError represents a per-edge failure during include loading.
type StitchError struct {
	Table    string // Parent table
	Relation string // Relation key that failed
	Err      error
}

// Error returns the error string.
func (e *StitchError) Error() string {
	return fmt.Sprintf("fabrica: stitching %s.%s: %v", e.Table, e.Relation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StitchError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the sentinel error for StitchError.
func (e *StitchError) Is(target error) bool {
	return target == ErrStitch
}

// NewStitchError returns a new StitchError.
func NewStitchError(table, relation string, err error) *StitchError {
	return &StitchError{Table: table, Relation: relation, Err: err}
}

// IsStitchError returns true if the error is a StitchError.
func IsStitchError(err error) bool {
	if err == nil {
		return false
	}
	var e *StitchError
	return errors.As(err, &e) || errors.Is(err, ErrStitch)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "fabrica: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("fabrica: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
