package core

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// ErrKind classifies a CoreError the way Kind classifies a Definition:
// by a comparable string, not by Go type identity, so errors.Is works
// uniformly across the whole taxonomy.
type ErrKind string

const (
	ErrKindDuplicateRegistration         ErrKind = "duplicateRegistration"
	ErrKindDuplicateTag                  ErrKind = "duplicateTag"
	ErrKindSelfTagDependency             ErrKind = "selfTagDependency"
	ErrKindUnknownItemType               ErrKind = "unknownItemType"
	ErrKindDependencyNotFound            ErrKind = "dependencyNotFound"
	ErrKindEventNotFound                 ErrKind = "eventNotFound"
	ErrKindCircularDependencies          ErrKind = "circularDependencies"
	ErrKindParallelInitScheduling        ErrKind = "parallelInitScheduling"
	ErrKindStoreAlreadyInitialized       ErrKind = "storeAlreadyInitialized"
	ErrKindStoreLocked                   ErrKind = "storeLocked"
	ErrKindBuilderIncomplete             ErrKind = "builderIncomplete"
	ErrKindMiddlewareConcurrencyConflict ErrKind = "middlewareConcurrencyConflict"
	ErrKindEventCycle                    ErrKind = "eventCycle"
)

// CoreError is the single error struct behind every kind in the table
// above, generalized from a ResolveError style (struct + Unwrap +
// captured stack) into a Kind-tagged family.
type CoreError struct {
	ErrKind    ErrKind
	Message    string
	Data       any
	Cause      error
	StackTrace []byte
}

func newCoreError(kind ErrKind, data any, format string, args ...any) *CoreError {
	return &CoreError{
		ErrKind:    kind,
		Message:    fmt.Sprintf(format, args...),
		Data:       data,
		StackTrace: debug.Stack(),
	}
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CoreError of the same ErrKind, letting
// callers write errors.Is(err, core.ErrDependencyNotFound) against the
// package-level sentinels below regardless of the error's Data payload.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.ErrKind == t.ErrKind
}

// Sentinels for errors.Is matching; none of these carry Data and none
// should be returned directly by the runtime.
var (
	ErrDuplicateRegistration         = &CoreError{ErrKind: ErrKindDuplicateRegistration}
	ErrDuplicateTag                  = &CoreError{ErrKind: ErrKindDuplicateTag}
	ErrSelfTagDependency             = &CoreError{ErrKind: ErrKindSelfTagDependency}
	ErrUnknownItemType               = &CoreError{ErrKind: ErrKindUnknownItemType}
	ErrDependencyNotFound            = &CoreError{ErrKind: ErrKindDependencyNotFound}
	ErrEventNotFound                 = &CoreError{ErrKind: ErrKindEventNotFound}
	ErrCircularDependencies          = &CoreError{ErrKind: ErrKindCircularDependencies}
	ErrParallelInitScheduling        = &CoreError{ErrKind: ErrKindParallelInitScheduling}
	ErrStoreAlreadyInitialized       = &CoreError{ErrKind: ErrKindStoreAlreadyInitialized}
	ErrStoreLocked                   = &CoreError{ErrKind: ErrKindStoreLocked}
	ErrBuilderIncomplete             = &CoreError{ErrKind: ErrKindBuilderIncomplete}
	ErrMiddlewareConcurrencyConflict = &CoreError{ErrKind: ErrKindMiddlewareConcurrencyConflict}
	ErrEventCycle                    = &CoreError{ErrKind: ErrKindEventCycle}
)

func NewDuplicateRegistrationError(id string) *CoreError {
	return newCoreError(ErrKindDuplicateRegistration, id, "id %q is already registered", id)
}

func NewDuplicateTagError(holderID, tagID string) *CoreError {
	return newCoreError(ErrKindDuplicateTag, map[string]string{"holder": holderID, "tag": tagID},
		"%q carries tag %q more than once", holderID, tagID)
}

func NewSelfTagDependencyError(holderID, tagID string) *CoreError {
	return newCoreError(ErrKindSelfTagDependency, map[string]string{"holder": holderID, "tag": tagID},
		"%q declares a dependency on tag %q which it also carries", holderID, tagID)
}

func NewUnknownItemTypeError(item any) *CoreError {
	return newCoreError(ErrKindUnknownItemType, item, "unknown item type: %T", item)
}

func NewDependencyNotFoundError(what string) *CoreError {
	return newCoreError(ErrKindDependencyNotFound, what, "dependency not found: %s", what)
}

func NewEventNotFoundError(id string) *CoreError {
	return newCoreError(ErrKindEventNotFound, id, "event not found: %s", id)
}

// NewCircularDependenciesError renders path (e.g. ["A","B","C","A"]) as
// an arrow chain ("A → B → C → A").
func NewCircularDependenciesError(path []string) *CoreError {
	return newCoreError(ErrKindCircularDependencies, path, "circular resource dependency: %s", strings.Join(path, " → "))
}

func NewParallelInitSchedulingError(remaining []string) *CoreError {
	return newCoreError(ErrKindParallelInitScheduling, remaining,
		"parallel initialization stalled, no ready resource among: %s", strings.Join(remaining, ", "))
}

func NewStoreAlreadyInitializedError() *CoreError {
	return newCoreError(ErrKindStoreAlreadyInitialized, nil, "store is already initialized")
}

func NewStoreLockedError(op string) *CoreError {
	return newCoreError(ErrKindStoreLocked, op, "store is locked, cannot %s", op)
}

func NewBuilderIncompleteError(kind Kind, id string, missing string) *CoreError {
	return newCoreError(ErrKindBuilderIncomplete, map[string]string{"id": id, "missing": missing},
		"%s %q is missing required %s", kind, id, missing)
}

func NewMiddlewareConcurrencyConflictError(key string) *CoreError {
	return newCoreError(ErrKindMiddlewareConcurrencyConflict, key, "conflicting middleware configuration for key %q", key)
}

func NewEventCycleError(path []string) *CoreError {
	return newCoreError(ErrKindEventCycle, path, "reentrant event emission: %s", strings.Join(path, " → "))
}
