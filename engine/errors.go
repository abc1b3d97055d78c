package engine

import (
	"errors"
	"fmt"
)

// RuleKind classifies a recoverable rule violation.
type RuleKind uint8

const (
	KindUnsupportedAction RuleKind = iota + 1
	KindIllegalActor
	KindInvalidParameter
	KindEntityNotFound
	KindResourceExhausted
	KindConflict
)

func (k RuleKind) String() string {
	switch k {
	case KindUnsupportedAction:
		return "unsupported action"
	case KindIllegalActor:
		return "illegal actor"
	case KindInvalidParameter:
		return "invalid parameter"
	case KindEntityNotFound:
		return "entity not found"
	case KindResourceExhausted:
		return "resource exhausted"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// RuleError is an expected, entry-local failure. The snapshot is left
// exactly as it was before the action.
type RuleError struct {
	Kind RuleKind
	Msg  string
}

func (e *RuleError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is matches any RuleError of the same kind, so the sentinels below work
// with errors.Is.
func (e *RuleError) Is(target error) bool {
	t, ok := target.(*RuleError)
	return ok && t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedAction = &RuleError{Kind: KindUnsupportedAction}
	ErrIllegalActor      = &RuleError{Kind: KindIllegalActor}
	ErrInvalidParameter  = &RuleError{Kind: KindInvalidParameter}
	ErrEntityNotFound    = &RuleError{Kind: KindEntityNotFound}
	ErrResourceExhausted = &RuleError{Kind: KindResourceExhausted}
	ErrConflict          = &RuleError{Kind: KindConflict}
)

func ruleErr(kind RuleKind, format string, args ...any) error {
	return &RuleError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func unsupported(format string, args ...any) error {
	return ruleErr(KindUnsupportedAction, format, args...)
}
func illegalActor(format string, args ...any) error { return ruleErr(KindIllegalActor, format, args...) }
func invalidParam(format string, args ...any) error { return ruleErr(KindInvalidParameter, format, args...) }
func notFound(format string, args ...any) error     { return ruleErr(KindEntityNotFound, format, args...) }
func exhausted(format string, args ...any) error    { return ruleErr(KindResourceExhausted, format, args...) }
func conflict(format string, args ...any) error     { return ruleErr(KindConflict, format, args...) }

// IsRuleViolation reports whether err is a recoverable rule violation.
func IsRuleViolation(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}

// StructuralError means the snapshot itself is unusable (unknown phase,
// empty cursor). It is fatal to the whole apply batch. Instances are
// sentinels, wrapped with detail via fmt.Errorf("%w").
type StructuralError struct {
	Msg string
}

func (e *StructuralError) Error() string { return "structural: " + e.Msg }

var (
	ErrEmptyCursor  = &StructuralError{Msg: "state cursor is empty"}
	ErrUnknownPhase = &StructuralError{Msg: "unknown phase"}
)

// IsStructural reports whether err is fatal to an apply batch.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
