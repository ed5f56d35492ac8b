// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nerr defines the engine's error taxonomy. Errors carry a Kind so
// callers can branch with errors.Is against the sentinel Kind values without
// string matching, while the wrapped message stays human-readable for
// surfacing to the model or the host wire protocol.
package nerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy decisions (spec §7).
type Kind int

const (
	// KindCancelled indicates a cooperative abort.
	KindCancelled Kind = iota
	// KindLockTimeout indicates the cross-process store lock could not be acquired in time.
	KindLockTimeout
	// KindConflict indicates an LTM compare-and-swap mismatch, duplicate slug, or missing parent.
	KindConflict
	// KindNotFound indicates a missing slug or message id.
	KindNotFound
	// KindSchemaMismatch indicates a store migration failure.
	KindSchemaMismatch
	// KindProviderError indicates a network/auth/rate-limit failure from the LLM provider.
	KindProviderError
	// KindToolSchemaError indicates invalid tool-call arguments; never fatal, redirected to the model.
	KindToolSchemaError
	// KindToolExecError indicates a tool executor panic/error, wrapped into a textual tool result.
	KindToolExecError
	// KindInvariantViolation indicates a distillation range/version invariant was broken. Must never occur.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindLockTimeout:
		return "lock_timeout"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindProviderError:
		return "provider_error"
	case KindToolSchemaError:
		return "tool_schema_error"
	case KindToolExecError:
		return "tool_exec_error"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind, a message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, nerr.Cancelled) work against any *Error of the
// matching Kind, regardless of message/cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newKind(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

// Sentinels usable directly with errors.Is for kind-only comparisons.
var (
	Cancelled          = newKind(KindCancelled, "cancelled")
	LockTimeout        = newKind(KindLockTimeout, "lock timeout")
	Conflict           = newKind(KindConflict, "conflict")
	NotFound           = newKind(KindNotFound, "not found")
	SchemaMismatch     = newKind(KindSchemaMismatch, "schema mismatch")
	ProviderError      = newKind(KindProviderError, "provider error")
	ToolSchemaError    = newKind(KindToolSchemaError, "tool schema error")
	ToolExecError      = newKind(KindToolExecError, "tool exec error")
	InvariantViolation = newKind(KindInvariantViolation, "invariant violation")
)

// Wrap constructs a new *Error of the given kind, wrapping cause and
// formatting msg/args as the message.
func Wrap(k Kind, cause error, msg string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(msg, args...), Cause: cause}
}

// New constructs a new *Error of the given kind with no wrapped cause.
func New(k Kind, msg string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(msg, args...)}
}

// Is reports whether err carries Kind k anywhere in its chain.
func Is(err error, k Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == k {
			return true
		}
		err = e.Cause
	}
	return false
}
