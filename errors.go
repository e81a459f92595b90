// Copyright 2026 The JLS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jls

import "github.com/pkg/errors"

// Code is a stable, closed error taxonomy mirrored from the C ABI this
// format also serves. Callers that need to branch on error kind should use
// errors.As / Of rather than string-matching messages.
type Code int

const (
	// OK is never itself returned as an error; it exists so Code's zero
	// value reads as success rather than as ParameterInvalid.
	OK Code = iota
	ParameterInvalid
	NotEnoughMemory
	IO
	NotFound
	AlreadyExists
	Empty             // end of iteration, not a failure
	TooBig            // buffer too small; caller should reallocate and retry
	MessageIntegrity  // CRC mismatch
	UnsupportedFile   // bad magic / version
	Truncated         // file shorter than its structures claim
	Busy              // ring buffer full (DROP_ON_OVERFLOW)
	TimedOut
	NotSupported
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ParameterInvalid:
		return "parameter_invalid"
	case NotEnoughMemory:
		return "not_enough_memory"
	case IO:
		return "io"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case Empty:
		return "empty"
	case TooBig:
		return "too_big"
	case MessageIntegrity:
		return "message_integrity"
	case UnsupportedFile:
		return "unsupported_file"
	case Truncated:
		return "truncated"
	case Busy:
		return "busy"
	case TimedOut:
		return "timed_out"
	case NotSupported:
		return "not_supported"
	}
	return "unknown"
}

// Error pairs a stable Code with the underlying pkg/errors chain so logs
// keep full context while callers can still switch on Of(err).
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// wrap builds an *Error, attaching the formatted message to the pkg/errors
// chain for %+v-style stack traces in logs.
func wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return &Error{Code: code, cause: errors.Errorf(format, args...)}
	}
	return &Error{Code: code, cause: errors.Wrapf(err, format, args...)}
}

func newErr(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, cause: errors.Errorf(format, args...)}
}

// Of extracts the Code carried by err, or OK if err is nil, or
// ParameterInvalid if err did not originate from this package.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ParameterInvalid
}

// IsEmpty is a convenience check for the iteration-sentinel error, the one
// Code that every reader loop must treat as a normal terminator.
func IsEmpty(err error) bool { return Of(err) == Empty }
