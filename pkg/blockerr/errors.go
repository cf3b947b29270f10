// SPDX-License-Identifier: Apache-2.0

// Package blockerr defines the {kind, httpStatus, detail} error taxonomy
// shared by every layer of the orchestrator.
package blockerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of orchestrator error.
type Kind string

const (
	KindNotFound     Kind = "NotFound"
	KindConflict     Kind = "Conflict"
	KindBadRequest   Kind = "BadRequest"
	KindPrecondition Kind = "Precondition"
	KindUpstream     Kind = "Upstream"
)

var kindStatus = map[Kind]int{
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindBadRequest:   http.StatusBadRequest,
	KindPrecondition: http.StatusInternalServerError,
	KindUpstream:     http.StatusInternalServerError,
}

// Error is the orchestrator's structured error type.
type Error struct {
	Kind       Kind
	Code       string
	HTTPStatus int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error for a named code within a Kind, deriving HTTPStatus
// from the Kind unless overridden below (Precondition is mixed 500/404 in
// the source system; callers that need 404 semantics pass KindNotFound).
func New(kind Kind, code, detail string) *Error {
	return &Error{
		Kind:       kind,
		Code:       code,
		HTTPStatus: kindStatus[kind],
		Detail:     detail,
	}
}

// Wrap attaches an underlying error to a new Error without losing it to
// errors.Is/errors.As callers.
func Wrap(kind Kind, code, detail string, err error) *Error {
	e := New(kind, code, detail)
	e.Err = err
	return e
}

// Is reports whether err is a blockerr.Error with the given code, matching
// through fmt.Errorf("...: %w", err)-style wrapping.
func Is(err error, code string) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// AsError unwraps err to a *Error if one is present anywhere in its chain.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Sentinel error codes, named exactly per spec.md §7.
const (
	CodeBlockNotFound      = "BlockNotFound"
	CodeReplicaNotFound    = "ReplicaNotFound"
	CodeNodeNotFound       = "NodeNotFound"
	CodeDiskNotFound       = "DiskNotFound"
	CodePodNotFound        = "PodNotFound"
	CodeControllerNotFound = "ControllerNotFound"

	CodeBlockExists       = "BlockExists"
	CodeBlockMounted      = "BlockMounted"
	CodeBlockNotMounted   = "BlockNotMounted"
	CodeBlockFormatted    = "BlockFormatted"
	CodeBlockNotFormatted = "BlockNotFormatted"
	CodeControllerExists  = "ControllerExists"
	CodeControllerMounted = "ControllerMounted"

	CodeBlockOffline        = "BlockOffline"
	CodeInvalidMode         = "InvalidMode"
	CodeLastReplicaNoForce  = "LastReplicaWithoutForce"

	CodeNoController     = "NoController"
	CodePodNotRunning    = "PodNotRunning"
	CodeNoReplicaEndpoint = "NoReplicaEndpoint"

	CodePodCreationError        = "PodCreationError"
	CodeAddReplicaError         = "AddReplicaError"
	CodeCannotRemoveLastReplica = "CannotRemoveLastReplica"
	CodeEngineCommandFailed     = "EngineCommandFailed"
	CodeNodeStorageNotFound     = "NodeStorageNotFound"
)

// Convenience constructors for the named error codes of spec.md §7.

func BlockNotFound(id string) *Error {
	return New(KindNotFound, CodeBlockNotFound, "block "+id+" not found")
}

func ReplicaNotFound(id string) *Error {
	return New(KindNotFound, CodeReplicaNotFound, "replica "+id+" not found")
}

func NodeNotFound(name string) *Error {
	return New(KindNotFound, CodeNodeNotFound, "node "+name+" not found")
}

func DiskNotFound(id string) *Error {
	return New(KindNotFound, CodeDiskNotFound, "disk "+id+" not found")
}

func PodNotFound(name string) *Error {
	return New(KindNotFound, CodePodNotFound, "pod "+name+" not found")
}

func BlockExists(name string) *Error {
	return New(KindConflict, CodeBlockExists, "block "+name+" already exists")
}

func BlockMounted(id string) *Error {
	return New(KindConflict, CodeBlockMounted, "block "+id+" is mounted")
}

func BlockNotMounted(id string) *Error {
	return New(KindConflict, CodeBlockNotMounted, "block "+id+" is not mounted")
}

func BlockFormatted(id string) *Error {
	return New(KindConflict, CodeBlockFormatted, "block "+id+" is already formatted")
}

func BlockNotFormatted(id string) *Error {
	return New(KindConflict, CodeBlockNotFormatted, "block "+id+" is not formatted")
}

func ControllerExists(id string) *Error {
	return New(KindConflict, CodeControllerExists, "block "+id+" already has a controller")
}

func ControllerMounted(id string) *Error {
	return New(KindConflict, CodeControllerMounted, "block "+id+" controller cannot be removed while mounted")
}

func BlockOffline(id string) *Error {
	return New(KindBadRequest, CodeBlockOffline, "block "+id+" is offline")
}

func InvalidMode(mode string) *Error {
	return New(KindBadRequest, CodeInvalidMode, "invalid replica mode "+mode)
}

func LastReplicaWithoutForce(id string) *Error {
	return New(KindBadRequest, CodeLastReplicaNoForce, "removing the last replica of block "+id+" requires force")
}

func NoController(id string) *Error {
	return New(KindPrecondition, CodeNoController, "block "+id+" has no controller")
}

func PodNotRunning(name string) *Error {
	return New(KindPrecondition, CodePodNotRunning, "pod "+name+" is not running")
}

func NoReplicaEndpoint(id string) *Error {
	return New(KindPrecondition, CodeNoReplicaEndpoint, "replica "+id+" has no endpoint")
}

func PodCreationError(detail string, err error) *Error {
	return Wrap(KindUpstream, CodePodCreationError, detail, err)
}

func AddReplicaError(detail string) *Error {
	return New(KindUpstream, CodeAddReplicaError, detail)
}

func CannotRemoveLastReplica(detail string) *Error {
	return New(KindUpstream, CodeCannotRemoveLastReplica, detail)
}

func EngineCommandFailed(detail string, err error) *Error {
	return Wrap(KindUpstream, CodeEngineCommandFailed, detail, err)
}

func NodeStorageNotFound(node string) *Error {
	return New(KindNotFound, CodeNodeStorageNotFound, "node "+node+" has no available disks")
}
