package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

// Is reports whether err carries this code.
func (c Code[MT]) Is(err error) bool {
	if err == nil {
		return false
	}
	var e Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code() == c.Code
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
	TypedMetadata() MT
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) TypedMetadata() MT {
	return e.metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type RootMetadata struct {
	Handle     string `json:"handle"`
	Checkpoint uint64 `json:"checkpoint"`
}

type NodeLimitMetadata struct {
	Handle   string `json:"handle"`
	MaxNodes int    `json:"max_nodes"`
	Level    int    `json:"level"`
}

type StructuralCorruptionMetadata struct {
	Handle     string   `json:"handle"`
	Checkpoint uint64   `json:"checkpoint"`
	Keys       []uint64 `json:"keys"`
}

type InvalidRequestMetadata struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}
var ROOT_NOT_FOUND = Code[RootMetadata]{1, "ROOT_NOT_FOUND", grpccodes.NotFound}
var ROOT_FETCH_FAILED = Code[RootMetadata]{2, "ROOT_FETCH_FAILED", grpccodes.Unavailable}
var MALFORMED_ROOT = Code[RootMetadata]{3, "MALFORMED_ROOT", grpccodes.DataLoss}

var NODE_LIMIT_EXCEEDED = Code[NodeLimitMetadata]{
	4,
	"NODE_LIMIT_EXCEEDED",
	grpccodes.ResourceExhausted,
}

var STRUCTURAL_CORRUPTION = Code[StructuralCorruptionMetadata]{
	5,
	"STRUCTURAL_CORRUPTION",
	grpccodes.DataLoss,
}

var INVALID_REQUEST = Code[InvalidRequestMetadata]{
	6,
	"INVALID_REQUEST",
	grpccodes.InvalidArgument,
}
