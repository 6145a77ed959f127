package snapshot

import (
	"errors"
	"fmt"

	"github.com/zeusync/worldcore/pkg/encoding"
)

// Format versions. Each one adds fields to the previous layout.
const (
	VersionBase      uint32 = 1
	VersionTags      uint32 = 3
	VersionGlobalKey uint32 = 4
	VersionUserFlags uint32 = 5
	VersionTeam      uint32 = 6

	MaxVersion = VersionTeam
)

var (
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrTruncatedStream    = encoding.ErrTruncated
	// ErrUnknownComponentType is never returned from a load; unknown types are
	// skipped and logged. It tags those log entries and Description.Unknown.
	ErrUnknownComponentType = errors.New("unknown component type")
	ErrCorruptStream        = errors.New("corrupt snapshot stream")
)

// Stage names the decode step that failed.
type Stage string

const (
	StageHeader      Stage = "header"
	StageTags        Stage = "tags"
	StageEntities    Stage = "entities"
	StageTypes       Stage = "types"
	StageBlob        Stage = "blob"
	StageInstantiate Stage = "instantiate"
	StageComponents  Stage = "components"
	StageResolve     Stage = "resolve"
	StageWrite       Stage = "write"
)

type ErrorCode int

const (
	ErrorCodeUnknown            ErrorCode = 0
	ErrorCodeUnsupportedVersion ErrorCode = 1001
	ErrorCodeTruncatedStream    ErrorCode = 1002
	ErrorCodeCorruptStream      ErrorCode = 1003
	ErrorCodeUnknownType        ErrorCode = 1004
	ErrorCodeWorld              ErrorCode = 2001
)

var errorCodeMap = map[error]ErrorCode{
	ErrUnsupportedVersion:     ErrorCodeUnsupportedVersion,
	ErrTruncatedStream:        ErrorCodeTruncatedStream,
	ErrCorruptStream:          ErrorCodeCorruptStream,
	encoding.ErrInvalidString: ErrorCodeCorruptStream,
	ErrUnknownComponentType:   ErrorCodeUnknownType,
}

// DecodeError reports which source and which stage of a load failed.
type DecodeError struct {
	Code   ErrorCode
	Stage  Stage
	Source string
	Cause  error
}

func (e *DecodeError) Error() string {
	src := e.Source
	if src == "" {
		src = "<stream>"
	}
	return fmt.Sprintf("snapshot %s: %s: %v", src, e.Stage, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func newDecodeError(stage Stage, source string, cause error) *DecodeError {
	var de *DecodeError
	if errors.As(cause, &de) {
		return de
	}
	return &DecodeError{Code: codeOf(cause), Stage: stage, Source: source, Cause: cause}
}

func codeOf(err error) ErrorCode {
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrorCodeWorld
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptStream, fmt.Sprintf(format, args...))
}
