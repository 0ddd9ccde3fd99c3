package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so handlers can map them to responses.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindSegmentation
	KindTranscription
	KindTransport
	KindChatService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSegmentation:
		return "segmentation"
	case KindTranscription:
		return "transcription"
	case KindTransport:
		return "transport"
	case KindChatService:
		return "chat_service"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(kind.String() + " failed")
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func ValidationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

func SegmentationError(op string, err error) error {
	return NewError(KindSegmentation, op, err)
}

func TranscriptionError(op string, err error) error {
	return NewError(KindTranscription, op, err)
}

func TransportError(op string, err error) error {
	return NewError(KindTransport, op, err)
}

func ChatServiceError(op string, err error) error {
	return NewError(KindChatService, op, err)
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// HTTPStatus maps an error to the status of a non-streaming response.
func HTTPStatus(err error) int {
	if KindOf(err) == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message exposed in {error} bodies. Only validation
// messages are passed through; anything else gets the fallback.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return e.Err.Error()
	}
	return fallback
}
