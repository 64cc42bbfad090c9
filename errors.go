package goGraph

import (
	"errors"

	"github.com/MrEthical07/goGraph/async"
	"github.com/MrEthical07/goGraph/graphapi"
	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/signature"
	"github.com/MrEthical07/goGraph/transport"
	"github.com/MrEthical07/goGraph/variant"
)

var (
	// ErrInvalidArgument reports a nil or empty required input.
	ErrInvalidArgument = transport.ErrInvalidArgument
	// ErrNotSupported is returned by operations a context variant cannot answer.
	ErrNotSupported = errors.New("operation not supported")
	// ErrSessionUnavailable is returned when a token is requested without a session.
	ErrSessionUnavailable = errors.New("session is not available")
	// ErrTokenExpired is returned when the session's token has expired.
	ErrTokenExpired = errors.New("token is expired")
	// ErrAppNotReady is returned by a nil or closed App.
	ErrAppNotReady = errors.New("app not initialized")
)

// Errors raised by the subpackages, re-exported for errors.Is checks against goGraph.
var (
	ErrSignatureMismatch    = signature.ErrSignatureMismatch
	ErrUnsupportedAlgorithm = signature.ErrUnsupportedAlgorithm
	ErrMalformedSignature   = signature.ErrMalformedSignature
	ErrMalformedPayload     = variant.ErrMalformedPayload
	ErrTypeMismatch         = variant.ErrTypeMismatch
	ErrTransport            = transport.ErrTransport
	ErrTimeout              = transport.ErrTimeout
	ErrUnexpectedResponse   = transport.ErrUnexpectedResponse
	ErrAPI                  = graphapi.ErrAPI
	ErrAlreadyCompleted     = async.ErrAlreadyCompleted
	ErrInvalidSession       = session.ErrInvalidSession
)
