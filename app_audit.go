package goGraph

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignedRequestAccepted = "signed_request_accepted"
	auditEventSignedRequestRejected = "signed_request_rejected"
	auditEventSessionParamAccepted  = "session_param_accepted"
	auditEventSessionParamRejected  = "session_param_rejected"
	auditEventSessionRestored       = "session_restored"
	auditEventSessionDiscarded      = "session_discarded"
	auditEventCodeExchangeSuccess   = "code_exchange_success"
	auditEventCodeExchangeFailure   = "code_exchange_failure"
	auditEventAppTokenFetched       = "app_token_fetched"
	auditEventAppTokenFailure       = "app_token_failure"
)

// AuditErrorCode classifies the error of a failed audit event.
type AuditErrorCode string

const (
	auditErrSignatureMismatch    AuditErrorCode = "signature_mismatch"
	auditErrUnsupportedAlgorithm AuditErrorCode = "unsupported_algorithm"
	auditErrMalformed            AuditErrorCode = "malformed"
	auditErrInvalidArgument      AuditErrorCode = "invalid_argument"
	auditErrInvalidSession       AuditErrorCode = "invalid_session"
	auditErrAPI                  AuditErrorCode = "api_error"
	auditErrTimeout              AuditErrorCode = "timeout"
	auditErrTransport            AuditErrorCode = "transport"
	auditErrUnexpectedResponse   AuditErrorCode = "unexpected_response"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (a *App) emitAudit(
	ctx context.Context,
	eventType string,
	flow string,
	success bool,
	userID int64,
	err error,
	metadataBuilder func() map[string]string,
) {
	if a == nil || a.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AppID:     a.config.AppID,
		Flow:      flow,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	a.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSignatureMismatch):
		return auditErrSignatureMismatch
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return auditErrUnsupportedAlgorithm
	case errors.Is(err, ErrMalformedSignature),
		errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrTypeMismatch):
		return auditErrMalformed
	case errors.Is(err, ErrInvalidArgument):
		return auditErrInvalidArgument
	case errors.Is(err, ErrInvalidSession):
		return auditErrInvalidSession
	case errors.Is(err, ErrAPI):
		return auditErrAPI
	case errors.Is(err, ErrTimeout):
		return auditErrTimeout
	case errors.Is(err, ErrTransport):
		return auditErrTransport
	case errors.Is(err, ErrUnexpectedResponse):
		return auditErrUnexpectedResponse
	default:
		return auditErrInternal
	}
}
