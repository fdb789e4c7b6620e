package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeBadInput          = "CHANGELOG_BAD_INPUT"
	ErrorCodeMissingSignature  = "CHANGELOG_SIGNATURE_MISSING"
	ErrorCodeMissingSecret     = "CHANGELOG_SECRET_MISSING"
	ErrorCodeSignatureMismatch = "CHANGELOG_SIGNATURE_MISMATCH"
	ErrorCodeClassification    = "CHANGELOG_CLASSIFICATION_FAILED"
	ErrorCodeStoreRead         = "CHANGELOG_STORE_READ_FAILED"
	ErrorCodeStoreWrite        = "CHANGELOG_STORE_WRITE_FAILED"
	ErrorCodeSynthesis         = "CHANGELOG_SYNTHESIS_FAILED"
	ErrorCodeDispatch          = "CHANGELOG_DISPATCH_FAILED"
	ErrorCodeExternalFailure   = "CHANGELOG_EXTERNAL_FAILURE"
	ErrorCodeInternal          = "CHANGELOG_INTERNAL_ERROR"
)

var (
	ErrVerification      = errors.New("core: webhook verification failed")
	ErrMissingSignature  = errors.New("core: webhook signature header is missing")
	ErrMissingSecret     = errors.New("core: webhook shared secret is not configured")
	ErrSignatureMismatch = errors.New("core: webhook signature mismatch")
	ErrClassification    = errors.New("core: event classification failed")
	ErrStore             = errors.New("core: idempotency store failure")
	ErrSynthesis         = errors.New("core: task synthesis failed")
	ErrDispatch          = errors.New("core: task dispatch failed")
)

type VerificationReason string

const (
	VerificationMissingSignature  VerificationReason = "missing_signature"
	VerificationMissingSecret     VerificationReason = "missing_secret"
	VerificationSignatureMismatch VerificationReason = "signature_mismatch"
)

type VerificationError struct {
	Reason VerificationReason
	Cause  error
}

func NewVerificationError(reason VerificationReason, cause error) *VerificationError {
	return &VerificationError{Reason: reason, Cause: cause}
}

func (e *VerificationError) Error() string {
	if e == nil {
		return ErrVerification.Error()
	}
	message := e.sentinel().Error()
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *VerificationError) Unwrap() error {
	if e == nil {
		return ErrVerification
	}
	if e.Cause == nil {
		return errors.Join(ErrVerification, e.sentinel())
	}
	return errors.Join(ErrVerification, e.sentinel(), e.Cause)
}

func (e *VerificationError) sentinel() error {
	if e == nil {
		return ErrVerification
	}
	switch e.Reason {
	case VerificationMissingSignature:
		return ErrMissingSignature
	case VerificationMissingSecret:
		return ErrMissingSecret
	case VerificationSignatureMismatch:
		return ErrSignatureMismatch
	default:
		return ErrVerification
	}
}

// ToServiceError maps a missing secret to an internal error: it is a
// deployment defect, while missing or bad signatures are caller faults.
func (e *VerificationError) ToServiceError() *goerrors.Error {
	if e != nil && e.Reason == VerificationMissingSecret {
		return serviceError(e.Error(), goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodeMissingSecret, nil)
	}
	textCode := ErrorCodeSignatureMismatch
	if e != nil && e.Reason == VerificationMissingSignature {
		textCode = ErrorCodeMissingSignature
	}
	return serviceError(e.Error(), goerrors.CategoryAuth, http.StatusUnauthorized, textCode, map[string]any{
		"reason": string(e.reasonOrDefault()),
	})
}

func (e *VerificationError) reasonOrDefault() VerificationReason {
	if e == nil || e.Reason == "" {
		return VerificationSignatureMismatch
	}
	return e.Reason
}

type ClassificationError struct {
	Message string
	Cause   error
}

func NewClassificationError(message string, cause error) *ClassificationError {
	return &ClassificationError{Message: strings.TrimSpace(message), Cause: cause}
}

func (e *ClassificationError) Error() string {
	return joinMessage(ErrClassification, e.message(), e.cause())
}

func (e *ClassificationError) Unwrap() error {
	return joinSentinel(ErrClassification, e.cause())
}

func (e *ClassificationError) ToServiceError() *goerrors.Error {
	return serviceError(e.Error(), goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeClassification, nil)
}

func (e *ClassificationError) message() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ClassificationError) cause() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type StoreOp string

const (
	StoreOpRead  StoreOp = "read"
	StoreOpWrite StoreOp = "write"
)

type StoreError struct {
	Op    StoreOp
	Key   EventKey
	Cause error
}

func NewStoreError(op StoreOp, key EventKey, cause error) *StoreError {
	return &StoreError{Op: op, Key: key, Cause: cause}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ErrStore.Error()
	}
	return joinMessage(ErrStore, fmt.Sprintf("%s %q", e.Op, e.Key), e.Cause)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return ErrStore
	}
	return joinSentinel(ErrStore, e.Cause)
}

func (e *StoreError) ToServiceError() *goerrors.Error {
	textCode := ErrorCodeStoreRead
	if e != nil && e.Op == StoreOpWrite {
		textCode = ErrorCodeStoreWrite
	}
	metadata := map[string]any{}
	if e != nil {
		metadata["op"] = string(e.Op)
		metadata["event_key"] = e.Key.String()
	}
	return serviceError(e.Error(), goerrors.CategoryOperation, http.StatusServiceUnavailable, textCode, metadata)
}

type SynthesisError struct {
	Message string
	Cause   error
}

func NewSynthesisError(message string, cause error) *SynthesisError {
	return &SynthesisError{Message: strings.TrimSpace(message), Cause: cause}
}

func (e *SynthesisError) Error() string {
	if e == nil {
		return ErrSynthesis.Error()
	}
	return joinMessage(ErrSynthesis, e.Message, e.Cause)
}

func (e *SynthesisError) Unwrap() error {
	if e == nil {
		return ErrSynthesis
	}
	return joinSentinel(ErrSynthesis, e.Cause)
}

func (e *SynthesisError) ToServiceError() *goerrors.Error {
	return serviceError(e.Error(), goerrors.CategoryExternal, http.StatusBadGateway, ErrorCodeSynthesis, nil)
}

// DispatchError carries the task service response for operator diagnosis.
// StatusCode is zero when the request never got a response.
type DispatchError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return ErrDispatch.Error()
	}
	detail := ""
	if e.StatusCode > 0 {
		detail = fmt.Sprintf("status %d", e.StatusCode)
		if body := strings.TrimSpace(e.Body); body != "" {
			detail += ": " + body
		}
	}
	return joinMessage(ErrDispatch, detail, e.Cause)
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return ErrDispatch
	}
	return joinSentinel(ErrDispatch, e.Cause)
}

func (e *DispatchError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{}
	if e != nil {
		metadata["status_code"] = e.StatusCode
		metadata["body"] = e.Body
	}
	category := goerrors.CategoryExternal
	if e != nil && e.StatusCode == http.StatusTooManyRequests {
		category = goerrors.CategoryRateLimit
	}
	return serviceError(e.Error(), category, http.StatusBadGateway, ErrorCodeDispatch, metadata)
}

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

// ToServiceError converts any pipeline error into the go-errors envelope.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		return converter.ToServiceError()
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

// BadInputError builds the envelope used for malformed caller input.
func BadInputError(message string, metadata map[string]any) *goerrors.Error {
	return serviceError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorCodeBadInput, metadata)
}

func InternalError(message string, metadata map[string]any) *goerrors.Error {
	return serviceError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorCodeInternal, metadata)
}

func serviceError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = textCodeForCategory(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func textCodeForCategory(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryExternal:
		return ErrorCodeExternalFailure
	default:
		return ErrorCodeInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func joinMessage(sentinel error, detail string, cause error) string {
	message := sentinel.Error()
	if detail = strings.TrimSpace(detail); detail != "" {
		message += ": " + detail
	}
	if cause != nil {
		message += ": " + cause.Error()
	}
	return message
}

func joinSentinel(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}
