package apperror

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindSecurity
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindRateLimit
	KindDatabase
	KindExternalService
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSecurity:
		return "security"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindDatabase:
		return "database"
	case KindExternalService:
		return "external_service"
	default:
		return "internal"
	}
}

// Status is the HTTP status the kind maps to.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindSecurity, KindAuthorization:
		return http.StatusForbidden
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable code sent to clients.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindSecurity:
		return "SECURITY_ERROR"
	case KindAuthentication:
		return "AUTHENTICATION_ERROR"
	case KindAuthorization:
		return "AUTHORIZATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	case KindDatabase:
		return "DATABASE_ERROR"
	case KindExternalService:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// ClientMessage is the generic text clients see. It never carries detail.
func (k Kind) ClientMessage() string {
	switch k {
	case KindValidation:
		return "Invalid request data"
	case KindSecurity, KindAuthorization:
		return "Access denied"
	case KindAuthentication:
		return "Authentication required"
	case KindNotFound:
		return "Resource not found"
	case KindRateLimit:
		return "Too many requests"
	case KindDatabase:
		return "A database error occurred"
	case KindExternalService:
		return "Service temporarily unavailable"
	default:
		return "An unexpected error occurred"
	}
}

func (k Kind) Severity() Severity {
	switch k {
	case KindDatabase, KindInternal:
		return SeverityHigh
	case KindSecurity, KindExternalService:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Error is the tagged error every layer returns toward the HTTP boundary.
type Error struct {
	Kind Kind
	// Message is internal detail for logs only.
	Message string
	Err     error
	// Fields holds per-field validation issues (json name -> rule); safe to expose.
	Fields map[string]string
	// RetryAfter is the client hint in seconds for rate-limit errors.
	RetryAfter int
	// Unavailable marks database errors caused by a missing connection.
	Unavailable bool
	// PublicMessage replaces the kind's generic client message when set.
	PublicMessage string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int {
	if e.Kind == KindDatabase && e.Unavailable {
		return http.StatusServiceUnavailable
	}
	return e.Kind.Status()
}

func (e *Error) Severity() Severity {
	if e.Kind == KindDatabase && e.Unavailable {
		return SeverityCritical
	}
	return e.Kind.Severity()
}

func (e *Error) ClientMessage() string {
	if e.PublicMessage != "" {
		return e.PublicMessage
	}
	return e.Kind.ClientMessage()
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "request validation failed", Fields: fields}
}

func RateLimited(message string, retryAfter int) *Error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Classify maps any error into the taxonomy. Already tagged errors are
// returned unchanged; database driver errors are special-cased.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(KindNotFound, err, "record not found")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Wrap(KindDatabase, err, "unique constraint violation")
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return Wrap(KindDatabase, err, "foreign key violation")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return Wrap(KindDatabase, err, "unique constraint violation")
		case pgErr.Code == "23503":
			return Wrap(KindDatabase, err, "foreign key violation")
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "53300":
			e := Wrap(KindDatabase, err, "database connection unavailable")
			e.Unavailable = true
			return e
		default:
			return Wrap(KindDatabase, err, "database error "+pgErr.Code)
		}
	}

	// context.DeadlineExceeded satisfies net.Error, so it is matched first.
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindExternalService, err, "upstream deadline exceeded")
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		e := Wrap(KindDatabase, err, "database connection unavailable")
		e.Unavailable = true
		return e
	}

	return Wrap(KindInternal, err, "unclassified error")
}
