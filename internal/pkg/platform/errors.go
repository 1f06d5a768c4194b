package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind классифицирует ошибку платформы.
type Kind int

const (
	KindFatal Kind = iota
	KindNotFound
	KindForbidden
	KindRateLimited
	KindInvalidReference
	KindTransient
	KindConfigurationMissing
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidReference:
		return "invalid_reference"
	case KindTransient:
		return "transient"
	case KindConfigurationMissing:
		return "configuration_missing"
	default:
		return "fatal"
	}
}

type Error struct {
	Kind       Kind
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrInvalidReference     = &Error{Kind: KindInvalidReference}
	ErrTransient            = &Error{Kind: KindTransient}
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrFatal                = &Error{Kind: KindFatal}

	ErrUnsupported = errors.New("operation not supported by transport")
)

func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func RateLimited(op string, after time.Duration, err error) error {
	return &Error{Kind: KindRateLimited, Op: op, RetryAfter: after, Err: err}
}

// KindOf возвращает вид ошибки; неклассифицированные ошибки считаются фатальными,
// сетевые и таймауты - временными.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if IsTransportFailure(err) {
		return KindTransient
	}
	return KindFatal
}

func RetryAfterOf(err error) (time.Duration, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindRateLimited && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}
	return 0, false
}

func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
