package transfer

import (
	"errors"
	"fmt"
	"time"

	"media_relay_bot/internal/pkg/platform"
)

type OutcomeKind string

const (
	OutcomeSent             OutcomeKind = "sent"
	OutcomeUploaded         OutcomeKind = "uploaded"
	OutcomeSkippedNotFound  OutcomeKind = "skipped_not_found"
	OutcomeSkippedForbidden OutcomeKind = "skipped_forbidden"
	OutcomeRateLimited      OutcomeKind = "rate_limited"
	OutcomeFailed           OutcomeKind = "failed"
)

// Outcome - результат одной попытки передачи.
type Outcome struct {
	Kind       OutcomeKind
	RetryAfter time.Duration
	Err        error
	Note       string
}

func (o Outcome) Success() bool {
	return o.Kind == OutcomeSent || o.Kind == OutcomeUploaded
}

// Aborts сообщает, что дальнейшие элементы пакета тоже не пройдут.
func (o Outcome) Aborts() bool {
	return o.Kind == OutcomeFailed && errors.Is(o.Err, platform.ErrConfigurationMissing)
}

func (o Outcome) StatusLine() string {
	switch o.Kind {
	case OutcomeSent:
		if o.Note != "" {
			return o.Note
		}
		return "sent"
	case OutcomeUploaded:
		if o.Note != "" {
			return o.Note
		}
		return "done"
	case OutcomeSkippedNotFound:
		return "not found/inaccessible"
	case OutcomeSkippedForbidden:
		return "no access to this chat"
	case OutcomeRateLimited:
		if o.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, retry in %s", o.RetryAfter.Round(time.Second))
		}
		return "rate limited"
	default:
		if o.Err != nil {
			return "failed: " + truncate(o.Err.Error(), 50)
		}
		return "failed"
	}
}

// Classify переводит ошибку разрешения или передачи в Outcome.
func Classify(err error) Outcome {
	switch platform.KindOf(err) {
	case platform.KindNotFound, platform.KindInvalidReference:
		return Outcome{Kind: OutcomeSkippedNotFound, Err: err}
	case platform.KindForbidden:
		return Outcome{Kind: OutcomeSkippedForbidden, Err: err}
	case platform.KindRateLimited:
		after, _ := platform.RetryAfterOf(err)
		return Outcome{Kind: OutcomeRateLimited, RetryAfter: after, Err: err}
	default:
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
