package chat

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"chat-gateway/internal/i18n"
)

// Verdict is the classification of one request attempt: which user-facing
// class the failure belongs to and whether another attempt may help.
// Timeout and rate-limit failures are never retried; the resource may still
// be consumed server-side.
type Verdict struct {
	Class i18n.ErrorClass
	Retry bool
}

// ClassifyError maps a transport-level failure (no HTTP status available).
func ClassifyError(err error) Verdict {
	if errors.Is(err, context.DeadlineExceeded) {
		return Verdict{Class: i18n.ClassTimeout}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return Verdict{Class: i18n.ClassTimeout}
	}
	return Verdict{Class: i18n.ClassNetwork}
}

// ClassifyStatus maps a non-2xx HTTP status.
func ClassifyStatus(code int) Verdict {
	switch {
	case code == http.StatusTooManyRequests:
		return Verdict{Class: i18n.ClassRateLimit}
	case code == http.StatusGatewayTimeout:
		return Verdict{Class: i18n.ClassTimeout}
	case code >= 500:
		return Verdict{Class: i18n.ClassServerError, Retry: true}
	default:
		return Verdict{Class: i18n.ClassDefault, Retry: true}
	}
}

// ClassifyBody covers a 2xx reply whose body is not usable.
func ClassifyBody() Verdict {
	return Verdict{Class: i18n.ClassDefault, Retry: true}
}
