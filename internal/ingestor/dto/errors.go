package dto

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies a failed retrieval.
type FetchErrorKind string

const (
	FetchTimeout      FetchErrorKind = "TIMEOUT"
	FetchBlocked      FetchErrorKind = "BLOCKED"
	FetchHTTPError    FetchErrorKind = "HTTP_ERROR"
	FetchNetworkError FetchErrorKind = "NETWORK_ERROR"
	FetchCooldown     FetchErrorKind = "COOLDOWN"
)

// FetchError is returned by source fetchers.
type FetchError struct {
	Kind       FetchErrorKind
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s (%s): %s", e.Source, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf returns the kind of a FetchError in err's chain, or "".
func FetchErrorKindOf(err error) FetchErrorKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ""
}

// IsCooldown reports whether err is a fast-fail caused by an open breaker.
func IsCooldown(err error) bool {
	return FetchErrorKindOf(err) == FetchCooldown
}
