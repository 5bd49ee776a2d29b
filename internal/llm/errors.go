package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for provider operations.
var (
	// ErrConfiguration indicates a provider that cannot be constructed, such as
	// a remote provider without credentials. Never retried.
	ErrConfiguration = errors.New("provider configuration error")

	// ErrInvalidInput indicates a request the provider must not receive,
	// such as an empty text to embed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFatalAPI indicates a provider rejection that retrying cannot fix
	// (credentials, billing, quota).
	ErrFatalAPI = errors.New("fatal API error")
)

// fatalPatterns are substrings of provider errors that will not go away on retry.
// Rate limiting is deliberately absent: it is the transient case.
var fatalPatterns = []string{
	"credit balance",
	"quota",
	"billing",
	"invalid api key",
	"incorrect api key",
	"api key not valid",
	"authentication",
	"unauthorized",
	"permission denied",
	"401",
	"403",
}

// isFatalAPIError reports whether err is a provider rejection that retrying
// cannot fix.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError marks fatal provider errors with ErrFatalAPI and returns
// other errors unchanged.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) || errors.Is(err, ErrFatalAPI) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
