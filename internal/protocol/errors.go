package protocol

import "errors"

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrStale          = errors.New("stale update")
)

// Reason codes used for log lines and metric labels.
const (
	CodeMalformed      = "E_MALFORMED"
	CodeUnknownCommand = "E_UNKNOWN_COMMAND"
	CodeUnauthorized   = "E_UNAUTHORIZED"
	CodeNotFound       = "E_NOT_FOUND"
	CodeStale          = "E_STALE"
	CodeRateLimit      = "E_RATE_LIMIT"
	CodeInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	CodeMalformed:      {},
	CodeUnknownCommand: {},
	CodeUnauthorized:   {},
	CodeNotFound:       {},
	CodeStale:          {},
	CodeRateLimit:      {},
	CodeInternal:       {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Code maps an error onto its reason code. A nil error has no code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformed):
		return CodeMalformed
	case errors.Is(err, ErrUnknownCommand):
		return CodeUnknownCommand
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStale):
		return CodeStale
	default:
		return CodeInternal
	}
}
