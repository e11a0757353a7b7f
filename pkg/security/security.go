package security

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// Limits on what reaches the job store.
const (
	MaxJobTypeLength      = 255
	MaxQueueNameLength    = 255
	MaxUniqueKeyLength    = 255
	MaxPayloadSize        = 1 << 20 // bytes of encoded payload
	MaxErrorMessageLength = 4096    // runes
	MaxAttempts           = 25
	MaxConcurrency        = 256
)

const redacted = "${1}[REDACTED]"

var (
	identifier = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.\-]*$`)

	// Provider errors sometimes echo the request.
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)((?:access_token|token|key|api_key)=)[^&\s"']+`),
	}
)

func checkIdentifier(s string, max int, invalid, tooLong error) error {
	switch {
	case s == "":
		return invalid
	case len(s) > max:
		return tooLong
	case !identifier.MatchString(s):
		return invalid
	}
	return nil
}

// ValidateJobType accepts tags that start with a letter and continue with
// letters, digits, '_', '-' or '.'.
func ValidateJobType(t core.JobType) error {
	return checkIdentifier(string(t), MaxJobTypeLength, core.ErrInvalidJobType, core.ErrJobTypeTooLong)
}

// ValidateQueueName applies the job type rules to queue names.
func ValidateQueueName(name string) error {
	return checkIdentifier(name, MaxQueueNameLength, core.ErrInvalidQueueName, core.ErrQueueNameTooLong)
}

// ValidatePayloadSize rejects encoded payloads over MaxPayloadSize.
func ValidatePayloadSize(args []byte) error {
	if len(args) > MaxPayloadSize {
		return core.ErrJobArgsTooLarge
	}
	return nil
}

// ValidateUniqueKey rejects coalescing keys over MaxUniqueKeyLength.
func ValidateUniqueKey(key string) error {
	if len(key) > MaxUniqueKeyLength {
		return core.ErrUniqueKeyTooLong
	}
	return nil
}

// SanitizeErrorMessage prepares an error for storage on a job or a sync
// status: control characters other than whitespace are dropped, echoed
// credentials are redacted and the result is cut to MaxErrorMessageLength.
func SanitizeErrorMessage(msg string) string {
	msg = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, msg)
	for _, re := range credentialPatterns {
		msg = re.ReplaceAllString(msg, redacted)
	}
	if utf8.RuneCountInString(msg) > MaxErrorMessageLength {
		msg = string([]rune(msg)[:MaxErrorMessageLength-3]) + "..."
	}
	return msg
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// ClampAttempts bounds an attempt ceiling to [1, MaxAttempts].
func ClampAttempts(n int) int { return clamp(n, 1, MaxAttempts) }

// ClampConcurrency bounds a worker count to [1, MaxConcurrency].
func ClampConcurrency(n int) int { return clamp(n, 1, MaxConcurrency) }

// ClampScore bounds a score or percentage to [0, 100].
func ClampScore(v int) int { return clamp(v, 0, 100) }
