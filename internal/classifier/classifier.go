// Package classifier turns raw upstream text into a terminal Job
// status and a safe, PII-minimized projection suitable for replaying
// to the requesting user. It never forwards raw upstream text.
package classifier

import (
	"regexp"
	"strings"
)

// SummaryMarker is the header the upstream prepends to a successful
// lookup's summary message.
const SummaryMarker = "📄 Краткая сводка"

// notFoundPhrases are case-insensitive substrings that, when found in
// the first reply (or the last collected message when there was no
// first reply), indicate the upstream found no match.
var notFoundPhrases = []string{
	"не найден",
	"ничего не найдено",
	"нет данных",
}

var limitPhrase = "лимит запросов"

var limitExhaustedPhrases = []string{"исчерпан", "временно исчерпан"}

var (
	fioLineRE    = regexp.MustCompile(`(?m)^ФИО:\s*(.+)$`)
	phoneLineRE  = regexp.MustCompile(`(?m)^Телефон:\s*(.+)$`)
	emailLineRE  = regexp.MustCompile(`(?m)^Email:\s*(.+)$`)
)

// Status is the terminal classification of a Job.
type Status string

const (
	StatusOK        Status = "OK"
	StatusNotFound  Status = "NOT_FOUND"
	StatusLimit     Status = "LIMIT"
	StatusForbidden Status = "FORBIDDEN"
	StatusFlood     Status = "FLOOD"
	StatusError     Status = "ERROR"
)

// MaskFunc redacts a phone or email value before it is placed in a
// safe projection. The default is identity, documented as such until
// a real masking policy is provided.
type MaskFunc func(string) string

// IdentityMask returns its input unchanged.
func IdentityMask(s string) string { return s }

// Result is the outcome of classifying an upstream exchange.
type Result struct {
	Status   Status
	FIO      string
	Phone    string
	Email    string
	SafeText string
}

// IsLimitExhausted reports whether text is the "request limit
// exhausted" message.
func IsLimitExhausted(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if !strings.Contains(t, limitPhrase) {
		return false
	}
	for _, p := range limitExhaustedPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether text signals an explicit "no match"
// response from the upstream.
func IsNotFound(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range notFoundPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// isSummary reports whether text carries the summary marker, either
// as a prefix or anywhere in the body.
func isSummary(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, SummaryMarker) || strings.Contains(t, SummaryMarker)
}

// Classify applies the classification order from first match wins:
// LIMIT, then OK (summary), then NOT_FOUND, else ERROR. collected is
// every message gathered during the collect phase, in arrival order;
// firstReply is the bot's first response to the initial command, used
// as the NOT_FOUND signal when the burst carries nothing else usable.
func Classify(firstReply string, collected []string, mask MaskFunc) Result {
	if mask == nil {
		mask = IdentityMask
	}

	for _, msg := range collected {
		if IsLimitExhausted(msg) {
			return Result{Status: StatusLimit, SafeText: "Лимит запросов исчерпан, попробуйте позже."}
		}
	}

	for _, msg := range collected {
		if isSummary(msg) {
			return classifySummary(msg, mask)
		}
	}

	notFoundCandidate := firstReply
	if notFoundCandidate == "" && len(collected) > 0 {
		notFoundCandidate = collected[len(collected)-1]
	}
	if IsNotFound(notFoundCandidate) {
		return Result{Status: StatusNotFound, SafeText: "По запросу ничего не найдено."}
	}

	return Result{Status: StatusError, SafeText: "Не удалось обработать ответ источника."}
}

func classifySummary(text string, mask MaskFunc) Result {
	var fio, phone, email string

	if m := fioLineRE.FindStringSubmatch(text); m != nil {
		fio = strings.TrimSpace(m[1])
	}
	if m := phoneLineRE.FindStringSubmatch(text); m != nil {
		phone = mask(strings.TrimSpace(m[1]))
	}
	if m := emailLineRE.FindStringSubmatch(text); m != nil {
		email = mask(strings.TrimSpace(m[1]))
	}

	lines := []string{SummaryMarker}
	if fio != "" {
		lines = append(lines, "ФИО: "+fio)
	}
	if phone != "" {
		lines = append(lines, "Телефон: "+phone)
	}
	if email != "" {
		lines = append(lines, "Email: "+email)
	}

	return Result{
		Status:   StatusOK,
		FIO:      fio,
		Phone:    phone,
		Email:    email,
		SafeText: strings.Join(lines, "\n"),
	}
}
