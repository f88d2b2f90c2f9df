package processor

import (
	"regexp"
	"strings"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
)

var (
	readOnlyHeadPattern = regexp.MustCompile(`(?i)^(select|with)\b`)
	headKeywordPattern  = regexp.MustCompile(`^[A-Za-z_]+`)
)

// SafetyChecker admits only statements whose head keyword is SELECT or WITH.
// It is a syntactic check, not a parser; the store handle is opened read-only
// as the second line.
type SafetyChecker struct{}

// NewSafetyChecker creates a new safety checker
func NewSafetyChecker() *SafetyChecker {
	return &SafetyChecker{}
}

// NormalizeSQL trims whitespace and any trailing statement terminators
func NormalizeSQL(candidate string) string {
	s := strings.TrimSpace(candidate)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// HeadKeyword returns the upper-cased first token of a statement
func HeadKeyword(candidate string) string {
	return strings.ToUpper(headKeywordPattern.FindString(NormalizeSQL(candidate)))
}

// ValidateQuery returns the normalized statement when it is read-only. The
// returned text is exactly what gets executed.
func (sc *SafetyChecker) ValidateQuery(candidate string) (string, error) {
	sql := NormalizeSQL(candidate)
	if !readOnlyHeadPattern.MatchString(sql) {
		return "", errors.NewNotReadOnlyError(candidate).
			WithMetadata("head_keyword", HeadKeyword(sql))
	}

	return sql, nil
}
