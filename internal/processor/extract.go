package processor

import (
	"regexp"
	"strings"
)

var (
	fencedBlockPattern = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)```")
	statementPattern   = regexp.MustCompile(`(?i)\b(select|with)\b`)
)

// characters trimmed from both ends of an extracted statement
const sqlCutset = "`\"' \n\r\t;"

// ExtractSQL isolates the first statement-like substring of raw model output.
// It does not judge whether the statement is safe; see SafetyChecker.
func ExtractSQL(raw string) (string, bool) {
	text := raw
	if match := fencedBlockPattern.FindStringSubmatch(raw); len(match) > 1 {
		text = match[1]
	}

	if loc := statementPattern.FindStringIndex(text); loc != nil {
		return trimCandidate(text[loc[0]:])
	}

	// unstructured single-line output, e.g. "xselect ..."
	if idx := strings.Index(strings.ToLower(text), "select"); idx >= 0 {
		return trimCandidate(text[idx:])
	}

	return "", false
}

func trimCandidate(s string) (string, bool) {
	s = strings.Trim(s, sqlCutset)
	return s, s != ""
}
