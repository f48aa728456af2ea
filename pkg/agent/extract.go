package agent

import (
	"regexp"
	"strings"
)

var statementStartRe = regexp.MustCompile(`(?im)^\s*\(?(SELECT|WITH|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|TRUNCATE|GRANT|REVOKE)\b`)

// ExtractSQL locates a single SQL statement inside a model completion,
// handling code-fenced blocks, leading prose, and trailing commentary.
// It returns "" when no statement can be found; it does not judge safety,
// that is sqlguard's job. Write statements are extracted like any other
// so the validator sees them and records the rejection.
func ExtractSQL(completion string) string {
	completion = strings.TrimSpace(completion)
	if completion == "" {
		return ""
	}

	// Fenced ```sql block wins.
	if start := strings.Index(completion, "```sql"); start != -1 {
		start += len("```sql")
		if end := strings.Index(completion[start:], "```"); end != -1 {
			return strings.TrimSpace(completion[start : start+end])
		}
	}

	// Generic fence, if the content looks like SQL.
	if start := strings.Index(completion, "```"); start != -1 {
		start += len("```")
		if end := strings.Index(completion[start:], "```"); end != -1 {
			content := strings.TrimSpace(completion[start : start+end])
			if looksLikeStatement(content) {
				return content
			}
		}
	}

	// Bare statement, possibly with trailing prose after the semicolon.
	if looksLikeStatement(completion) {
		return trimAfterStatement(completion)
	}

	// Leading prose before the statement.
	if loc := statementStartRe.FindStringIndex(completion); loc != nil {
		return trimAfterStatement(strings.TrimSpace(completion[loc[0]:]))
	}

	return ""
}

var statementKeywords = []string{
	"SELECT", "WITH", "INSERT", "UPDATE", "DELETE",
	"CREATE", "ALTER", "DROP", "TRUNCATE", "GRANT", "REVOKE",
}

// looksLikeStatement checks whether text starts with any SQL statement
// keyword, including write statements.
func looksLikeStatement(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	upper = strings.TrimLeft(upper, "(")
	for _, kw := range statementKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// trimAfterStatement cuts trailing commentary after the first semicolon.
// If what follows the semicolon is itself a statement, the text is kept
// whole so the validator sees the stacked query and rejects it; only
// prose is trimmed here.
func trimAfterStatement(text string) string {
	inSingle, inDouble := false, false
	for i, r := range text {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if inSingle || inDouble {
				continue
			}
			rest := strings.TrimSpace(text[i+1:])
			if rest != "" && looksLikeStatement(rest) {
				return strings.TrimSpace(text)
			}
			return strings.TrimSpace(text[:i+1])
		}
	}
	return strings.TrimSpace(text)
}
