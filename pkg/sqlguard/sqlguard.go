// Package sqlguard is the safety gate between SQL generation and execution.
// It restricts statements to a single read-only SELECT (or a WITH that
// resolves to a SELECT) using keyword and pattern scanning. It deliberately
// does not parse SQL: false rejections are acceptable, false acceptances
// are not.
package sqlguard

import (
	"regexp"
	"strconv"
	"strings"
)

// Reason classifies why a statement was rejected.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonForbiddenStatement Reason = "forbidden_statement_type"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonInjectionPattern   Reason = "injection_pattern"
	ReasonUnparseable        Reason = "unparseable"
)

// Verdict is the result of validating a candidate statement.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Detail   string // human-readable detail, fed back into the retry prompt
	Cleaned  string // fence-stripped, whitespace-normalized statement (set when accepted)
}

// deniedKeywords are statement types and escape hatches that must never
// appear anywhere in a candidate, including inside sub-selects.
var deniedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "EXECUTE", "EXEC", "CALL", "REPLACE",
}

// adminFunctions are server-side functions usable to break out of a
// read-only context or to burn server resources.
var adminFunctions = []string{
	"pg_sleep", "pg_read_file", "pg_read_binary_file", "pg_ls_dir",
	"pg_terminate_backend", "pg_cancel_backend", "pg_reload_conf",
	"lo_import", "lo_export", "dblink",
}

var (
	denyRe      []*regexp.Regexp
	adminFnRe   []*regexp.Regexp
	injectionRe = []*regexp.Regexp{
		regexp.MustCompile(`;\s*--`),            // comment placed to truncate after a separator
		regexp.MustCompile(`--[^\n]*;`),         // separator hidden inside a line comment
		regexp.MustCompile(`(?s)/\*.*\*/\s*;`),  // separator right after a block comment
		regexp.MustCompile(`(?s);\s*/\*.*\*/`),  // comment placed right after a separator
	}
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	fenceOpenRe    = regexp.MustCompile("(?i)```(?:sql)?")
	limitRe        = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

func init() {
	for _, kw := range deniedKeywords {
		denyRe = append(denyRe, regexp.MustCompile(`\b`+kw+`\b`))
	}
	for _, fn := range adminFunctions {
		adminFnRe = append(adminFnRe, regexp.MustCompile(`(?i)\b`+fn+`\s*\(`))
	}
}

// Validate checks a raw candidate statement and returns a verdict.
// It is pure: identical input always yields an identical verdict.
func Validate(sql string) Verdict {
	cleaned := Clean(sql)
	if cleaned == "" {
		return reject(ReasonUnparseable, "empty statement")
	}

	// Injection scan runs against the raw cleaned text, before comments are
	// stripped, so comment-truncation tricks are still visible.
	for _, re := range injectionRe {
		if re.MatchString(cleaned) {
			return reject(ReasonInjectionPattern, "comment/separator sequence usable to smuggle a second statement")
		}
	}
	for _, re := range adminFnRe {
		if re.MatchString(cleaned) {
			return reject(ReasonInjectionPattern, "call to administrative function "+strings.TrimSuffix(re.FindString(cleaned), "("))
		}
	}

	stripped := strings.TrimSpace(stripComments(cleaned))
	if stripped == "" {
		return reject(ReasonUnparseable, "statement contains only comments")
	}
	upper := strings.ToUpper(stripped)

	for i, re := range denyRe {
		if re.MatchString(upper) {
			return reject(ReasonForbiddenStatement, "forbidden keyword "+deniedKeywords[i])
		}
	}

	leading := leadingKeyword(upper)
	if leading != "SELECT" && leading != "WITH" {
		if !strings.Contains(upper, "SELECT") {
			return reject(ReasonUnparseable, "no SELECT statement found")
		}
		return reject(ReasonForbiddenStatement, "statement must start with SELECT or WITH, got "+leading)
	}
	if leading == "WITH" && !strings.Contains(upper, "SELECT") {
		return reject(ReasonForbiddenStatement, "WITH clause does not resolve to a SELECT")
	}

	if pos, ok := interiorSeparator(stripped); ok {
		return reject(ReasonMultipleStatements, "statement separator at offset "+strconv.Itoa(pos))
	}

	return Verdict{Accepted: true, Cleaned: cleaned}
}

// Clean strips markdown fences and normalizes whitespace. The cleaned text
// is what gets executed, so cleaning must be deterministic.
func Clean(sql string) string {
	sql = fenceOpenRe.ReplaceAllString(sql, "")
	return strings.Join(strings.Fields(sql), " ")
}

// EnsureLimit appends a LIMIT clause when the statement has none.
// Called by the controller after the verdict, never before.
func EnsureLimit(sql string, n int) string {
	if limitRe.MatchString(sql) {
		return sql
	}
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	return sql + " LIMIT " + strconv.Itoa(n)
}

func reject(reason Reason, detail string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Detail: detail}
}

func stripComments(sql string) string {
	sql = lineCommentRe.ReplaceAllString(sql, "")
	return blockCommentRe.ReplaceAllString(sql, "")
}

func leadingKeyword(upper string) string {
	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == ';'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// interiorSeparator reports the first ';' outside string literals and
// quoted identifiers that is followed by more statement text. A single
// trailing semicolon is allowed.
func interiorSeparator(sql string) (int, bool) {
	inSingle, inDouble := false, false
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\'':
			if inDouble {
				continue
			}
			// '' inside a literal is an escaped quote, not a terminator.
			if inSingle && i+1 < len(runes) && runes[i+1] == '\'' {
				i++
				continue
			}
			inSingle = !inSingle
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if inSingle || inDouble {
				continue
			}
			if strings.TrimSpace(string(runes[i+1:])) != "" {
				return i, true
			}
		}
	}
	return 0, false
}

