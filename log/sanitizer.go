package log

import "strings"

// controlCharReplacer escapes control characters that can be used for log
// injection (CWE-117). Newlines, carriage returns, and tabs in attacker
// influenced values can forge fake log entries or mislead incident response.
var controlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Sanitize escapes control characters in a single string value so it can be
// logged safely.
func Sanitize(s string) string {
	return controlCharReplacer.Replace(s)
}
