package shell

import "strings"

// Escape turns a raw argument into a single double-quoted token for the
// cmd.exe command line, following the MSVC argv rules:
//
//   - a run of backslashes followed by a double quote is doubled
//   - each double quote is preceded by a backslash
//   - a trailing run of backslashes is doubled so it cannot escape the
//     closing quote
//   - each percent sign is doubled
//
// The result always starts and ends with a double quote.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')

	for i := 0; i < len(s); {
		switch s[i] {
		case '\\':
			j := i
			for j < len(s) && s[j] == '\\' {
				j++
			}
			run := j - i
			// Backslashes are literal unless a quote follows; the closing
			// quote counts, so a trailing run is doubled too.
			if j == len(s) || s[j] == '"' {
				run *= 2
			}
			b.WriteString(strings.Repeat(`\`, run))
			i = j
		case '"':
			b.WriteString(`\"`)
			i++
		case '%':
			b.WriteString("%%")
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}

	b.WriteByte('"')
	return b.String()
}
