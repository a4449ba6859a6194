package bot

import (
	"errors"
	"strings"
	"unicode"
)

var errUnbalancedQuote = errors.New("unbalanced quote")

// splitArgs splits a command line the way a POSIX shell splits words:
// whitespace separates, quotes group, backslash escapes outside single quotes
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnbalancedQuote
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
