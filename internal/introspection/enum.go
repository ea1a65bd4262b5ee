package introspection

import (
	"fmt"
	"strings"
)

// parseEnumValues reads the choice list out of an enum COLUMN_TYPE such as
// enum('open','on_hold').
func parseEnumValues(columnType string) ([]string, error) {
	return parseQuotedList(columnType, "enum")
}

func parseSetValues(columnType string) ([]string, error) {
	return parseQuotedList(columnType, "set")
}

func parseQuotedList(columnType, keyword string) ([]string, error) {
	body := strings.TrimSpace(columnType)
	open := strings.IndexByte(body, '(')
	if open < 0 || !strings.EqualFold(strings.TrimSpace(body[:open]), keyword) || !strings.HasSuffix(body, ")") {
		return nil, fmt.Errorf("invalid %s definition %q", keyword, columnType)
	}

	sc := listScanner{src: body[open+1 : len(body)-1]}
	var values []string
	for {
		sc.skip(" ,")
		if sc.done() {
			break
		}
		v, err := sc.quoted()
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", keyword, columnType, err)
		}
		values = append(values, v)
		sc.skip(" ")
		if !sc.done() && !sc.consume(',') {
			return nil, fmt.Errorf("%s %q: expected comma at position %d", keyword, columnType, sc.pos)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no %s values in %q", keyword, columnType)
	}
	return values, nil
}

// listScanner walks a comma separated list of single-quoted SQL literals.
type listScanner struct {
	src string
	pos int
}

func (s *listScanner) done() bool { return s.pos >= len(s.src) }

func (s *listScanner) skip(chars string) {
	for !s.done() && strings.IndexByte(chars, s.src[s.pos]) >= 0 {
		s.pos++
	}
}

func (s *listScanner) consume(ch byte) bool {
	if !s.done() && s.src[s.pos] == ch {
		s.pos++
		return true
	}
	return false
}

// quoted reads one literal. Backslash escapes and doubled quotes are unfolded.
func (s *listScanner) quoted() (string, error) {
	if !s.consume('\'') {
		return "", fmt.Errorf("expected quote at position %d", s.pos)
	}
	var sb strings.Builder
	for !s.done() {
		ch := s.src[s.pos]
		switch {
		case ch == '\\':
			if s.pos+1 >= len(s.src) {
				return "", fmt.Errorf("unterminated escape")
			}
			sb.WriteByte(s.src[s.pos+1])
			s.pos += 2
		case ch == '\'' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '\'':
			sb.WriteByte('\'')
			s.pos += 2
		case ch == '\'':
			s.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(ch)
			s.pos++
		}
	}
	return sb.String(), nil
}
