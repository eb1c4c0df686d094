package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ParseResult is either a decoded value or the malformed raw text it came
// from. Call sites branch on Ok before using the value.
type ParseResult[T any] struct {
	value T
	raw   string
	err   error
}

// Ok returns the decoded value and true when parsing succeeded.
func (r ParseResult[T]) Ok() (T, bool) {
	return r.value, r.err == nil
}

// Malformed returns the raw response and true when parsing failed.
func (r ParseResult[T]) Malformed() (string, bool) {
	return r.raw, r.err != nil
}

// Err explains why parsing failed, or nil.
func (r ParseResult[T]) Err() error { return r.err }

var (
	errNoObject = errors.New("no JSON object in response")
	errNoArray  = errors.New("no JSON array in response")
)

// ParseObject decodes the text between the first '{' and the last '}' of
// raw, tolerating prose or code fences around it.
func ParseObject[T any](raw string) ParseResult[T] {
	return parseBetween[T](raw, '{', '}', errNoObject)
}

// ParseArray decodes the text between the first '[' and the last ']'.
func ParseArray[T any](raw string) ParseResult[T] {
	return parseBetween[T](raw, '[', ']', errNoArray)
}

func parseBetween[T any](raw string, open, close byte, missing error) ParseResult[T] {
	res := ParseResult[T]{raw: raw}
	s := StripCodeFences(raw)
	i := strings.IndexByte(s, open)
	j := strings.LastIndexByte(s, close)
	if i < 0 || j <= i {
		res.err = missing
		return res
	}
	if err := json.Unmarshal([]byte(s[i:j+1]), &res.value); err != nil {
		res.err = err
	}
	return res
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}
