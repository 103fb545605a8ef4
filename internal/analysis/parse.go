package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	anyFence  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
)

// Parsed is the outcome of decoding a model response. When the response
// could be decoded, Structured reports true and Value holds it. Otherwise
// Raw holds the trimmed response text so it can still be persisted.
type Parsed[T any] struct {
	Value      T
	Raw        string
	structured bool
}

// Structured reports whether the response decoded into Value.
func (p Parsed[T]) Structured() bool { return p.structured }

// parse decodes a model response leniently: a fenced json block first, then
// any fenced block, then the whole text. It never fails; undecodable text is
// returned as a raw fallback.
func parse[T any](text string) Parsed[T] {
	text = strings.TrimSpace(text)

	for _, candidate := range candidates(text) {
		if candidate == "" || candidate == "null" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return Parsed[T]{Value: v, structured: true}
		}
	}
	return Parsed[T]{Raw: text}
}

func candidates(text string) []string {
	var out []string
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := anyFence.FindStringSubmatch(text); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return append(out, text)
}
