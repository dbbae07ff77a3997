package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the JSON value kind a caller expects.
type Kind int

const (
	KindObject Kind = iota
	KindArray
)

func (k Kind) String() string {
	if k == KindArray {
		return "array"
	}
	return "object"
}

// PayloadStatus tags the outcome of Normalize.
type PayloadStatus int

const (
	PayloadEmpty PayloadStatus = iota
	PayloadOK
)

// Payload is the tagged result of normalizing model output.
type Payload struct {
	Status PayloadStatus
	Raw    json.RawMessage
	// Shape records which accepted shape matched: "root" or "key:<name>".
	Shape string
}

// OK reports whether a value of the expected kind was found.
func (p Payload) OK() bool { return p.Status == PayloadOK }

// Decode unmarshals the payload into v. An empty payload is an error.
func (p Payload) Decode(v any) error {
	if !p.OK() {
		return fmt.Errorf("llm: empty payload")
	}
	return json.Unmarshal(p.Raw, v)
}

// Normalize finds a JSON value of the wanted kind in model output.
//
// Accepted shapes, in order:
//  1. the root is an object and one of keys holds a value of the wanted kind
//  2. the root itself is of the wanted kind
//
// The root is the whole text, or failing that each top-level JSON value
// embedded in prose or markdown fences, tried in order. Invalid JSON yields
// an empty payload.
func Normalize(text string, want Kind, keys ...string) Payload {
	for _, root := range jsonCandidates(text) {
		if p := match(root, want, keys); p.OK() {
			return p
		}
	}
	return Payload{}
}

func match(root json.RawMessage, want Kind, keys []string) Payload {
	if kindOf(root) == KindObject && len(keys) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(root, &fields); err == nil {
			for _, key := range keys {
				inner, found := fields[key]
				if !found || isNull(inner) {
					continue
				}
				if kindOf(inner) == want {
					return Payload{Status: PayloadOK, Raw: inner, Shape: "key:" + key}
				}
			}
		}
	}

	if kindOf(root) == want {
		return Payload{Status: PayloadOK, Raw: root, Shape: "root"}
	}
	return Payload{}
}

// ExtractJSON returns the first valid JSON object or array in text.
func ExtractJSON(text string) (json.RawMessage, bool) {
	candidates := jsonCandidates(text)
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[0], true
}

// jsonCandidates returns the top-level JSON objects and arrays in text, in
// the order they appear. A whole-text container is the only candidate.
func jsonCandidates(text string) []json.RawMessage {
	s := stripFences(strings.TrimSpace(text))
	if s == "" {
		return nil
	}
	if isContainer(s) && json.Valid([]byte(s)) {
		return []json.RawMessage{json.RawMessage(s)}
	}

	var out []json.RawMessage
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		out = append(out, raw)
		i += int(dec.InputOffset()) - 1
	}
	return out
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isContainer(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func kindOf(raw json.RawMessage) Kind {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return KindArray
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return KindObject
	}
	return -1
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
