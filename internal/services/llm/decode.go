package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const snippetRunes = 160

// DecodeLLMJSON unmarshals a model reply into target. The reply may be
// wrapped in a code fence or surrounded by prose; the first balanced JSON
// object or array is used in that case.
func DecodeLLMJSON(content string, target any) error {
	body := StripCodeFence(content)
	if body == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(body), target)
	if err == nil {
		return nil
	}
	embedded, ok := firstJSONValue(body)
	if !ok || embedded == body {
		return fmt.Errorf("%w (payload: %s)", err, snippet(body))
	}
	if err := json.Unmarshal([]byte(embedded), target); err != nil {
		return fmt.Errorf("%w (embedded payload: %s)", err, snippet(embedded))
	}
	return nil
}

// StripCodeFence removes a surrounding ```json or bare ``` fence. Content
// without a leading fence is returned trimmed.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// firstJSONValue returns the first brace- or bracket-balanced span of s,
// skipping delimiters inside string literals.
func firstJSONValue(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// snippet collapses whitespace and caps content for error messages.
func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetRunes {
		return string(runes[:snippetRunes]) + "..."
	}
	return clean
}
