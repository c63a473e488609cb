package recovery

import (
	"encoding/json"
	"strings"
)

// balance closes an open string and any unmatched brackets. A dangling comma
// or key separator at the cut point is dropped first.
func balance(text string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !inString && len(stack) == 0 {
		return text
	}

	var b strings.Builder
	body := text
	if inString {
		if escaped {
			body = body[:len(body)-1]
		}
		b.WriteString(body)
		b.WriteByte('"')
	} else {
		body = strings.TrimRight(body, " \t\r\n")
		for strings.HasSuffix(body, ",") || strings.HasSuffix(body, ":") {
			if strings.HasSuffix(body, ":") {
				body += "null"
				break
			}
			body = strings.TrimRight(strings.TrimSuffix(body, ","), " \t\r\n")
		}
		b.WriteString(body)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// salvage scans text once and returns the records of the target array that
// closed before the input ended. A record still open at the end is dropped.
func salvage(text, key string) []json.RawMessage {
	var (
		stack       []byte
		inString    bool
		escaped     bool
		strStart    = -1
		lastString  string
		targetDepth = -1
		recordStart = -1
		records     []json.RawMessage
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				lastString = text[strStart+1 : i]
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			strStart = i
		case '{', '[':
			stack = append(stack, c)
			depth := len(stack)
			switch {
			case targetDepth < 0 && c == '[' && isTargetArray(stack, lastString, key) &&
				(key != "" || len(stack) == 1 || holdsRecords(text[i+1:])):
				targetDepth = depth
			case targetDepth > 0 && depth == targetDepth+1 && recordStart < 0:
				recordStart = i
			}
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			depth := len(stack)
			stack = stack[:depth-1]
			if targetDepth < 0 {
				continue
			}
			if depth == targetDepth+1 && recordStart >= 0 {
				candidate := text[recordStart : i+1]
				if json.Valid([]byte(candidate)) {
					records = append(records, json.RawMessage(candidate))
				}
				recordStart = -1
			} else if depth == targetDepth {
				return records
			}
		}
	}
	return records
}

func isTargetArray(stack []byte, lastString, key string) bool {
	switch len(stack) {
	case 1:
		return true
	case 2:
		return stack[0] == '{' && (key == "" || lastString == key)
	default:
		return false
	}
}
