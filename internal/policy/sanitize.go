package policy

import (
	"regexp"
	"strings"
)

// Conversation budget limits. Oversized history is trimmed newest-first so a
// long session cannot blow out the upstream context window.
const (
	maxMessageChars = 1800
	maxKeptMessages = 24
	maxTotalChars   = 10000
	maxUserMessages = 12
)

// Message is one sanitized conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var (
	systemBlockPattern   = regexp.MustCompile(`(?is)begin\s+system.*?end\s+system`)
	overrideIdiomPattern = regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all|any|the|previous|prior|above|your)\b[^.!?\n]*`)
	roleOverridePattern  = regexp.MustCompile(`(?i)\byou are now\s+(the\s+)?(system|root|admin|developer)\b[^.!?\n]*`)
)

// StripPromptOverrides neutralizes instruction-override idioms, inline
// BEGIN SYSTEM...END SYSTEM blocks, and role-override phrases, replacing each
// with a literal placeholder so the model sees that something was removed.
func StripPromptOverrides(text string) string {
	text = systemBlockPattern.ReplaceAllString(text, "[filtered-system-block]")
	text = overrideIdiomPattern.ReplaceAllString(text, "[filtered-instruction]")
	text = roleOverridePattern.ReplaceAllString(text, "[filtered-role]")
	return text
}

// SanitizeConversation normalizes an inbound conversation:
// roles trimmed and restricted to user/assistant, override idioms stripped,
// content trimmed and truncated to 1800 chars, empties dropped, only the
// last 24 messages kept, then a newest-to-oldest budget of 10,000 total chars
// and 12 user messages applied. Original ordering is preserved.
func SanitizeConversation(messages []Message) []Message {
	cleaned := make([]Message, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(StripPromptOverrides(m.Content))
		if content == "" {
			continue
		}
		if runes := []rune(content); len(runes) > maxMessageChars {
			content = string(runes[:maxMessageChars])
		}
		cleaned = append(cleaned, Message{Role: role, Content: content})
	}

	if len(cleaned) > maxKeptMessages {
		cleaned = cleaned[len(cleaned)-maxKeptMessages:]
	}

	// Walk newest to oldest, including messages while both budgets hold.
	total := 0
	users := 0
	start := len(cleaned)
	for i := len(cleaned) - 1; i >= 0; i-- {
		chars := len([]rune(cleaned[i].Content))
		if total+chars > maxTotalChars {
			break
		}
		if cleaned[i].Role == "user" && users+1 > maxUserMessages {
			break
		}
		total += chars
		if cleaned[i].Role == "user" {
			users++
		}
		start = i
	}

	return cleaned[start:]
}

// LatestUserText returns the content of the newest user message, or "".
func LatestUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// HasUserMessage reports whether any message carries the user role.
func HasUserMessage(messages []Message) bool {
	for _, m := range messages {
		if m.Role == "user" {
			return true
		}
	}
	return false
}
