// Package policy provides the pure string predicates and transforms used by
// the chat pipeline: prompt-injection and harmful-intent classification,
// output redaction, leak detection, and conversation sanitization.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Compiled once per process. The predicates are blunt: they gate a public
// chat endpoint, and a false positive only produces a canned refusal.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\b.{0,40}\b(previous|prior|above|all|any|your)\b.{0,40}\b(instructions?|prompts?|rules?|polic(y|ies))\b`),
	regexp.MustCompile(`(?i)\b(reveal|show|print|dump|expose|display|leak|repeat)\b.{0,40}\b(system|developer|hidden|internal)\b.{0,20}\b(prompt|message|instructions?|polic(y|ies))\b`),
	regexp.MustCompile(`(?i)\b(api[ _-]?keys?|access tokens?|secrets?|passwords?|credentials?|private keys?)\b`),
	regexp.MustCompile(`(?i)\b(OPENROUTER|NEON|JULEHA|DATABASE)_[A-Z0-9_]+`),
	regexp.MustCompile(`(?i)\byou are now\b.{0,20}\b(system|root|admin|developer)\b`),
	regexp.MustCompile(`(?i)\bbegin system\b`),
}

var harmPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(malware|ransomware|trojan|keylogger|spyware|computer virus)\b`),
	regexp.MustCompile(`(?i)\b(write|build|create|make|develop)\b.{0,30}\b(exploit|virus|worm)\b`),
	regexp.MustCompile(`(?i)\b(sql injection|sqli payload|xss payload|privilege escalation|ddos)\b`),
	regexp.MustCompile(`(?i)\b(phishing|credential theft|steal (passwords|credentials|cookies))\b`),
	regexp.MustCompile(`(?i)\b(build|make|construct)\b.{0,30}\b(bomb|explosive|weapon)\b`),
	regexp.MustCompile(`(?i)\b(self[- ]harm|suicide|kill myself|hurt myself)\b`),
}

// IsPromptInjection reports whether the text matches any injection pattern.
func IsPromptInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsHarmfulIntent reports whether the text matches any harmful-intent pattern.
func IsHarmfulIntent(text string) bool {
	for _, p := range harmPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// leak block patterns checked against redacted assistant output.
var leakLiterals = []string{"system prompt", "developer message", "begin system"}

// ContainsPromptLeak reports whether assistant output discloses the server
// prompt: a block literal, the prompt's SHA-256 hex, or the prompt itself.
func ContainsPromptLeak(output, serverPrompt string) bool {
	lowered := strings.ToLower(output)
	for _, literal := range leakLiterals {
		if strings.Contains(lowered, literal) {
			return true
		}
	}
	if serverPrompt == "" {
		return false
	}
	sum := sha256.Sum256([]byte(serverPrompt))
	if strings.Contains(lowered, hex.EncodeToString(sum[:])) {
		return true
	}
	return strings.Contains(lowered, strings.ToLower(serverPrompt))
}
