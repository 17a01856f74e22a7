package models

import "strings"

// abilityKeywords maps each ability to the case-insensitive substrings that
// imply it when they appear in a tool's name, description, or pricing text.
var abilityKeywords = map[Ability][]string{
	AbilityText:       {"text", "writ", "copy", "essay", "chat", "summar", "translat", "blog", "article"},
	AbilityImage:      {"image", "photo", "picture", "art", "draw", "logo", "illustrat", "design", "upscal", "avatar"},
	AbilityVideo:      {"video", "animation", "clip", "film", "motion", "subtitle"},
	AbilityAudio:      {"audio", "voice", "music", "speech", "sound", "podcast", "tts", "transcri"},
	AbilityCode:       {"code", "coding", "program", "developer", "debug", "sql", "api generat", "autocomplete"},
	AbilityAutomation: {"automat", "workflow", "agent", "bot", "integrat", "no-code", "zapier"},
	AbilityLearning:   {"learn", "course", "tutor", "study", "education", "flashcard", "quiz"},
}

// pricing keyword sets for deriving boolean flags from free-form pricing text.
var (
	freeKeywords  = []string{"free", "gratis", "no cost"}
	trialKeywords = []string{"trial", "demo", "freemium", "7 day", "14 day"}
	paidKeywords  = []string{"paid", "premium", "subscription", "/mo", "per month", "$", "€", "pricing plan"}
)

// InferAbilities scans the combined text for ability keywords and returns the
// matched abilities in canonical order.
func InferAbilities(text string) []Ability {
	lowered := strings.ToLower(text)
	var out []Ability
	for _, ability := range AllAbilities {
		for _, kw := range abilityKeywords[ability] {
			if strings.Contains(lowered, kw) {
				out = append(out, ability)
				break
			}
		}
	}
	return out
}

// InferPricingFlags derives (isFree, hasTrial, isPaid) from pricing text.
func InferPricingFlags(text string) (isFree, hasTrial, isPaid bool) {
	lowered := strings.ToLower(text)
	for _, kw := range freeKeywords {
		if strings.Contains(lowered, kw) {
			isFree = true
			break
		}
	}
	for _, kw := range trialKeywords {
		if strings.Contains(lowered, kw) {
			hasTrial = true
			break
		}
	}
	for _, kw := range paidKeywords {
		if strings.Contains(lowered, kw) {
			isPaid = true
			break
		}
	}
	return isFree, hasTrial, isPaid
}
