package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sena168/aicenghub/internal/models"
)

func parse(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad test JSON: %v", err)
	}
	return m
}

func TestNormalizeItemsPools(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"items pool", `{"items":[{"url":"https://a.example","name":"A"}]}`},
		{"results pool", `{"results":[{"url":"https://a.example","name":"A"}]}`},
		{"nested data.items", `{"data":{"items":[{"url":"https://a.example","name":"A"}]}}`},
		{"single item", `{"item":{"url":"https://a.example","name":"A"}}`},
		{"root object", `{"url":"https://a.example","name":"A"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := NormalizeItems(parse(t, tt.raw), 10)
			if len(items) != 1 {
				t.Fatalf("items = %d, want 1", len(items))
			}
			if items[0].CanonicalURL != "https://a.example" {
				t.Errorf("CanonicalURL = %q", items[0].CanonicalURL)
			}
		})
	}
}

func TestNormalizeItemsDropsURLlessAndDupes(t *testing.T) {
	raw := `{"items":[
		{"name":"no url"},
		{"url":"https://a.example/","name":"A"},
		{"canonicalUrl":"https://a.example","name":"A again"},
		{"url":"ftp://b.example","name":"bad scheme"}
	]}`
	items := NormalizeItems(parse(t, raw), 10)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (deduped, dropped)", len(items))
	}
}

func TestNormalizeItemsTruncation(t *testing.T) {
	long := strings.Repeat("d", 2000)
	raw := `{"items":[{"url":"https://a.example","description":"` + long + `","pricingText":"` + long + `"}]}`
	items := NormalizeItems(parse(t, raw), 10)
	if len(items) != 1 {
		t.Fatal("no item")
	}
	if len(items[0].Description) != maxDescriptionChars {
		t.Errorf("description len = %d, want %d", len(items[0].Description), maxDescriptionChars)
	}
	if len(items[0].PricingText) != maxPricingTextChars {
		t.Errorf("pricing text len = %d, want %d", len(items[0].PricingText), maxPricingTextChars)
	}
}

func TestNormalizeItemsInference(t *testing.T) {
	raw := `{"items":[{
		"url":"https://voice.example",
		"name":"VoiceForge",
		"description":"AI voice and music generation",
		"pricingText":"free tier, premium $9/mo"
	}]}`
	items := NormalizeItems(parse(t, raw), 10)
	if len(items) != 1 {
		t.Fatal("no item")
	}
	item := items[0]
	hasAudio := false
	for _, a := range item.Abilities {
		if a == models.AbilityAudio {
			hasAudio = true
		}
	}
	if !hasAudio {
		t.Errorf("abilities = %v, want audio inferred", item.Abilities)
	}
	if !item.IsFree || !item.IsPaid {
		t.Errorf("flags = free:%v paid:%v, want both from pricing text", item.IsFree, item.IsPaid)
	}
}

func TestNormalizeItemsExplicitFlagsWin(t *testing.T) {
	raw := `{"items":[{
		"url":"https://x.example",
		"pricingText":"completely free",
		"isFree":false
	}]}`
	items := NormalizeItems(parse(t, raw), 10)
	if items[0].IsFree {
		t.Error("explicit isFree=false should beat the keyword scan")
	}
}

func TestNormalizeItemsConfidenceAndSources(t *testing.T) {
	raw := `{"items":[{
		"url":"https://x.example",
		"confidence":3.7,
		"sources":["s1","s2","s3","s4","s5","s6","s7","s8","s9","s10","s11","s12","s13"]
	}]}`
	items := NormalizeItems(parse(t, raw), 12)
	if items[0].Confidence == nil || *items[0].Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", items[0].Confidence)
	}
	if len(items[0].Sources) != 12 {
		t.Errorf("sources = %d, want 12", len(items[0].Sources))
	}

	items = NormalizeItems(parse(t, raw), 10)
	if len(items[0].Sources) != 10 {
		t.Errorf("sources = %d, want 10", len(items[0].Sources))
	}
}

func TestNormalizeItemsUnknownPricingCollapsesToTrial(t *testing.T) {
	raw := `{"items":[{"url":"https://x.example","pricing":"enterprise"}]}`
	items := NormalizeItems(parse(t, raw), 10)
	if items[0].Pricing != models.PricingTrial {
		t.Errorf("Pricing = %q, want trial", items[0].Pricing)
	}
}
