package chat

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/sena168/aicenghub/internal/models"
)

// maxExtractedURLs bounds URL extraction from a single text.
const maxExtractedURLs = 6

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

// trailing punctuation commonly glued onto URLs in prose
const urlTrailingPunct = ".,;:!?'\""

// ExtractURLs scans free text for http(s) URLs, strips trailing
// punctuation, and dedupes by canonical form. At most six are
// returned, in order of first appearance.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, urlTrailingPunct)
		canonical, err := models.CanonicalURL(m)
		if err != nil || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, m)
		if len(out) >= maxExtractedURLs {
			break
		}
	}
	return out
}

var (
	liveCheckPattern   = regexp.MustCompile(`(?i)\b(check|browse|latest|verify|verification)\b`)
	pricingTermPattern = regexp.MustCompile(`(?i)\b(price|prices|pricing|cost|costs|fee|fees|subscription|plan|plans)\b`)
	freshnessPattern   = regexp.MustCompile(`(?i)\b(check|verify|latest|current|update|updated)\b`)
)

// NeedsLiveCheck decides whether a user turn asks for live
// verification: any extracted URL, an explicit check/browse/verify
// request, or pricing terms co-occurring with freshness terms.
func NeedsLiveCheck(text string, urlCount int) bool {
	if urlCount > 0 {
		return true
	}
	if liveCheckPattern.MatchString(text) {
		return true
	}
	return pricingTermPattern.MatchString(text) && freshnessPattern.MatchString(text)
}

// PageSummary is what candidate capture pulls from a fetched page.
type PageSummary struct {
	Title       string
	Description string
}

// SummarizeHTML extracts the <title> and meta description from an HTML
// document. Parse errors yield an empty summary, never an error; the
// callers treat page structure as best-effort evidence.
func SummarizeHTML(body string) PageSummary {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return PageSummary{}
	}

	var summary PageSummary
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if summary.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					summary.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, content string
				for _, attr := range n.Attr {
					switch strings.ToLower(attr.Key) {
					case "name", "property":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if summary.Description == "" && (name == "description" || name == "og:description") {
					summary.Description = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return summary
}
