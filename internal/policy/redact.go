package policy

import "regexp"

var (
	secretKeyPattern  = regexp.MustCompile(`sk-[A-Za-z0-9_-]{12,}`)
	envVarPattern     = regexp.MustCompile(`(OPENROUTER|NEON|JULEHA|DATABASE)_[A-Z0-9_]+`)
	connStringPattern = regexp.MustCompile(`postgres(ql)?://[^\s'"]+`)
	bearerPattern     = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]+`)
)

// Redact replaces secret-shaped tokens in text with stable placeholders.
// Applied to assistant output before it leaves the process and to free-form
// strings before they are structured-logged.
func Redact(text string) string {
	text = secretKeyPattern.ReplaceAllString(text, "[redacted-secret]")
	text = connStringPattern.ReplaceAllString(text, "[redacted-connection-string]")
	text = envVarPattern.ReplaceAllString(text, "[redacted-env-var]")
	text = bearerPattern.ReplaceAllString(text, "Bearer [redacted]")
	return text
}

// sensitiveHeaders are never logged or forwarded verbatim.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"token":               true,
	"secret":              true,
	"password":            true,
}

// IsSensitiveHeader reports whether a header name must be masked in logs.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[normalizeHeaderName(name)]
}

func normalizeHeaderName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
