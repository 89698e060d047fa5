package gen

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
)

var rules = ruleset()

func ruleset() *inflect.Ruleset {
	rules := inflect.NewDefaultRuleset()
	// Add common initialisms from golint and more.
	for _, w := range []string{
		"ACL", "API", "ASCII", "AWS", "CPU", "CSS", "DNS", "EOF", "GB", "GUID",
		"HCL", "HTML", "HTTP", "HTTPS", "ID", "IP", "JSON", "KB", "LHS", "MAC",
		"MB", "QPS", "RAM", "RHS", "RPC", "SLA", "SMTP", "SQL", "SSH", "SSO",
		"TCP", "TLS", "TTL", "UDP", "UI", "UID", "URI", "URL", "UTF8", "UUID",
		"VM", "XML", "XMPP", "XSRF", "XSS",
	} {
		rules.AddAcronym(w)
	}
	return rules
}

// Plural returns the plural form of a word, e.g. "category" becomes "categories".
func Plural(s string) string { return rules.Pluralize(s) }

// Singular returns the singular form of a word.
func Singular(s string) string { return rules.Singularize(s) }

// Pascal converts snake_case and camelCase names to PascalCase, e.g.
// "created_at" becomes "CreatedAt".
func Pascal(s string) string {
	words := split(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, "")
}

// Camel converts names to camelCase, e.g. "created_at" becomes "createdAt".
func Camel(s string) string {
	p := Pascal(s)
	if p == "" {
		return p
	}
	r := []rune(p)
	// Lower a leading acronym as a whole: "URLPath" becomes "urlPath".
	n := 1
	for n < len(r) && unicode.IsUpper(r[n]) && (n+1 == len(r) || unicode.IsUpper(r[n+1])) {
		n++
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// Snake converts PascalCase and camelCase names to snake_case, e.g.
// "UserProfile" becomes "user_profile" and "HTTPServer" becomes "http_server".
func Snake(s string) string {
	var (
		b     strings.Builder
		runes = []rune(s)
	)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
			continue
		case unicode.IsUpper(r) && i > 0:
			prev := runes[i-1]
			next := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || next) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// split breaks a name into words on underscores, dashes, spaces and case
// transitions.
func split(s string) []string {
	var words []string
	for _, part := range strings.FieldsFunc(Snake(s), func(r rune) bool { return r == '_' }) {
		if part != "" {
			words = append(words, part)
		}
	}
	return words
}

// TableName returns the default storage table of an entity, e.g. "Category"
// becomes "categories".
func TableName(entity string) string {
	return Snake(Plural(entity))
}
