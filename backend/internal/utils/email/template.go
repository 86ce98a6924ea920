package email

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	// No autolinking: every real link in a template is an explicit [text](url).
	md = goldmark.New()
	// Links in outgoing mail must stay clickable, everything else is UGC-level.
	htmlPolicy = bluemonday.UGCPolicy().RequireNoFollowOnLinks(false)
)

// Render converts a markdown body to sanitized HTML.
func Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render email markdown: %w", err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}

// Link joins base with path and a single token query parameter.
func Link(base, path, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + path + "?token=" + url.QueryEscape(token)
	}
	u = u.JoinPath(path)
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func VerificationBody(name, link string, ttl time.Duration) string {
	return fmt.Sprintf(`Hello%s,

Thanks for signing up. Please confirm your email address by opening the link below:

[Confirm my email](%s)

The link is valid for %s. If you did not sign up, please ignore this email.
`, greetingName(name), link, formatTTL(ttl))
}

func PasswordResetBody(name, link string, ttl time.Duration) string {
	return fmt.Sprintf(`Hello%s,

Someone asked to reset the password of your account. Open the link below to choose a new one:

[Reset my password](%s)

The link is valid for %s and can be used once. If you did not ask for this, please ignore this email.
`, greetingName(name), link, formatTTL(ttl))
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "<", `\<`, ">", `\>`, "#", `\#`, "!", `\!`,
)

func greetingName(name string) string {
	if name == "" {
		return ""
	}
	return " " + markdownEscaper.Replace(name)
}

func formatTTL(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "one hour"
	case d > 0 && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d > 0 && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
