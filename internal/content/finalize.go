package content

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"net/url"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
)

// UnsubscribePlaceholder marks where the per-recipient unsubscribe link goes.
const UnsubscribePlaceholder = "{{UNSUBSCRIBE_LINK}}"

var placeholderPattern = regexp.MustCompile(`\{\{\s*UNSUBSCRIBE_LINK\s*\}\}`)

// Tracking identifies the message for open and click tracking.
type Tracking struct {
	BaseURL     string
	CampaignID  string
	RecipientID string
}

func (t Tracking) clickURL(target string) string {
	return fmt.Sprintf("%s/api/analytics/click?cid=%s&rid=%s&url=%s",
		strings.TrimRight(t.BaseURL, "/"),
		url.QueryEscape(t.CampaignID), url.QueryEscape(t.RecipientID), url.QueryEscape(target))
}

func (t Tracking) pixel() string {
	return fmt.Sprintf(`<img src="%s/api/analytics/open?cid=%s&amp;rid=%s" width="1" height="1" style="display:none;" alt="" />`,
		strings.TrimRight(t.BaseURL, "/"),
		url.QueryEscape(t.CampaignID), url.QueryEscape(t.RecipientID))
}

type FinalizeOptions struct {
	UnsubscribeURL string
	CompanyAddress string
	// Tracking is nil when open and click tracking are disabled.
	Tracking *Tracking
}

// Finalize prepares rendered, personalized HTML for one recipient: tracked
// links, exactly one unsubscribe link and the open pixel.
func Finalize(body string, opts FinalizeOptions) (string, error) {
	body = placeholderPattern.ReplaceAllString(body, UnsubscribePlaceholder)

	if opts.Tracking != nil && opts.Tracking.BaseURL != "" {
		var err error
		body, err = RewriteLinks(body, func(href string) (string, bool) {
			if !trackable(href) {
				return "", false
			}
			return opts.Tracking.clickURL(href), true
		})
		if err != nil {
			return "", err
		}
	}

	body = resolveUnsubscribe(body, opts)

	if opts.Tracking != nil && opts.Tracking.BaseURL != "" {
		body += opts.Tracking.pixel()
	}
	return body, nil
}

func trackable(href string) bool {
	h := strings.TrimSpace(href)
	switch {
	case h == "", strings.HasPrefix(h, "#"):
		return false
	case strings.Contains(h, UnsubscribePlaceholder):
		return false
	case strings.HasPrefix(strings.ToLower(h), "mailto:"), strings.HasPrefix(strings.ToLower(h), "tel:"):
		return false
	}
	return true
}

// resolveUnsubscribe substitutes the first placeholder with the real link
// and drops every other occurrence. Without any placeholder a default
// footer carrying the link is appended.
func resolveUnsubscribe(body string, opts FinalizeOptions) string {
	link := html.EscapeString(opts.UnsubscribeURL)
	hrefForm := `href="` + UnsubscribePlaceholder + `"`

	var b strings.Builder
	found := false
	rest := body
	for {
		i := strings.Index(rest, UnsubscribePlaceholder)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		inHref := i >= len(`href="`) && strings.HasPrefix(rest[i-len(`href="`):], hrefForm)
		b.WriteString(rest[:i])
		switch {
		case !found && inHref:
			b.WriteString(link)
		case !found:
			fmt.Fprintf(&b, `<a href="%s">Unsubscribe</a>`, link)
		case inHref:
			b.WriteString("#")
		}
		found = true
		rest = rest[i+len(UnsubscribePlaceholder):]
	}

	if found {
		return b.String()
	}
	return b.String() + defaultFooter(link, opts.CompanyAddress)
}

func defaultFooter(link, address string) string {
	var b strings.Builder
	b.WriteString(`<div style="margin-top: 40px; padding: 20px; border-top: 1px solid #e5e7eb; font-size: 12px; color: #6b7280; text-align: center;">`)
	fmt.Fprintf(&b, `<p><a href="%s" style="color: #4F46E5;">Unsubscribe</a> from these emails</p>`, link)
	if address != "" {
		fmt.Fprintf(&b, `<p>%s</p>`, html.EscapeString(address))
	}
	b.WriteString(`</div>`)
	return b.String()
}

// RewriteLinks passes every anchor href through fn. When fn reports false
// the tag is written back untouched.
func RewriteLinks(body string, fn func(href string) (string, bool)) (string, error) {
	z := xhtml.NewTokenizer(strings.NewReader(body))
	var out bytes.Buffer

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.String(), nil
			}
			return "", fmt.Errorf("tokenizing html: %w", z.Err())
		}

		raw := append([]byte(nil), z.Raw()...)
		if tt != xhtml.StartTagToken {
			out.Write(raw)
			continue
		}

		tok := z.Token()
		if tok.Data != "a" {
			out.Write(raw)
			continue
		}

		changed := false
		for i, a := range tok.Attr {
			if a.Key != "href" {
				continue
			}
			if next, ok := fn(a.Val); ok {
				tok.Attr[i].Val = next
				changed = true
			}
		}
		if changed {
			out.WriteString(tok.String())
		} else {
			out.Write(raw)
		}
	}
}
