package content

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// Renderer turns campaign content (and an optional template) into HTML.
type Renderer interface {
	Render(ctx context.Context, c Content, templateHTML string) (string, error)
}

// BlockRenderer renders the built-in block vocabulary. Relative asset URLs
// are resolved against AssetBaseURL.
type BlockRenderer struct {
	AssetBaseURL string
}

func NewBlockRenderer(assetBaseURL string) *BlockRenderer {
	return &BlockRenderer{AssetBaseURL: strings.TrimRight(assetBaseURL, "/")}
}

const emptyBody = "<p>Empty email content</p>"

func (r *BlockRenderer) Render(ctx context.Context, c Content, templateHTML string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Empty {
		return emptyBody, nil
	}

	body := r.renderBlocks(c.Blocks)
	if templateHTML != "" {
		return r.applyTemplate(templateHTML, c, body), nil
	}
	if c.Legacy {
		return body, nil
	}

	var b strings.Builder
	b.WriteString(`<div style="max-width: 600px; margin: 0 auto; font-family: Arial, sans-serif;">`)
	if c.Header != nil {
		b.WriteString(r.renderHeader(c.Header))
	}
	b.WriteString(`<div style="padding: 20px;">`)
	b.WriteString(body)
	b.WriteString(`</div>`)
	if c.Footer != nil {
		b.WriteString(r.renderFooter(c.Footer))
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (r *BlockRenderer) applyTemplate(tmpl string, c Content, body string) string {
	var headerTitle, logo, companyInfo, social string
	if c.Header != nil {
		headerTitle = c.Header.Title
		if c.Header.Logo != "" {
			logo = r.absolute(c.Header.Logo)
		}
	}
	if c.Footer != nil {
		companyInfo = c.Footer.CompanyInfo
		social = r.renderSocialLinks(c.Footer.SocialLinks)
	}
	var offerTitle, offerSubtitle, announcement string
	if c.Offer != nil {
		offerTitle = c.Offer.Title
		offerSubtitle = c.Offer.Subtitle
	}
	if c.Announcement != nil {
		announcement = c.Announcement.Title
	}

	return strings.NewReplacer(
		"{{HEADER_TITLE}}", headerTitle,
		"{{LOGO_URL}}", html.EscapeString(logo),
		"{{OFFER_TITLE}}", offerTitle,
		"{{OFFER_SUBTITLE}}", offerSubtitle,
		"{{ANNOUNCEMENT_TITLE}}", announcement,
		"{{CONTENT}}", body,
		"{{COMPANY_INFO}}", companyInfo,
		"{{SOCIAL_LINKS}}", social,
	).Replace(tmpl)
}

func (r *BlockRenderer) renderHeader(h *Header) string {
	var b strings.Builder
	b.WriteString(`<div style="padding: 20px; text-align: center; border-bottom: 1px solid #e5e7eb;">`)
	if h.Logo != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="Logo" style="max-height: 60px; margin-bottom: 10px;" />`,
			html.EscapeString(r.absolute(h.Logo)))
	}
	if h.Title != "" {
		fmt.Fprintf(&b, `<h1 style="margin: 0; font-size: 24px;">%s</h1>`, h.Title)
	}
	if len(h.Navigation) > 0 {
		b.WriteString(`<div style="margin-top: 10px;">`)
		for _, l := range h.Navigation {
			fmt.Fprintf(&b, `<a href="%s" style="margin: 0 10px; color: #4F46E5; text-decoration: none;">%s</a>`,
				html.EscapeString(l.URL), l.Text)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (r *BlockRenderer) renderFooter(f *Footer) string {
	var b strings.Builder
	b.WriteString(`<div style="padding: 20px; text-align: center; font-size: 12px; color: #6b7280; border-top: 1px solid #e5e7eb;">`)
	if f.CompanyInfo != "" {
		fmt.Fprintf(&b, `<p style="margin: 0 0 10px 0;">%s</p>`, f.CompanyInfo)
	}
	b.WriteString(r.renderSocialLinks(f.SocialLinks))
	fmt.Fprintf(&b, `<p style="margin: 10px 0 0 0;"><a href="%s" style="color: #6b7280;">Unsubscribe</a></p>`, UnsubscribePlaceholder)
	b.WriteString(`</div>`)
	return b.String()
}

func (r *BlockRenderer) renderSocialLinks(links []SocialLink) string {
	if len(links) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div style="margin: 10px 0;">`)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s" style="margin: 0 5px; color: #4F46E5; text-decoration: none;">%s</a>`,
			html.EscapeString(l.URL), html.EscapeString(l.Platform))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (r *BlockRenderer) renderBlocks(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(r.renderBlock(blk))
	}
	return b.String()
}

func (r *BlockRenderer) renderBlock(blk Block) string {
	switch v := blk.(type) {
	case Heading:
		return fmt.Sprintf(`<h%d style="margin: 16px 0 8px 0;">%s</h%d>`, v.Level, v.Text, v.Level)

	case Text:
		return fmt.Sprintf(`<div style="margin: 8px 0; line-height: 1.6;">%s</div>`, v.HTML)

	case Button:
		bg := orDefault(v.BackgroundColor, "#4F46E5")
		fg := orDefault(v.TextColor, "#ffffff")
		align := orDefault(v.Alignment, "center")
		return fmt.Sprintf(
			`<div style="text-align: %s; margin: 16px 0;"><a href="%s" style="display: inline-block; padding: 12px 24px; background-color: %s; color: %s; text-decoration: none; border-radius: 6px; font-weight: bold;">%s</a></div>`,
			html.EscapeString(align), html.EscapeString(v.URL), html.EscapeString(bg), html.EscapeString(fg), v.Text)

	case Image:
		return fmt.Sprintf(`<div style="margin: 16px 0; text-align: center;"><img src="%s" alt="%s" style="max-width: 100%%; height: auto;" /></div>`,
			html.EscapeString(r.absolute(v.URL)), html.EscapeString(v.Alt))

	case Divider:
		return `<hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;" />`

	case Spacer:
		return fmt.Sprintf(`<div style="height: %dpx;"></div>`, v.Height)

	case File:
		name := orDefault(v.Name, "Download file")
		return fmt.Sprintf(`<div style="margin: 16px 0;"><a href="%s" style="color: #4F46E5;">%s</a></div>`,
			html.EscapeString(r.absolute(v.URL)), html.EscapeString(name))

	case CustomHTML:
		return v.HTML
	}
	panic(fmt.Sprintf("content: unhandled block %T", blk))
}

func (r *BlockRenderer) absolute(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "data:") {
		return u
	}
	if r.AssetBaseURL == "" {
		return u
	}
	return r.AssetBaseURL + "/" + strings.TrimLeft(u, "/")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
