package content

import (
	"html"
	"strings"
)

// MergeData is the per-recipient data available to merge tags.
type MergeData struct {
	FirstName string
	LastName  string
	Email     string
}

// MergeTag describes one supported merge tag.
type MergeTag struct {
	Tag         string `json:"tag"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

var mergeTags = []MergeTag{
	{Tag: "{Name}", Description: "First name, or the part of the email before @ when no first name is set", Example: "John"},
	{Tag: "{FirstName}", Description: "First name", Example: "John"},
	{Tag: "{LastName}", Description: "Last name", Example: "Doe"},
	{Tag: "{Email}", Description: "Email address", Example: "john@example.com"},
	{Tag: "{First Name}", Description: "First name", Example: "John"},
	{Tag: "{Last Name}", Description: "Last name", Example: "Doe"},
	{Tag: "{Full Name}", Description: "Full name, or the part of the email before @ when no name is set", Example: "John Doe"},
}

// MergeTags lists the tags Personalize understands.
func MergeTags() []MergeTag {
	out := make([]MergeTag, len(mergeTags))
	copy(out, mergeTags)
	return out
}

// Personalize substitutes merge tags in s, a plain text value such as a
// subject line.
func Personalize(s string, d MergeData) string {
	return replacer(d, func(v string) string { return v }).Replace(s)
}

// PersonalizeHTML substitutes merge tags in an HTML body. Values are
// escaped.
func PersonalizeHTML(s string, d MergeData) string {
	return replacer(d, html.EscapeString).Replace(s)
}

func replacer(d MergeData, esc func(string) string) *strings.Replacer {
	name := esc(d.Name())
	full := esc(d.FullName())
	first, last, email := esc(d.FirstName), esc(d.LastName), esc(d.Email)
	return strings.NewReplacer(
		"{Name}", name,
		"{FirstName}", first,
		"{LastName}", last,
		"{Email}", email,
		"{First Name}", first,
		"{Last Name}", last,
		"{Full Name}", full,
	)
}

// Name is the first name, falling back to the local part of the email
// address.
func (d MergeData) Name() string {
	if name := strings.TrimSpace(d.FirstName); name != "" {
		return name
	}
	return d.localPart()
}

// FullName joins first and last name, falling back to the local part of
// the email address.
func (d MergeData) FullName() string {
	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	if name != "" {
		return name
	}
	return d.localPart()
}

func (d MergeData) localPart() string {
	local, _, _ := strings.Cut(d.Email, "@")
	return local
}
