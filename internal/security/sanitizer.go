// Package security sanitizes user generated community content before it is
// shown.
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"qrguard/internal/models"
)

// Sanitizer strips unsafe markup from posts and comments.
// It is safe for concurrent use.
type Sanitizer struct {
	body  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer builds the body and plain-text policies.
//
// Bodies keep basic formatting and http(s) links, which get
// rel="nofollow noopener noreferrer" and target="_blank". Titles,
// usernames and comments are reduced to text.
func NewSanitizer() *Sanitizer {
	body := bluemonday.NewPolicy()
	body.AllowElements("p", "br", "ul", "ol", "li", "blockquote", "pre", "code", "strong", "em")
	body.AllowAttrs("href").OnElements("a")
	body.AllowURLSchemes("http", "https")
	body.AllowRelativeURLs(false)
	body.RequireNoFollowOnLinks(true)
	body.RequireNoReferrerOnLinks(true)
	body.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{body: body, plain: bluemonday.StrictPolicy()}
}

// Body sanitizes rich content.
func (s *Sanitizer) Body(raw string) string {
	return strings.TrimSpace(s.body.Sanitize(raw))
}

// Text removes every tag and decodes entities so the result prints as-is.
func (s *Sanitizer) Text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}

// Post sanitizes p in place.
func (s *Sanitizer) Post(p *models.Post) {
	p.Title = s.Text(p.Title)
	p.Content = s.Body(p.Content)
	p.User.Username = s.Text(p.User.Username)
}

// Comment sanitizes c in place.
func (s *Sanitizer) Comment(c *models.Comment) {
	c.Content = s.Text(c.Content)
	c.User.Username = s.Text(c.User.Username)
}
