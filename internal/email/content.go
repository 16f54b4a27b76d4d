package email

import "strings"

// Content is the immutable subject and body of an email.
type Content struct {
	subject string
	text    string
	html    string
}

// NewContent trims all parts and requires a non-empty subject and text body.
// The HTML body is optional.
func NewContent(subject, text, html string) (Content, error) {
	subject = strings.TrimSpace(subject)
	text = strings.TrimSpace(text)
	html = strings.TrimSpace(html)

	if subject == "" {
		return Content{}, &ContentError{Field: "subject", Reason: "is required"}
	}
	if text == "" {
		return Content{}, &ContentError{Field: "textContent", Reason: "is required"}
	}
	return Content{subject: subject, text: text, html: html}, nil
}

func (c Content) Subject() string { return c.subject }
func (c Content) Text() string    { return c.text }
func (c Content) HTML() string    { return c.html }

// HasHTML reports whether an HTML alternative is present.
func (c Content) HasHTML() bool { return c.html != "" }
