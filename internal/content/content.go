package content

import (
	"bytes"
	"errors"
	"html/template"
	"net/url"
	"path"
	"regexp"
	"strings"

	"relay/internal/models"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy        = bluemonday.UGCPolicy()
	markdown      = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// Render converts markdown message text into sanitized HTML.
func Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}

// Attachments turns opaque file references into typed attachments.
// The type is guessed from the extension; refs are never fetched.
// Blank refs are skipped.
func Attachments(refs []string) []models.Attachment {
	var attachments []models.Attachment
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}

		p := refPath(ref)
		a := models.Attachment{Type: models.AttachmentTypeFile, URL: ref, Name: Escape(path.Base(p))}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
		if kind := filetype.GetType(ext); kind != filetype.Unknown {
			a.MimeType = kind.MIME.Value
			if kind.MIME.Type == "image" {
				a.Type = models.AttachmentTypeImage
			}
		}
		attachments = append(attachments, a)
	}
	return attachments
}

func refPath(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		return u.Path
	}
	return ref
}
