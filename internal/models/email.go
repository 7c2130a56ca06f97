package models

import (
	"regexp"
	"strings"
	"time"
)

// Standard IMAP flag names as stored on Email.Flags.
const (
	FlagSeen     = "\\Seen"
	FlagFlagged  = "\\Flagged"
	FlagAnswered = "\\Answered"
	FlagDraft    = "\\Draft"
	FlagDeleted  = "\\Deleted"
)

// PreviewLength is the maximum length of the preview text used in list views.
const PreviewLength = 500

// Address is a parsed email address with an optional display name.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// String renders the address the way it appears in a From/To header.
func (a Address) String() string {
	if a.Name != "" && a.Address != "" {
		return a.Name + " <" + a.Address + ">"
	}
	if a.Address != "" {
		return a.Address
	}
	return a.Name
}

// Folder describes one IMAP mailbox folder.
type Folder struct {
	Name  string   `json:"name"`
	Flags []string `json:"flags,omitempty"`
}

// Selectable reports whether the folder can be selected (no \Noselect flag).
func (f Folder) Selectable() bool {
	for _, flag := range f.Flags {
		if strings.EqualFold(flag, "\\Noselect") {
			return false
		}
	}
	return true
}

// Attachment describes one non-body MIME part of an email.
// Content is only populated when the part is fetched for download.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Inline      bool   `json:"inline"`
	Content     []byte `json:"-"`
}

// Email is the normalized view of one fetched message.
//
// UID is only meaningful paired with Folder: IMAP UIDs are unique within a
// folder and change when a message is moved. Flags mirror the last known
// server state; they are updated only by round-tripping through the server.
type Email struct {
	UID         uint32       `json:"uid"`
	Folder      string       `json:"folder"`
	Subject     string       `json:"subject"`
	From        Address      `json:"from"`
	To          []Address    `json:"to,omitempty"`
	Cc          []Address    `json:"cc,omitempty"`
	Bcc         []Address    `json:"bcc,omitempty"`
	Date        time.Time    `json:"date"`
	Flags       []string     `json:"flags,omitempty"`
	TextBody    string       `json:"text_body,omitempty"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// HasFlag reports whether the email carries the given IMAP flag.
func (e *Email) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Seen reports whether the email has been read.
func (e *Email) Seen() bool {
	return e.HasFlag(FlagSeen)
}

// BodyContent returns the display body: HTML if present, else plain text,
// else a placeholder.
func (e *Email) BodyContent() string {
	if e.HTMLBody != "" {
		return e.HTMLBody
	}
	if e.TextBody != "" {
		return e.TextBody
	}
	return "(No body content)"
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Preview returns a short plain-text summary for list views. Plain text is
// preferred; HTML is stripped of tags and collapsed to single spaces. The
// result is truncated to PreviewLength characters.
func (e *Email) Preview() string {
	text := e.TextBody
	if text == "" && e.HTMLBody != "" {
		text = htmlTagPattern.ReplaceAllString(e.HTMLBody, " ")
	}
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if len(text) > PreviewLength {
		return text[:PreviewLength] + "..."
	}
	return text
}

// UserFacingAttachments returns the attachments that count as real
// attachments: parts with a content disposition other than "inline".
// Embedded images and other inline parts are excluded.
func (e *Email) UserFacingAttachments() []Attachment {
	var out []Attachment
	for _, a := range e.Attachments {
		if a.Inline {
			continue
		}
		out = append(out, a)
	}
	return out
}
