package mail

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jhillyerd/enmime"
)

// OutgoingEmail is a message to send. Only To and Cc become visible headers;
// Bcc recipients are added to the SMTP envelope without a header.
type OutgoingEmail struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	HTML        bool
	Attachments []OutgoingAttachment
}

// OutgoingAttachment is a file attached to an outgoing message.
type OutgoingAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Send delivers the message over the SMTP session. The envelope recipient
// list is the union of to, cc and bcc.
func (c *Connection) Send(msg OutgoingEmail) error {
	c.smtpMu.Lock()
	defer c.smtpMu.Unlock()

	if c.smtp == nil {
		return ErrNotConnected
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients given")
	}

	builder := enmime.Builder().
		From("", c.creds.Username).
		Subject(msg.Subject)
	for _, to := range msg.To {
		builder = builder.To("", to)
	}
	for _, cc := range msg.Cc {
		builder = builder.CC("", cc)
	}
	if msg.HTML {
		builder = builder.HTML([]byte(msg.Body))
	} else {
		builder = builder.Text([]byte(msg.Body))
	}
	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		builder = builder.AddAttachment(att.Content, contentType, att.Filename)
	}

	part, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	recipients := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.Cc...)
	recipients = append(recipients, msg.Bcc...)

	if err := c.smtp.Mail(c.creds.Username, nil); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.smtp.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := c.smtp.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := io.Copy(w, &buf); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return nil
}
