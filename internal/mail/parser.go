package mail

import (
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/mailmind/mailmind/internal/models"
)

// parseMessage converts a raw IMAP message into a normalized Email. All
// field fallbacks live here so the rest of the system never probes provider
// message shapes. Returns nil for messages the server sent without a UID.
func parseMessage(imapMsg *imap.Message, folderName string, section *imap.BodySectionName) *models.Email {
	if imapMsg == nil || imapMsg.Uid == 0 {
		return nil
	}

	email := &models.Email{
		UID:    imapMsg.Uid,
		Folder: folderName,
		Flags:  append([]string(nil), imapMsg.Flags...),
	}

	if env := imapMsg.Envelope; env != nil {
		email.Subject = env.Subject
		email.Date = env.Date
		if len(env.From) > 0 {
			email.From = addressFromIMAP(env.From[0])
		}
		email.To = addressListFromIMAP(env.To)
		email.Cc = addressListFromIMAP(env.Cc)
		email.Bcc = addressListFromIMAP(env.Bcc)
	}

	if section != nil {
		if bodyReader := imapMsg.GetBody(section); bodyReader != nil {
			parseBody(bodyReader, email)
		}
	}

	return email
}

// parseBody fills in the text/HTML bodies and attachment descriptors using
// enmime. Parse failures leave the email with headers only.
func parseBody(bodyReader io.Reader, email *models.Email) {
	envelope, err := enmime.ReadEnvelope(bodyReader)
	if err != nil {
		return
	}

	email.TextBody = envelope.Text
	email.HTMLBody = envelope.HTML

	for _, part := range envelope.Attachments {
		email.Attachments = append(email.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
			Inline:      false,
			Content:     part.Content,
		})
	}
	for _, part := range envelope.Inlines {
		if part.FileName == "" {
			continue
		}
		email.Attachments = append(email.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
			Inline:      true,
			Content:     part.Content,
		})
	}
}

// addressFromIMAP converts an IMAP envelope address.
func addressFromIMAP(address *imap.Address) models.Address {
	if address == nil {
		return models.Address{}
	}
	addr := models.Address{Name: address.PersonalName}
	if address.MailboxName != "" && address.HostName != "" {
		addr.Address = address.MailboxName + "@" + address.HostName
	}
	return addr
}

func addressListFromIMAP(addresses []*imap.Address) []models.Address {
	var result []models.Address
	for _, address := range addresses {
		parsed := addressFromIMAP(address)
		if parsed.Name == "" && parsed.Address == "" {
			continue
		}
		result = append(result, parsed)
	}
	return result
}

// ParseSender splits a raw From header value into display name and address.
// Three shapes are recognized:
//
//	"Alice <alice@x.com>"  -> name "Alice", address "alice@x.com"
//	"bob@x.com"            -> no name, address "bob@x.com"
//	"Carol"                -> name "Carol", no address
func ParseSender(raw string) models.Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Address{}
	}

	if open := strings.LastIndex(raw, "<"); open >= 0 {
		if end := strings.Index(raw[open:], ">"); end > 0 {
			name := strings.TrimSpace(raw[:open])
			name = strings.Trim(name, `"'`)
			addr := strings.TrimSpace(raw[open+1 : open+end])
			return models.Address{Name: name, Address: addr}
		}
	}

	if strings.Contains(raw, "@") {
		return models.Address{Address: raw}
	}
	return models.Address{Name: raw}
}
