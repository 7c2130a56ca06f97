// Package agent exposes the email tool functions the conversational runtime
// calls by name. Tool functions never return errors: every failure path is
// rendered into a descriptive string the model can read and act on.
//
// The session id is an explicit parameter on every call, threaded in from
// the runtime boundary; nothing here infers it from ambient state.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mailmind/mailmind/internal/addressbook"
	"github.com/mailmind/mailmind/internal/cache"
	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
	"github.com/mailmind/mailmind/internal/pipeline"
)

// Mailer is the sending side of the mail connection.
type Mailer interface {
	Send(msg mail.OutgoingEmail) error
	SMTPConnected() bool
}

// Tools bundles the dependencies every tool function needs.
type Tools struct {
	pipeline *pipeline.Pipeline
	cache    *cache.SessionCache
	book     *addressbook.Book
	mailer   Mailer

	attachmentsDir string
}

// NewTools wires the tool surface.
func NewTools(p *pipeline.Pipeline, c *cache.SessionCache, book *addressbook.Book, mailer Mailer, attachmentsDir string) *Tools {
	return &Tools{
		pipeline:       p,
		cache:          c,
		book:           book,
		mailer:         mailer,
		attachmentsDir: attachmentsDir,
	}
}

// Cache returns the session cache, for session teardown at the API boundary.
func (t *Tools) Cache() *cache.SessionCache {
	return t.cache
}

// EmailDashboard reports per-folder statistics for the whole mailbox.
func (t *Tools) EmailDashboard(ctx context.Context) string {
	report, err := t.pipeline.Dashboard(ctx)
	if err != nil {
		return serviceError(err)
	}
	return report
}

// ReadEmailsParams are the read_emails arguments.
type ReadEmailsParams struct {
	FolderName         string   `json:"folder_name,omitempty"`
	NumEmails          int      `json:"num_emails,omitempty"`
	UnreadOnly         bool     `json:"unread_only,omitempty"`
	StartDate          string   `json:"start_date,omitempty"`
	EndDate            string   `json:"end_date,omitempty"`
	From               []string `json:"from_,omitempty"`
	IncludeAttachments *bool    `json:"include_attachments,omitempty"`
}

// ReadEmails fetches emails matching the filters and replaces the session's
// cache with the result, so later index-based operations refer to exactly
// this list.
func (t *Tools) ReadEmails(ctx context.Context, sessionID string, p ReadEmailsParams) string {
	req := pipeline.FetchRequest{
		Folder:     p.FolderName,
		NumEmails:  p.NumEmails,
		UnreadOnly: p.UnreadOnly,
		From:       p.From,
	}

	if p.StartDate != "" {
		start, err := time.Parse("2006-01-02", p.StartDate)
		if err != nil {
			return fmt.Sprintf("Error: Invalid start_date format: %s. Expected format: YYYY-MM-DD", p.StartDate)
		}
		req.Since = start
	}
	if p.EndDate != "" {
		end, err := time.Parse("2006-01-02", p.EndDate)
		if err != nil {
			return fmt.Sprintf("Error: Invalid end_date format: %s. Expected format: YYYY-MM-DD", p.EndDate)
		}
		req.Before = end
	}

	emails, folder, err := t.pipeline.FetchFolder(ctx, req)
	if err != nil {
		return serviceError(err)
	}

	t.cache.Replace(sessionID, emails)

	includeAttachments := true
	if p.IncludeAttachments != nil {
		includeAttachments = *p.IncludeAttachments
	}
	return pipeline.FormatEmailList(emails, folder, includeAttachments)
}

// SendEmailParams are the send_email arguments. Recipient fields take
// comma-separated addresses.
type SendEmailParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	HTML    bool   `json:"html,omitempty"`
}

// SendEmail sends a message to the given recipients.
func (t *Tools) SendEmail(_ context.Context, p SendEmailParams) string {
	if !t.mailer.SMTPConnected() {
		return "Error: SMTP service is not connected. Email sending is unavailable."
	}
	if p.To == "" {
		return "Error: At least one recipient is required."
	}

	err := t.mailer.Send(mail.OutgoingEmail{
		To:      splitAddresses(p.To),
		Cc:      splitAddresses(p.Cc),
		Bcc:     splitAddresses(p.Bcc),
		Subject: p.Subject,
		Body:    p.Body,
		HTML:    p.HTML,
	})
	if err != nil {
		return fmt.Sprintf("Failed to send email: %v", err)
	}
	return fmt.Sprintf("Email sent successfully to %s!", p.To)
}

// EmailRefParams identify one cached email by index or UID. Exactly one of
// the two must be supplied.
type EmailRefParams struct {
	EmailIndex int    `json:"email_index,omitempty"`
	EmailUID   string `json:"email_uid,omitempty"`
}

// resolveRef turns an index-or-UID reference into the cached email and its
// 1-based index. The second return value is a user-facing error message;
// empty means success.
func (t *Tools) resolveRef(sessionID string, ref EmailRefParams) (int, *models.Email, string) {
	switch {
	case ref.EmailIndex != 0 && ref.EmailUID != "":
		return 0, nil, "Error: Provide either email_index or email_uid, not both."
	case ref.EmailIndex != 0:
		email, err := t.cache.ResolveIndex(sessionID, ref.EmailIndex)
		if err != nil {
			switch {
			case errors.Is(err, cache.ErrAlreadyRemoved):
				return 0, nil, fmt.Sprintf("Error: Email #%d has already been deleted.", ref.EmailIndex)
			default:
				return 0, nil, fmt.Sprintf("Error: Invalid email index %d. Valid range: 1-%d.", ref.EmailIndex, t.cache.Len(sessionID))
			}
		}
		return ref.EmailIndex, email, ""
	case ref.EmailUID != "":
		uid, err := strconv.ParseUint(ref.EmailUID, 10, 32)
		if err != nil {
			return 0, nil, fmt.Sprintf("Error: Invalid email_uid '%s'. Must be a number.", ref.EmailUID)
		}
		index, email, resolveErr := t.cache.ResolveUID(sessionID, uint32(uid))
		if resolveErr != nil {
			return 0, nil, fmt.Sprintf("Error: Email with UID %s not found. The email may have already been deleted.", ref.EmailUID)
		}
		return index, email, ""
	default:
		return 0, nil, "Error: Either email_index or email_uid must be provided."
	}
}

// DeleteEmail deletes the referenced email and tombstones its cache slot,
// leaving every other index valid.
func (t *Tools) DeleteEmail(ctx context.Context, sessionID string, ref EmailRefParams) string {
	index, email, errMsg := t.resolveRef(sessionID, ref)
	if errMsg != "" {
		return errMsg
	}

	if err := t.pipeline.Delete(ctx, email.Folder, email.UID); err != nil {
		return fmt.Sprintf("Failed to delete email #%d: %v", index, err)
	}
	_ = t.cache.Tombstone(sessionID, index)

	return fmt.Sprintf("Email #%d deleted successfully!", index)
}

// MoveEmailParams are the move_email arguments.
type MoveEmailParams struct {
	EmailRefParams
	DestinationFolder string `json:"destination_folder"`
}

// MoveEmail moves the referenced email to another folder and tombstones its
// cache slot. The destination may use a provider alias such as "Archive"
// for "[Gmail]/Archive".
func (t *Tools) MoveEmail(ctx context.Context, sessionID string, p MoveEmailParams) string {
	if p.DestinationFolder == "" {
		return "Error: destination_folder must be provided."
	}

	index, email, errMsg := t.resolveRef(sessionID, p.EmailRefParams)
	if errMsg != "" {
		return errMsg
	}

	resolved, err := t.pipeline.Move(ctx, email.Folder, email.UID, p.DestinationFolder)
	if err != nil {
		var notFound *mail.FolderNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Sprintf("Error: %v", notFound)
		}
		return fmt.Sprintf("Failed to move email #%d: %v", index, err)
	}
	_ = t.cache.Tombstone(sessionID, index)

	return fmt.Sprintf("Email #%d moved successfully to '%s'!", index, resolved)
}

// FlagEmailParams are the flag_email arguments.
type FlagEmailParams struct {
	EmailRefParams
	FlagType string `json:"flag_type"`
	Value    *bool  `json:"value,omitempty"`
}

// FlagEmail sets or clears a flag on the referenced email. Flag names are
// case-insensitive aliases: seen/read, flagged/important/starred, answered,
// draft.
func (t *Tools) FlagEmail(ctx context.Context, sessionID string, p FlagEmailParams) string {
	index, email, errMsg := t.resolveRef(sessionID, p.EmailRefParams)
	if errMsg != "" {
		return errMsg
	}

	value := true
	if p.Value != nil {
		value = *p.Value
	}

	var (
		imapFlag   string
		actionDesc string
	)
	switch strings.ToLower(p.FlagType) {
	case "seen", "read":
		imapFlag = models.FlagSeen
		actionDesc = pick(value, "marked as read", "marked as unread")
	case "flagged", "important", "starred":
		imapFlag = models.FlagFlagged
		actionDesc = pick(value, "flagged as important", "unflagged")
	case "answered":
		imapFlag = models.FlagAnswered
		actionDesc = pick(value, "marked as answered", "unmarked as answered")
	case "draft":
		imapFlag = models.FlagDraft
		actionDesc = pick(value, "marked as draft", "unmarked as draft")
	default:
		return fmt.Sprintf("Error: Invalid flag_type '%s'. Valid options: 'seen/read', 'flagged/important/starred', 'answered', 'draft'.", p.FlagType)
	}

	if err := t.pipeline.SetFlag(ctx, email.Folder, email.UID, imapFlag, value); err != nil {
		return fmt.Sprintf("Failed to set flag for email #%d: %v", index, err)
	}

	return fmt.Sprintf("Email #%d %s!", index, actionDesc)
}

// ListFolders lists all folders with their selectability and flags.
func (t *Tools) ListFolders(ctx context.Context) string {
	folders, err := t.pipeline.ListFolders(ctx)
	if err != nil {
		return serviceError(err)
	}
	return pipeline.FormatFolderList(folders)
}

// DownloadAttachmentsParams are the download_attachments arguments.
type DownloadAttachmentsParams struct {
	EmailRefParams
	SavePath string `json:"save_path,omitempty"`
}

// DownloadAttachments writes the referenced email's attachments to disk.
// Inline parts such as embedded images are skipped.
func (t *Tools) DownloadAttachments(_ context.Context, sessionID string, p DownloadAttachmentsParams) string {
	index, email, errMsg := t.resolveRef(sessionID, p.EmailRefParams)
	if errMsg != "" {
		return errMsg
	}

	savePath := p.SavePath
	if savePath == "" {
		savePath = t.attachmentsDir
	}

	attachments := email.UserFacingAttachments()
	if len(attachments) == 0 {
		return fmt.Sprintf("Email #%d has no attachments.", index)
	}

	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return fmt.Sprintf("Failed to create directory %s: %v", savePath, err)
	}

	var saved []string
	for _, att := range attachments {
		target := filepath.Join(savePath, filepath.Base(att.Filename))
		if err := os.WriteFile(target, att.Content, 0o600); err != nil {
			return fmt.Sprintf("Failed to save attachment %s: %v", att.Filename, err)
		}
		saved = append(saved, fmt.Sprintf("  - %s (saved to %s)", att.Filename, target))
	}

	return fmt.Sprintf("Successfully downloaded %d attachment(s) from email #%d:\n%s",
		len(saved), index, strings.Join(saved, "\n"))
}

// SearchAddressBookParams are the search_address_book arguments.
type SearchAddressBookParams struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Group string `json:"group,omitempty"`
}

// SearchAddressBook finds entries by name, email or group; with no criteria
// it returns every entry. Output is one JSON object per line.
func (t *Tools) SearchAddressBook(_ context.Context, p SearchAddressBookParams) string {
	var (
		entries  []*addressbook.Entry
		notFound string
	)
	switch {
	case p.Name != "":
		entries = t.book.SearchName(p.Name)
		notFound = fmt.Sprintf("Error: Person with name %s not found.", p.Name)
	case p.Email != "":
		entries = t.book.SearchEmail(p.Email)
		notFound = fmt.Sprintf("Error: Person with email %s not found.", p.Email)
	case p.Group != "":
		entries = t.book.SearchGroup(p.Group)
		notFound = fmt.Sprintf("Error: No people found in group %s.", p.Group)
	default:
		entries = t.book.All()
		notFound = "Error: Address book is empty."
	}

	if len(entries) == 0 {
		return notFound
	}
	return formatEntries(entries)
}

// ModifyAddressBookParams are the modify_address_book arguments.
type ModifyAddressBookParams struct {
	Operation string   `json:"operation"`
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Emails    []string `json:"emails,omitempty"`
	Groups    []string `json:"groups,omitempty"`
}

// ModifyAddressBook applies one mutating address book operation.
func (t *Tools) ModifyAddressBook(_ context.Context, p ModifyAddressBookParams) string {
	var (
		result string
		err    error
	)
	switch p.Operation {
	case "add_people":
		var entry *addressbook.Entry
		entry, err = t.book.AddPerson(p.Name, p.Emails, p.Groups)
		if err == nil {
			result = fmt.Sprintf("Person %s added successfully with ID %s.", entry.Name, entry.ID)
		}
	case "delete_people":
		err = t.book.DeletePerson(p.ID)
		if err == nil {
			result = fmt.Sprintf("Person with ID %s deleted successfully.", p.ID)
		}
	case "add_emails":
		err = t.book.AddEmails(p.ID, p.Emails)
		if err == nil {
			result = fmt.Sprintf("Emails %v added to person with ID %s.", p.Emails, p.ID)
		}
	case "delete_emails":
		err = t.book.DeleteEmails(p.ID, p.Emails)
		if err == nil {
			result = fmt.Sprintf("Emails %v deleted from person with ID %s.", p.Emails, p.ID)
		}
	case "add_groups":
		err = t.book.AddGroups(p.ID, p.Groups)
		if err == nil {
			result = fmt.Sprintf("Groups %v added to person with ID %s.", p.Groups, p.ID)
		}
	case "delete_groups":
		err = t.book.DeleteGroups(p.ID, p.Groups)
		if err == nil {
			result = fmt.Sprintf("Groups %v deleted from person with ID %s.", p.Groups, p.ID)
		}
	case "edit_name":
		err = t.book.EditName(p.ID, p.Name)
		if err == nil {
			result = fmt.Sprintf("Name of person with ID %s updated to %s.", p.ID, p.Name)
		}
	default:
		return fmt.Sprintf("Error: Invalid operation %s. Valid operations are 'add_people', 'delete_people', 'add_emails', 'delete_emails', 'add_groups', 'delete_groups', 'edit_name'.", p.Operation)
	}

	if err != nil {
		return err.Error()
	}
	return result
}

func formatEntries(entries []*addressbook.Entry) string {
	lines := make([]string, len(entries))
	for i, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			lines[i] = fmt.Sprintf("Error: failed to render entry %s", entry.ID)
			continue
		}
		lines[i] = string(data)
	}
	return strings.Join(lines, "\n")
}

func serviceError(err error) string {
	if errors.Is(err, mail.ErrNotConnected) {
		return "Error: Mail service is not connected. Please check your IMAP settings."
	}
	return fmt.Sprintf("Error: %v", err)
}

func splitAddresses(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
