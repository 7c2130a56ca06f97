package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmind/mailmind/internal/addressbook"
	"github.com/mailmind/mailmind/internal/cache"
	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
	"github.com/mailmind/mailmind/internal/pipeline"
)

// mailboxConn is an in-memory MailConn holding real folder contents, so tool
// operations behave like a live mailbox: deletes remove messages, flag
// updates show up on the next fetch, moves change folders.
type mailboxConn struct {
	mu       sync.Mutex
	folders  []string
	emails   map[string][]*models.Email
	selected string
}

func newMailboxConn(folders ...string) *mailboxConn {
	c := &mailboxConn{
		folders: folders,
		emails:  make(map[string][]*models.Email),
	}
	return c
}

func (c *mailboxConn) add(folder string, email *models.Email) {
	email.Folder = folder
	c.emails[folder] = append(c.emails[folder], email)
}

func (c *mailboxConn) IMAPConnected() bool               { return true }
func (c *mailboxConn) ConnectIMAP(context.Context) error { return nil }

func (c *mailboxConn) ListFolders() ([]models.Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	folders := make([]models.Folder, len(c.folders))
	for i, name := range c.folders {
		folders[i] = models.Folder{Name: name}
	}
	return folders, nil
}

func (c *mailboxConn) SelectFolder(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.folders {
		if f == name {
			c.selected = name
			return nil
		}
	}
	return &mail.FolderNotFoundError{Name: name, Available: c.folders}
}

func (c *mailboxConn) Fetch(opts mail.FetchOptions) ([]*models.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*models.Email
	for _, e := range c.emails[c.selected] {
		if opts.UnreadOnly && e.Seen() {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (c *mailboxConn) CountMatching(opts mail.FetchOptions) (int, error) {
	emails, err := c.Fetch(opts)
	return len(emails), err
}

func (c *mailboxConn) SetFlag(uid uint32, flag string, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.emails[c.selected] {
		if e.UID != uid {
			continue
		}
		if value && !e.HasFlag(flag) {
			e.Flags = append(e.Flags, flag)
		}
		if !value {
			kept := e.Flags[:0]
			for _, f := range e.Flags {
				if f != flag {
					kept = append(kept, f)
				}
			}
			e.Flags = kept
		}
		return nil
	}
	return fmt.Errorf("uid %d not found in %s", uid, c.selected)
}

func (c *mailboxConn) Move(uid uint32, destination string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.emails[c.selected] {
		if e.UID == uid {
			c.emails[c.selected] = append(c.emails[c.selected][:i], c.emails[c.selected][i+1:]...)
			e.Folder = destination
			c.emails[destination] = append(c.emails[destination], e)
			return nil
		}
	}
	return fmt.Errorf("uid %d not found in %s", uid, c.selected)
}

func (c *mailboxConn) Delete(uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.emails[c.selected] {
		if e.UID == uid {
			c.emails[c.selected] = append(c.emails[c.selected][:i], c.emails[c.selected][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("uid %d not found in %s", uid, c.selected)
}

// fakeMailer captures sent messages.
type fakeMailer struct {
	connected bool
	sent      []mail.OutgoingEmail
	err       error
}

func (m *fakeMailer) Send(msg mail.OutgoingEmail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) SMTPConnected() bool { return m.connected }

func seededEmail(uid uint32, subject string, seen bool) *models.Email {
	flags := []string{}
	if seen {
		flags = append(flags, models.FlagSeen)
	}
	return &models.Email{
		UID:      uid,
		Subject:  subject,
		From:     models.Address{Name: "Alice", Address: "alice@example.com"},
		To:       []models.Address{{Address: "me@example.com"}},
		Date:     time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
		Flags:    flags,
		TextBody: "body of " + subject,
	}
}

func newTestTools(t *testing.T, conn *mailboxConn) *Tools {
	t.Helper()
	p := pipeline.New(conn, mail.NewGate(), true)
	book, err := addressbook.Open(filepath.Join(t.TempDir(), "address_book.json"))
	require.NoError(t, err)
	return NewTools(p, cache.New(""), book, &fakeMailer{connected: true}, t.TempDir())
}

func TestReadThenDeleteByIndex(t *testing.T) {
	conn := newMailboxConn("INBOX")
	conn.add("INBOX", seededEmail(101, "first", true))
	conn.add("INBOX", seededEmail(102, "second", true))
	conn.add("INBOX", seededEmail(103, "third", false))

	tools := newTestTools(t, conn)
	ctx := context.Background()

	out := tools.ReadEmails(ctx, "s1", ReadEmailsParams{FolderName: "INBOX", NumEmails: 3})
	assert.Contains(t, out, "Email #1 [READ] (UID: 101)")
	assert.Contains(t, out, "Email #2 [READ] (UID: 102)")
	assert.Contains(t, out, "Email #3 [UNREAD] (UID: 103)")

	out = tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailIndex: 2})
	assert.Equal(t, "Email #2 deleted successfully!", out)

	out = tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailIndex: 2})
	assert.Equal(t, "Error: Email #2 has already been deleted.", out)

	// Index 3 still points at the third email from the original read.
	out = tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailIndex: 3})
	assert.Equal(t, "Email #3 deleted successfully!", out)
}

func TestFlagEmailShowsOnNextFetch(t *testing.T) {
	conn := newMailboxConn("INBOX")
	conn.add("INBOX", seededEmail(201, "seen one", true))

	tools := newTestTools(t, conn)
	ctx := context.Background()

	out := tools.ReadEmails(ctx, "s1", ReadEmailsParams{FolderName: "INBOX"})
	assert.Contains(t, out, "[READ]")

	value := false
	out = tools.FlagEmail(ctx, "s1", FlagEmailParams{
		EmailRefParams: EmailRefParams{EmailIndex: 1},
		FlagType:       "read",
		Value:          &value,
	})
	assert.Equal(t, "Email #1 marked as unread!", out)

	out = tools.ReadEmails(ctx, "s1", ReadEmailsParams{FolderName: "INBOX"})
	assert.Contains(t, out, "Email #1 [UNREAD] (UID: 201)")
}

func TestMoveEmailResolvesAlias(t *testing.T) {
	conn := newMailboxConn("INBOX", "[Gmail]/Archive")
	conn.add("INBOX", seededEmail(12345, "to archive", true))

	tools := newTestTools(t, conn)
	ctx := context.Background()

	tools.ReadEmails(ctx, "s1", ReadEmailsParams{FolderName: "INBOX"})

	out := tools.MoveEmail(ctx, "s1", MoveEmailParams{
		EmailRefParams:    EmailRefParams{EmailUID: "12345"},
		DestinationFolder: "Archive",
	})
	assert.Equal(t, "Email #1 moved successfully to '[Gmail]/Archive'!", out)

	require.Len(t, conn.emails["[Gmail]/Archive"], 1)
	assert.Empty(t, conn.emails["INBOX"])
}

func TestAddressBookTools(t *testing.T) {
	tools := newTestTools(t, newMailboxConn("INBOX"))
	ctx := context.Background()

	out := tools.ModifyAddressBook(ctx, ModifyAddressBookParams{
		Operation: "add_people",
		Name:      "Musk",
		Emails:    []string{"musk@outlook.com"},
	})
	assert.Equal(t, "Person Musk added successfully with ID 1.", out)

	out = tools.SearchAddressBook(ctx, SearchAddressBookParams{Name: "Musk"})
	assert.Contains(t, out, `"id":"1"`)
	assert.Contains(t, out, `"name":"Musk"`)
	assert.Contains(t, out, "musk@outlook.com")

	out = tools.SearchAddressBook(ctx, SearchAddressBookParams{Name: "Bezos"})
	assert.Equal(t, "Error: Person with name Bezos not found.", out)

	out = tools.ModifyAddressBook(ctx, ModifyAddressBookParams{Operation: "teleport"})
	assert.Contains(t, out, "Error: Invalid operation teleport.")
}

func TestSessionIsolation(t *testing.T) {
	conn := newMailboxConn("INBOX", "Sent")
	conn.add("INBOX", seededEmail(301, "inbox mail", true))
	conn.add("Sent", seededEmail(401, "sent mail", true))

	tools := newTestTools(t, conn)
	ctx := context.Background()

	tools.ReadEmails(ctx, "alpha", ReadEmailsParams{FolderName: "INBOX"})
	tools.ReadEmails(ctx, "beta", ReadEmailsParams{FolderName: "Sent"})

	// Deleting #1 in alpha must not invalidate beta's #1.
	out := tools.DeleteEmail(ctx, "alpha", EmailRefParams{EmailIndex: 1})
	assert.Equal(t, "Email #1 deleted successfully!", out)

	out = tools.FlagEmail(ctx, "beta", FlagEmailParams{
		EmailRefParams: EmailRefParams{EmailIndex: 1},
		FlagType:       "seen",
	})
	assert.Equal(t, "Email #1 marked as read!", out)
}

func TestEmailRefValidation(t *testing.T) {
	conn := newMailboxConn("INBOX")
	conn.add("INBOX", seededEmail(501, "only", true))

	tools := newTestTools(t, conn)
	ctx := context.Background()
	tools.ReadEmails(ctx, "s1", ReadEmailsParams{FolderName: "INBOX"})

	t.Run("rejects both index and uid", func(t *testing.T) {
		out := tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailIndex: 1, EmailUID: "501"})
		assert.Equal(t, "Error: Provide either email_index or email_uid, not both.", out)
	})

	t.Run("rejects neither", func(t *testing.T) {
		out := tools.DeleteEmail(ctx, "s1", EmailRefParams{})
		assert.Equal(t, "Error: Either email_index or email_uid must be provided.", out)
	})

	t.Run("rejects out-of-range index", func(t *testing.T) {
		out := tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailIndex: 9})
		assert.Equal(t, "Error: Invalid email index 9. Valid range: 1-1.", out)
	})

	t.Run("rejects non-numeric uid", func(t *testing.T) {
		out := tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailUID: "abc"})
		assert.Equal(t, "Error: Invalid email_uid 'abc'. Must be a number.", out)
	})

	t.Run("unknown uid reports possibly deleted", func(t *testing.T) {
		out := tools.DeleteEmail(ctx, "s1", EmailRefParams{EmailUID: "999"})
		assert.Equal(t, "Error: Email with UID 999 not found. The email may have already been deleted.", out)
	})
}

func TestSendEmailTool(t *testing.T) {
	t.Run("sends and reports recipients", func(t *testing.T) {
		conn := newMailboxConn("INBOX")
		mailer := &fakeMailer{connected: true}
		p := pipeline.New(conn, mail.NewGate(), true)
		book, err := addressbook.Open(filepath.Join(t.TempDir(), "book.json"))
		require.NoError(t, err)
		tools := NewTools(p, cache.New(""), book, mailer, t.TempDir())

		out := tools.SendEmail(context.Background(), SendEmailParams{
			To:      "a@example.com, b@example.com",
			Subject: "Hi",
			Body:    "Hello there",
		})
		assert.Equal(t, "Email sent successfully to a@example.com, b@example.com!", out)
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, mailer.sent[0].To)
	})

	t.Run("reports disconnected smtp", func(t *testing.T) {
		conn := newMailboxConn("INBOX")
		p := pipeline.New(conn, mail.NewGate(), true)
		book, err := addressbook.Open(filepath.Join(t.TempDir(), "book.json"))
		require.NoError(t, err)
		tools := NewTools(p, cache.New(""), book, &fakeMailer{connected: false}, t.TempDir())

		out := tools.SendEmail(context.Background(), SendEmailParams{To: "a@example.com"})
		assert.Equal(t, "Error: SMTP service is not connected. Email sending is unavailable.", out)
	})
}

func TestInvalidDates(t *testing.T) {
	tools := newTestTools(t, newMailboxConn("INBOX"))

	out := tools.ReadEmails(context.Background(), "s1", ReadEmailsParams{StartDate: "03/01/2026"})
	assert.Equal(t, "Error: Invalid start_date format: 03/01/2026. Expected format: YYYY-MM-DD", out)

	out = tools.ReadEmails(context.Background(), "s1", ReadEmailsParams{EndDate: "yesterday"})
	assert.Equal(t, "Error: Invalid end_date format: yesterday. Expected format: YYYY-MM-DD", out)
}

func TestServiceError(t *testing.T) {
	assert.Equal(t,
		"Error: Mail service is not connected. Please check your IMAP settings.",
		serviceError(mail.ErrNotConnected))
	assert.Equal(t, "Error: boom", serviceError(errors.New("boom")))
}
