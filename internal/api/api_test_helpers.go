package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
)

// stubConn is an in-memory MailConn for handler tests. Folder contents are
// seeded up front; mutating operations rewrite them like a live server.
type stubConn struct {
	mu       sync.Mutex
	folders  []models.Folder
	emails   map[string][]*models.Email
	selected string

	imapUp bool
	smtpUp bool

	sent []mail.OutgoingEmail
}

func newStubConn(folderNames ...string) *stubConn {
	folders := make([]models.Folder, len(folderNames))
	for i, name := range folderNames {
		folders[i] = models.Folder{Name: name}
	}
	return &stubConn{
		folders: folders,
		emails:  make(map[string][]*models.Email),
		imapUp:  true,
		smtpUp:  true,
	}
}

func (c *stubConn) seed(folder string, emails ...*models.Email) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range emails {
		e.Folder = folder
	}
	c.emails[folder] = append(c.emails[folder], emails...)
}

func (c *stubConn) IMAPConnected() bool               { return c.imapUp }
func (c *stubConn) SMTPConnected() bool               { return c.smtpUp }
func (c *stubConn) ConnectIMAP(context.Context) error { return nil }

func (c *stubConn) ListFolders() ([]models.Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Folder(nil), c.folders...), nil
}

func (c *stubConn) SelectFolder(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.folders {
		if f.Name == name {
			c.selected = name
			return nil
		}
	}
	available := make([]string, len(c.folders))
	for i, f := range c.folders {
		available[i] = f.Name
	}
	return &mail.FolderNotFoundError{Name: name, Available: available}
}

func (c *stubConn) Fetch(opts mail.FetchOptions) ([]*models.Email, error) {
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

func (c *stubConn) CountMatching(opts mail.FetchOptions) (int, error) {
	emails, err := c.Fetch(opts)
	return len(emails), err
}

func (c *stubConn) SetFlag(uid uint32, flag string, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.emails[c.selected] {
		if e.UID != uid {
			continue
		}
		if value && !e.HasFlag(flag) {
			e.Flags = append(e.Flags, flag)
		} else if !value {
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
	return &mail.ProtocolError{Op: "store", Err: fmt.Errorf("uid %d not found", uid)}
}

func (c *stubConn) Move(uid uint32, destination string) error {
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
	return &mail.ProtocolError{Op: "move", Err: fmt.Errorf("uid %d not found", uid)}
}

func (c *stubConn) Delete(uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.emails[c.selected] {
		if e.UID == uid {
			c.emails[c.selected] = append(c.emails[c.selected][:i], c.emails[c.selected][i+1:]...)
			return nil
		}
	}
	return &mail.ProtocolError{Op: "delete", Err: fmt.Errorf("uid %d not found", uid)}
}

func (c *stubConn) Send(msg mail.OutgoingEmail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.smtpUp {
		return mail.ErrNotConnected
	}
	c.sent = append(c.sent, msg)
	return nil
}
