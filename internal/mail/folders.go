package mail

import (
	"github.com/emersion/go-imap"

	"github.com/mailmind/mailmind/internal/models"
)

// ListFolders lists all folders on the IMAP server.
// Caller must hold the gate.
func (c *Connection) ListFolders() ([]models.Folder, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- client.List("", "*", mailboxes)
	}()

	var folders []models.Folder
	for m := range mailboxes {
		folders = append(folders, models.Folder{
			Name:  m.Name,
			Flags: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, &ProtocolError{Op: "list folders", Err: err}
	}

	return folders, nil
}

// SelectFolder selects the folder for subsequent fetch/store operations.
// The caller is responsible for provider-specific aliasing (such as retrying
// with a "[Gmail]/" prefix); this method fails plainly when the name does
// not exist. Caller must hold the gate.
func (c *Connection) SelectFolder(name string) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	if _, err := client.Select(name, false); err != nil {
		return &FolderNotFoundError{Name: name}
	}
	return nil
}
