// Package pipeline orchestrates folder listing, selection and email fetching
// over the shared mail connection. Both the synchronous tool surface and the
// streaming UI surface go through it, so the select+fetch pairing is done
// under the gate in exactly one place.
package pipeline

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
)

// connectTimeout bounds the lazy reconnect attempt; on timeout the caller
// proceeds in degraded mode instead of blocking a chat turn.
const connectTimeout = 10 * time.Second

// streamPause is the delay between folders when streaming, to avoid
// saturating the transport.
const streamPause = 200 * time.Millisecond

// MailConn is the slice of the connection the pipeline drives. Satisfied by
// *mail.Connection; faked in tests.
type MailConn interface {
	IMAPConnected() bool
	ConnectIMAP(ctx context.Context) error
	ListFolders() ([]models.Folder, error)
	SelectFolder(name string) error
	Fetch(opts mail.FetchOptions) ([]*models.Email, error)
	CountMatching(opts mail.FetchOptions) (int, error)
	SetFlag(uid uint32, flag string, value bool) error
	Move(uid uint32, destination string) error
	Delete(uid uint32) error
}

// StreamSink receives progressive folder-loading events.
type StreamSink interface {
	Folders(folders []models.Folder)
	FolderLoading(name string)
	FolderLoaded(name string, emails []*models.Email, unreadCount int)
	FolderError(name string, err error)
}

// FetchRequest describes one read of a folder.
type FetchRequest struct {
	Folder     string // empty selects the first folder the server lists
	NumEmails  int
	UnreadOnly bool
	Since      time.Time
	Before     time.Time
	From       []string
}

type folderState struct {
	emails      []*models.Email
	unreadCount int
}

// Pipeline owns the fetch orchestration state: the connection, the gate
// serializing it, and the per-folder result caches.
type Pipeline struct {
	conn        MailConn
	gate        *mail.Gate
	dontSetRead bool

	mu      sync.Mutex
	folders map[string]*folderState
}

// New creates a Pipeline over the given connection and gate. dontSetRead
// fetches with peek so reading does not flip messages to seen.
func New(conn MailConn, gate *mail.Gate, dontSetRead bool) *Pipeline {
	return &Pipeline{
		conn:        conn,
		gate:        gate,
		dontSetRead: dontSetRead,
		folders:     make(map[string]*folderState),
	}
}

// EnsureConnection lazily reconnects when the connection handle is empty,
// bounded by a timeout. Returns ErrNotConnected when the attempt fails; the
// caller reports degraded service instead of hanging.
func (p *Pipeline) EnsureConnection(ctx context.Context) error {
	if p.conn.IMAPConnected() {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := p.conn.ConnectIMAP(connectCtx); err != nil {
		log.Printf("Pipeline: reconnect failed, operating in degraded mode: %v", err)
		return mail.ErrNotConnected
	}
	return nil
}

// ListFolders returns all folders the server reports.
func (p *Pipeline) ListFolders(ctx context.Context) ([]models.Folder, error) {
	if err := p.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	var folders []models.Folder
	err := p.gate.Do(func() error {
		var err error
		folders, err = p.conn.ListFolders()
		return err
	})
	return folders, err
}

// FetchFolder selects and fetches one folder under a single gate hold, so no
// other session can change the selected folder between the select and the
// fetch. Returns the fetched emails and the resolved folder name (after any
// "[Gmail]/" alias fallback).
func (p *Pipeline) FetchFolder(ctx context.Context, req FetchRequest) ([]*models.Email, string, error) {
	if err := p.EnsureConnection(ctx); err != nil {
		return nil, "", err
	}

	var (
		emails   []*models.Email
		resolved string
	)
	err := p.gate.Do(func() error {
		folders, err := p.conn.ListFolders()
		if err != nil {
			return err
		}

		resolved, err = resolveFolderName(req.Folder, folders)
		if err != nil {
			return err
		}

		if err := p.conn.SelectFolder(resolved); err != nil {
			return err
		}

		emails, err = p.conn.Fetch(mail.FetchOptions{
			UnreadOnly: req.UnreadOnly,
			Since:      req.Since,
			Before:     req.Before,
			From:       req.From,
			Limit:      req.NumEmails,
			Peek:       p.dontSetRead,
		})
		return err
	})
	if err != nil {
		return nil, resolved, err
	}

	p.rememberFolder(resolved, emails)
	return emails, resolved, nil
}

// Delete removes the message from its folder.
func (p *Pipeline) Delete(ctx context.Context, folder string, uid uint32) error {
	return p.inFolder(ctx, folder, func() error {
		return p.conn.Delete(uid)
	})
}

// SetFlag sets or clears the flag on the message in its folder.
func (p *Pipeline) SetFlag(ctx context.Context, folder string, uid uint32, flag string, value bool) error {
	return p.inFolder(ctx, folder, func() error {
		return p.conn.SetFlag(uid, flag, value)
	})
}

// Move moves the message to the destination folder, resolving provider
// aliases for the destination. Returns the resolved destination name.
func (p *Pipeline) Move(ctx context.Context, folder string, uid uint32, destination string) (string, error) {
	if err := p.EnsureConnection(ctx); err != nil {
		return "", err
	}

	var resolved string
	err := p.gate.Do(func() error {
		folders, err := p.conn.ListFolders()
		if err != nil {
			return err
		}

		resolved, err = resolveFolderName(destination, folders)
		if err != nil {
			return err
		}

		if err := p.conn.SelectFolder(folder); err != nil {
			return err
		}
		return p.conn.Move(uid, resolved)
	})
	return resolved, err
}

// inFolder runs fn with the folder selected, holding the gate throughout.
func (p *Pipeline) inFolder(ctx context.Context, folder string, fn func() error) error {
	if err := p.EnsureConnection(ctx); err != nil {
		return err
	}

	return p.gate.Do(func() error {
		if err := p.conn.SelectFolder(folder); err != nil {
			return err
		}
		return fn()
	})
}

// StreamFolders walks every selectable folder in priority order, fetching
// each one and emitting results to the sink as they arrive. A per-folder
// error is reported and the walk continues; only connection-level failures
// abort the stream.
func (p *Pipeline) StreamFolders(ctx context.Context, sink StreamSink, limitPerFolder int) error {
	if err := p.EnsureConnection(ctx); err != nil {
		return err
	}

	var folders []models.Folder
	err := p.gate.Do(func() error {
		var err error
		folders, err = p.conn.ListFolders()
		return err
	})
	if err != nil {
		return err
	}

	selectable := make([]models.Folder, 0, len(folders))
	for _, f := range folders {
		if f.Selectable() {
			selectable = append(selectable, f)
		}
	}
	OrderFolders(selectable)

	sink.Folders(selectable)

	for _, folder := range selectable {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sink.FolderLoading(folder.Name)

		var (
			emails []*models.Email
			unread int
		)
		err := p.gate.Do(func() error {
			if err := p.conn.SelectFolder(folder.Name); err != nil {
				return err
			}
			var err error
			emails, err = p.conn.Fetch(mail.FetchOptions{
				Limit:   limitPerFolder,
				Reverse: true,
				Peek:    true,
			})
			if err != nil {
				return err
			}
			unread, err = p.conn.CountMatching(mail.FetchOptions{UnreadOnly: true})
			return err
		})
		if err != nil {
			log.Printf("Pipeline: failed to load folder %s: %v", folder.Name, err)
			sink.FolderError(folder.Name, err)
			continue
		}

		p.rememberFolder(folder.Name, emails)
		p.setUnread(folder.Name, unread)
		sink.FolderLoaded(folder.Name, emails, unread)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamPause):
		}
	}

	return nil
}

// CachedFolder returns the last fetched emails and unread count for a
// folder, if any. The cache is rebuilt in full on every fetch of the folder.
func (p *Pipeline) CachedFolder(name string) ([]*models.Email, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.folders[name]
	if !ok {
		return nil, 0, false
	}
	return state.emails, state.unreadCount, true
}

func (p *Pipeline) rememberFolder(name string, emails []*models.Email) {
	unread := 0
	for _, e := range emails {
		if !e.Seen() {
			unread++
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.folders[name] = &folderState{emails: emails, unreadCount: unread}
}

func (p *Pipeline) setUnread(name string, unread int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.folders[name]; ok {
		state.unreadCount = unread
	}
}

// resolveFolderName picks the folder to use: the first listed folder when
// name is empty, the name itself when it exists, or the "[Gmail]/"-prefixed
// alias. Anything else is a FolderNotFoundError carrying the available list.
func resolveFolderName(name string, folders []models.Folder) (string, error) {
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.Name
	}

	if name == "" {
		if len(names) == 0 {
			return "", &mail.FolderNotFoundError{Name: name}
		}
		return names[0], nil
	}

	for _, n := range names {
		if n == name {
			return name, nil
		}
	}

	aliased := "[Gmail]/" + name
	for _, n := range names {
		if n == aliased {
			return aliased, nil
		}
	}

	return "", &mail.FolderNotFoundError{Name: name, Available: names}
}

// Folder priorities for UI streaming: INBOX first, the common special
// folders next, provider meta-folders like "[Gmail]/All Mail" after those,
// everything else last. Ties keep original server order.
var specialFolderPriorities = []struct {
	priority int
	names    []string
}{
	{10, []string{"sent", "sent mail", "sent messages", "sent items"}},
	{20, []string{"drafts", "draft"}},
	{30, []string{"junk", "spam", "junk e-mail", "bulk mail"}},
	{40, []string{"trash", "deleted", "deleted items", "deleted messages", "bin"}},
	{50, []string{"archive", "archives"}},
	{60, []string{"starred", "flagged"}},
	{70, []string{"important"}},
}

// FolderPriority returns the streaming priority for a folder name; lower
// loads first.
func FolderPriority(name string) int {
	if strings.EqualFold(name, "INBOX") {
		return 0
	}

	base := name
	if strings.HasPrefix(base, "[") {
		if i := strings.Index(base, "]/"); i >= 0 {
			base = base[i+2:]
		}
	}
	for _, entry := range specialFolderPriorities {
		for _, candidate := range entry.names {
			if strings.EqualFold(base, candidate) {
				return entry.priority
			}
		}
	}

	if strings.HasPrefix(name, "[") {
		return 100
	}
	return 200
}

// OrderFolders sorts folders by priority, preserving server order within a
// priority tier.
func OrderFolders(folders []models.Folder) {
	sort.SliceStable(folders, func(i, j int) bool {
		return FolderPriority(folders[i].Name) < FolderPriority(folders[j].Name)
	})
}
