package mail

import (
	"time"

	"github.com/emersion/go-imap"

	"github.com/mailmind/mailmind/internal/models"
)

// FetchOptions describe one search/fetch against the currently selected
// folder. The zero value fetches every message in natural server order.
type FetchOptions struct {
	UnreadOnly bool
	Since      time.Time // received on or after, zero to skip
	Before     time.Time // received before, zero to skip
	From       []string  // sender address(es); multiple values are OR'd
	Limit      int       // 0 for unlimited
	Reverse    bool      // most recent first
	Peek       bool      // do not mark fetched messages as seen
}

// buildSearchCriteria translates FetchOptions into an IMAP search tree.
func buildSearchCriteria(opts FetchOptions) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()

	if opts.UnreadOnly {
		criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
	}
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}
	if !opts.Before.IsZero() {
		criteria.Before = opts.Before
	}

	switch len(opts.From) {
	case 0:
	case 1:
		criteria.Header.Add("From", opts.From[0])
	default:
		// OR in IMAP search is binary, so multiple senders nest pairwise.
		or := fromCriteria(opts.From[0])
		for _, sender := range opts.From[1:] {
			next := imap.NewSearchCriteria()
			next.Or = [][2]*imap.SearchCriteria{{or, fromCriteria(sender)}}
			or = next
		}
		criteria.Or = or.Or
	}

	return criteria
}

func fromCriteria(sender string) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	c.Header.Add("From", sender)
	return c
}

// Fetch searches the currently selected folder and fetches the matching
// messages with envelopes, flags and full bodies. Caller must select the
// folder first and must hold the gate for the whole select+fetch pair.
func (c *Connection) Fetch(opts FetchOptions) ([]*models.Email, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	uids, err := client.UidSearch(buildSearchCriteria(opts))
	if err != nil {
		return nil, &ProtocolError{Op: "search", Err: err}
	}

	if opts.Reverse {
		for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
			uids[i], uids[j] = uids[j], uids[i]
		}
	}
	if opts.Limit > 0 && len(uids) > opts.Limit {
		uids = uids[:opts.Limit]
	}

	if len(uids) == 0 {
		return []*models.Email{}, nil
	}

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &imap.BodySectionName{Peek: opts.Peek}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- client.UidFetch(seqSet, items, messages)
	}()

	byUID := make(map[uint32]*models.Email, len(uids))
	for msg := range messages {
		email := parseMessage(msg, c.selectedName(msg), section)
		if email != nil {
			byUID[email.UID] = email
		}
	}

	if err := <-done; err != nil {
		return nil, &ProtocolError{Op: "fetch", Err: err}
	}

	// The server streams messages in mailbox order; reassemble in the order
	// the search (and any reversal/limit) decided on.
	result := make([]*models.Email, 0, len(uids))
	for _, uid := range uids {
		if email, ok := byUID[uid]; ok {
			result = append(result, email)
		}
	}

	return result, nil
}

// CountMatching returns how many messages in the selected folder match the
// criteria, without fetching bodies. Caller must hold the gate.
func (c *Connection) CountMatching(opts FetchOptions) (int, error) {
	client, err := c.client()
	if err != nil {
		return 0, err
	}

	uids, err := client.UidSearch(buildSearchCriteria(opts))
	if err != nil {
		return 0, &ProtocolError{Op: "search", Err: err}
	}
	return len(uids), nil
}

// selectedName records the folder a message was fetched from. go-imap keeps
// the selected mailbox on the client; fall back to empty when unknown.
func (c *Connection) selectedName(_ *imap.Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.imap == nil {
		return ""
	}
	if mbox := c.imap.Mailbox(); mbox != nil {
		return mbox.Name
	}
	return ""
}
