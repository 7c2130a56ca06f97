package mail

import (
	"github.com/emersion/go-imap"
)

// SetFlag adds or removes a flag on the message with the given UID in the
// currently selected folder. Caller must hold the gate and must have
// selected the folder the UID belongs to.
func (c *Connection) SetFlag(uid uint32, flag string, value bool) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	op := imap.FlagsOp(imap.AddFlags)
	if !value {
		op = imap.RemoveFlags
	}
	item := imap.FormatFlagsOp(op, true)

	if err := client.UidStore(seqSet, item, []interface{}{flag}, nil); err != nil {
		return &ProtocolError{Op: "set flag", Err: err}
	}
	return nil
}

// Move moves the message with the given UID from the currently selected
// folder to the destination folder. Servers without the MOVE extension get
// the classic COPY + \Deleted + EXPUNGE sequence. Caller must hold the gate.
func (c *Connection) Move(uid uint32, destination string) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	if ok, _ := client.Support("MOVE"); ok {
		if err := client.UidMove(seqSet, destination); err != nil {
			return &ProtocolError{Op: "move", Err: err}
		}
		return nil
	}

	if err := client.UidCopy(seqSet, destination); err != nil {
		return &ProtocolError{Op: "move", Err: err}
	}
	if err := c.deleteMarked(seqSet); err != nil {
		return &ProtocolError{Op: "move", Err: err}
	}
	return nil
}

// Delete removes the message with the given UID from the currently selected
// folder. Caller must hold the gate.
func (c *Connection) Delete(uid uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	if err := c.deleteMarked(seqSet); err != nil {
		return &ProtocolError{Op: "delete", Err: err}
	}
	return nil
}

// deleteMarked flags the messages \Deleted and expunges the folder.
func (c *Connection) deleteMarked(seqSet *imap.SeqSet) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := client.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return err
	}
	return client.Expunge(nil)
}
