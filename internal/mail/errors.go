package mail

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned when an operation requires a live IMAP or SMTP
// session and none is available. Callers are expected to degrade gracefully
// rather than treat this as fatal.
var ErrNotConnected = errors.New("mail service is not connected")

// ConnectError wraps a failure to establish an IMAP or SMTP session.
type ConnectError struct {
	Protocol string // "imap" or "smtp"
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s server: %v", e.Protocol, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// FolderNotFoundError is returned when a requested folder does not exist,
// after any alias fallback the caller attempted. Available lists the folders
// the server reported, to aid recovery.
type FolderNotFoundError struct {
	Name      string
	Available []string
}

func (e *FolderNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("folder %q not found", e.Name)
	}
	return fmt.Sprintf("folder %q not found. Available folders: %s", e.Name, strings.Join(e.Available, ", "))
}

// ProtocolError wraps a server rejection of an IMAP command, carrying the
// operation name and the underlying reason.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
