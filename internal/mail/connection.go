package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"golang.org/x/net/proxy"
)

// connectTimeout bounds dialing and TLS handshakes for both protocols.
const connectTimeout = 10 * time.Second

// Credentials holds everything needed to open the IMAP and SMTP sessions for
// one account. Immutable once a connection is established.
type Credentials struct {
	IMAPHost     string
	IMAPPort     int
	SMTPHost     string
	SMTPPort     int
	Username     string
	Password     string
	ProxyURL     string // SOCKS proxy URL, empty for direct connections
	IMAPUseProxy bool
	SMTPUseProxy bool
	SMTPUseSSL   bool // implicit TLS; otherwise STARTTLS is negotiated when offered
	IMAPUseTLS   bool
}

// Connection owns exactly one authenticated IMAP session and one
// authenticated SMTP session to a single account.
//
// IMAP methods must only be called while holding the Gate the connection was
// created with; the Connection itself does no locking for them. SMTP sending
// has its own mutex since it never contends with IMAP traffic.
type Connection struct {
	creds Credentials

	mu   sync.Mutex // guards the handles during connect/close
	imap *imapclient.Client

	smtpMu sync.Mutex
	smtp   *smtp.Client
}

// NewConnection creates an unconnected Connection for the given account.
func NewConnection(creds Credentials) *Connection {
	return &Connection{creds: creds}
}

// Connect establishes both sessions. A failure on either side is non-fatal
// for the other: email reading and sending degrade independently. Returns an
// error only if both sides failed.
func (c *Connection) Connect(ctx context.Context) error {
	imapErr := c.ConnectIMAP(ctx)
	smtpErr := c.ConnectSMTP(ctx)

	if imapErr != nil && smtpErr != nil {
		return fmt.Errorf("imap: %v; smtp: %v", imapErr, smtpErr)
	}
	return nil
}

// ConnectIMAP dials and authenticates the IMAP session. If a proxy is
// configured it is tried first, with one fallback to a direct connection.
func (c *Connection) ConnectIMAP(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imap != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.creds.IMAPHost, c.creds.IMAPPort)

	conn, err := c.dial(ctx, addr, c.creds.IMAPUseProxy)
	if err != nil {
		return &ConnectError{Protocol: "imap", Err: err}
	}

	if c.creds.IMAPUseTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: c.creds.IMAPHost})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return &ConnectError{Protocol: "imap", Err: fmt.Errorf("tls handshake: %w", err)}
		}
		conn = tlsConn
	}

	client, err := imapclient.New(conn)
	if err != nil {
		_ = conn.Close()
		return &ConnectError{Protocol: "imap", Err: err}
	}

	if err := client.Login(c.creds.Username, c.creds.Password); err != nil {
		_ = client.Logout()
		return &ConnectError{Protocol: "imap", Err: fmt.Errorf("failed to authenticate: %w", err)}
	}

	c.imap = client
	log.Printf("MailConnection: IMAP session established for %s", c.creds.Username)
	return nil
}

// ConnectSMTP dials and authenticates the SMTP session. STARTTLS is
// negotiated when the session is not already using implicit TLS and the
// server advertises the extension.
func (c *Connection) ConnectSMTP(ctx context.Context) error {
	c.smtpMu.Lock()
	defer c.smtpMu.Unlock()

	if c.smtp != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.creds.SMTPHost, c.creds.SMTPPort)

	conn, err := c.dial(ctx, addr, c.creds.SMTPUseProxy)
	if err != nil {
		return &ConnectError{Protocol: "smtp", Err: err}
	}

	if c.creds.SMTPUseSSL {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: c.creds.SMTPHost})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return &ConnectError{Protocol: "smtp", Err: fmt.Errorf("tls handshake: %w", err)}
		}
		conn = tlsConn
	}

	client := smtp.NewClient(conn)
	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return &ConnectError{Protocol: "smtp", Err: err}
	}

	if !c.creds.SMTPUseSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: c.creds.SMTPHost}); err != nil {
				_ = client.Close()
				return &ConnectError{Protocol: "smtp", Err: fmt.Errorf("starttls: %w", err)}
			}
		}
	}

	if ok, _ := client.Extension("AUTH"); ok {
		auth := sasl.NewPlainClient("", c.creds.Username, c.creds.Password)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return &ConnectError{Protocol: "smtp", Err: fmt.Errorf("failed to authenticate: %w", err)}
		}
	}

	c.smtp = client
	log.Printf("MailConnection: SMTP session established for %s", c.creds.Username)
	return nil
}

// dial opens a raw TCP connection, tunneling through the configured SOCKS
// proxy when requested. A proxy failure falls back once to a direct dial
// before giving up.
func (c *Connection) dial(ctx context.Context, addr string, useProxy bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: connectTimeout}

	if useProxy && c.creds.ProxyURL != "" {
		conn, err := c.dialProxy(ctx, addr, dialer)
		if err == nil {
			return conn, nil
		}
		log.Printf("MailConnection: proxy dial to %s failed (%v), falling back to direct connection", addr, err)
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

func (c *Connection) dialProxy(ctx context.Context, addr string, forward *net.Dialer) (net.Conn, error) {
	proxyURL, err := url.Parse(c.creds.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	proxyDialer, err := proxy.FromURL(proxyURL, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
	}

	if contextDialer, ok := proxyDialer.(proxy.ContextDialer); ok {
		return contextDialer.DialContext(ctx, "tcp", addr)
	}
	return proxyDialer.Dial("tcp", addr)
}

// IMAPConnected reports whether a live IMAP session is available.
func (c *Connection) IMAPConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imap != nil
}

// SMTPConnected reports whether a live SMTP session is available.
func (c *Connection) SMTPConnected() bool {
	c.smtpMu.Lock()
	defer c.smtpMu.Unlock()
	return c.smtp != nil
}

// Username returns the account's sending address.
func (c *Connection) Username() string {
	return c.creds.Username
}

// client returns the IMAP client or ErrNotConnected.
func (c *Connection) client() (*imapclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.imap == nil {
		return nil, ErrNotConnected
	}
	return c.imap, nil
}

// Close logs out both sessions.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.imap != nil {
		if err := c.imap.Logout(); err != nil {
			log.Printf("MailConnection: IMAP logout failed: %v", err)
		}
		c.imap = nil
	}
	c.mu.Unlock()

	c.smtpMu.Lock()
	if c.smtp != nil {
		if err := c.smtp.Quit(); err != nil {
			log.Printf("MailConnection: SMTP quit failed: %v", err)
		}
		c.smtp = nil
	}
	c.smtpMu.Unlock()
}
