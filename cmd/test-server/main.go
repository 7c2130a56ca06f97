// Command test-server runs a fully self-contained MailMind instance against
// in-memory IMAP and SMTP servers seeded with demo data. Useful for frontend
// development and manual testing without real mail credentials.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mailmind/mailmind/internal/addressbook"
	"github.com/mailmind/mailmind/internal/agent"
	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/cache"
	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/pipeline"
	"github.com/mailmind/mailmind/internal/testutil"
	ws "github.com/mailmind/mailmind/internal/websocket"
)

const (
	testUsername = "username"
	testPassword = "password"
	httpPort     = "8000"
)

func main() {
	imapServer, smtpServer, err := startMailServers()
	if err != nil {
		log.Fatalf("Failed to start mail servers: %v", err)
	}
	defer imapServer.Close()
	defer smtpServer.Close()

	if err := seedTestData(imapServer); err != nil {
		log.Fatalf("Failed to seed test data: %v", err)
	}

	dataDir, err := os.MkdirTemp("", "mailmind-test-server")
	if err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	defer func() {
		_ = os.RemoveAll(dataDir)
	}()

	server, conn, err := buildServer(imapServer, smtpServer, dataDir)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}
	defer conn.Close()

	httpServer := &http.Server{Addr: ":" + httpPort, Handler: server}

	go func() {
		log.Printf("Test server running on http://localhost:%s (IMAP %s, SMTP %s)",
			httpPort, imapServer.Address, smtpServer.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func startMailServers() (*testutil.TestIMAPServer, *testutil.TestSMTPServer, error) {
	log.Println("Starting test IMAP server...")
	imapServer, err := testutil.NewTestIMAPServerForE2E()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start test IMAP server: %w", err)
	}
	log.Printf("Test IMAP server started on %s", imapServer.Address)

	log.Println("Starting test SMTP server...")
	smtpServer, err := testutil.NewTestSMTPServerForE2E()
	if err != nil {
		imapServer.Close()
		return nil, nil, fmt.Errorf("failed to start test SMTP server: %w", err)
	}
	log.Printf("Test SMTP server started on %s", smtpServer.Address)

	return imapServer, smtpServer, nil
}

// seedTestData creates the common folder set and a handful of messages.
func seedTestData(imapServer *testutil.TestIMAPServer) error {
	client, err := imapServer.ConnectForE2E()
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer func() {
		_ = client.Logout()
	}()

	for _, folder := range []string{"Sent", "Drafts", "Archive", "[Gmail]/Trash"} {
		if err := client.Create(folder); err != nil && !strings.Contains(err.Error(), "exists") {
			log.Printf("Warning: Failed to create folder %s: %v", folder, err)
		}
	}

	messages := []struct {
		messageID string
		subject   string
		from      string
		body      string
		age       time.Duration
		seen      bool
	}{
		{
			messageID: "<welcome@test.local>",
			subject:   "Welcome to MailMind",
			from:      "MailMind Team <hello@mailmind.example>",
			body:      "Thanks for trying MailMind. Ask the assistant to read your emails.",
			age:       72 * time.Hour,
			seen:      true,
		},
		{
			messageID: "<meeting@test.local>",
			subject:   "Project sync moved to Thursday",
			from:      "Dana Scheduler <dana@example.com>",
			body:      "The weekly sync moves to Thursday 10:00. Same link as always.",
			age:       24 * time.Hour,
		},
		{
			messageID: "<invoice@test.local>",
			subject:   "Invoice #2041 attached",
			from:      "Billing <billing@vendor.example>",
			body:      "Please find invoice #2041 for March. Payment due in 30 days.",
			age:       3 * time.Hour,
		},
	}

	if _, err := client.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	for _, m := range messages {
		date := time.Now().Add(-m.age)
		raw := fmt.Sprintf("Message-ID: %s\r\nDate: %s\r\nFrom: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
			m.messageID, date.Format(time.RFC1123Z), m.from, testUsername+"@test.local", m.subject, m.body)

		var flags []string
		if m.seen {
			flags = []string{"\\Seen"}
		}
		if err := client.Append("INBOX", flags, date, strings.NewReader(raw)); err != nil {
			return fmt.Errorf("failed to append message %s: %w", m.messageID, err)
		}
	}

	log.Printf("Seeded %d messages into INBOX", len(messages))
	return nil
}

// buildServer wires the full API stack against the test mail servers.
func buildServer(imapServer *testutil.TestIMAPServer, smtpServer *testutil.TestSMTPServer, dataDir string) (http.Handler, *mail.Connection, error) {
	imapHost, imapPort, err := splitHostPort(imapServer.Address)
	if err != nil {
		return nil, nil, err
	}
	smtpHost, smtpPort, err := splitHostPort(smtpServer.Address)
	if err != nil {
		return nil, nil, err
	}

	conn := mail.NewConnection(mail.Credentials{
		IMAPHost:   imapHost,
		IMAPPort:   imapPort,
		SMTPHost:   smtpHost,
		SMTPPort:   smtpPort,
		Username:   testUsername,
		Password:   testPassword,
		SMTPUseSSL: false,
		IMAPUseTLS: false,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to connect to test mail servers: %w", err)
	}

	sessionCache := cache.New(dataDir + "/.emails_cache.json")
	book, err := addressbook.Open(dataDir + "/address_book.json")
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open address book: %w", err)
	}

	gate := mail.NewGate()
	pipe := pipeline.New(conn, gate, true)
	tools := agent.NewTools(pipe, sessionCache, book, conn, dataDir+"/attachments")
	runtime := agent.NewDirectRuntime(tools)

	chatHub := ws.NewHub(10)
	emailsHub := ws.NewHub(10)

	emailsHandler := api.NewEmailsHandler(pipe, conn)
	addressBookHandler := api.NewAddressBookHandler(book)
	healthHandler := api.NewHealthHandler(conn)
	emailsWSHandler := api.NewEmailsWSHandler(pipe, emailsHub)
	chatWSHandler := api.NewChatWSHandler(runtime, sessionCache, chatHub)

	mux := http.NewServeMux()
	mux.Handle("/api/health", http.HandlerFunc(healthHandler.Handle))
	mux.Handle("/api/emails/folders", http.HandlerFunc(emailsHandler.GetFolders))
	mux.Handle("/api/emails/send", http.HandlerFunc(emailsHandler.SendEmail))
	mux.Handle("/api/emails", http.HandlerFunc(emailsHandler.GetEmails))
	mux.Handle("/api/emails/", http.HandlerFunc(emailsHandler.HandleEmailByUID))
	mux.Handle("/api/addressbook", http.HandlerFunc(addressBookHandler.Handle))
	mux.Handle("/ws/emails", http.HandlerFunc(emailsWSHandler.Handle))
	mux.Handle("/ws/chat", http.HandlerFunc(chatWSHandler.Handle))

	return mux, conn, nil
}

func splitHostPort(address string) (string, int, error) {
	i := strings.LastIndex(address, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("invalid address %q", address)
	}
	var port int
	if _, err := fmt.Sscanf(address[i+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", address, err)
	}
	return address[:i], port, nil
}
