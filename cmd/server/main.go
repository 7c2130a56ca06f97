package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mailmind/mailmind/internal/addressbook"
	"github.com/mailmind/mailmind/internal/agent"
	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/cache"
	"github.com/mailmind/mailmind/internal/config"
	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/pipeline"
	ws "github.com/mailmind/mailmind/internal/websocket"
)

const startupConnectTimeout = 15 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sessionCache := cache.New(cfg.EmailsCachePath)
	if err := sessionCache.Load(); err != nil {
		log.Printf("Main: failed to load email cache, starting empty: %v", err)
	}

	book, err := addressbook.Open(cfg.AddressBookPath)
	if err != nil {
		log.Fatalf("Failed to open address book: %v", err)
	}

	conn := mail.NewConnection(mail.Credentials{
		IMAPHost:     cfg.IMAPServer,
		IMAPPort:     cfg.IMAPPort,
		SMTPHost:     cfg.SMTPServer,
		SMTPPort:     cfg.SMTPPort,
		Username:     cfg.Username,
		Password:     cfg.Password,
		ProxyURL:     cfg.Proxy,
		IMAPUseProxy: cfg.IMAPUseProxy,
		SMTPUseProxy: cfg.SMTPUseProxy,
		SMTPUseSSL:   cfg.SMTPUseSSL,
		IMAPUseTLS:   true,
	})
	defer conn.Close()

	// Connect in the background so a slow or unreachable mail server does
	// not block startup; the server comes up degraded and /api/health says so.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), startupConnectTimeout)
		defer cancel()
		if err := conn.Connect(ctx); err != nil {
			log.Printf("Main: initial mail connection failed, starting degraded: %v", err)
		}
	}()

	server := NewServer(cfg, conn, sessionCache, book)

	address := ":" + cfg.Port
	log.Printf("MailMind backend server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns the HTTP handler for the MailMind API server.
func NewServer(cfg *config.Config, conn *mail.Connection, sessionCache *cache.SessionCache, book *addressbook.Book) http.Handler {
	gate := mail.NewGate()
	pipe := pipeline.New(conn, gate, cfg.DontSetRead)
	tools := agent.NewTools(pipe, sessionCache, book, conn, cfg.AttachmentsDir)
	runtime := agent.NewDirectRuntime(tools)

	chatHub := ws.NewHub(10)
	emailsHub := ws.NewHub(10)

	emailsHandler := api.NewEmailsHandler(pipe, conn)
	addressBookHandler := api.NewAddressBookHandler(book)
	healthHandler := api.NewHealthHandler(conn)
	emailsWSHandler := api.NewEmailsWSHandler(pipe, emailsHub)
	chatWSHandler := api.NewChatWSHandler(runtime, sessionCache, chatHub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/health", http.HandlerFunc(healthHandler.Handle))
	mux.Handle("/api/emails/folders", http.HandlerFunc(emailsHandler.GetFolders))
	mux.Handle("/api/emails/send", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		emailsHandler.SendEmail(w, r)
	}))
	mux.Handle("/api/emails", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		emailsHandler.GetEmails(w, r)
	}))
	mux.Handle("/api/addressbook", http.HandlerFunc(addressBookHandler.Handle))
	mux.Handle("/ws/emails", http.HandlerFunc(emailsWSHandler.Handle))
	mux.Handle("/ws/chat", http.HandlerFunc(chatWSHandler.Handle))

	// Handle /api/emails/{uid} and /api/emails/{uid}/{action} patterns.
	mux.Handle("/api/emails/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/emails/")
		if path == "" || path == r.URL.Path {
			http.Error(w, "uid is required", http.StatusBadRequest)
			return
		}
		emailsHandler.HandleEmailByUID(w, r)
	}))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MailMind API is running")
}
