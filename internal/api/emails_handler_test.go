package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
	"github.com/mailmind/mailmind/internal/pipeline"
)

func newTestEmailsHandler(conn *stubConn) *EmailsHandler {
	pipe := pipeline.New(conn, mail.NewGate(), true)
	return NewEmailsHandler(pipe, conn)
}

func apiTestEmail(uid uint32, subject string, seen bool) *models.Email {
	flags := []string{}
	if seen {
		flags = append(flags, models.FlagSeen)
	}
	return &models.Email{
		UID:     uid,
		Subject: subject,
		From:    models.Address{Name: "Alice", Address: "alice@example.com"},
		To:      []models.Address{{Address: "bob@example.com"}},
		Date:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Flags:   flags,
	}
}

func TestEmailsHandler_GetFolders(t *testing.T) {
	conn := newStubConn("Work", "INBOX", "Sent")
	handler := newTestEmailsHandler(conn)

	req := httptest.NewRequest("GET", "/api/emails/folders", nil)
	rr := httptest.NewRecorder()
	handler.GetFolders(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var folders []struct {
		Name       string `json:"name"`
		Selectable bool   `json:"selectable"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&folders); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	got := make([]string, len(folders))
	for i, f := range folders {
		got[i] = f.Name
	}
	want := []string{"INBOX", "Sent", "Work"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected folder order %v, got %v", want, got)
	}
	for _, f := range folders {
		if !f.Selectable {
			t.Errorf("Expected folder %s to be selectable", f.Name)
		}
	}
}

func TestEmailsHandler_GetEmails(t *testing.T) {
	conn := newStubConn("INBOX", "Sent")
	conn.seed("INBOX",
		apiTestEmail(1, "First", true),
		apiTestEmail(2, "Second", false),
		apiTestEmail(3, "Third", false),
	)
	handler := newTestEmailsHandler(conn)

	t.Run("defaults to first folder", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/emails", nil)
		rr := httptest.NewRecorder()
		handler.GetEmails(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Folder string      `json:"folder"`
			Count  int         `json:"count"`
			Emails []emailJSON `json:"emails"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Folder != "INBOX" {
			t.Errorf("Expected folder INBOX, got %s", resp.Folder)
		}
		if resp.Count != 3 {
			t.Errorf("Expected 3 emails, got %d", resp.Count)
		}
		if resp.Emails[0].From != "Alice <alice@example.com>" {
			t.Errorf("Unexpected from: %s", resp.Emails[0].From)
		}
		if resp.Emails[0].Date != "2026-03-01T09:30:00Z" {
			t.Errorf("Unexpected date: %s", resp.Emails[0].Date)
		}
	})

	t.Run("unread_only filters seen emails", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/emails?folder=INBOX&unread_only=true", nil)
		rr := httptest.NewRecorder()
		handler.GetEmails(rr, req)

		var resp struct {
			Count  int         `json:"count"`
			Emails []emailJSON `json:"emails"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Count != 2 {
			t.Errorf("Expected 2 unread emails, got %d", resp.Count)
		}
		for _, e := range resp.Emails {
			if e.Seen {
				t.Errorf("Email %d should be unread", e.UID)
			}
		}
	})

	t.Run("limit caps the result", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/emails?folder=INBOX&limit=1", nil)
		rr := httptest.NewRecorder()
		handler.GetEmails(rr, req)

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("Expected 1 email, got %d", resp.Count)
		}
	})

	t.Run("unknown folder returns 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/emails?folder=Nope", nil)
		rr := httptest.NewRecorder()
		handler.GetEmails(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", rr.Code)
		}
	})
}

func TestEmailsHandler_HandleEmailByUID(t *testing.T) {
	t.Run("invalid uid returns 400", func(t *testing.T) {
		handler := newTestEmailsHandler(newStubConn("INBOX"))
		req := httptest.NewRequest("DELETE", "/api/emails/abc", nil)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("delete requires folder", func(t *testing.T) {
		handler := newTestEmailsHandler(newStubConn("INBOX"))
		req := httptest.NewRequest("DELETE", "/api/emails/5", nil)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("delete removes the email", func(t *testing.T) {
		conn := newStubConn("INBOX")
		conn.seed("INBOX", apiTestEmail(5, "Bye", false))
		handler := newTestEmailsHandler(conn)

		req := httptest.NewRequest("DELETE", "/api/emails/5?folder=INBOX", nil)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if len(conn.emails["INBOX"]) != 0 {
			t.Errorf("Expected INBOX to be empty, got %d emails", len(conn.emails["INBOX"]))
		}
	})

	t.Run("flag marks the email", func(t *testing.T) {
		conn := newStubConn("INBOX")
		conn.seed("INBOX", apiTestEmail(7, "Flag me", false))
		handler := newTestEmailsHandler(conn)

		body := strings.NewReader(`{"folder":"INBOX","flag":"starred","value":true}`)
		req := httptest.NewRequest("POST", "/api/emails/7/flag", body)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if !conn.emails["INBOX"][0].HasFlag(models.FlagFlagged) {
			t.Error("Expected email to carry the \\Flagged flag")
		}
	})

	t.Run("unknown flag name returns 400", func(t *testing.T) {
		handler := newTestEmailsHandler(newStubConn("INBOX"))
		body := strings.NewReader(`{"folder":"INBOX","flag":"sparkly","value":true}`)
		req := httptest.NewRequest("POST", "/api/emails/7/flag", body)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("move resolves a Gmail alias destination", func(t *testing.T) {
		conn := newStubConn("INBOX", "[Gmail]/Trash")
		conn.seed("INBOX", apiTestEmail(9, "Moving", false))
		handler := newTestEmailsHandler(conn)

		body := strings.NewReader(`{"folder":"INBOX","destination":"Trash"}`)
		req := httptest.NewRequest("POST", "/api/emails/9/move", body)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Moved       bool   `json:"moved"`
			Destination string `json:"destination"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !resp.Moved || resp.Destination != "[Gmail]/Trash" {
			t.Errorf("Unexpected response: %+v", resp)
		}
		if len(conn.emails["[Gmail]/Trash"]) != 1 {
			t.Error("Expected email to land in [Gmail]/Trash")
		}
	})

	t.Run("wrong method returns 405", func(t *testing.T) {
		handler := newTestEmailsHandler(newStubConn("INBOX"))
		req := httptest.NewRequest("GET", "/api/emails/5", nil)
		rr := httptest.NewRecorder()
		handler.HandleEmailByUID(rr, req)

		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected status 405, got %d", rr.Code)
		}
	})
}

func buildSendForm(t *testing.T, fields map[string]string, attachments map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("Failed to write field %s: %v", name, err)
		}
	}
	for filename, content := range attachments {
		part, err := writer.CreateFormFile("attachments", filename)
		if err != nil {
			t.Fatalf("Failed to create file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("Failed to write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close form: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestEmailsHandler_SendEmail(t *testing.T) {
	t.Run("sends with attachment", func(t *testing.T) {
		conn := newStubConn("INBOX")
		handler := newTestEmailsHandler(conn)

		body, contentType := buildSendForm(t, map[string]string{
			"to":      "bob@example.com, carol@example.com",
			"subject": "Report",
			"body":    "See attached.",
		}, map[string][]byte{"report.csv": []byte("a,b\n1,2\n")})

		req := httptest.NewRequest("POST", "/api/emails/send", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		handler.SendEmail(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if len(conn.sent) != 1 {
			t.Fatalf("Expected 1 sent email, got %d", len(conn.sent))
		}
		sent := conn.sent[0]
		if len(sent.To) != 2 || sent.To[1] != "carol@example.com" {
			t.Errorf("Unexpected recipients: %v", sent.To)
		}
		if len(sent.Attachments) != 1 || sent.Attachments[0].Filename != "report.csv" {
			t.Fatalf("Unexpected attachments: %+v", sent.Attachments)
		}
		if string(sent.Attachments[0].Content) != "a,b\n1,2\n" {
			t.Error("Attachment content was mangled")
		}
	})

	t.Run("missing recipients returns 400", func(t *testing.T) {
		handler := newTestEmailsHandler(newStubConn("INBOX"))

		body, contentType := buildSendForm(t, map[string]string{"subject": "No one"}, nil)
		req := httptest.NewRequest("POST", "/api/emails/send", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		handler.SendEmail(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("disconnected SMTP returns 503", func(t *testing.T) {
		conn := newStubConn("INBOX")
		conn.smtpUp = false
		handler := newTestEmailsHandler(conn)

		body, contentType := buildSendForm(t, map[string]string{"to": "bob@example.com"}, nil)
		req := httptest.NewRequest("POST", "/api/emails/send", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		handler.SendEmail(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", rr.Code)
		}
	})
}

func TestResolveFlagName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"seen", models.FlagSeen, true},
		{"Read", models.FlagSeen, true},
		{"starred", models.FlagFlagged, true},
		{"important", models.FlagFlagged, true},
		{"answered", models.FlagAnswered, true},
		{"\\Custom", "\\Custom", true},
		{"sparkly", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := resolveFlagName(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Errorf("resolveFlagName(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	t.Run("all connected", func(t *testing.T) {
		conn := newStubConn("INBOX")
		handler := NewHealthHandler(conn)

		rr := httptest.NewRecorder()
		handler.Handle(rr, httptest.NewRequest("GET", "/api/health", nil))

		if rr.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rr.Code)
		}
		want := `{"status":"ok","imap_connected":true,"smtp_connected":true}`
		if rr.Body.String() != want {
			t.Errorf("Unexpected body: %s", rr.Body.String())
		}
	})

	t.Run("degraded when SMTP is down", func(t *testing.T) {
		conn := newStubConn("INBOX")
		conn.smtpUp = false
		handler := NewHealthHandler(conn)

		rr := httptest.NewRecorder()
		handler.Handle(rr, httptest.NewRequest("GET", "/api/health", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"degraded"`) {
			t.Errorf("Expected degraded status, got %s", rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), `"smtp_connected":false`) {
			t.Errorf("Expected smtp_connected false, got %s", rr.Body.String())
		}
	})
}
