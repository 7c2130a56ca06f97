package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
	"github.com/mailmind/mailmind/internal/pipeline"
)

const defaultEmailLimit = 10

// maxSendFormMemory bounds the in-memory portion of multipart send requests.
const maxSendFormMemory = 32 << 20

// EmailsHandler serves the REST email endpoints backed by the fetch pipeline.
type EmailsHandler struct {
	pipeline *pipeline.Pipeline
	mailer   Mailer
}

// Mailer is the outgoing-mail surface the send endpoint needs.
type Mailer interface {
	Send(msg mail.OutgoingEmail) error
	SMTPConnected() bool
}

// NewEmailsHandler creates a new EmailsHandler instance.
func NewEmailsHandler(p *pipeline.Pipeline, mailer Mailer) *EmailsHandler {
	return &EmailsHandler{pipeline: p, mailer: mailer}
}

// emailJSON is the wire shape of an email in REST and WebSocket responses.
type emailJSON struct {
	UID         uint32   `json:"uid"`
	Folder      string   `json:"folder"`
	Subject     string   `json:"subject"`
	From        string   `json:"from"`
	To          []string `json:"to"`
	Cc          []string `json:"cc,omitempty"`
	Date        string   `json:"date"`
	Flags       []string `json:"flags"`
	Seen        bool     `json:"seen"`
	Preview     string   `json:"preview"`
	Attachments int      `json:"attachments"`
}

func toEmailJSON(e *models.Email) emailJSON {
	to := make([]string, 0, len(e.To))
	for _, a := range e.To {
		to = append(to, a.String())
	}
	var cc []string
	for _, a := range e.Cc {
		cc = append(cc, a.String())
	}

	date := ""
	if !e.Date.IsZero() {
		date = e.Date.Format(time.RFC3339)
	}

	return emailJSON{
		UID:         e.UID,
		Folder:      e.Folder,
		Subject:     e.Subject,
		From:        e.From.String(),
		To:          to,
		Cc:          cc,
		Date:        date,
		Flags:       e.Flags,
		Seen:        e.Seen(),
		Preview:     e.Preview(),
		Attachments: len(e.UserFacingAttachments()),
	}
}

func toEmailJSONList(emails []*models.Email) []emailJSON {
	out := make([]emailJSON, 0, len(emails))
	for _, e := range emails {
		if e == nil {
			continue
		}
		out = append(out, toEmailJSON(e))
	}
	return out
}

// GetFolders returns the mailbox folder list in display order.
func (h *EmailsHandler) GetFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.pipeline.ListFolders(r.Context())
	if err != nil {
		h.writeMailError(w, "EmailsHandler", "list folders", err)
		return
	}

	pipeline.OrderFolders(folders)

	type folderJSON struct {
		Name       string   `json:"name"`
		Flags      []string `json:"flags"`
		Selectable bool     `json:"selectable"`
	}
	out := make([]folderJSON, 0, len(folders))
	for _, f := range folders {
		out = append(out, folderJSON{Name: f.Name, Flags: f.Flags, Selectable: f.Selectable()})
	}

	WriteJSONResponse(w, out)
}

// GetEmails fetches emails from a folder. Query parameters: folder, limit,
// unread_only.
func (h *EmailsHandler) GetEmails(w http.ResponseWriter, r *http.Request) {
	req := pipeline.FetchRequest{
		Folder:     r.URL.Query().Get("folder"),
		NumEmails:  ParseLimitParam(r, defaultEmailLimit),
		UnreadOnly: ParseBoolParam(r, "unread_only"),
	}

	emails, resolved, err := h.pipeline.FetchFolder(r.Context(), req)
	if err != nil {
		h.writeMailError(w, "EmailsHandler", "fetch emails", err)
		return
	}

	WriteJSONResponse(w, map[string]interface{}{
		"folder": resolved,
		"count":  len(emails),
		"emails": toEmailJSONList(emails),
	})
}

// HandleEmailByUID dispatches /api/emails/{uid} and /api/emails/{uid}/{action}.
func (h *EmailsHandler) HandleEmailByUID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/emails/")
	parts := strings.SplitN(rest, "/", 2)

	uid64, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		WriteJSONError(w, "invalid uid", http.StatusBadRequest)
		return
	}
	uid := uint32(uid64)

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		h.deleteEmail(w, r, uid)
	case action == "flag" && r.Method == http.MethodPost:
		h.flagEmail(w, r, uid)
	case action == "move" && r.Method == http.MethodPost:
		h.moveEmail(w, r, uid)
	default:
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *EmailsHandler) deleteEmail(w http.ResponseWriter, r *http.Request, uid uint32) {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		WriteJSONError(w, "folder is required", http.StatusBadRequest)
		return
	}

	if err := h.pipeline.Delete(r.Context(), folder, uid); err != nil {
		h.writeMailError(w, "EmailsHandler", "delete email", err)
		return
	}
	WriteJSONResponse(w, map[string]bool{"deleted": true})
}

func (h *EmailsHandler) flagEmail(w http.ResponseWriter, r *http.Request, uid uint32) {
	var body struct {
		Folder string `json:"folder"`
		Flag   string `json:"flag"`
		Value  bool   `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Folder == "" || body.Flag == "" {
		WriteJSONError(w, "folder and flag are required", http.StatusBadRequest)
		return
	}

	imapFlag, ok := resolveFlagName(body.Flag)
	if !ok {
		WriteJSONError(w, "invalid flag", http.StatusBadRequest)
		return
	}

	if err := h.pipeline.SetFlag(r.Context(), body.Folder, uid, imapFlag, body.Value); err != nil {
		h.writeMailError(w, "EmailsHandler", "flag email", err)
		return
	}
	WriteJSONResponse(w, map[string]bool{"flagged": true})
}

func (h *EmailsHandler) moveEmail(w http.ResponseWriter, r *http.Request, uid uint32) {
	var body struct {
		Folder      string `json:"folder"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Folder == "" || body.Destination == "" {
		WriteJSONError(w, "folder and destination are required", http.StatusBadRequest)
		return
	}

	resolved, err := h.pipeline.Move(r.Context(), body.Folder, uid, body.Destination)
	if err != nil {
		h.writeMailError(w, "EmailsHandler", "move email", err)
		return
	}
	WriteJSONResponse(w, map[string]interface{}{"moved": true, "destination": resolved})
}

// SendEmail sends an email from a multipart form: to, cc, bcc, subject,
// body, html, plus any number of file parts named "attachments".
func (h *EmailsHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSendFormMemory); err != nil {
		WriteJSONError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	msg := mail.OutgoingEmail{
		To:      splitRecipients(r.FormValue("to")),
		Cc:      splitRecipients(r.FormValue("cc")),
		Bcc:     splitRecipients(r.FormValue("bcc")),
		Subject: r.FormValue("subject"),
		Body:    r.FormValue("body"),
	}
	if htmlStr := r.FormValue("html"); htmlStr != "" {
		msg.HTML, _ = strconv.ParseBool(htmlStr)
	}

	if len(msg.To) == 0 {
		WriteJSONError(w, "to is required", http.StatusBadRequest)
		return
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["attachments"] {
			file, err := header.Open()
			if err != nil {
				WriteJSONError(w, "failed to read attachment", http.StatusBadRequest)
				return
			}
			content, err := io.ReadAll(file)
			_ = file.Close()
			if err != nil {
				WriteJSONError(w, "failed to read attachment", http.StatusBadRequest)
				return
			}
			msg.Attachments = append(msg.Attachments, mail.OutgoingAttachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     content,
			})
		}
	}

	if err := h.mailer.Send(msg); err != nil {
		h.writeMailError(w, "EmailsHandler", "send email", err)
		return
	}

	WriteJSONResponse(w, map[string]interface{}{"sent": true, "recipients": msg.To})
}

// writeMailError maps mail-layer errors to HTTP responses.
func (h *EmailsHandler) writeMailError(w http.ResponseWriter, component, op string, err error) {
	log.Printf("%s: Failed to %s: %v", component, op, err)

	var notFound *mail.FolderNotFoundError
	switch {
	case errors.As(err, &notFound):
		WriteJSONError(w, notFound.Error(), http.StatusNotFound)
	case errors.Is(err, mail.ErrNotConnected):
		WriteJSONError(w, "mail service is not connected", http.StatusServiceUnavailable)
	default:
		WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// resolveFlagName maps user-facing flag names to IMAP system flags.
// Raw system flags (leading backslash) pass through unchanged.
func resolveFlagName(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "seen", "read":
		return models.FlagSeen, true
	case "flagged", "important", "starred":
		return models.FlagFlagged, true
	case "answered":
		return models.FlagAnswered, true
	case "draft":
		return models.FlagDraft, true
	}
	if strings.HasPrefix(name, "\\") {
		return name, true
	}
	return "", false
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
