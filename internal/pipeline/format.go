package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mailmind/mailmind/internal/mail"
	"github.com/mailmind/mailmind/internal/models"
)

// windowStats is one time-windowed slice of a folder's dashboard counts.
type windowStats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// folderStats is the per-folder block of the dashboard report.
type folderStats struct {
	TotalEmails       int         `json:"total_emails"`
	UnreadEmails      int         `json:"unread_emails"`
	EmailsToday       windowStats `json:"emails_today"`
	EmailsInThreeDays windowStats `json:"emails_in_three_days"`
	EmailsInOneWeek   windowStats `json:"emails_in_one_week"`
	EmailsInOneMonth  windowStats `json:"emails_in_one_month"`
}

// Dashboard scans every selectable folder and renders total/unread counts
// plus today / three-day / week / month windows, each with an unread
// sub-count. Folders appear in server order.
func (p *Pipeline) Dashboard(ctx context.Context) (string, error) {
	if err := p.EnsureConnection(ctx); err != nil {
		return "", err
	}

	var folders []models.Folder
	err := p.gate.Do(func() error {
		var err error
		folders, err = p.conn.ListFolders()
		return err
	})
	if err != nil {
		return "", err
	}

	now := time.Now()
	today := now.Truncate(24 * time.Hour)
	windows := []time.Time{
		today,
		today.AddDate(0, 0, -3),
		today.AddDate(0, 0, -7),
		today.AddDate(0, 0, -30),
	}

	type entry struct {
		name  string
		stats folderStats
	}
	var entries []entry

	for _, folder := range folders {
		if !folder.Selectable() {
			continue
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var stats folderStats
		err := p.gate.Do(func() error {
			if err := p.conn.SelectFolder(folder.Name); err != nil {
				return err
			}

			var err error
			if stats.TotalEmails, err = p.conn.CountMatching(mail.FetchOptions{}); err != nil {
				return err
			}
			if stats.UnreadEmails, err = p.conn.CountMatching(mail.FetchOptions{UnreadOnly: true}); err != nil {
				return err
			}

			slots := []*windowStats{&stats.EmailsToday, &stats.EmailsInThreeDays, &stats.EmailsInOneWeek, &stats.EmailsInOneMonth}
			for i, since := range windows {
				if slots[i].Total, err = p.conn.CountMatching(mail.FetchOptions{Since: since}); err != nil {
					return err
				}
				if slots[i].Unread, err = p.conn.CountMatching(mail.FetchOptions{Since: since, UnreadOnly: true}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to scan folder %s: %w", folder.Name, err)
		}

		entries = append(entries, entry{name: folder.Name, stats: stats})
	}

	// Assemble the JSON object by hand to keep folders in server order.
	var body bytes.Buffer
	body.WriteString("{\n")
	for i, e := range entries {
		statsJSON, err := json.MarshalIndent(e.stats, "  ", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to serialize dashboard: %w", err)
		}
		fmt.Fprintf(&body, "  %q: %s", e.name, statsJSON)
		if i < len(entries)-1 {
			body.WriteString(",")
		}
		body.WriteString("\n")
	}
	body.WriteString("}")

	return fmt.Sprintf("Check time: %s\n-----Info of each folder-----\n%s",
		now.Format("2006-01-02 15:04:05"), body.String()), nil
}

// FormatEmailList renders fetched emails the way read_emails reports them:
// numbered entries with read status, UID, headers, optional attachment
// listing and the full body.
func FormatEmailList(emails []*models.Email, folder string, includeAttachments bool) string {
	if len(emails) == 0 {
		return fmt.Sprintf("No emails found matching the criteria in folder '%s'.", folder)
	}

	var lines []string
	for i, email := range emails {
		status := "[READ]"
		if !email.Seen() {
			status = "[UNREAD]"
		}

		lines = append(lines, fmt.Sprintf("Email #%d %s (UID: %d)", i+1, status, email.UID))
		lines = append(lines, fmt.Sprintf("Subject: %s", orPlaceholder(email.Subject, "(No Subject)")))
		lines = append(lines, fmt.Sprintf("From: %s", orPlaceholder(email.From.String(), "(Unknown Sender)")))
		lines = append(lines, fmt.Sprintf("To: %s", joinAddresses(email.To)))
		if len(email.Cc) > 0 {
			lines = append(lines, fmt.Sprintf("CC: %s", joinAddresses(email.Cc)))
		}
		if len(email.Bcc) > 0 {
			lines = append(lines, fmt.Sprintf("BCC: %s", joinAddresses(email.Bcc)))
		}
		lines = append(lines, fmt.Sprintf("Date: %s", email.Date.Format(time.RFC1123Z)))

		if includeAttachments {
			if attachments := email.UserFacingAttachments(); len(attachments) > 0 {
				lines = append(lines, fmt.Sprintf("Attachments: %d file(s)", len(attachments)))
				for _, att := range attachments {
					sizeKB := float64(att.Size) / 1024
					lines = append(lines, fmt.Sprintf("  - %s (%.2f KB, %s)", att.Filename, sizeKB, orPlaceholder(att.ContentType, "unknown")))
				}
			} else if len(email.Attachments) > 0 {
				lines = append(lines, "Attachments: None")
			}
		}

		lines = append(lines, fmt.Sprintf("Body:\n%s\n", email.BodyContent()))
	}

	return strings.Join(lines, "\n")
}

// FormatFolderList renders the list_folders tool output.
func FormatFolderList(folders []models.Folder) string {
	var lines []string
	for _, folder := range folders {
		status := " (selectable)"
		if !folder.Selectable() {
			status = " (not selectable)"
		}
		lines = append(lines, fmt.Sprintf("- %s%s", folder.Name, status))
		if len(folder.Flags) > 0 {
			lines = append(lines, fmt.Sprintf("  Flags: %s", strings.Join(folder.Flags, ", ")))
		}
	}
	return "Available folders:\n" + strings.Join(lines, "\n")
}

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

func joinAddresses(addresses []models.Address) string {
	if len(addresses) == 0 {
		return "(Unknown Receiver)"
	}
	parts := make([]string, len(addresses))
	for i, a := range addresses {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}
