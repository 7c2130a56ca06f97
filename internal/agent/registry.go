package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one named tool function as presented to the agent runtime: a name,
// a description for the model, and an invoker taking raw JSON arguments.
// Invocations return strings only; malformed arguments become error strings
// the same way domain failures do.
type Tool struct {
	Name        string
	Description string
	Invoke      func(ctx context.Context, sessionID string, args json.RawMessage) string
}

// Registry returns every tool the runtime may call.
func (t *Tools) Registry() []Tool {
	return []Tool{
		{
			Name:        "email_dashboard",
			Description: "Get comprehensive email dashboard with detailed statistics for each mailbox folder.",
			Invoke: func(ctx context.Context, _ string, _ json.RawMessage) string {
				return t.EmailDashboard(ctx)
			},
		},
		{
			Name:        "read_emails",
			Description: "Read emails with flexible filtering options (folder_name, num_emails, unread_only, start_date, end_date, from_, include_attachments). Emails are cached after fetching.",
			Invoke: func(ctx context.Context, sessionID string, args json.RawMessage) string {
				var p ReadEmailsParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.ReadEmails(ctx, sessionID, p)
			},
		},
		{
			Name:        "send_email",
			Description: "Send an email to specified recipients (to, subject, body, cc, bcc, html).",
			Invoke: func(ctx context.Context, _ string, args json.RawMessage) string {
				var p SendEmailParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.SendEmail(ctx, p)
			},
		},
		{
			Name:        "delete_email",
			Description: "Delete an email from the mailbox by its index in the cache (email_index) or UID (email_uid).",
			Invoke: func(ctx context.Context, sessionID string, args json.RawMessage) string {
				var p EmailRefParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.DeleteEmail(ctx, sessionID, p)
			},
		},
		{
			Name:        "move_email",
			Description: "Move an email (email_index or email_uid) to a different folder (destination_folder).",
			Invoke: func(ctx context.Context, sessionID string, args json.RawMessage) string {
				var p MoveEmailParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.MoveEmail(ctx, sessionID, p)
			},
		},
		{
			Name:        "flag_email",
			Description: "Set or unset email flags (email_index or email_uid, flag_type: seen/read, flagged/important/starred, answered, draft; value: true/false).",
			Invoke: func(ctx context.Context, sessionID string, args json.RawMessage) string {
				var p FlagEmailParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.FlagEmail(ctx, sessionID, p)
			},
		},
		{
			Name:        "list_folders",
			Description: "List all available folders in the mailbox.",
			Invoke: func(ctx context.Context, _ string, _ json.RawMessage) string {
				return t.ListFolders(ctx)
			},
		},
		{
			Name:        "download_attachments",
			Description: "Download attachments from an email (email_index or email_uid) to save_path.",
			Invoke: func(ctx context.Context, sessionID string, args json.RawMessage) string {
				var p DownloadAttachmentsParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.DownloadAttachments(ctx, sessionID, p)
			},
		},
		{
			Name:        "search_address_book",
			Description: "Search the address book by name, email or group; returns all entries when no criterion is given.",
			Invoke: func(ctx context.Context, _ string, args json.RawMessage) string {
				var p SearchAddressBookParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.SearchAddressBook(ctx, p)
			},
		},
		{
			Name:        "modify_address_book",
			Description: "Modify the address book (operation: add_people, delete_people, add_emails, delete_emails, add_groups, delete_groups, edit_name).",
			Invoke: func(ctx context.Context, _ string, args json.RawMessage) string {
				var p ModifyAddressBookParams
				if msg := decode(args, &p); msg != "" {
					return msg
				}
				return t.ModifyAddressBook(ctx, p)
			},
		},
	}
}

// Lookup finds a tool by name.
func (t *Tools) Lookup(name string) (Tool, bool) {
	for _, tool := range t.Registry() {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

func decode(args json.RawMessage, into interface{}) string {
	if len(args) == 0 {
		return ""
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Sprintf("Error: invalid tool arguments: %v", err)
	}
	return ""
}
