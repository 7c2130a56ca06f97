package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mailmind/mailmind/internal/addressbook"
)

// AddressBookHandler serves the address book REST endpoints.
type AddressBookHandler struct {
	book *addressbook.Book
}

// NewAddressBookHandler creates a new AddressBookHandler instance.
func NewAddressBookHandler(book *addressbook.Book) *AddressBookHandler {
	return &AddressBookHandler{book: book}
}

// Handle dispatches /api/addressbook by method.
func (h *AddressBookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.search(w, r)
	case http.MethodPost:
		h.modify(w, r)
	default:
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// search looks up entries by name, email or group; with no criterion it
// returns the whole book.
func (h *AddressBookHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var entries []*addressbook.Entry
	switch {
	case q.Get("name") != "":
		entries = h.book.SearchName(q.Get("name"))
	case q.Get("email") != "":
		entries = h.book.SearchEmail(q.Get("email"))
	case q.Get("group") != "":
		entries = h.book.SearchGroup(q.Get("group"))
	default:
		entries = h.book.All()
	}

	WriteJSONResponse(w, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

type addressBookRequest struct {
	Operation string   `json:"operation"`
	PersonID  string   `json:"person_id"`
	Name      string   `json:"name"`
	Emails    []string `json:"emails"`
	Groups    []string `json:"groups"`
}

// modify applies one mutation to the address book.
func (h *AddressBookHandler) modify(w http.ResponseWriter, r *http.Request) {
	var req addressBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch req.Operation {
	case "add_people":
		var entry *addressbook.Entry
		entry, err = h.book.AddPerson(req.Name, req.Emails, req.Groups)
		result = entry
	case "delete_people":
		err = h.book.DeletePerson(req.PersonID)
	case "add_emails":
		err = h.book.AddEmails(req.PersonID, req.Emails)
	case "delete_emails":
		err = h.book.DeleteEmails(req.PersonID, req.Emails)
	case "add_groups":
		err = h.book.AddGroups(req.PersonID, req.Groups)
	case "delete_groups":
		err = h.book.DeleteGroups(req.PersonID, req.Groups)
	case "edit_name":
		err = h.book.EditName(req.PersonID, req.Name)
	default:
		WriteJSONError(w, "invalid operation", http.StatusBadRequest)
		return
	}

	if err != nil {
		var validation *addressbook.ValidationError
		if errors.As(err, &validation) {
			WriteJSONError(w, validation.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("AddressBookHandler: Failed to %s: %v", req.Operation, err)
		WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"ok": true}
	if result != nil {
		resp["entry"] = result
	}
	WriteJSONResponse(w, resp)
}
