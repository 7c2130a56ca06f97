package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailmind/mailmind/internal/addressbook"
)

func newTestAddressBookHandler(t *testing.T) (*AddressBookHandler, *addressbook.Book) {
	t.Helper()
	book, err := addressbook.Open(filepath.Join(t.TempDir(), "addressbook.json"))
	if err != nil {
		t.Fatalf("Failed to open address book: %v", err)
	}
	return NewAddressBookHandler(book), book
}

func postAddressBook(t *testing.T, handler *AddressBookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/addressbook", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	return rr
}

func TestAddressBookHandler_Modify(t *testing.T) {
	t.Run("add person returns the entry", func(t *testing.T) {
		handler, _ := newTestAddressBookHandler(t)

		rr := postAddressBook(t, handler, `{"operation":"add_people","name":"Alice","emails":["alice@example.com"],"groups":["friends"]}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			OK    bool               `json:"ok"`
			Entry *addressbook.Entry `json:"entry"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !resp.OK || resp.Entry == nil {
			t.Fatalf("Unexpected response: %+v", resp)
		}
		if resp.Entry.ID != "1" || resp.Entry.Name != "Alice" {
			t.Errorf("Unexpected entry: %+v", resp.Entry)
		}
	})

	t.Run("validation error returns 400 with message", func(t *testing.T) {
		handler, book := newTestAddressBookHandler(t)
		if _, err := book.AddPerson("Alice", nil, nil); err != nil {
			t.Fatalf("Failed to seed book: %v", err)
		}

		rr := postAddressBook(t, handler, `{"operation":"add_people","name":"Alice"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "already exists") {
			t.Errorf("Expected duplicate-name message, got %s", rr.Body.String())
		}
	})

	t.Run("invalid operation returns 400", func(t *testing.T) {
		handler, _ := newTestAddressBookHandler(t)

		rr := postAddressBook(t, handler, `{"operation":"explode"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rr.Code)
		}
	})

	t.Run("group membership round trip", func(t *testing.T) {
		handler, book := newTestAddressBookHandler(t)
		entry, err := book.AddPerson("Bob", []string{"bob@example.com"}, nil)
		if err != nil {
			t.Fatalf("Failed to seed book: %v", err)
		}

		rr := postAddressBook(t, handler, `{"operation":"add_groups","person_id":"`+entry.ID+`","groups":["work"]}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		if got := book.SearchGroup("work"); len(got) != 1 || got[0].Name != "Bob" {
			t.Errorf("Expected Bob in group work, got %+v", got)
		}
	})
}

func TestAddressBookHandler_Search(t *testing.T) {
	handler, book := newTestAddressBookHandler(t)
	for _, name := range []string{"Alice", "Bob"} {
		if _, err := book.AddPerson(name, []string{strings.ToLower(name) + "@example.com"}, []string{"friends"}); err != nil {
			t.Fatalf("Failed to seed book: %v", err)
		}
	}

	search := func(t *testing.T, query string) (int, []*addressbook.Entry) {
		t.Helper()
		req := httptest.NewRequest("GET", "/api/addressbook"+query, nil)
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count   int                  `json:"count"`
			Entries []*addressbook.Entry `json:"entries"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return resp.Count, resp.Entries
	}

	t.Run("no criterion returns everyone", func(t *testing.T) {
		count, _ := search(t, "")
		if count != 2 {
			t.Errorf("Expected 2 entries, got %d", count)
		}
	})

	t.Run("search by name", func(t *testing.T) {
		count, entries := search(t, "?name=Alice")
		if count != 1 || entries[0].Name != "Alice" {
			t.Errorf("Expected Alice, got %+v", entries)
		}
	})

	t.Run("search by email", func(t *testing.T) {
		count, entries := search(t, "?email=bob@example.com")
		if count != 1 || entries[0].Name != "Bob" {
			t.Errorf("Expected Bob, got %+v", entries)
		}
	})

	t.Run("search by group", func(t *testing.T) {
		count, _ := search(t, "?group=friends")
		if count != 2 {
			t.Errorf("Expected 2 entries in group, got %d", count)
		}
	})

	t.Run("unsupported method returns 405", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/api/addressbook", nil)
		rr := httptest.NewRecorder()
		handler.Handle(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected status 405, got %d", rr.Code)
		}
	})
}
