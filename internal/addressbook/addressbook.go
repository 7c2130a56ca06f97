// Package addressbook is a small JSON-backed contact store. Every mutating
// operation validates its arguments, updates the in-memory map and rewrites
// the whole file synchronously. A crash mid-write can corrupt the store;
// acceptable at this write rate, so there is no journaling, only a mutex to
// keep concurrent writers from interleaving.
package addressbook

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ValidationError reports a missing required argument or a reference to a
// nonexistent entry. Checks run before any mutation, so a failed operation
// leaves the store untouched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Entry is one person in the address book. Emails and groups have set
// semantics enforced by the add/delete operations but are stored as lists.
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Emails      []string `json:"emails"`
	Groups      []string `json:"groups"`
	CreatedTime string   `json:"created_time"`
	UpdateTime  string   `json:"update_time"`
}

// Book is the process-wide address book, keyed by string id.
type Book struct {
	mu      sync.Mutex
	entries map[string]*Entry
	path    string
	now     func() time.Time
}

// Open loads the address book from path, starting empty when the file does
// not exist yet.
func Open(path string) (*Book, error) {
	b := &Book{
		entries: make(map[string]*Entry),
		path:    path,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("failed to read address book: %w", err)
	}

	if err := json.Unmarshal(data, &b.entries); err != nil {
		return nil, fmt.Errorf("failed to parse address book: %w", err)
	}
	return b, nil
}

// AddPerson creates a new entry. Name uniqueness is enforced at creation
// only. The assigned id is max existing numeric id + 1, starting at 1 for an
// empty book.
func (b *Book) AddPerson(name string, emails, groups []string) (*Entry, error) {
	if name == "" {
		return nil, validationErrorf("Name is required for adding a person.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, entry := range b.entries {
		if entry.Name == name {
			return nil, validationErrorf("Error: Person with name %s already exists.", name)
		}
	}

	newID := 1
	for id := range b.entries {
		if n, err := strconv.Atoi(id); err == nil && n >= newID {
			newID = n + 1
		}
	}

	now := b.now().Format("2006-01-02 15:04:05")
	entry := &Entry{
		ID:          strconv.Itoa(newID),
		Name:        name,
		Emails:      append([]string(nil), emails...),
		Groups:      append([]string(nil), groups...),
		CreatedTime: now,
		UpdateTime:  now,
	}
	b.entries[entry.ID] = entry

	if err := b.saveLocked(); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeletePerson removes the entry with the given id.
func (b *Book) DeletePerson(id string) error {
	if id == "" {
		return validationErrorf("ID is required for deleting a person.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[id]; !ok {
		return validationErrorf("Error: Person with ID %s not found.", id)
	}
	delete(b.entries, id)
	return b.saveLocked()
}

// AddEmails appends emails to the entry, skipping ones already present.
func (b *Book) AddEmails(id string, emails []string) error {
	if id == "" {
		return validationErrorf("ID is required for adding emails.")
	}
	if len(emails) == 0 {
		return validationErrorf("Emails are required for adding emails.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[id]
	if !ok {
		return validationErrorf("Error: Person with ID %s not found.", id)
	}

	for _, email := range emails {
		if !contains(entry.Emails, email) {
			entry.Emails = append(entry.Emails, email)
		}
	}
	entry.UpdateTime = b.now().Format("2006-01-02 15:04:05")
	return b.saveLocked()
}

// DeleteEmails removes emails from the entry; absent emails are ignored.
func (b *Book) DeleteEmails(id string, emails []string) error {
	if id == "" {
		return validationErrorf("ID is required for deleting emails.")
	}
	if len(emails) == 0 {
		return validationErrorf("Emails are required for deleting emails.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[id]
	if !ok {
		return validationErrorf("Error: Person with ID %s not found.", id)
	}

	for _, email := range emails {
		entry.Emails = remove(entry.Emails, email)
	}
	entry.UpdateTime = b.now().Format("2006-01-02 15:04:05")
	return b.saveLocked()
}

// AddGroups appends groups to the entry, skipping ones already present.
func (b *Book) AddGroups(id string, groups []string) error {
	if id == "" {
		return validationErrorf("ID is required for adding groups.")
	}
	if len(groups) == 0 {
		return validationErrorf("Groups are required for adding groups.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[id]
	if !ok {
		return validationErrorf("Error: Person with ID %s not found.", id)
	}

	for _, group := range groups {
		if !contains(entry.Groups, group) {
			entry.Groups = append(entry.Groups, group)
		}
	}
	entry.UpdateTime = b.now().Format("2006-01-02 15:04:05")
	return b.saveLocked()
}

// DeleteGroups removes groups from the entry; absent groups are ignored.
func (b *Book) DeleteGroups(id string, groups []string) error {
	if id == "" {
		return validationErrorf("ID is required for deleting groups.")
	}
	if len(groups) == 0 {
		return validationErrorf("Groups are required for deleting groups.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[id]
	if !ok {
		return validationErrorf("Error: Person with ID %s not found.", id)
	}

	for _, group := range groups {
		entry.Groups = remove(entry.Groups, group)
	}
	entry.UpdateTime = b.now().Format("2006-01-02 15:04:05")
	return b.saveLocked()
}

// EditName renames the entry.
func (b *Book) EditName(id, name string) error {
	if id == "" {
		return validationErrorf("ID is required for editing name.")
	}
	if name == "" {
		return validationErrorf("Name is required for editing name.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[id]
	if !ok {
		return validationErrorf("Error: Person with ID %s not found.", id)
	}
	entry.Name = name
	entry.UpdateTime = b.now().Format("2006-01-02 15:04:05")
	return b.saveLocked()
}

// SearchName returns all entries with exactly the given name.
func (b *Book) SearchName(name string) []*Entry {
	return b.filter(func(e *Entry) bool { return e.Name == name })
}

// SearchEmail returns all entries containing the given email.
func (b *Book) SearchEmail(email string) []*Entry {
	return b.filter(func(e *Entry) bool { return contains(e.Emails, email) })
}

// SearchGroup returns all entries belonging to the given group.
func (b *Book) SearchGroup(group string) []*Entry {
	return b.filter(func(e *Entry) bool { return contains(e.Groups, group) })
}

// All returns every entry, ordered by numeric id.
func (b *Book) All() []*Entry {
	return b.filter(func(*Entry) bool { return true })
}

func (b *Book) filter(keep func(*Entry) bool) []*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []*Entry
	for _, entry := range b.entries {
		if keep(entry) {
			copied := *entry
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, _ := strconv.Atoi(result[i].ID)
		c, _ := strconv.Atoi(result[j].ID)
		return a < c
	})
	return result
}

// saveLocked rewrites the whole file. Caller holds b.mu.
func (b *Book) saveLocked() error {
	data, err := json.MarshalIndent(b.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize address book: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save address book: %w", err)
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func remove(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
