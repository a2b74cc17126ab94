// Package bookstore is a small in-memory catalogue served by the endpoint's
// default binary.
package bookstore

import (
	"context"
	"sort"
	"sync"
)

type Genre string

const (
	Fiction Genre = "FICTION"
	Science Genre = "SCIENCE"
	History Genre = "HISTORY"
)

type Book struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Genre     Genre  `json:"genre"`
	Published int    `json:"published"`
	AuthorID  string `json:"-"`
}

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store holds books and authors keyed by id.
type Store struct {
	mu      sync.RWMutex
	books   map[string]*Book
	authors map[string]*Author
}

func NewStore() *Store {
	return &Store{books: map[string]*Book{}, authors: map[string]*Author{}}
}

// Seed returns a store with a few books.
func Seed() *Store {
	s := NewStore()
	s.PutAuthor(&Author{ID: "le-guin", Name: "Ursula K. Le Guin"})
	s.PutAuthor(&Author{ID: "sagan", Name: "Carl Sagan"})
	s.PutAuthor(&Author{ID: "tuchman", Name: "Barbara W. Tuchman"})
	s.PutBook(&Book{ID: "1", Title: "The Dispossessed", Genre: Fiction, Published: 1974, AuthorID: "le-guin"})
	s.PutBook(&Book{ID: "2", Title: "A Wizard of Earthsea", Genre: Fiction, Published: 1968, AuthorID: "le-guin"})
	s.PutBook(&Book{ID: "3", Title: "Cosmos", Genre: Science, Published: 1980, AuthorID: "sagan"})
	s.PutBook(&Book{ID: "4", Title: "The Guns of August", Genre: History, Published: 1962, AuthorID: "tuchman"})
	return s
}

func (s *Store) PutBook(b *Book) {
	s.mu.Lock()
	s.books[b.ID] = b
	s.mu.Unlock()
}

func (s *Store) PutAuthor(a *Author) {
	s.mu.Lock()
	s.authors[a.ID] = a
	s.mu.Unlock()
}

func (s *Store) Book(id string) (*Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	return b, ok
}

// Books returns the books of genre, or all books when genre is empty,
// ordered by id.
func (s *Store) Books(genre Genre) []*Book {
	s.mu.RLock()
	out := make([]*Book, 0, len(s.books))
	for _, b := range s.books {
		if genre == "" || b.Genre == genre {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AuthorsByID is a batch function: it returns the known authors among ids.
func (s *Store) AuthorsByID(_ context.Context, ids []string) (map[string]*Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Author, len(ids))
	for _, id := range ids {
		if a, ok := s.authors[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// BooksByAuthor is a batch function grouping books by author id.
func (s *Store) BooksByAuthor(_ context.Context, authorIDs []string) (map[string][]*Book, error) {
	want := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		want[id] = true
	}
	out := make(map[string][]*Book, len(authorIDs))
	for _, b := range s.Books("") {
		if want[b.AuthorID] {
			out[b.AuthorID] = append(out[b.AuthorID], b)
		}
	}
	for _, id := range authorIDs {
		if out[id] == nil {
			out[id] = []*Book{}
		}
	}
	return out, nil
}
