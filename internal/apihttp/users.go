package apihttp

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrDuplicateEmail is returned by Create when the address is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// User is a registered account. The password is kept internal and never
// serialized.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`

	password string
}

// UserStore is an in-memory account registry. It stands in for a real
// database and is seeded with one demo account.
type UserStore struct {
	mu      sync.Mutex
	byEmail map[string]*User
	nextID  int
}

// NewUserStore returns a store seeded with the demo account
// john.doe@example.com / Password123.
func NewUserStore() *UserStore {
	s := &UserStore{
		byEmail: make(map[string]*User),
		nextID:  1,
	}
	s.Create("john.doe@example.com", "Password123", "John", "Doe")
	return s
}

// Create registers a new account. Email must already be normalized
// (trimmed, lowercased) by schema validation.
func (s *UserStore) Create(email, password, firstName, lastName string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, ErrDuplicateEmail
	}
	u := &User{
		ID:        strconv.Itoa(s.nextID),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: time.Now().UTC(),
		password:  password,
	}
	s.nextID++
	s.byEmail[email] = u
	return u, nil
}

// Authenticate returns the account matching email and password.
func (s *UserStore) Authenticate(email, password string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[email]
	if !ok || u.password != password {
		return nil, false
	}
	return u, true
}

// Lookup returns the account for email, if any.
func (s *UserStore) Lookup(email string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	return u, ok
}

// LookupByID returns the account with the given ID, if any.
func (s *UserStore) LookupByID(id string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}
