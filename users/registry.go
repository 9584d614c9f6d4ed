package users

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrNameRequired = errors.New("a name is required")
	ErrNameTaken    = errors.New("name resolves to a different account")
)

// User is a single connected identity. The ID is stable for the lifetime of
// the account: renames keep the ID, account merges repoint the old ID at the
// surviving user (see Registry.Merge).
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IP        string `json:"-"`
	Named     bool   `json:"named"`
	Connected bool   `json:"connected"`
}

// ToID normalizes a display name into a stable identity key: lowercase
// alphanumerics only.
func ToID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Registry is the authoritative identity registry. It is the source of truth
// the tournament engine reconciles against when purging ghost players: a
// tournament member whose ID no longer resolves to the same *User has been
// merged away.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*User)}
}

// Authenticate resolves a display name to its user, creating the account on
// first sight.
func (r *Registry) Authenticate(name, ip string) (*User, error) {
	id := ToID(name)
	if id == "" {
		return nil, ErrNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.Name = name
		u.IP = ip
		u.Connected = true
		return u, nil
	}
	u := &User{ID: id, Name: name, IP: ip, Named: true, Connected: true}
	r.users[id] = u
	return u, nil
}

// GetExact returns the user currently owning the given ID, or nil. After a
// merge the old ID resolves to the surviving user, so callers holding a stale
// *User can detect the merge by pointer comparison.
func (r *Registry) GetExact(id string) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[id]
}

// Get resolves a display name to its user, or nil.
func (r *Registry) Get(name string) *User {
	return r.GetExact(ToID(name))
}

// Rename changes the display name of a user. The identity key must not
// change; a rename that would collide with another account must go through
// Merge instead.
func (r *Registry) Rename(u *User, newName string) error {
	id := ToID(newName)
	if id == "" {
		return ErrNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != u.ID {
		if _, taken := r.users[id]; taken {
			return ErrNameTaken
		}
		delete(r.users, u.ID)
		u.ID = id
		r.users[id] = u
	}
	u.Name = newName
	return nil
}

// Merge repoints fromID at the surviving user. Anything still holding the old
// *User becomes a ghost: GetExact(fromID) now returns a different pointer.
func (r *Registry) Merge(fromID string, into *User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.users[fromID]; ok && old != into {
		old.Connected = false
	}
	r.users[fromID] = into
}

// SetConnected flips the connection flag for the given identity.
func (r *Registry) SetConnected(id string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Connected = connected
	}
}
