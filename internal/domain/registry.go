package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyRegistry   = errors.New("identity registry is empty")
	ErrUnknownIdentity = errors.New("unknown identity")
)

// DefaultIdentities is the registry shipped with the demo ledger.
var DefaultIdentities = []Identity{
	{ID: 1, Name: "Admin (You)", Handle: "admin", Avatar: "AD"},
	{ID: 2, Name: "Alice", Handle: "alice", Avatar: "AL"},
	{ID: 3, Name: "Bob", Handle: "bob", Avatar: "BO"},
}

// Registry is the immutable table of identities loaded at startup.
// Order is significant: it drives listings and the default recipient.
type Registry struct {
	identities []Identity
	byID       map[int64]int
	byHandle   map[string]int
}

// NewRegistry validates and freezes the given identities.
func NewRegistry(identities []Identity) (*Registry, error) {
	if len(identities) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{
		identities: make([]Identity, len(identities)),
		byID:       make(map[int64]int, len(identities)),
		byHandle:   make(map[string]int, len(identities)),
	}
	copy(r.identities, identities)

	for i, id := range r.identities {
		if id.ID <= 0 {
			return nil, fmt.Errorf("identity %q: id must be positive, got %d", id.Handle, id.ID)
		}
		handle := strings.ToLower(strings.TrimSpace(id.Handle))
		if handle == "" {
			return nil, fmt.Errorf("identity %d: handle is required", id.ID)
		}
		if _, dup := r.byID[id.ID]; dup {
			return nil, fmt.Errorf("identity %d: duplicate id", id.ID)
		}
		if _, dup := r.byHandle[handle]; dup {
			return nil, fmt.Errorf("identity %q: duplicate handle", handle)
		}
		r.byID[id.ID] = i
		r.byHandle[handle] = i
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tables; it panics on invalid input.
func MustRegistry(identities []Identity) *Registry {
	r, err := NewRegistry(identities)
	if err != nil {
		panic(err)
	}
	return r
}

// All returns the identities in registry order.
func (r *Registry) All() []Identity {
	out := make([]Identity, len(r.identities))
	copy(out, r.identities)
	return out
}

func (r *Registry) Lookup(id int64) (Identity, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Identity{}, false
	}
	return r.identities[i], true
}

func (r *Registry) LookupHandle(handle string) (Identity, bool) {
	i, ok := r.byHandle[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		return Identity{}, false
	}
	return r.identities[i], true
}

// Others returns every identity except selfID, i.e. the eligible transfer targets.
func (r *Registry) Others(selfID int64) []Identity {
	out := make([]Identity, 0, len(r.identities))
	for _, id := range r.identities {
		if id.ID != selfID {
			out = append(out, id)
		}
	}
	return out
}

// DefaultRecipient is the first identity in registry order that is not selfID.
func (r *Registry) DefaultRecipient(selfID int64) (Identity, bool) {
	for _, id := range r.identities {
		if id.ID != selfID {
			return id, true
		}
	}
	return Identity{}, false
}

// DisplayName resolves an account id to a name, falling back to "User #<id>".
func (r *Registry) DisplayName(id int64) string {
	if identity, ok := r.Lookup(id); ok {
		return identity.Name
	}
	return fmt.Sprintf("User #%d", id)
}
