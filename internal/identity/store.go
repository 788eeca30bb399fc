// Package identity manages users, groups and bearer tokens over a
// pluggable storage adapter.
package identity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used for stored tokens
const DefaultHashCost = 10

// Store serializes identity operations over an Adapter. Every mutation
// loads the current snapshot, applies the change and saves it back.
type Store struct {
	mu       sync.Mutex
	adapter  Adapter
	hashCost int
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithHashCost overrides the bcrypt cost
func WithHashCost(cost int) Option {
	return func(s *Store) {
		s.hashCost = cost
	}
}

// Open creates a store and makes sure the default groups exist
func Open(ctx context.Context, adapter Adapter, opts ...Option) (*Store, error) {
	s := &Store{
		adapter:  adapter,
		hashCost: DefaultHashCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	err := s.update(ctx, func(snap *Snapshot) error {
		for _, name := range []string{GroupAdmin, GroupPublic} {
			if _, ok := snap.groupByName(name); !ok {
				snap.Groups = append(snap.Groups, s.newGroup(name))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	return s, nil
}

func (s *Store) newGroup(name string) Group {
	return Group{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   []string{},
		Leaders:   []string{},
		CreatedAt: s.now().UTC(),
	}
}

// update runs fn on a fresh snapshot and persists it if fn succeeds
func (s *Store) update(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.adapter.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.adapter.Save(ctx, snap)
}

func (s *Store) view(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adapter.Load(ctx)
}

// CreateGroup adds an empty group
func (s *Store) CreateGroup(ctx context.Context, name string) (*Group, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("group name %q: %w", name, ErrInvalid)
	}

	var created Group
	err := s.update(ctx, func(snap *Snapshot) error {
		if _, ok := snap.groupByName(name); ok {
			return fmt.Errorf("group %q: %w", name, ErrExists)
		}
		created = s.newGroup(name)
		snap.Groups = append(snap.Groups, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetGroup returns a group with members and leaders resolved
func (s *Store) GetGroup(ctx context.Context, name string) (*GroupDetails, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return nil, err
	}

	i, ok := snap.groupByName(name)
	if !ok {
		return nil, fmt.Errorf("group %q: %w", name, ErrNotFound)
	}

	g := snap.Groups[i]
	return &GroupDetails{
		Group:   g,
		Members: snap.usersByID(g.Members),
		Leaders: snap.usersByID(g.Leaders),
	}, nil
}

// ListGroups returns every group without resolving members
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Groups, nil
}

// DeleteGroup removes a group; its members keep their accounts
func (s *Store) DeleteGroup(ctx context.Context, name string) error {
	return s.update(ctx, func(snap *Snapshot) error {
		i, ok := snap.groupByName(name)
		if !ok {
			return fmt.Errorf("group %q: %w", name, ErrNotFound)
		}
		snap.Groups = slices.Delete(snap.Groups, i, i+1)
		return nil
	})
}

// CreateUser adds a user as a member of group, or of the public group
// when group is empty
func (s *Store) CreateUser(ctx context.Context, username, group string) (*User, error) {
	if !ValidName(username) {
		return nil, fmt.Errorf("username %q: %w", username, ErrInvalid)
	}
	if group == "" {
		group = GroupPublic
	}

	var created User
	err := s.update(ctx, func(snap *Snapshot) error {
		gi, ok := snap.groupByName(group)
		if !ok {
			return fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		if _, ok := snap.userByName(username); ok {
			return fmt.Errorf("user %q: %w", username, ErrExists)
		}

		created = User{
			ID:        uuid.NewString(),
			Username:  username,
			CreatedAt: s.now().UTC(),
		}
		snap.Users = append(snap.Users, created)
		snap.Groups[gi].Members = append(snap.Groups[gi].Members, created.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetUser returns a user with tokens, groups and led groups resolved
func (s *Store) GetUser(ctx context.Context, username string) (*UserDetails, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return nil, err
	}

	i, ok := snap.userByName(username)
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}

	u := snap.Users[i]
	details := &UserDetails{
		User:    u,
		Tokens:  snap.tokensOf(u.ID),
		Groups:  []string{},
		Leading: []string{},
	}
	for _, g := range snap.Groups {
		if slices.Contains(g.Members, u.ID) {
			details.Groups = append(details.Groups, g.Name)
		}
		if slices.Contains(g.Leaders, u.ID) {
			details.Leading = append(details.Leading, g.Name)
		}
	}
	return details, nil
}

// ListUsers returns every user without tokens
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Users, nil
}

// DeleteUser removes a user along with their tokens and memberships
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return s.update(ctx, func(snap *Snapshot) error {
		i, ok := snap.userByName(username)
		if !ok {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		id := snap.Users[i].ID

		snap.Users = slices.Delete(snap.Users, i, i+1)
		snap.Tokens = slices.DeleteFunc(snap.Tokens, func(t Token) bool { return t.Owner == id })
		for gi := range snap.Groups {
			g := &snap.Groups[gi]
			g.Members = slices.DeleteFunc(g.Members, func(m string) bool { return m == id })
			g.Leaders = slices.DeleteFunc(g.Leaders, func(m string) bool { return m == id })
		}
		return nil
	})
}

type role int

const (
	roleMember role = iota
	roleLeader
)

func (g *Group) ids(r role) *[]string {
	if r == roleLeader {
		return &g.Leaders
	}
	return &g.Members
}

func (s *Store) setRole(ctx context.Context, username, group string, r role, add bool) error {
	return s.update(ctx, func(snap *Snapshot) error {
		gi, ok := snap.groupByName(group)
		if !ok {
			return fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		ui, ok := snap.userByName(username)
		if !ok {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}

		id := snap.Users[ui].ID
		ids := snap.Groups[gi].ids(r)
		if add {
			if !slices.Contains(*ids, id) {
				*ids = append(*ids, id)
			}
			return nil
		}
		*ids = slices.DeleteFunc(*ids, func(m string) bool { return m == id })
		return nil
	})
}

// AddUserToGroup makes username a member of group
func (s *Store) AddUserToGroup(ctx context.Context, username, group string) error {
	return s.setRole(ctx, username, group, roleMember, true)
}

// RemoveUserFromGroup drops username's membership in group
func (s *Store) RemoveUserFromGroup(ctx context.Context, username, group string) error {
	return s.setRole(ctx, username, group, roleMember, false)
}

// AddLeaderToGroup makes username a leader of group
func (s *Store) AddLeaderToGroup(ctx context.Context, username, group string) error {
	return s.setRole(ctx, username, group, roleLeader, true)
}

// RemoveLeaderFromGroup drops username's leadership of group
func (s *Store) RemoveLeaderFromGroup(ctx context.Context, username, group string) error {
	return s.setRole(ctx, username, group, roleLeader, false)
}

func (s *Store) hasRole(ctx context.Context, username, group string, r role) (bool, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return false, err
	}

	gi, ok := snap.groupByName(group)
	if !ok {
		return false, fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	ui, ok := snap.userByName(username)
	if !ok {
		return false, nil
	}
	return slices.Contains(*snap.Groups[gi].ids(r), snap.Users[ui].ID), nil
}

// IsUserInGroup reports whether username is a member of group
func (s *Store) IsUserInGroup(ctx context.Context, username, group string) (bool, error) {
	return s.hasRole(ctx, username, group, roleMember)
}

// IsLeaderInGroup reports whether username leads group
func (s *Store) IsLeaderInGroup(ctx context.Context, username, group string) (bool, error) {
	return s.hasRole(ctx, username, group, roleLeader)
}

// IsAdmin reports whether username is a member of the admin group
func (s *Store) IsAdmin(ctx context.Context, username string) (bool, error) {
	return s.hasRole(ctx, username, GroupAdmin, roleMember)
}

// CreateToken issues a new token for username. The plain token is only
// ever returned here; the store keeps its bcrypt hash.
func (s *Store) CreateToken(ctx context.Context, username string) (string, error) {
	plain := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}

	err = s.update(ctx, func(snap *Snapshot) error {
		ui, ok := snap.userByName(username)
		if !ok {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		snap.Tokens = append(snap.Tokens, Token{
			ID:        uuid.NewString(),
			Hash:      string(hash),
			Owner:     snap.Users[ui].ID,
			CreatedAt: s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return plain, nil
}

// TokenExists checks token against username's stored hashes and returns
// the matching record
func (s *Store) TokenExists(ctx context.Context, username, token string) (*Token, bool, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return nil, false, err
	}

	ui, ok := snap.userByName(username)
	if !ok {
		return nil, false, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}

	for _, t := range snap.tokensOf(snap.Users[ui].ID) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(token)) == nil {
			return &t, true, nil
		}
	}
	return nil, false, nil
}

// DeleteToken revokes token for username
func (s *Store) DeleteToken(ctx context.Context, username, token string) error {
	t, ok, err := s.TokenExists(ctx, username, token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("token: %w", ErrNotFound)
	}

	return s.update(ctx, func(snap *Snapshot) error {
		n := len(snap.Tokens)
		snap.Tokens = slices.DeleteFunc(snap.Tokens, func(x Token) bool { return x.ID == t.ID })
		if len(snap.Tokens) == n {
			return fmt.Errorf("token: %w", ErrNotFound)
		}
		return nil
	})
}

// HasToken reports whether username still owns the token record id. It
// skips bcrypt, so callers can re-check a cached verification on every use.
func (s *Store) HasToken(ctx context.Context, username, id string) (bool, error) {
	snap, err := s.view(ctx)
	if err != nil {
		return false, err
	}

	ui, ok := snap.userByName(username)
	if !ok {
		return false, nil
	}

	for _, t := range snap.tokensOf(snap.Users[ui].ID) {
		if t.ID == id {
			return true, nil
		}
	}
	return false, nil
}
