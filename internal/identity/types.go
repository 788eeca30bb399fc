package identity

import (
	"errors"
	"regexp"
	"slices"
	"time"
)

// Default groups created when a store is opened
const (
	GroupAdmin  = "admin"
	GroupPublic = "public"
)

var (
	// ErrNotFound is returned when a user, group or token does not exist
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating something that already exists
	ErrExists = errors.New("already exists")
	// ErrInvalid is returned for malformed names
	ErrInvalid = errors.New("invalid")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidName reports whether s is usable as a username or group name
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}

// User is an account that can own tokens and belong to groups
type User struct {
	ID        string    `yaml:"id" json:"id"`
	Username  string    `yaml:"username" json:"username"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Group holds member and leader user IDs
type Group struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Members   []string  `yaml:"members" json:"-"`
	Leaders   []string  `yaml:"leaders" json:"-"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Token is a bcrypt-hashed bearer secret owned by a user
type Token struct {
	ID        string    `yaml:"id" json:"id"`
	Hash      string    `yaml:"hash" json:"-"`
	Owner     string    `yaml:"owner" json:"owner"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// GroupDetails is a group with its members and leaders resolved
type GroupDetails struct {
	Group
	Members []User `json:"members"`
	Leaders []User `json:"leaders"`
}

// UserDetails is a user with tokens and group names resolved
type UserDetails struct {
	User
	Tokens  []Token  `json:"tokens"`
	Groups  []string `json:"groups"`
	Leading []string `json:"leading"`
}

// Snapshot is the whole persisted identity document
type Snapshot struct {
	Users  []User  `yaml:"users"`
	Groups []Group `yaml:"groups"`
	Tokens []Token `yaml:"tokens"`
}

// Clone returns a deep copy of s
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Users:  slices.Clone(s.Users),
		Groups: make([]Group, len(s.Groups)),
		Tokens: slices.Clone(s.Tokens),
	}
	for i, g := range s.Groups {
		g.Members = slices.Clone(g.Members)
		g.Leaders = slices.Clone(g.Leaders)
		out.Groups[i] = g
	}
	return out
}

func (s *Snapshot) userByName(username string) (int, bool) {
	i := slices.IndexFunc(s.Users, func(u User) bool { return u.Username == username })
	return i, i >= 0
}

func (s *Snapshot) userByID(id string) (User, bool) {
	i := slices.IndexFunc(s.Users, func(u User) bool { return u.ID == id })
	if i < 0 {
		return User{}, false
	}
	return s.Users[i], true
}

func (s *Snapshot) groupByName(name string) (int, bool) {
	i := slices.IndexFunc(s.Groups, func(g Group) bool { return g.Name == name })
	return i, i >= 0
}

func (s *Snapshot) usersByID(ids []string) []User {
	users := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.userByID(id); ok {
			users = append(users, u)
		}
	}
	return users
}

func (s *Snapshot) tokensOf(userID string) []Token {
	var tokens []Token
	for _, t := range s.Tokens {
		if t.Owner == userID {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
