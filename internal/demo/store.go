// Package demo holds two small schemas served in process: "server" owns
// users and their todos, "local" extends users with drafts. Together they
// exercise every path of the composite layer.
package demo

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type User struct {
	ID     int
	Name   string
	Age    int
	Gender string
}

type Todo struct {
	ID       int
	Text     string
	Complete bool
	OwnerID  int
}

type Draft struct {
	ID       int
	Text     string
	AuthorID int
}

// Store is the data behind both demo schemas. Identifiers are allocated per
// store.
type Store struct {
	mu          sync.RWMutex
	viewerID    int
	nextUserID  int
	nextTodoID  int
	nextDraftID int
	users       map[int]*User
	todos       []*Todo
	drafts      []*Draft
}

// NewStore returns a store seeded with the viewer Huey, three contacts, two
// todos and two drafts.
func NewStore() *Store {
	s := &Store{nextUserID: 1, users: map[int]*User{}}
	viewer := s.AddUser("Huey")
	s.viewerID = viewer.ID
	s.AddUser("Jason")
	s.AddUser("Nate")
	s.AddUser("Strickland")
	s.AddTodo("Taste JavaScript", true, viewer.ID)
	s.AddTodo("Buy a unicorn", false, viewer.ID)
	s.AddDraft("This is a draft", viewer.ID)
	s.AddDraft("This is another draft", viewer.ID)
	return s
}

func (s *Store) AddUser(name string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{ID: s.nextUserID, Name: name, Age: 13, Gender: "male"}
	s.nextUserID++
	s.users[u.ID] = u
	return u
}

func (s *Store) AddTodo(text string, complete bool, ownerID int) *Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Todo{ID: s.nextTodoID, Text: text, Complete: complete, OwnerID: ownerID}
	s.nextTodoID++
	s.todos = append(s.todos, t)
	return t
}

func (s *Store) AddDraft(text string, authorID int) *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Draft{ID: s.nextDraftID, Text: text, AuthorID: authorID}
	s.nextDraftID++
	s.drafts = append(s.drafts, d)
	return d
}

func (s *Store) Viewer() *User { return s.User(s.viewerID) }

func (s *Store) ViewerID() int { return s.viewerID }

// User returns a copy of the user, or nil.
func (s *Store) User(id int) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// RenameUser changes a user's name and returns the updated user.
func (s *Store) RenameUser(id int, name string) (*User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if ok {
		u.Name = name
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no user %d", id)
	}
	return s.User(id), nil
}

func (s *Store) Todo(id int) *Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.todos {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Todos returns the todos of a user filtered by status: "any", "active" or
// "completed".
func (s *Store) Todos(ownerID int, status string) []*Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Todo
	for _, t := range s.todos {
		if t.OwnerID != ownerID {
			continue
		}
		switch {
		case status == "active" && t.Complete, status == "completed" && !t.Complete:
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) Draft(id int) *Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.drafts {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *Store) Drafts(authorID int) []*Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Draft
	for _, d := range s.drafts {
		if d.AuthorID == authorID {
			out = append(out, d)
		}
	}
	return out
}

// GlobalID encodes a type name and local id the way Relay servers do:
// base64("Type:id").
func GlobalID(typeName string, id int) string {
	return base64.StdEncoding.EncodeToString([]byte(typeName + ":" + strconv.Itoa(id)))
}

// ParseGlobalID decodes an id produced by GlobalID.
func ParseGlobalID(gid string) (typeName string, id int, err error) {
	raw, err := base64.StdEncoding.DecodeString(gid)
	if err != nil {
		return "", 0, fmt.Errorf("invalid global id %q: %w", gid, err)
	}
	typeName, local, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid global id %q", gid)
	}
	id, err = strconv.Atoi(local)
	if err != nil {
		return "", 0, fmt.Errorf("invalid global id %q: %w", gid, err)
	}
	return typeName, id, nil
}
