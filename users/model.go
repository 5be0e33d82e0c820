// Package users fetches user records over HTTP through an async machine. It
// also ships the fixture server the machine talks to in tests and from fsmctl.
package users

import "slices"

type Friend struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID       string   `json:"id"`
	EyeColor string   `json:"eyeColor"`
	Name     string   `json:"name"`
	Company  string   `json:"company"`
	Email    string   `json:"email"`
	Friends  []Friend `json:"friends"`
}

// Directory is the machine payload: the users fetched so far
type Directory struct {
	Users []User `json:"users"`
}

// Clone returns a deep copy of d
func (d Directory) Clone() Directory {
	if d.Users == nil {
		return Directory{}
	}
	out := make([]User, len(d.Users))
	for i, u := range d.Users {
		u.Friends = slices.Clone(u.Friends)
		out[i] = u
	}
	return Directory{Users: out}
}

// Find returns the user with the given id
func (d Directory) Find(id string) (User, bool) {
	for _, u := range d.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Upsert replaces the user with the same id or appends u
func (d *Directory) Upsert(u User) {
	for i := range d.Users {
		if d.Users[i].ID == u.ID {
			d.Users[i] = u
			return
		}
	}
	d.Users = append(d.Users, u)
}
