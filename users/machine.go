package users

import (
	"context"
	"fmt"

	fsm "github.com/silverspectro/async-finite-state-machine"
)

const (
	Done    fsm.Tag = "done"
	Loading fsm.Tag = "loading"

	EventFetchAll  fsm.EventID = "fetch_all"
	EventFetchUser fsm.EventID = "fetch_user"
)

// Fetcher is the source the machine's jobs read from. *Client implements it.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]User, error)
	FetchUser(ctx context.Context, id string) (User, error)
}

// FetchAll builds a fetch_all event
func FetchAll() fsm.Event { return fsm.NewEvent(EventFetchAll) }

// FetchUser builds a fetch_user event for id
func FetchUser(id string) fsm.Event { return fsm.NewEvent(EventFetchUser, id) }

// Definition returns the directory rules. Both events are accepted in any
// state; each dispatch moves to loading and its result lands in done.
func Definition(src Fetcher) *fsm.Definition[Directory] {
	return fsm.NewDefinition[Directory]().
		State(Done).
		InFlightState(Loading).
		Async(fsm.WildcardState, EventFetchAll, Loading, Done, fetchAll(src)).
		Async(fsm.WildcardState, EventFetchUser, Loading, Done, fetchUser(src)).
		Initial(Done, Directory{Users: []User{}}).
		Clone(Directory.Clone)
}

// NewMachine builds a directory machine starting done with no users
func NewMachine(src Fetcher, opts ...fsm.MachineOption) (*fsm.Machine[Directory], error) {
	return Definition(src).Build(opts...)
}

// fetchAll replaces the snapshot's users with the server's list
func fetchAll(src Fetcher) fsm.TaskFunc[Directory] {
	return func(c *fsm.Context[Directory]) (Directory, error) {
		users, err := src.FetchAll(c)
		if err != nil {
			return Directory{}, err
		}
		c.Logger.Debug("fetched users", "count", len(users))
		if users == nil {
			users = []User{}
		}
		return Directory{Users: users}, nil
	}
}

// fetchUser upserts one user into the snapshot
func fetchUser(src Fetcher) fsm.TaskFunc[Directory] {
	return func(c *fsm.Context[Directory]) (Directory, error) {
		id, ok := c.Event.Payload.(string)
		if !ok || id == "" {
			return Directory{}, fmt.Errorf("fetch_user expects a user id, got %v", c.Event.Payload)
		}
		u, err := src.FetchUser(c, id)
		if err != nil {
			return Directory{}, err
		}
		next := *c.Payload
		next.Upsert(u)
		return next, nil
	}
}
