// Package presence tracks which users currently hold a live connection.
// The registry enforces a single active connection per user: a new
// registration supersedes and reports the prior connection so the transport
// layer can terminate it.
package presence

import (
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/shardmap"
)

// Registry maps user IDs to connection IDs and back. All mutations of both
// directions happen inside the user's shard critical section, so concurrent
// register/unregister calls for the same user resolve to a single winner
// and the reverse map never holds an entry for a superseded connection.
type Registry struct {
	byUser *shardmap.Map[string]
	byConn *shardmap.Map[string]
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: shardmap.New[string](),
		byConn: shardmap.New[string](),
	}
}

// Register installs connID as the live connection for userID. If the user
// already had a different connection it is evicted and returned; the caller
// is responsible for terminating it.
func (r *Registry) Register(userID, connID string) (evictedConnID string, evicted bool) {
	r.byUser.Update(userID, func(current string, ok bool) (string, bool) {
		if ok && current != connID {
			evictedConnID = current
			evicted = true
			r.byConn.Delete(current)
		}
		r.byConn.Set(connID, userID)
		return connID, true
	})
	return evictedConnID, evicted
}

// Unregister removes connID only while it is still the current connection
// for its user. A disconnect arriving after the connection was superseded
// is a no-op and must not evict the newer mapping. Returns the user the
// connection belonged to and whether the live mapping was actually removed.
func (r *Registry) Unregister(connID string) (userID string, removed bool) {
	userID, ok := r.byConn.Get(connID)
	if !ok {
		return "", false
	}
	r.byUser.Update(userID, func(current string, ok bool) (string, bool) {
		// Connection ids are never reused, so dropping the reverse entry
		// is safe even when a racing register already replaced it.
		r.byConn.Delete(connID)
		if ok && current == connID {
			removed = true
			return "", false
		}
		return current, ok
	})
	return userID, removed
}

// Lookup returns the live connection for userID, if any. Pure read.
func (r *Registry) Lookup(userID string) (string, bool) {
	return r.byUser.Get(userID)
}

// OnlineUsers returns a snapshot of all users with a live connection.
func (r *Registry) OnlineUsers() []string {
	return r.byUser.Keys()
}
