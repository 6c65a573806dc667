// Package domain holds the relationship and room lifecycle model.
package domain

// User is one loaded identity record with its denormalized membership caches.
// A User is only constructed from a store read, so ID is always present.
type User struct {
	ID       string
	Handle   string
	UserName string
	// Friends is the friend cache, owned by the identity subsystem and
	// consumed here.
	Friends []string
	// Rooms is the room-membership cache, mutated by the room directory.
	Rooms []string
}

// HasFriend reports whether the friend cache contains userID.
func (u User) HasFriend(userID string) bool {
	for _, friend := range u.Friends {
		if friend == userID {
			return true
		}
	}
	return false
}

// HasRoom reports whether the room-membership cache contains roomID.
func (u User) HasRoom(roomID string) bool {
	for _, room := range u.Rooms {
		if room == roomID {
			return true
		}
	}
	return false
}
