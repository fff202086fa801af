package chat

import (
	"time"

	"github.com/chatstack/go-chathub/internal/database"
)

// HasPermission reports whether the membership's role ranks at or above
// required in the role hierarchy.
func HasPermission(m database.Membership, required database.RoomRole) bool {
	return m.Role.Rank() >= required.Rank()
}

// CanSend reports whether the member may post right now. An inactive
// membership never may; a mute with no expiry holds forever, otherwise it
// lifts at exactly MutedUntil.
func CanSend(m database.Membership, now time.Time) bool {
	if !m.IsActive {
		return false
	}
	if m.IsMuted && (m.MutedUntil == nil || m.MutedUntil.After(now)) {
		return false
	}
	return true
}

// HasCapacity reports whether a room with the given active member count can
// accept one more member.
func HasCapacity(activeMembers, maxMembers int) bool {
	return activeMembers < maxMembers
}
