package manager

import "github.com/helpinghand/helpinghand/internal/db"

// CanTransition is the lifecycle table for participant operations.
// Admin overrides bypass it.
//
//	pending  -> accepted | cancelled
//	accepted -> completed | cancelled | pending
func CanTransition(from, to db.Status) bool {
	switch from {
	case db.StatusPending:
		return to == db.StatusAccepted || to == db.StatusCancelled
	case db.StatusAccepted:
		return to == db.StatusCompleted || to == db.StatusCancelled || to == db.StatusPending
	default:
		return false
	}
}

func IsTerminal(s db.Status) bool {
	return s == db.StatusCompleted || s == db.StatusCancelled
}
