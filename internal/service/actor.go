package service

import "github.com/fjod/farmstand/internal/domain"

const RoleAdmin = "admin"

// Actor is the caller as established by the transport layer. UserID is empty
// for guests; SessionID is the cart session header, if any.
type Actor struct {
	UserID    string
	Role      string
	SessionID string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

// CanAccess reports whether the actor may read or pay for the order. Guest
// orders are reachable from the session that placed them.
func (a Actor) CanAccess(o *domain.Order) bool {
	if a.IsAdmin() {
		return true
	}
	if o.UserID != nil {
		return o.OwnedBy(a.UserID)
	}
	return a.SessionID != "" && a.SessionID == o.SessionID
}
