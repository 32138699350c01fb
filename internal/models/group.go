package models

import "time"

// Group is a named circle of users who share their live location with each
// other. The owner is always present in MemberIDs.
type Group struct {
	ID        string
	Name      string
	OwnerID   string
	MemberIDs []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Invite is a short-lived single-use code granting join access to one group.
type Invite struct {
	Code      string    `json:"code"`
	GroupID   string    `json:"groupId"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
