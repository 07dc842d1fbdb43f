package models

// MembershipList names one of the curated app lists
type MembershipList string

const (
	ListFeatured MembershipList = "featured"
	ListEvents   MembershipList = "events"
)

// MembershipAction is a single-id edit on a membership list
type MembershipAction string

const (
	ActionAdd    MembershipAction = "add"
	ActionRemove MembershipAction = "remove"
	ActionToggle MembershipAction = "toggle"
)

// Membership holds the featured and event id lists.
// Dangling lists ids that no longer reference an existing app.
type Membership struct {
	Featured []string `json:"featured"`
	Events   []string `json:"events"`
	Dangling []string `json:"dangling,omitempty"`
}

// MembershipChange is the result of a single-id edit
type MembershipChange struct {
	List    MembershipList `json:"type"`
	AppID   string         `json:"appId"`
	Member  bool           `json:"member"`
	Changed bool           `json:"changed"`
	IDs     []string       `json:"ids"`
}
