package models

import "encoding/json"

// StreamPayload is the tagged union pushed to open stream connections. It
// encodes as {"type": <variant>, "payload": <body>} so clients can dispatch
// on the variant name.
type StreamPayload struct {
	Type    string
	Payload any
}

const (
	payloadReady      = "Ready"
	payloadReadyAdmin = "ReadyAdmin"
)

type readyBody struct {
	User      PublicUser        `json:"user"`
	Reports   []Report          `json:"reports"`
	Nicknames map[string]string `json:"nicknames"`
}

type readyAdminBody struct {
	ID      string       `json:"id"`
	Users   []PublicUser `json:"users"`
	Reports []Report     `json:"reports"`
}

// ReadyPayload builds the snapshot pushed to an ordinary user's stream: their
// own reports plus the uuid-to-username nickname table for rendering authors.
func ReadyPayload(user PublicUser, reports []Report, nicknames map[string]string) StreamPayload {
	if reports == nil {
		reports = []Report{}
	}
	if nicknames == nil {
		nicknames = map[string]string{}
	}
	return StreamPayload{
		Type:    payloadReady,
		Payload: readyBody{User: user, Reports: reports, Nicknames: nicknames},
	}
}

// ReadyAdminPayload builds the snapshot pushed to an admin's stream: every
// registered user's public profile and every report regardless of ownership.
func ReadyAdminPayload(adminUUID string, users []PublicUser, reports []Report) StreamPayload {
	if users == nil {
		users = []PublicUser{}
	}
	if reports == nil {
		reports = []Report{}
	}
	return StreamPayload{
		Type:    payloadReadyAdmin,
		Payload: readyAdminBody{ID: adminUUID, Users: users, Reports: reports},
	}
}

// IsAdmin reports whether the payload carries the admin variant.
func (p StreamPayload) IsAdmin() bool {
	return p.Type == payloadReadyAdmin
}

// MarshalJSON renders the adjacently tagged representation.
func (p StreamPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: p.Type, Payload: p.Payload})
}
