// Package users models the remote "user" resource exchanged with the users API.
package users

// UserRecord mirrors the JSON shape of a user. ID and Avatar are assigned by the
// server and stay nil on records built locally for create or update payloads.
type UserRecord struct {
	ID        *int    `json:"id,omitempty"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Avatar    *string `json:"avatar,omitempty"`
}

// NewUserRecord builds a request payload from the client-owned fields.
func NewUserRecord(email, firstName, lastName string) UserRecord {
	return UserRecord{Email: email, FirstName: firstName, LastName: lastName}
}

// IDValue reports the server-assigned identifier when present.
func (u UserRecord) IDValue() (int, bool) {
	if u.ID == nil {
		return 0, false
	}
	return *u.ID, true
}

// SetID records a server-assigned identifier.
func (u *UserRecord) SetID(id int) {
	u.ID = &id
}

// AvatarValue reports the server-assigned avatar URL when present.
func (u UserRecord) AvatarValue() (string, bool) {
	if u.Avatar == nil {
		return "", false
	}
	return *u.Avatar, true
}

// SetAvatar records a server-assigned avatar URL.
func (u *UserRecord) SetAvatar(avatar string) {
	u.Avatar = &avatar
}

// Payload strips server-only fields so the record can be sent as a request body.
func (u UserRecord) Payload() UserRecord {
	return UserRecord{Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// FieldMappings translates in-memory field names to their wire names. The JSON
// tags on UserRecord must stay in sync with this table.
var FieldMappings = map[string]string{
	"ID":        "id",
	"Email":     "email",
	"FirstName": "first_name",
	"LastName":  "last_name",
	"Avatar":    "avatar",
}

// WireName returns the wire name for an in-memory field, or the input unchanged
// when the field is not part of the record.
func WireName(field string) string {
	if wire, ok := FieldMappings[field]; ok {
		return wire
	}
	return field
}
