package users

import "time"

// Support is the promotional block the service attaches to read responses.
type Support struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// SingleUser is the body of GET /users/{id}.
type SingleUser struct {
	Data    UserRecord `json:"data"`
	Support Support    `json:"support"`
}

// UserPage is the body of GET /users?page=n.
type UserPage struct {
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
	Data       []UserRecord `json:"data"`
	Support    Support      `json:"support"`
}

// CreatedUser is the body of POST /users. The service echoes the payload and
// assigns a string identifier.
type CreatedUser struct {
	UserRecord
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdatedUser is the body of PUT /users/{id}.
type UpdatedUser struct {
	UserRecord
	UpdatedAt time.Time `json:"updatedAt"`
}
