package models

import "time"

type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Headline  string     `json:"headline,omitempty"`
	AvatarURL *string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (u *User) GetAvatarURL() string {
	if u.AvatarURL != nil {
		return *u.AvatarURL
	}
	return ""
}

// Placeholder returns a user carrying only an ID, used when a profile
// cannot be resolved.
func Placeholder(id string) *User {
	return &User{ID: id}
}
