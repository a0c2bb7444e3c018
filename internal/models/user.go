package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	HashedPassword string     `json:"-" db:"password_hash"`
	Bio            string     `json:"bio" db:"bio"`
	Location       string     `json:"location" db:"location"`
	Birthdate      *time.Time `json:"birthdate,omitempty" db:"birthdate"`
	Signature      string     `json:"signature" db:"signature"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// Profile holds the editable, optional fields of a user.
type Profile struct {
	Bio       string
	Location  string
	Birthdate *time.Time
}

// PublicProfile is what anyone may see of a user. Email stays private to the
// account owner.
type PublicProfile struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Bio       string     `json:"bio"`
	Location  string     `json:"location"`
	Birthdate *time.Time `json:"birthdate,omitempty"`
	Signature string     `json:"signature"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (u *User) Public() *PublicProfile {
	return &PublicProfile{
		ID:        u.ID,
		Username:  u.Username,
		Bio:       u.Bio,
		Location:  u.Location,
		Birthdate: u.Birthdate,
		Signature: u.Signature,
		CreatedAt: u.CreatedAt,
	}
}
