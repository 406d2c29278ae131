package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID              int64
	Email           string
	EmailVerifiedAt *time.Time
	Image           *string
	Role            Role
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// * IsVerified проверяет, подтвержден ли email пользователя
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

type VerificationToken struct {
	Identifier string
	Token      string
	Expires    time.Time
	CreatedAt  time.Time
}

// * IsExpired проверяет, истек ли срок действия токена
func (t *VerificationToken) IsExpired() bool {
	return t.Expires.Before(time.Now())
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

type Message struct {
	Email   string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
