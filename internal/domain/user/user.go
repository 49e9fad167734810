package user

import (
	"errors"
	"time"
)

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already used")
)

type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile is what callers get to see of a User.
type Profile struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
	Email     string `json:"email" binding:"required,email,max=100"`
	Phone     string `json:"phone" binding:"max=20"`
	Address   string `json:"address" binding:"required,max=100"`
	Password  string `json:"password" binding:"required,min=8,max=20"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
	Email     string `json:"email" binding:"required,email,max=100"`
	Phone     string `json:"phone" binding:"max=20"`
	Address   string `json:"address" binding:"required,max=100"`
}

// NewFromRegisterRequest builds a self-registered client. Elevated roles are
// only ever assigned by provisioning.
func NewFromRegisterRequest(req RegisterRequest, passwordHash string, now time.Time) User {
	return User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		PasswordHash: passwordHash,
		Role:         RoleClient,
		CreatedAt:    now.UTC(),
	}
}

// ApplyProfileUpdate overwrites the mutable profile fields.
func (u *User) ApplyProfileUpdate(req UpdateProfileRequest) {
	u.FirstName = req.FirstName
	u.LastName = req.LastName
	u.Email = req.Email
	u.Phone = req.Phone
	u.Address = req.Address
}
