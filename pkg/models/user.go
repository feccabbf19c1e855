package models

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Address struct {
	Street  string `bson:"street" json:"street"`
	City    string `bson:"city" json:"city"`
	State   string `bson:"state" json:"state"`
	Zip     string `bson:"zip" json:"zip"`
	Country string `bson:"country" json:"country"`
}

type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Password  string    `bson:"password" json:"-"`
	Role      Role      `bson:"role" json:"role"`
	Address   *Address  `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) Clone() User {
	out := u
	if u.Address != nil {
		addr := *u.Address
		out.Address = &addr
	}
	return out
}

type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
	Role     *Role
	Address  *Address
}

func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

func (p UserPatch) Apply(dst *User) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Email != nil {
		dst.Email = *p.Email
	}
	if p.Password != nil {
		dst.Password = *p.Password
	}
	if p.Role != nil {
		dst.Role = *p.Role
	}
	if p.Address != nil {
		addr := *p.Address
		dst.Address = &addr
	}
}
