package entity

import "fmt"

// Role is the single authorization attribute carried by a credential.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Status is the lifecycle state of a credential. The only transition is
// PENDING to ACTIVE.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusActive:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}
