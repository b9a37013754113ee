package models

import "time"

// Role names a back-office role.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleBoardMember Role = "BOARD_MEMBER"
	RoleTutor       Role = "TUTOR"
	RoleAsistan     Role = "ASISTAN"
	RoleStudent     Role = "STUDENT"
	RoleAthlete     Role = "ATHLETE"
)

// StaffRoles may grant points and experience.
var StaffRoles = []Role{RoleAdmin, RoleBoardMember, RoleTutor, RoleAsistan}

// LearnerRoles appear on leaderboards.
var LearnerRoles = []Role{RoleStudent, RoleAthlete}

// IsStaff reports whether the role may act on other users' ledgers.
func (r Role) IsStaff() bool {
	for _, staff := range StaffRoles {
		if r == staff {
			return true
		}
	}
	return false
}

// User is the subject or actor of ledger transactions.
//
// Points and Experience are historical denormalized counters. Current balances are
// always folded from the transaction logs.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role       Role      `gorm:"size:32;not null;index" json:"role"`
	TutorID    *uint     `gorm:"index" json:"tutor_id"`
	Points     int64     `gorm:"not null;default:0" json:"points"`
	Experience int64     `gorm:"not null;default:0" json:"experience"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
