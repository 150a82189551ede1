package models

import (
	"slices"
	"time"
)

// Program is an access-control grouping. It owns a set of external user
// ids (owners) and a set of channel ids; issues created from one of its
// channels are linked to it.
type Program struct {
	ID          string
	ProgramID   string // external identifier, unique among live programs
	Name        string
	Description string
	Owners      []string
	Channels    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// HasOwner reports whether userID is listed among the program's owners.
func (p *Program) HasOwner(userID string) bool {
	return slices.Contains(p.Owners, userID)
}

// HasChannel reports whether channelID is one of the program's channels.
func (p *Program) HasChannel(channelID string) bool {
	return slices.Contains(p.Channels, channelID)
}
