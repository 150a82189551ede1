// Package perm computes effective permission levels. Levels are
// recomputed per request from the source-of-truth stores rather than
// cached, so ownership changes take effect immediately.
package perm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackdesk/triage/internal/store"
)

// Level is an effective permission level, totally ordered.
type Level int

const (
	LevelUser Level = iota
	LevelOwner
	LevelProgramOwner
	LevelAdmin
)

// String returns the wire/config name of the level.
func (l Level) String() string {
	switch l {
	case LevelAdmin:
		return "admin"
	case LevelProgramOwner:
		return "program_owner"
	case LevelOwner:
		return "owner"
	default:
		return "user"
	}
}

// ParseLevel maps a level name to its Level. Unknown names parse as
// LevelUser.
func ParseLevel(s string) Level {
	switch s {
	case "admin":
		return LevelAdmin
	case "program_owner":
		return LevelProgramOwner
	case "owner":
		return LevelOwner
	default:
		return LevelUser
	}
}

// DeniedError reports a failed permission check.
type DeniedError struct {
	UserID   string
	Required Level
	Actual   Level
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("user %s needs %s permission (has %s)", e.UserID, e.Required, e.Actual)
}

// Resolver computes a user's level from the admin allow-list, program
// ownership, and the owner-set store.
type Resolver struct {
	store  store.Store
	admins map[string]struct{}
}

// NewResolver creates a Resolver. adminUsers is the static admin
// allow-list of external user ids.
func NewResolver(s store.Store, adminUsers []string) *Resolver {
	admins := make(map[string]struct{}, len(adminUsers))
	for _, u := range adminUsers {
		if u != "" {
			admins[u] = struct{}{}
		}
	}
	return &Resolver{store: s, admins: admins}
}

// Resolve returns the user's effective level against a channel/issue
// pair. Checks in strict priority order, first match wins:
// admin list, program ownership (channel's program, then the issue's
// linked program), owner sets (channel, then issue), default user.
// Either of channelID/issueID may be empty.
func (r *Resolver) Resolve(ctx context.Context, userID, channelID, issueID string) (Level, error) {
	if _, ok := r.admins[userID]; ok {
		return LevelAdmin, nil
	}

	if channelID != "" {
		program, err := r.store.GetProgramByChannel(ctx, channelID)
		if err == nil && program.HasOwner(userID) {
			return LevelProgramOwner, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return LevelUser, err
		}
	}

	if issueID != "" {
		issue, err := r.store.GetIssue(ctx, issueID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return LevelUser, err
		}
		if err == nil && issue.ProgramID != "" {
			program, err := r.store.GetProgram(ctx, issue.ProgramID)
			if err == nil && program.HasOwner(userID) {
				return LevelProgramOwner, nil
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return LevelUser, err
			}
		}
	}

	if channelID != "" {
		owner, err := r.store.IsChannelOwner(ctx, channelID, userID)
		if err != nil {
			return LevelUser, err
		}
		if owner {
			return LevelOwner, nil
		}
	}

	if issueID != "" {
		owner, err := r.store.IsIssueOwner(ctx, issueID, userID)
		if err != nil {
			return LevelUser, err
		}
		if owner {
			return LevelOwner, nil
		}
	}

	return LevelUser, nil
}

// HasPermission reports whether the user's resolved level meets the
// required level.
func (r *Resolver) HasPermission(ctx context.Context, userID string, required Level, channelID, issueID string) (bool, error) {
	level, err := r.Resolve(ctx, userID, channelID, issueID)
	if err != nil {
		return false, err
	}
	return level >= required, nil
}

// Require is the guard used at mutating entry points: it returns a
// *DeniedError when the check fails so the caller skips the guarded
// action entirely, and nil when the action may proceed.
func (r *Resolver) Require(ctx context.Context, userID string, required Level, channelID, issueID string) error {
	level, err := r.Resolve(ctx, userID, channelID, issueID)
	if err != nil {
		return err
	}
	if level < required {
		return &DeniedError{UserID: userID, Required: required, Actual: level}
	}
	return nil
}
