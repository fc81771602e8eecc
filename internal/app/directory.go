package app

import (
	"context"
	"strings"
)

// UserProfile is display data for a referenced user.
type UserProfile struct {
	ID        string `json:"id" toml:"id"`
	Name      string `json:"name" toml:"name"`
	Email     string `json:"email,omitempty" toml:"email"`
	AvatarURL string `json:"avatarUrl,omitempty" toml:"avatar_url"`
}

// Directory resolves user ids to display data. Ids that do not resolve are omitted from the result.
type Directory interface {
	LookupUsers(ctx context.Context, ids []string) (map[string]UserProfile, error)
}

// StaticDirectory is an in-memory Directory keyed by user id.
type StaticDirectory map[string]UserProfile

// NewStaticDirectory indexes profiles by trimmed id, skipping blank ids.
func NewStaticDirectory(profiles []UserProfile) StaticDirectory {
	out := make(StaticDirectory, len(profiles))
	for _, p := range profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			continue
		}
		out[p.ID] = p
	}
	return out
}

// LookupUsers returns the subset of ids present in the directory.
func (d StaticDirectory) LookupUsers(_ context.Context, ids []string) (map[string]UserProfile, error) {
	out := make(map[string]UserProfile, len(ids))
	for _, id := range ids {
		if p, ok := d[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
