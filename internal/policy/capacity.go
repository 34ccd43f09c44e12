package policy

import "github.com/mmynk/streamshare/internal/models"

// HasCapacity reports whether g can admit one more member.
func HasCapacity(g *models.Group, memberCount int) bool {
	return memberCount < g.MaxMembers
}

// RecomputeCapacity derives a group's member ceiling from its streaming
// services: the smallest screen limit among them, since every member needs
// a screen on each shared service. With no services the current ceiling is
// kept. The result is never below memberCount.
func RecomputeCapacity(services []*models.StreamingService, current, memberCount int) int {
	limit := current
	for i, s := range services {
		if i == 0 || s.MaxScreens < limit {
			limit = s.MaxScreens
		}
	}
	if limit < memberCount {
		return memberCount
	}
	return limit
}
