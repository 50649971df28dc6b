package mesh

import "context"

// Role is a member's position within a community.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Member is one entry of the normalized member list produced by the external
// enrichment collaborator. How the list was obtained is not the mesh's concern.
type Member struct {
	Handle string
	Role   Role
}

// MemberFetcher is the external member-list collaborator. An empty result is
// a valid response, not an error; it feeds the existence validator.
type MemberFetcher interface {
	FetchCommunityMembers(ctx context.Context, communityID string) ([]Member, error)
}
