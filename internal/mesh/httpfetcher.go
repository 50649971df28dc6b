package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPMemberFetcher pulls member lists from the scraper service's REST API.
// The scraper owns browser automation and login state; this client only
// consumes its normalized output.
type HTTPMemberFetcher struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPMemberFetcher builds a client for the scraper service at baseURL.
// apiKey may be empty when the service runs unauthenticated on localhost.
func NewHTTPMemberFetcher(baseURL, apiKey string) *HTTPMemberFetcher {
	return &HTTPMemberFetcher{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// FetchCommunityMembers calls GET /communities/{id}/members. A 200 with an
// empty list is a valid response and feeds the existence validator as-is.
func (f *HTTPMemberFetcher) FetchCommunityMembers(ctx context.Context, communityID string) ([]Member, error) {
	endpoint := fmt.Sprintf("%s/communities/%s/members", f.baseURL, url.PathEscape(communityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching members of %s: %w", communityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching members of %s: status %d", communityID, resp.StatusCode)
	}

	var payload struct {
		Members []struct {
			Handle string `json:"handle"`
			Role   string `json:"role"`
		} `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding members of %s: %w", communityID, err)
	}

	members := make([]Member, 0, len(payload.Members))
	for _, m := range payload.Members {
		role := Role(m.Role)
		switch role {
		case RoleAdmin, RoleModerator, RoleMember:
		default:
			role = RoleMember
		}
		members = append(members, Member{Handle: m.Handle, Role: role})
	}
	return members, nil
}
