package mesh

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"

	"trenchwatch/mesh/internal/store"
)

// RefKind is the classification of an enrichment reference.
type RefKind int

const (
	RefUnknown RefKind = iota
	RefCommunity
	RefAccount
)

func (k RefKind) String() string {
	switch k {
	case RefCommunity:
		return "community"
	case RefAccount:
		return "account"
	default:
		return "unknown"
	}
}

// ClassifyReference decides whether a reference names an x community or an
// account, and extracts the canonical identifier. Accepted shapes:
//
//	https://x.com/i/communities/<id>   community
//	https://twitter.com/i/communities/<id>
//	<digits>                           community id
//	https://x.com/<handle>             account
//	@<handle> or <handle>              account
func ClassifyReference(ref string) (RefKind, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return RefUnknown, "", fmt.Errorf("empty reference")
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil {
			return RefUnknown, "", fmt.Errorf("parsing reference url: %w", err)
		}
		host := strings.TrimPrefix(u.Hostname(), "www.")
		if host != "x.com" && host != "twitter.com" {
			return RefUnknown, "", fmt.Errorf("unsupported host %q", host)
		}
		parts := splitPath(u.Path)
		if len(parts) >= 3 && parts[0] == "i" && parts[1] == "communities" && isDigits(parts[2]) {
			return RefCommunity, parts[2], nil
		}
		if len(parts) >= 1 && parts[0] != "i" {
			return RefAccount, store.NormalizeID(store.KindXAccount, parts[0]), nil
		}
		return RefUnknown, "", fmt.Errorf("unrecognized x.com path %q", u.Path)
	}

	if isDigits(ref) {
		return RefCommunity, ref, nil
	}

	handle := store.NormalizeID(store.KindXAccount, ref)
	if handle == "" || !isHandle(handle) {
		return RefUnknown, "", fmt.Errorf("reference %q is not a community id, url, or handle", ref)
	}
	return RefAccount, handle, nil
}

// CommunityURL returns the public page for a community id, used by the
// existence web check.
func CommunityURL(id string) string {
	return "https://x.com/i/communities/" + id
}

// ValidAddress reports whether s decodes as a 32-byte base58 value, the shape
// of on-chain wallet and mint addresses.
func ValidAddress(s string) bool {
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == 32
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isHandle(s string) bool {
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return len(s) <= 15
}
