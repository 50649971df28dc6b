package store

import "strings"

// EntityKind identifies the namespace of a graph identifier.
type EntityKind string

const (
	KindWallet          EntityKind = "wallet"
	KindXAccount        EntityKind = "x_account"
	KindXCommunity      EntityKind = "x_community"
	KindToken           EntityKind = "token"
	KindTelegramAccount EntityKind = "telegram_account"
	KindPumpfunAccount  EntityKind = "pumpfun_account"
)

// CaseSensitive reports whether identifiers of this kind must be matched
// exactly. On-chain addresses are case-sensitive; handles are not.
func (k EntityKind) CaseSensitive() bool {
	return k == KindWallet || k == KindToken
}

// NormalizeID canonicalizes an identifier for storage so a handle always
// resolves to one node regardless of capitalization at scrape time.
func NormalizeID(kind EntityKind, id string) string {
	id = strings.TrimSpace(id)
	if kind.CaseSensitive() {
		return id
	}
	return strings.ToLower(strings.TrimPrefix(id, "@"))
}

// Relation is the type of a directed edge.
type Relation string

const (
	RelAdminOf      Relation = "admin_of"
	RelModOf        Relation = "mod_of"
	RelCoMod        Relation = "co_mod"
	RelCommunityFor Relation = "community_for"
	RelFundedBy     Relation = "funded_by"
	RelLinkedWallet Relation = "linked_wallet"
)

// Edge represents a row in the edges table. The natural key is
// (source_kind, source_id, target_kind, target_id, relation).
type Edge struct {
	ID            string     `json:"id"`
	SourceKind    EntityKind `json:"source_kind"`
	SourceID      string     `json:"source_id"`
	Relation      Relation   `json:"relation"`
	TargetKind    EntityKind `json:"target_kind"`
	TargetID      string     `json:"target_id"`
	Confidence    int        `json:"confidence"` // 0-100
	DiscoveredVia *string    `json:"discovered_via"`
	Metadata      *string    `json:"metadata"` // JSON string
	FirstSeenAt   int64      `json:"first_seen_at"` // Unix millis
}

// Community scrape statuses.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspected = "suspected"
	StatusDeleted   = "deleted"
)

// Community represents a row in the communities table
type Community struct {
	ID                   string   `json:"id"`
	Name                 *string  `json:"name"`
	MemberCount          int      `json:"member_count"`
	AdminUsernames       []string `json:"admin_usernames"`
	ModeratorUsernames   []string `json:"moderator_usernames"`
	LinkedTokenMints     []string `json:"linked_token_mints"`
	LinkedWallets        []string `json:"linked_wallets"`
	ScrapeStatus         string   `json:"scrape_status"`
	FailedScrapeCount    int      `json:"failed_scrape_count"`
	IsFlagged            bool     `json:"is_flagged"`
	IsDeleted            bool     `json:"is_deleted"`
	DeletedDetectedAt    *int64   `json:"deleted_detected_at"`
	DeletionAlertSent    bool     `json:"deletion_alert_sent"`
	LastExistenceCheckAt *int64   `json:"last_existence_check_at"`
}

// Team risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Team represents a persisted cluster of identifiers believed to belong to
// the same operating entity.
type Team struct {
	ID                    string   `json:"team_id"`
	MemberWallets         []string `json:"member_wallets"`
	MemberTwitterAccounts []string `json:"member_twitter_accounts"`
	AdminUsernames        []string `json:"admin_usernames"`
	ModeratorUsernames    []string `json:"moderator_usernames"`
	LinkedTokenMints      []string `json:"linked_token_mints"`
	LinkedXCommunities    []string `json:"linked_x_communities"`
	TokensCreated         int      `json:"tokens_created"`
	TokensRugged          int      `json:"tokens_rugged"`
	RiskLevel             string   `json:"risk_level"`
	IsActive              bool     `json:"is_active"`
	CreatedAt             int64    `json:"created_at"`
	UpdatedAt             int64    `json:"updated_at"`
}

// ListKind selects the blacklist or whitelist table.
type ListKind string

const (
	Blacklist ListKind = "blacklist"
	Whitelist ListKind = "whitelist"
)

// ListEntry represents a curated blacklist or whitelist row. Level holds the
// risk level for blacklist entries and the trust level for whitelist entries.
type ListEntry struct {
	ID                    int64      `json:"id"`
	EntryType             EntityKind `json:"entry_type"`
	Identifier            string     `json:"identifier"`
	LinkedTokenMints      []string   `json:"linked_token_mints"`
	LinkedWallets         []string   `json:"linked_wallets"`
	LinkedTwitter         []string   `json:"linked_twitter"`
	LinkedTelegram        []string   `json:"linked_telegram"`
	LinkedPumpfunAccounts []string   `json:"linked_pumpfun_accounts"`
	Level                 string     `json:"level"`
	IsActive              bool       `json:"is_active"`
	CreatedAt             int64      `json:"created_at"`
}
