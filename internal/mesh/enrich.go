package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"trenchwatch/mesh/internal/alert"
	"trenchwatch/mesh/internal/crossref"
	"trenchwatch/mesh/internal/existence"
	"trenchwatch/mesh/internal/store"
	"trenchwatch/mesh/internal/teams"
)

// Edge confidence levels by discovery path. Scraped staffing facts rank above
// derived pair and link facts so a later, stronger signal can overwrite them.
const (
	confAdminOf      = 90
	confModOf        = 80
	confCommunityFor = 75
	confCoMod        = 70
	confLinkedWallet = 60
)

const discoveredViaScrape = "community_scrape"

// Options tunes one enrichment call. MaxAge is the explicit freshness policy:
// a community checked within MaxAge is skipped unless Force is set.
type Options struct {
	MaxAge         time.Duration
	Force          bool
	LinkedToken    string
	LinkedWallet   string
	SkipClustering bool
}

// Result reports what one enrichment did. Callers observe success or failure
// synchronously; there is no fire-and-forget path.
type Result struct {
	Ref            string            `json:"ref"`
	Kind           RefKind           `json:"-"`
	KindName       string            `json:"kind"`
	ID             string            `json:"id"`
	Skipped        bool              `json:"skipped"`
	Verdict        existence.Verdict `json:"-"`
	VerdictName    string            `json:"verdict,omitempty"`
	MemberCount    int               `json:"member_count"`
	AdminCount     int               `json:"admin_count"`
	ModeratorCount int               `json:"moderator_count"`
	EdgesCreated   int               `json:"edges_created"`
	Flagged        bool              `json:"flagged"`
	AlertSent      bool              `json:"alert_sent"`
	TeamID         string            `json:"team_id,omitempty"`
	Degraded       bool              `json:"degraded"`
}

// Config holds the enricher's policy knobs.
type Config struct {
	Existence existence.Config
	// CallDelay is the minimum spacing between external calls.
	CallDelay time.Duration
	// CacheTTL bounds the in-process member-list cache; overlapping batch
	// runs within the TTL share one fetch.
	CacheTTL time.Duration
	// RetryInterval is the initial backoff delay after a failed fetch.
	RetryInterval time.Duration
}

// DefaultConfig returns the production pacing and hysteresis policy.
func DefaultConfig() Config {
	return Config{
		Existence:     existence.DefaultConfig(),
		CallDelay:     time.Second,
		CacheTTL:      24 * time.Hour,
		RetryInterval: 500 * time.Millisecond,
	}
}

// Enricher orchestrates the ingestion pipeline: fetch, validate, write edges,
// cross-reference, cluster.
type Enricher struct {
	db        *store.DB
	fetcher   MemberFetcher
	checker   existence.WebChecker
	alerts    *alert.Dispatcher
	clusterer *teams.Clusterer
	xref      *crossref.CrossReferencer
	cfg       Config
	limiter   *rate.Limiter
	cache     *ttlcache.Cache[string, []Member]
	log       *slog.Logger
}

// NewEnricher wires the pipeline. fetcher and checker are the external
// collaborators; alerts may deliver through any configured channel chain.
func NewEnricher(db *store.DB, fetcher MemberFetcher, checker existence.WebChecker,
	alerts *alert.Dispatcher, log *slog.Logger, cfg Config) *Enricher {
	if cfg.CallDelay <= 0 {
		cfg.CallDelay = DefaultConfig().CallDelay
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []Member](cfg.CacheTTL),
	)
	go cache.Start()
	return &Enricher{
		db:        db,
		fetcher:   fetcher,
		checker:   checker,
		alerts:    alerts,
		clusterer: teams.NewClusterer(db, log),
		xref:      crossref.New(db),
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.CallDelay), 1),
		cache:     cache,
		log:       log,
	}
}

// Close stops the cache janitor goroutine started by NewEnricher.
func (e *Enricher) Close() {
	e.cache.Stop()
}

// Enrich classifies the reference and runs the matching pipeline. Collaborator
// failures degrade to last known state; they never corrupt the community row.
func (e *Enricher) Enrich(ctx context.Context, ref string, opts Options) (*Result, error) {
	kind, id, err := ClassifyReference(ref)
	if err != nil {
		return nil, err
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.LinkedToken != "" && !ValidAddress(opts.LinkedToken) {
		return nil, fmt.Errorf("linked token %q is not a valid mint address", opts.LinkedToken)
	}
	if opts.LinkedWallet != "" && !ValidAddress(opts.LinkedWallet) {
		return nil, fmt.Errorf("linked wallet %q is not a valid wallet address", opts.LinkedWallet)
	}

	res := &Result{Ref: ref, Kind: kind, KindName: kind.String(), ID: id}
	switch kind {
	case RefCommunity:
		err = e.enrichCommunity(ctx, res, opts)
	case RefAccount:
		err = e.enrichAccount(ctx, res, opts)
	default:
		err = fmt.Errorf("unclassifiable reference %q", ref)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EnrichBatch processes references sequentially, respecting the inter-call
// delay. A single reference's failure is recorded and the run continues.
func (e *Enricher) EnrichBatch(ctx context.Context, refs []string, opts Options) ([]*Result, map[string]error) {
	var results []*Result
	failures := make(map[string]error)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			failures[ref] = err
			continue
		}
		res, err := e.Enrich(ctx, ref, opts)
		if err != nil {
			e.log.Warn("enrichment failed", "ref", ref, "err", err)
			failures[ref] = err
			continue
		}
		results = append(results, res)
	}
	return results, failures
}

func (e *Enricher) enrichCommunity(ctx context.Context, res *Result, opts Options) error {
	id := res.ID
	if err := e.db.EnsureCommunity(ctx, id); err != nil {
		return fmt.Errorf("ensuring community %s: %w", id, err)
	}
	comm, err := e.db.GetCommunity(ctx, id)
	if err != nil {
		return fmt.Errorf("loading community %s: %w", id, err)
	}

	if comm.IsDeleted {
		res.Skipped = true
		res.Verdict = existence.VerdictDeleted
		res.VerdictName = res.Verdict.String()
		// Deletion is terminal, but an alert whose delivery failed is
		// still owed; confirmDeletion retries it until the flag is set.
		return e.confirmDeletion(ctx, res, comm)
	}

	if !opts.Force && comm.LastExistenceCheckAt != nil {
		age := time.Since(time.UnixMilli(*comm.LastExistenceCheckAt))
		if age < opts.MaxAge {
			res.Skipped = true
			res.Verdict = existence.VerdictFromStatus(comm.ScrapeStatus)
			res.VerdictName = res.Verdict.String()
			res.MemberCount = comm.MemberCount
			e.log.Debug("community fresh, skipping scrape", "community", id, "age", age)
			return nil
		}
	}

	members, fetchErr := e.fetchMembers(ctx, id)
	if fetchErr != nil {
		e.log.Warn("member fetch failed, using last known state", "community", id, "err", fetchErr)
		res.Degraded = true
	}

	sig := existence.Signal{
		MembersFetched: fetchErr == nil,
		MemberCount:    len(members),
	}
	if fetchErr != nil || len(members) == 0 {
		sig.WebStatus = e.webCheck(ctx, id)
	}

	outcome := existence.Evaluate(e.cfg.Existence,
		existence.VerdictFromStatus(comm.ScrapeStatus), comm.FailedScrapeCount, sig)
	res.Verdict = outcome.Verdict
	res.VerdictName = outcome.Verdict.String()

	switch outcome.Verdict {
	case existence.VerdictDeleted:
		return e.confirmDeletion(ctx, res, comm)
	case existence.VerdictSuspected:
		return e.db.UpdateExistence(ctx, id, outcome.Verdict.StoreStatus(), outcome.FailCount)
	}

	return e.recordActiveScrape(ctx, res, comm, members, opts)
}

// recordActiveScrape persists a successful scrape: community fields, staffing
// and link edges, blacklist flag, and a clustering seed pass.
func (e *Enricher) recordActiveScrape(ctx context.Context, res *Result, comm *store.Community, members []Member, opts Options) error {
	id := res.ID
	admins, mods := partitionStaff(members)
	res.MemberCount = len(members)
	res.AdminCount = len(admins)
	res.ModeratorCount = len(mods)

	update := &store.Community{
		ID:                 id,
		Name:               comm.Name,
		MemberCount:        len(members),
		AdminUsernames:     admins,
		ModeratorUsernames: mods,
	}
	if opts.LinkedToken != "" {
		update.LinkedTokenMints = []string{opts.LinkedToken}
	}
	if opts.LinkedWallet != "" {
		update.LinkedWallets = []string{opts.LinkedWallet}
	}
	if err := e.db.RecordScrapeResult(ctx, update); err != nil {
		return err
	}

	created, err := e.writeStaffEdges(ctx, id, admins, mods, opts)
	if err != nil {
		return err
	}
	res.EdgesCreated = created

	staff := append(append([]string{}, admins...), mods...)
	flagged, err := e.xref.AnyBlacklisted(ctx, staff, store.KindXAccount)
	if err != nil {
		return fmt.Errorf("cross-referencing staff of %s: %w", id, err)
	}
	if flagged != comm.IsFlagged {
		if err := e.db.SetFlagged(ctx, id, flagged); err != nil {
			return err
		}
	}
	res.Flagged = flagged

	if !opts.SkipClustering {
		seeds := make([]teams.Identifier, 0, len(staff)+1)
		for _, h := range staff {
			seeds = append(seeds, teams.Ident(store.KindXAccount, h))
		}
		if opts.LinkedWallet != "" {
			seeds = append(seeds, teams.Ident(store.KindWallet, opts.LinkedWallet))
		}
		team, err := e.clusterer.Cluster(ctx, seeds)
		if err != nil {
			// Clustering is derived data; its failure must not fail the scrape.
			e.log.Warn("team clustering failed", "community", id, "err", err)
		} else if team != nil {
			res.TeamID = team.ID
		}
	}
	return nil
}

// confirmDeletion performs the terminal transition and the at-most-once alert.
// The sticky deletion_alert_sent flag is only set after a channel reports
// success, so an all-channels failure is retried by a future run.
func (e *Enricher) confirmDeletion(ctx context.Context, res *Result, comm *store.Community) error {
	transitioned, err := e.db.MarkDeleted(ctx, comm.ID)
	if err != nil {
		return fmt.Errorf("marking community %s deleted: %w", comm.ID, err)
	}
	if transitioned {
		e.log.Info("community confirmed deleted", "community", comm.ID)
	}

	if comm.DeletionAlertSent || e.alerts == nil {
		return nil
	}
	name := ""
	if comm.Name != nil {
		name = *comm.Name
	}
	delivered := e.alerts.NotifyDeletion(ctx, alert.DeletionInfo{
		CommunityID:      comm.ID,
		Name:             name,
		MemberCount:      comm.MemberCount,
		LinkedTokenMints: comm.LinkedTokenMints,
		DetectedAt:       time.Now(),
	})
	if !delivered {
		return nil
	}
	won, err := e.db.MarkAlertSent(ctx, comm.ID)
	if err != nil {
		return err
	}
	res.AlertSent = won
	return nil
}

func (e *Enricher) enrichAccount(ctx context.Context, res *Result, opts Options) error {
	created := 0
	if opts.LinkedWallet != "" {
		c, err := e.db.UpsertEdge(ctx, linkEdge(
			store.KindXAccount, res.ID, store.RelLinkedWallet, store.KindWallet, opts.LinkedWallet))
		if err != nil {
			return err
		}
		if c {
			created++
		}
		if opts.LinkedToken != "" {
			c, err := e.db.UpsertEdge(ctx, linkEdge(
				store.KindToken, opts.LinkedToken, store.RelLinkedWallet, store.KindWallet, opts.LinkedWallet))
			if err != nil {
				return err
			}
			if c {
				created++
			}
		}
	}
	res.EdgesCreated = created

	black, _, err := e.xref.CrossReference(ctx, []string{res.ID}, store.KindXAccount)
	if err != nil {
		return err
	}
	res.Flagged = len(black) > 0

	if !opts.SkipClustering && opts.LinkedWallet != "" {
		team, err := e.clusterer.Cluster(ctx, []teams.Identifier{
			teams.Ident(store.KindXAccount, res.ID),
			teams.Ident(store.KindWallet, opts.LinkedWallet),
		})
		if err != nil {
			e.log.Warn("team clustering failed", "account", res.ID, "err", err)
		} else if team != nil {
			res.TeamID = team.ID
		}
	}
	return nil
}

// fetchMembers consults the in-process cache, then calls the collaborator
// under the rate limiter with exponential backoff on transient failures.
func (e *Enricher) fetchMembers(ctx context.Context, communityID string) ([]Member, error) {
	if item := e.cache.Get(communityID); item != nil {
		return item.Value(), nil
	}

	bo := backoff.NewExponentialBackOff()
	if e.cfg.RetryInterval > 0 {
		bo.InitialInterval = e.cfg.RetryInterval
	}
	members, err := backoff.Retry(ctx, func() ([]Member, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return e.fetcher.FetchCommunityMembers(ctx, communityID)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		return nil, err
	}

	e.cache.Set(communityID, members, ttlcache.DefaultTTL)
	return members, nil
}

// webCheck probes the community page. Any failure is inconclusive (status 0).
func (e *Enricher) webCheck(ctx context.Context, communityID string) int {
	if e.checker == nil {
		return 0
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return 0
	}
	status, err := e.checker.CheckURL(ctx, CommunityURL(communityID))
	if err != nil {
		return 0
	}
	return status
}

// writeStaffEdges derives the edge writes for one scrape: a staffing edge per
// admin/mod, a co_mod edge per unordered staff pair (staff counts are small,
// typically under 20), and link edges for the provided token and wallet.
func (e *Enricher) writeStaffEdges(ctx context.Context, communityID string, admins, mods []string, opts Options) (int, error) {
	created := 0
	upsert := func(edge store.Edge) error {
		c, err := e.db.UpsertEdge(ctx, edge)
		if err != nil {
			return err
		}
		if c {
			created++
		}
		return nil
	}

	for _, a := range admins {
		if err := upsert(staffEdge(a, store.RelAdminOf, communityID, confAdminOf)); err != nil {
			return created, err
		}
	}
	for _, m := range mods {
		if err := upsert(staffEdge(m, store.RelModOf, communityID, confModOf)); err != nil {
			return created, err
		}
	}

	staff := append(append([]string{}, admins...), mods...)
	sort.Strings(staff)
	for i := 0; i < len(staff); i++ {
		for j := i + 1; j < len(staff); j++ {
			if staff[i] == staff[j] {
				continue
			}
			// Canonical order: smaller handle is the source. Queried
			// bidirectionally, so one row covers the symmetric relation.
			if err := upsert(store.Edge{
				SourceKind: store.KindXAccount, SourceID: staff[i],
				Relation:   store.RelCoMod,
				TargetKind: store.KindXAccount, TargetID: staff[j],
				Confidence: confCoMod, DiscoveredVia: ptr(discoveredViaScrape),
			}); err != nil {
				return created, err
			}
		}
	}

	if opts.LinkedToken != "" {
		if err := upsert(store.Edge{
			SourceKind: store.KindXCommunity, SourceID: communityID,
			Relation:   store.RelCommunityFor,
			TargetKind: store.KindToken, TargetID: opts.LinkedToken,
			Confidence: confCommunityFor, DiscoveredVia: ptr(discoveredViaScrape),
		}); err != nil {
			return created, err
		}
	}
	if opts.LinkedWallet != "" {
		if err := upsert(store.Edge{
			SourceKind: store.KindXCommunity, SourceID: communityID,
			Relation:   store.RelLinkedWallet,
			TargetKind: store.KindWallet, TargetID: opts.LinkedWallet,
			Confidence: confLinkedWallet, DiscoveredVia: ptr(discoveredViaScrape),
		}); err != nil {
			return created, err
		}
	}
	return created, nil
}

func staffEdge(handle string, rel store.Relation, communityID string, confidence int) store.Edge {
	return store.Edge{
		SourceKind: store.KindXAccount, SourceID: handle,
		Relation:   rel,
		TargetKind: store.KindXCommunity, TargetID: communityID,
		Confidence: confidence, DiscoveredVia: ptr(discoveredViaScrape),
	}
}

func linkEdge(sk store.EntityKind, sid string, rel store.Relation, tk store.EntityKind, tid string) store.Edge {
	return store.Edge{
		SourceKind: sk, SourceID: sid, Relation: rel,
		TargetKind: tk, TargetID: tid,
		Confidence: confLinkedWallet, DiscoveredVia: ptr("manual_link"),
	}
}

// partitionStaff splits the member list into normalized admin and moderator
// handle lists, dropping plain members and duplicates.
func partitionStaff(members []Member) (admins, mods []string) {
	seen := make(map[string]Role, len(members))
	for _, m := range members {
		h := store.NormalizeID(store.KindXAccount, m.Handle)
		if h == "" {
			continue
		}
		// Scraped rolls can repeat a handle under several roles (staff
		// often reappear in the general member list); the highest role wins.
		if prev, ok := seen[h]; ok && roleRank(prev) >= roleRank(m.Role) {
			continue
		}
		seen[h] = m.Role
	}
	for h, role := range seen {
		switch role {
		case RoleAdmin:
			admins = append(admins, h)
		case RoleModerator:
			mods = append(mods, h)
		}
	}
	sort.Strings(admins)
	sort.Strings(mods)
	return admins, mods
}

func roleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	}
	return 0
}

func ptr(s string) *string { return &s }
