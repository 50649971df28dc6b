package mesh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"trenchwatch/mesh/internal/alert"
	"trenchwatch/mesh/internal/existence"
	"trenchwatch/mesh/internal/store"
)

const (
	testWallet = "11111111111111111111111111111111"
	testMint   = "So11111111111111111111111111111111111111112"
)

type fakeFetcher struct {
	members map[string][]Member
	err     error
	calls   int
}

func (f *fakeFetcher) FetchCommunityMembers(ctx context.Context, communityID string) ([]Member, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.members[communityID], nil
}

type fakeChecker struct {
	status int
	calls  int
}

func (f *fakeChecker) CheckURL(ctx context.Context, url string) (int, error) {
	f.calls++
	if f.status == 0 {
		return 0, errors.New("network unreachable")
	}
	return f.status, nil
}

type fakeAlertChannel struct {
	err   error
	calls int
}

func (f *fakeAlertChannel) Name() string { return "fake" }

func (f *fakeAlertChannel) Send(ctx context.Context, text string) error {
	f.calls++
	return f.err
}

func testEnricher(t *testing.T, fetcher MemberFetcher, checker existence.WebChecker, ch alert.Channel) (*Enricher, *store.DB) {
	t.Helper()
	d, err := store.OpenDB(filepath.Join(t.TempDir(), "mesh.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var alerts *alert.Dispatcher
	if ch != nil {
		alerts = alert.NewDispatcher(log, ch)
	}
	cfg := Config{
		Existence:     existence.DefaultConfig(),
		CallDelay:     time.Millisecond,
		CacheTTL:      time.Minute,
		RetryInterval: time.Millisecond,
	}
	e := NewEnricher(d, fetcher, checker, alerts, log, cfg)
	t.Cleanup(e.Close)
	return e, d
}

func TestEnrich_ActiveCommunityWritesEdges(t *testing.T) {
	fetcher := &fakeFetcher{members: map[string][]Member{
		"111": {
			{Handle: "@Alice", Role: RoleAdmin},
			{Handle: "bob", Role: RoleModerator},
			{Handle: "carol", Role: RoleMember},
		},
	}}
	e, d := testEnricher(t, fetcher, &fakeChecker{status: 200}, nil)
	ctx := context.Background()

	res, err := e.Enrich(ctx, "https://x.com/i/communities/111", Options{
		LinkedToken:  testMint,
		LinkedWallet: testWallet,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.VerdictName != "active" {
		t.Errorf("verdict = %s, want active", res.VerdictName)
	}
	if res.MemberCount != 3 || res.AdminCount != 1 || res.ModeratorCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3 members, 1 admin, 1 mod",
			res.MemberCount, res.AdminCount, res.ModeratorCount)
	}

	comm, err := d.GetCommunity(ctx, "111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comm.ScrapeStatus != store.StatusActive {
		t.Errorf("status = %s, want active", comm.ScrapeStatus)
	}
	if len(comm.AdminUsernames) != 1 || comm.AdminUsernames[0] != "alice" {
		t.Errorf("admins = %v, want normalized [alice]", comm.AdminUsernames)
	}

	checks := []struct {
		filter store.EdgeFilter
		want   int
	}{
		{store.EdgeFilter{Relation: store.RelAdminOf}, 1},
		{store.EdgeFilter{Relation: store.RelModOf}, 1},
		{store.EdgeFilter{Relation: store.RelCoMod}, 1},
		{store.EdgeFilter{Relation: store.RelCommunityFor}, 1},
		{store.EdgeFilter{Relation: store.RelLinkedWallet}, 1},
	}
	for _, c := range checks {
		n, err := d.CountEdges(ctx, c.filter)
		if err != nil {
			t.Fatalf("counting edges: %v", err)
		}
		if n != c.want {
			t.Errorf("%s edges = %d, want %d", c.filter.Relation, n, c.want)
		}
	}
	if res.TeamID == "" {
		t.Error("staff plus linked wallet should have clustered into a team")
	}
}

func TestEnrich_FreshnessSkipAndForce(t *testing.T) {
	fetcher := &fakeFetcher{members: map[string][]Member{
		"222": {{Handle: "alice", Role: RoleAdmin}, {Handle: "dave", Role: RoleMember}},
	}}
	e, _ := testEnricher(t, fetcher, &fakeChecker{status: 200}, nil)
	ctx := context.Background()

	if _, err := e.Enrich(ctx, "222", Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetcher calls = %d, want 1", fetcher.calls)
	}

	res, err := e.Enrich(ctx, "222", Options{MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Error("fresh community should be skipped")
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want still 1 after skip", fetcher.calls)
	}

	res, err = e.Enrich(ctx, "222", Options{MaxAge: time.Hour, Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Error("force must bypass the freshness skip")
	}
}

func TestEnrich_404ConfirmsDeletionAndAlertsOnce(t *testing.T) {
	channel := &fakeAlertChannel{}
	e, d := testEnricher(t, &fakeFetcher{err: errors.New("blocked")}, &fakeChecker{status: 404}, channel)
	ctx := context.Background()

	res, err := e.Enrich(ctx, "333", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.VerdictName != "deleted" {
		t.Fatalf("verdict = %s, want deleted on 404", res.VerdictName)
	}
	if !res.AlertSent {
		t.Error("first deletion should deliver the alert")
	}
	if channel.calls != 1 {
		t.Errorf("channel calls = %d, want 1", channel.calls)
	}

	comm, _ := d.GetCommunity(ctx, "333")
	if !comm.IsDeleted || !comm.DeletionAlertSent {
		t.Error("community should be deleted with the alert flag set")
	}

	// Terminal: a later pass neither re-checks nor re-alerts.
	res, err = e.Enrich(ctx, "333", Options{Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || res.AlertSent {
		t.Error("deleted community must short-circuit without a second alert")
	}
	if channel.calls != 1 {
		t.Errorf("channel calls = %d, want still 1", channel.calls)
	}
}

func TestEnrich_AlertFailureLeavesFlagUnset(t *testing.T) {
	channel := &fakeAlertChannel{err: errors.New("webhook down")}
	e, d := testEnricher(t, &fakeFetcher{err: errors.New("blocked")}, &fakeChecker{status: 404}, channel)
	ctx := context.Background()

	res, err := e.Enrich(ctx, "444", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlertSent {
		t.Error("failed delivery must not claim the alert")
	}
	comm, _ := d.GetCommunity(ctx, "444")
	if comm.DeletionAlertSent {
		t.Error("sticky flag must stay unset so a later run retries")
	}
}

func TestEnrich_AlertRetriedAfterChannelRecovers(t *testing.T) {
	channel := &fakeAlertChannel{err: errors.New("webhook down")}
	e, d := testEnricher(t, &fakeFetcher{err: errors.New("blocked")}, &fakeChecker{status: 404}, channel)
	ctx := context.Background()

	res, err := e.Enrich(ctx, "900", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlertSent || channel.calls != 1 {
		t.Fatalf("alertSent=%v calls=%d, want undelivered after one failed attempt",
			res.AlertSent, channel.calls)
	}

	// The channel comes back; the terminal skip still retries the alert.
	channel.err = nil
	res, err = e.Enrich(ctx, "900", Options{Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Error("deleted community should skip the scrape")
	}
	if !res.AlertSent {
		t.Error("recovered channel should deliver the pending alert")
	}
	if channel.calls != 2 {
		t.Errorf("channel calls = %d, want 2", channel.calls)
	}
	comm, _ := d.GetCommunity(ctx, "900")
	if !comm.DeletionAlertSent {
		t.Error("sticky flag should be set after the retried delivery")
	}

	// Settled: a third pass must not alert again.
	res, err = e.Enrich(ctx, "900", Options{Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlertSent || channel.calls != 2 {
		t.Errorf("alertSent=%v calls=%d, want no further deliveries", res.AlertSent, channel.calls)
	}
}

func TestEnrich_HysteresisConfirmsAfterRepeatedFailures(t *testing.T) {
	fetcher := &fakeFetcher{members: map[string][]Member{}}
	e, d := testEnricher(t, fetcher, &fakeChecker{status: 200}, nil)
	ctx := context.Background()

	// Empty member list with a live page: suspected, then suspected, then deleted.
	for i, want := range []string{"suspected", "suspected", "deleted"} {
		res, err := e.Enrich(ctx, "555", Options{Force: true})
		if err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
		if res.VerdictName != want {
			t.Fatalf("check %d: verdict = %s, want %s", i+1, res.VerdictName, want)
		}
	}

	comm, _ := d.GetCommunity(ctx, "555")
	if !comm.IsDeleted {
		t.Error("community should be deleted after repeated ambiguous checks")
	}
}

func TestEnrich_DegradedFetchKeepsLastKnownState(t *testing.T) {
	e, d := testEnricher(t, &fakeFetcher{err: errors.New("scraper down")}, &fakeChecker{status: 200}, nil)
	ctx := context.Background()

	res, err := e.Enrich(ctx, "666", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Degraded {
		t.Error("fetch failure should mark the result degraded")
	}
	if res.VerdictName != "suspected" {
		t.Errorf("verdict = %s, want suspected (never deleted from one failure)", res.VerdictName)
	}

	comm, _ := d.GetCommunity(ctx, "666")
	if comm.IsDeleted {
		t.Error("one failed fetch must never delete a community")
	}
	if comm.FailedScrapeCount != 1 {
		t.Errorf("failed count = %d, want 1", comm.FailedScrapeCount)
	}
}

func TestEnrich_AccountWithWalletLink(t *testing.T) {
	e, d := testEnricher(t, &fakeFetcher{}, &fakeChecker{status: 200}, nil)
	ctx := context.Background()

	err := d.AddListEntry(ctx, store.Blacklist, store.ListEntry{
		EntryType: store.KindXAccount, Identifier: "shadydev", Level: "high",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := e.Enrich(ctx, "@ShadyDev", Options{LinkedWallet: testWallet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EdgesCreated != 1 {
		t.Errorf("edges created = %d, want 1 linked_wallet edge", res.EdgesCreated)
	}
	if !res.Flagged {
		t.Error("blacklisted account should be flagged")
	}

	edges, err := d.QueryEdges(ctx, store.EdgeFilter{
		SourceKind: store.KindXAccount, SourceID: "shadydev", Relation: store.RelLinkedWallet,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != testWallet {
		t.Errorf("edges = %v, want one shadydev -> wallet link", edges)
	}
}

func TestEnrich_RejectsInvalidLinkedAddresses(t *testing.T) {
	e, _ := testEnricher(t, &fakeFetcher{}, &fakeChecker{status: 200}, nil)

	if _, err := e.Enrich(context.Background(), "777", Options{LinkedToken: "bogus"}); err == nil {
		t.Error("expected error for invalid mint address")
	}
	if _, err := e.Enrich(context.Background(), "777", Options{LinkedWallet: "bogus"}); err == nil {
		t.Error("expected error for invalid wallet address")
	}
}

func TestEnrichBatch_ContinuesPastFailures(t *testing.T) {
	fetcher := &fakeFetcher{members: map[string][]Member{
		"888": {{Handle: "alice", Role: RoleAdmin}, {Handle: "eve", Role: RoleMember}},
	}}
	e, _ := testEnricher(t, fetcher, &fakeChecker{status: 200}, nil)

	results, failures := e.EnrichBatch(context.Background(),
		[]string{"not a ref!", "888"}, Options{})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if _, ok := failures["not a ref!"]; !ok {
		t.Error("the unclassifiable reference should be in the failure map")
	}
}

func TestPartitionStaff(t *testing.T) {
	admins, mods := partitionStaff([]Member{
		{Handle: "@Alice", Role: RoleAdmin},
		{Handle: "alice", Role: RoleModerator}, // duplicate, admin outranks
		{Handle: "Bob", Role: RoleModerator},
		{Handle: "bob", Role: RoleMember}, // re-listed in the general roll
		{Handle: "carol", Role: RoleMember},
		{Handle: "dana", Role: RoleMember},
		{Handle: "Dana", Role: RoleAdmin}, // role upgrade on a later row
		{Handle: "  ", Role: RoleAdmin},
	})
	if len(admins) != 2 || admins[0] != "alice" || admins[1] != "dana" {
		t.Errorf("admins = %v, want [alice dana]", admins)
	}
	if len(mods) != 1 || mods[0] != "bob" {
		t.Errorf("mods = %v, want [bob]", mods)
	}
}
