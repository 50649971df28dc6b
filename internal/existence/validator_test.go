package existence

import "testing"

func TestEvaluate_HealthyScrapeStaysActive(t *testing.T) {
	out := Evaluate(DefaultConfig(), VerdictActive, 0, Signal{MembersFetched: true, MemberCount: 42})
	if out.Verdict != VerdictActive || out.FailCount != 0 {
		t.Errorf("got %v fail=%d, want active fail=0", out.Verdict, out.FailCount)
	}
}

func TestEvaluate_SingleAmbiguousCheckSuspects(t *testing.T) {
	// Empty member list, web check returns 200: suspected, never deleted.
	out := Evaluate(DefaultConfig(), VerdictActive, 0, Signal{MembersFetched: true, MemberCount: 0, WebStatus: 200})
	if out.Verdict != VerdictSuspected {
		t.Fatalf("got %v, want suspected", out.Verdict)
	}
	if out.FailCount != 1 {
		t.Errorf("fail = %d, want 1", out.FailCount)
	}
	if out.Transitioned {
		t.Error("suspicion is not a deletion transition")
	}
}

func TestEvaluate_FailedFetchSuspects(t *testing.T) {
	out := Evaluate(DefaultConfig(), VerdictActive, 0, Signal{MembersFetched: false})
	if out.Verdict != VerdictSuspected || out.FailCount != 1 {
		t.Errorf("got %v fail=%d, want suspected fail=1", out.Verdict, out.FailCount)
	}
}

func TestEvaluate_RecoveryResetsFailCount(t *testing.T) {
	out := Evaluate(DefaultConfig(), VerdictSuspected, 2, Signal{MembersFetched: true, MemberCount: 7})
	if out.Verdict != VerdictActive {
		t.Fatalf("got %v, want active", out.Verdict)
	}
	if out.FailCount != 0 {
		t.Errorf("fail = %d, want 0 after recovery", out.FailCount)
	}
}

func TestEvaluate_BelowThresholdStaysSuspected(t *testing.T) {
	out := Evaluate(DefaultConfig(), VerdictSuspected, 1, Signal{MembersFetched: false})
	if out.Verdict != VerdictSuspected {
		t.Fatalf("got %v, want suspected (one fail is below the threshold)", out.Verdict)
	}
	if out.FailCount != 2 {
		t.Errorf("fail = %d, want 2", out.FailCount)
	}
}

func TestEvaluate_ThresholdConfirmsDeletion(t *testing.T) {
	out := Evaluate(DefaultConfig(), VerdictSuspected, 2, Signal{MembersFetched: false})
	if out.Verdict != VerdictDeleted {
		t.Fatalf("got %v, want deleted at the fail threshold", out.Verdict)
	}
	if !out.Transitioned {
		t.Error("crossing the threshold must report the transition")
	}
}

func TestEvaluate_404DeletesImmediately(t *testing.T) {
	for _, state := range []Verdict{VerdictActive, VerdictSuspected} {
		out := Evaluate(DefaultConfig(), state, 0, Signal{MembersFetched: false, WebStatus: 404})
		if out.Verdict != VerdictDeleted || !out.Transitioned {
			t.Errorf("state %v + 404: got %v transitioned=%v, want deleted once", state, out.Verdict, out.Transitioned)
		}
	}
}

func TestEvaluate_Non404StatusInconclusive(t *testing.T) {
	for _, status := range []int{0, 200, 302, 403, 429, 500, 503} {
		out := Evaluate(DefaultConfig(), VerdictActive, 0, Signal{MembersFetched: false, WebStatus: status})
		if out.Verdict == VerdictDeleted {
			t.Errorf("status %d must not confirm deletion", status)
		}
	}
}

func TestEvaluate_DeletedIsTerminal(t *testing.T) {
	// Even a healthy-looking scrape cannot resurrect a deleted community.
	out := Evaluate(DefaultConfig(), VerdictDeleted, 0, Signal{MembersFetched: true, MemberCount: 100})
	if out.Verdict != VerdictDeleted {
		t.Fatalf("got %v, want deleted (terminal)", out.Verdict)
	}
	if out.Transitioned {
		t.Error("a terminal state must never report the transition again")
	}
}

func TestEvaluate_CustomThreshold(t *testing.T) {
	cfg := Config{FailThreshold: 1}
	out := Evaluate(cfg, VerdictSuspected, 1, Signal{MembersFetched: false})
	if out.Verdict != VerdictDeleted {
		t.Errorf("got %v, want deleted with threshold 1", out.Verdict)
	}
}

func TestVerdictRoundTrip(t *testing.T) {
	for _, v := range []Verdict{VerdictActive, VerdictSuspected, VerdictDeleted} {
		if got := VerdictFromStatus(v.StoreStatus()); got != v {
			t.Errorf("round trip of %v gave %v", v, got)
		}
	}
	if VerdictFromStatus("pending") != VerdictActive {
		t.Error("pending communities should evaluate from the active state")
	}
}
