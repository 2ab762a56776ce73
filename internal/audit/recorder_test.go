package audit

import (
	"path/filepath"
	"testing"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestEffectTwoPhase(t *testing.T) {
	r := newTestRecorder(t)

	id, err := r.PrepareEffect("code_change", map[string]string{"branch": "holly/add-tool"})
	if err != nil {
		t.Fatalf("PrepareEffect: %v", err)
	}

	e, err := r.GetEffect(id)
	if err != nil {
		t.Fatalf("GetEffect: %v", err)
	}
	if e.Status != EffectPending {
		t.Errorf("status = %s, want pending before commit", e.Status)
	}

	if err := r.CommitEffect(id, "commit_sha=c1"); err != nil {
		t.Fatalf("CommitEffect: %v", err)
	}

	e, err = r.GetEffect(id)
	if err != nil {
		t.Fatalf("GetEffect: %v", err)
	}
	if e.Status != EffectCommitted {
		t.Errorf("status = %s, want committed", e.Status)
	}
	if e.Outcome != "commit_sha=c1" {
		t.Errorf("outcome = %q", e.Outcome)
	}
}

func TestEffectCannotBeFinalizedTwice(t *testing.T) {
	r := newTestRecorder(t)

	id, err := r.PrepareEffect("self_deploy", nil)
	if err != nil {
		t.Fatalf("PrepareEffect: %v", err)
	}
	if err := r.FailEffect(id, "build_timeout"); err != nil {
		t.Fatalf("FailEffect: %v", err)
	}
	if err := r.CommitEffect(id, "late success"); err == nil {
		t.Error("expected second finalize to fail")
	}
}

func TestTicketsAndEpisodes(t *testing.T) {
	r := newTestRecorder(t)

	id, err := r.PrepareEffect("code_change", nil)
	if err != nil {
		t.Fatalf("PrepareEffect: %v", err)
	}
	if _, err := r.OpenTicket(id, "self-change: add tool"); err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}

	for _, s := range []string{"first change", "second change"} {
		if err := r.StoreEpisode("code_change", s, nil); err != nil {
			t.Fatalf("StoreEpisode: %v", err)
		}
	}

	summaries, err := r.RecentEpisodes("code_change", 10)
	if err != nil {
		t.Fatalf("RecentEpisodes: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("episodes = %d, want 2", len(summaries))
	}
}
