package asset_test

import (
	"testing"

	"loft/internal/asset"
)

func TestCanTransitionForwardEdges(t *testing.T) {
	cases := []struct {
		from, to asset.State
		want     bool
	}{
		{asset.StateIdle, asset.StateFingerprinting, true},
		{asset.StateFingerprinting, asset.StateDedupCheck, true},
		{asset.StateDedupCheck, asset.StateAwaitingDecision, true},
		{asset.StateDedupCheck, asset.StateUploading, true},
		{asset.StateAwaitingDecision, asset.StatePersisted, true},
		{asset.StateAwaitingDecision, asset.StateCompressing, true},
		{asset.StateCompressing, asset.StateUploading, true},
		{asset.StateUploading, asset.StatePersisted, true},
		// illegal edges
		{asset.StateIdle, asset.StateUploading, false},
		{asset.StateUploading, asset.StateCompressing, false},
		{asset.StatePersisted, asset.StateUploading, false},
		{asset.StateIdle, asset.StateIdle, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestFailureAndCancelReachableFromAllNonTerminal(t *testing.T) {
	for _, s := range asset.AllStates() {
		if s.IsTerminal() {
			if s.CanTransition(asset.StateFailed) || s.CanTransition(asset.StateCancelled) {
				t.Errorf("terminal state %s should not transition", s)
			}
			continue
		}
		if !s.CanTransition(asset.StateFailed) {
			t.Errorf("%s should reach failed", s)
		}
		if !s.CanTransition(asset.StateCancelled) {
			t.Errorf("%s should reach cancelled", s)
		}
	}
}

func TestParseState(t *testing.T) {
	if s, ok := asset.ParseState(" Uploading "); !ok || s != asset.StateUploading {
		t.Fatalf("unexpected parse result: %v %v", s, ok)
	}
	if _, ok := asset.ParseState("ripping"); ok {
		t.Fatal("unknown state should not parse")
	}
}

func TestParseMediaType(t *testing.T) {
	if mt, ok := asset.MediaTypeForContentType("video/mp4"); !ok || mt != asset.MediaVideo {
		t.Fatalf("unexpected media type: %v %v", mt, ok)
	}
	if mt, ok := asset.MediaTypeForContentType("image/jpeg"); !ok || mt != asset.MediaImage {
		t.Fatalf("unexpected media type: %v %v", mt, ok)
	}
	if _, ok := asset.MediaTypeForContentType("application/pdf"); ok {
		t.Fatal("unsupported content type should not map")
	}
}
