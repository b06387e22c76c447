package domain

import "testing"

func TestRunPhaseOrdering(t *testing.T) {
	order := []RunPhase{PhaseClarify, PhaseRewrite, PhaseResearch, PhaseVerify, PhaseReport}
	for i := 1; i < len(order); i++ {
		if !order[i-1].Before(order[i]) {
			t.Fatalf("%s should come before %s", order[i-1], order[i])
		}
		if order[i].Before(order[i-1]) {
			t.Fatalf("%s must not come before %s", order[i], order[i-1])
		}
	}
	if PhaseReport.Before(PhaseReport) {
		t.Fatalf("a phase is not before itself")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if RunClarifying.Terminal() || RunRunning.Terminal() {
		t.Fatalf("active statuses must not be terminal")
	}
	if !RunCompleted.Terminal() || !RunFailed.Terminal() {
		t.Fatalf("completed and failed are terminal")
	}
}
