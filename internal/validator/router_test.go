package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"tbcv/internal/rules"
	"tbcv/internal/types"
)

// stubValidator records whether it ran and emits canned issues.
type stubValidator struct {
	name   string
	issues []types.Issue
	err    error
	ran    atomic.Bool

	mu   sync.Mutex
	seen []types.Issue // Prior issues observed on the last run
}

func (s *stubValidator) Name() string { return s.name }

func (s *stubValidator) Validate(ctx context.Context, in *Input) ([]types.Issue, error) {
	s.ran.Store(true)
	s.mu.Lock()
	s.seen = append([]types.Issue(nil), in.Prior...)
	s.mu.Unlock()
	return s.issues, s.err
}

func (s *stubValidator) priorSeen() []types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

func loaderWithConfig(t *testing.T, dir, name, content string) *rules.Loader {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	l, err := rules.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return l
}

func emptyLoader(t *testing.T) *rules.Loader {
	t.Helper()
	l, err := rules.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return l
}

func TestRouterRunsAllTiers(t *testing.T) {
	structural := &stubValidator{name: "markdown"}
	analytical := &stubValidator{name: "links"}
	semantic := &stubValidator{name: "truth"}

	r := NewRouter(emptyLoader(t), nil, semantic, structural, analytical)
	report := r.Run(context.Background(), "doc.md", types.FamilyGeneric, "# T\n", nil)

	for _, v := range []*stubValidator{structural, analytical, semantic} {
		if !v.ran.Load() {
			t.Errorf("validator %s did not run", v.name)
		}
	}
	if report.Terminated {
		t.Error("Terminated = true with no issues")
	}
	if report.TiersExecuted != 3 {
		t.Errorf("TiersExecuted = %d, want 3", report.TiersExecuted)
	}
}

func TestRouterEarlyTermination(t *testing.T) {
	critical := types.Issue{
		Code: "MD-001", Level: types.LevelCritical, SeverityScore: 90, Confidence: 1.0,
	}
	structural := &stubValidator{name: "markdown", issues: []types.Issue{critical}}
	semantic := &stubValidator{name: "llm"}

	r := NewRouter(emptyLoader(t), nil, structural, semantic)
	report := r.Run(context.Background(), "doc.md", types.FamilyGeneric, "bad\n", nil)

	if !report.Terminated {
		t.Fatal("Terminated = false after critical issue in tier 1")
	}
	if semantic.ran.Load() {
		t.Error("semantic tier ran despite early termination")
	}
	if report.TiersExecuted != 1 {
		t.Errorf("TiersExecuted = %d, want 1", report.TiersExecuted)
	}
}

func TestRouterTerminateOnConfiguredLevel(t *testing.T) {
	errIssue := types.Issue{
		Code: "LNK-001", Level: types.LevelError, SeverityScore: 70, Confidence: 1.0,
	}
	analytical := &stubValidator{name: "links", issues: []types.Issue{errIssue}}
	semantic := &stubValidator{name: "truth"}

	// Default (critical only): an error does not terminate.
	r := NewRouter(emptyLoader(t), nil, analytical, semantic)
	if report := r.Run(context.Background(), "doc.md", types.FamilyGeneric, "x\n", nil); report.Terminated {
		t.Fatal("error-level issue terminated under critical-only policy")
	}
	if !semantic.ran.Load() {
		t.Fatal("semantic tier skipped without termination")
	}

	// Configured to stop on error too.
	semantic2 := &stubValidator{name: "truth"}
	r = NewRouter(emptyLoader(t), []string{"critical", "error"}, analytical, semantic2)
	if report := r.Run(context.Background(), "doc.md", types.FamilyGeneric, "x\n", nil); !report.Terminated {
		t.Fatal("error-level issue did not terminate under critical+error policy")
	}
	if semantic2.ran.Load() {
		t.Error("semantic tier ran despite termination")
	}
}

func TestRouterDisabledValidatorSkipped(t *testing.T) {
	dir := t.TempDir()
	loader := loaderWithConfig(t, dir, "seo.yaml", "seo:\n  enabled: false\n")

	seo := &stubValidator{name: "seo"}
	other := &stubValidator{name: "markdown"}
	r := NewRouter(loader, nil, seo, other)
	r.Run(context.Background(), "doc.md", types.FamilyGeneric, "# T\n", nil)

	if seo.ran.Load() {
		t.Error("disabled validator ran")
	}
	if !other.ran.Load() {
		t.Error("enabled validator skipped")
	}
}

func TestRouterValidatorFailureBecomesIssue(t *testing.T) {
	failing := &stubValidator{name: "links", err: errors.New("network down")}

	r := NewRouter(emptyLoader(t), nil, failing)
	report := r.Run(context.Background(), "doc.md", types.FamilyGeneric, "x\n", nil)

	if len(report.Issues) != 1 {
		t.Fatalf("got %d issues, want 1 runtime issue", len(report.Issues))
	}
	is := report.Issues[0]
	if is.Code != "RUNTIME-001" {
		t.Errorf("issue code = %s, want RUNTIME-001", is.Code)
	}
	if is.Level != types.LevelError {
		t.Errorf("issue level = %s, want error", is.Level)
	}
	if is.Source != types.SourceValidatorRuntime {
		t.Errorf("issue source = %s, want validator_runtime", is.Source)
	}
	if len(report.Timings) != 1 || !report.Timings[0].Failed {
		t.Errorf("timing not marked failed: %+v", report.Timings)
	}
}

func TestRouterSelectedValidators(t *testing.T) {
	markdown := &stubValidator{name: "markdown"}
	links := &stubValidator{name: "links"}
	truth := &stubValidator{name: "truth"}

	r := NewRouter(emptyLoader(t), nil, markdown, links, truth)
	r.Run(context.Background(), "doc.md", types.FamilyGeneric, "# T\n", []string{"markdown", "no-such-validator"})

	if !markdown.ran.Load() {
		t.Error("selected validator did not run")
	}
	if links.ran.Load() || truth.ran.Load() {
		t.Error("unselected validators ran")
	}
}

func TestRouterPriorIssuesReachLaterTiers(t *testing.T) {
	found := types.Issue{
		Code: "FUZZY-001", Level: types.LevelWarning, SeverityScore: 40,
		Confidence: 1.0, Validator: "fuzzy",
	}
	structural := &stubValidator{name: "markdown"}
	analytical := &stubValidator{name: "fuzzy", issues: []types.Issue{found}}
	semantic := &stubValidator{name: "truth"}

	r := NewRouter(emptyLoader(t), nil, structural, analytical, semantic)
	r.Run(context.Background(), "doc.md", types.FamilyGeneric, "# T\n", nil)

	if got := structural.priorSeen(); len(got) != 0 {
		t.Errorf("tier 1 saw %d prior issues, want 0", len(got))
	}
	got := semantic.priorSeen()
	if len(got) != 1 || got[0].Code != "FUZZY-001" {
		t.Fatalf("tier 3 prior issues = %+v, want the fuzzy finding", got)
	}
}

func TestRouterValidatorNamesTierOrder(t *testing.T) {
	r := NewRouter(emptyLoader(t), nil,
		&stubValidator{name: "truth"},
		&stubValidator{name: "links"},
		&stubValidator{name: "markdown"},
		&stubValidator{name: "frontmatter"},
	)
	got := r.ValidatorNames()
	want := []string{"frontmatter", "markdown", "links", "truth"}
	if len(got) != len(want) {
		t.Fatalf("ValidatorNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ValidatorNames() = %v, want %v", got, want)
		}
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"frontmatter", TierStructural},
		{"links", TierAnalytical},
		{"llm", TierSemantic},
		{"unregistered", TierSemantic},
	}
	for _, tt := range tests {
		if got := Tier(tt.name); got != tt.want {
			t.Errorf("Tier(%s) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
