package integrate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setup creates a mainline repo on "main" with a feature branch "feat"
// containing one additional commit, and returns the mainline repo path.
func setup(t *testing.T) (repo string) {
	t.Helper()
	repo = t.TempDir()
	run(t, repo, "init", "-b", "main")
	run(t, repo, "config", "user.name", "Test")
	run(t, repo, "config", "user.email", "test@example.com")
	writeFile(t, repo, "README.md", "hello\n")
	run(t, repo, "add", "-A")
	run(t, repo, "commit", "-m", "initial")

	run(t, repo, "checkout", "-b", "feat")
	writeFile(t, repo, "feature.txt", "feature content\n")
	run(t, repo, "add", "-A")
	run(t, repo, "commit", "-m", "add feature")
	run(t, repo, "checkout", "main")

	return repo
}

func TestIntegrateMergesCleanly(t *testing.T) {
	repo := setup(t)
	mgr := NewManager()

	result, err := mgr.Integrate(context.Background(), Request{
		RepoRoot:      repo,
		FeatureBranch: "feat",
		BaseBranch:    "main",
		ItemID:        "item_1",
	})
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	if _, err := os.Stat(filepath.Join(repo, "feature.txt")); err != nil {
		t.Errorf("expected feature.txt merged into main: %v", err)
	}

	branch := run(t, repo, "rev-parse", "--abbrev-ref", "HEAD")
	if got := trimNL(branch); got != "main" {
		t.Errorf("expected to be restored onto main, got %q", got)
	}
}

func TestIntegrateNoOpWhenNoDiff(t *testing.T) {
	repo := t.TempDir()
	run(t, repo, "init", "-b", "main")
	run(t, repo, "config", "user.name", "Test")
	run(t, repo, "config", "user.email", "test@example.com")
	writeFile(t, repo, "README.md", "hello\n")
	run(t, repo, "add", "-A")
	run(t, repo, "commit", "-m", "initial")
	run(t, repo, "branch", "feat")

	mgr := NewManager()
	result, err := mgr.Integrate(context.Background(), Request{
		RepoRoot:      repo,
		FeatureBranch: "feat",
		BaseBranch:    "main",
		ItemID:        "item_2",
	})
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if !result.NoOp {
		t.Errorf("expected NoOp result, got %+v", result)
	}
}

func TestIntegratePreservesDirtyMainlineAcrossMerge(t *testing.T) {
	repo := setup(t)
	writeFile(t, repo, "scratch.txt", "work in progress\n")

	mgr := NewManager()
	result, err := mgr.Integrate(context.Background(), Request{
		RepoRoot:      repo,
		FeatureBranch: "feat",
		BaseBranch:    "main",
		ItemID:        "item_3",
	})
	if err != nil {
		t.Fatalf("Integrate failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	if _, err := os.Stat(filepath.Join(repo, "scratch.txt")); err != nil {
		t.Errorf("expected dirty scratch.txt restored after merge: %v", err)
	}
}

func trimNL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
