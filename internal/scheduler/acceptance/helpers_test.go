package acceptance_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/gomega"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/foreman-run/foreman/internal/engine"
	"github.com/foreman-run/foreman/internal/events"
	"github.com/foreman-run/foreman/internal/integrate"
	"github.com/foreman-run/foreman/internal/lessons"
	"github.com/foreman-run/foreman/internal/scheduler"
	"github.com/foreman-run/foreman/internal/tracker"
	"github.com/foreman-run/foreman/internal/workspace"
)

// initRepo creates a real git repository with one commit on "main" under
// a fresh temp directory, returning its path.
func initRepo() string {
	dir, err := os.MkdirTemp("", "foreman-acceptance-repo-*")
	Expect(err).NotTo(HaveOccurred())

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.name", "Acceptance")
	run("config", "user.email", "acceptance@example.com")
	Expect(os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644)).To(Succeed())
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

// fakeEngineScript writes a shell script standing in for an engine CLI,
// run inside the workspace it's given so it can commit to the feature
// branch the way a real engine's tool use would.
func fakeEngineScript(body string) string {
	dir, err := os.MkdirTemp("", "foreman-acceptance-engine-*")
	Expect(err).NotTo(HaveOccurred())
	path := filepath.Join(dir, "fake-engine.sh")
	script := "#!/bin/sh\n" + body + "\n"
	Expect(os.WriteFile(path, []byte(script), 0o755)).To(Succeed())
	return path
}

// sequencedEngineScript returns a script path whose behavior changes
// across invocations: the Nth invocation (0-indexed) runs bodies[N],
// clamped to the last body once N exceeds len(bodies)-1. This drives
// multi-attempt scenarios (stuck-then-fixed, rate-limit-then-ok).
func sequencedEngineScript(bodies ...string) string {
	dir, err := os.MkdirTemp("", "foreman-acceptance-engine-seq-*")
	Expect(err).NotTo(HaveOccurred())

	counterPath := filepath.Join(dir, "count")
	Expect(os.WriteFile(counterPath, []byte("0"), 0o644)).To(Succeed())

	var script string
	script += "#!/bin/sh\n"
	script += "n=$(cat \"" + counterPath + "\")\n"
	script += "echo $((n+1)) > \"" + counterPath + "\"\n"
	for i, body := range bodies {
		switch {
		case i < len(bodies)-1:
			script += fmt.Sprintf("if [ \"$n\" -eq %d ]; then %s; exit $?; fi\n", i, body)
		default:
			script += "# fallthrough: any later invocation runs the last body\n"
			script += body + "\n"
		}
	}

	path := filepath.Join(dir, "fake-engine.sh")
	Expect(os.WriteFile(path, []byte(script), 0o755)).To(Succeed())
	return path
}

// fakeTracker is an in-memory tracker.Tracker for acceptance scenarios.
type fakeTracker struct {
	mu        sync.Mutex
	items     map[int]tracker.Item
	comments  map[int][]string
	closed    map[int]bool
	reopenCnt map[int]int
}

func newFakeTracker(items ...tracker.Item) *fakeTracker {
	ft := &fakeTracker{
		items:     make(map[int]tracker.Item),
		comments:  make(map[int][]string),
		closed:    make(map[int]bool),
		reopenCnt: make(map[int]int),
	}
	for _, it := range items {
		ft.items[it.Number] = it
	}
	return ft
}

func (f *fakeTracker) ListByLabel(ctx context.Context, label string) ([]tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tracker.Item
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeTracker) Get(ctx context.Context, number int) (tracker.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[number], nil
}

func (f *fakeTracker) Comment(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[number] = append(f.comments[number], body)
	return nil
}

func (f *fakeTracker) Close(ctx context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[number] = true
	return nil
}

func (f *fakeTracker) DetectLoop(ctx context.Context, number int, maxReopens int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reopenCnt[number] > maxReopens, nil
}

func (f *fakeTracker) SetBoardStatus(ctx context.Context, number int, status string) error { return nil }
func (f *fakeTracker) SetBoardBranch(ctx context.Context, number int, branch string) error  { return nil }

func (f *fakeTracker) commentsFor(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[number]...)
}

func (f *fakeTracker) isClosed(number int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[number]
}

// memClaim is an in-memory ItemClaim for acceptance scenarios.
type memClaim struct {
	mu     sync.Mutex
	claims map[string]bool
}

func newMemClaim() *memClaim {
	return &memClaim{claims: make(map[string]bool)}
}

func (c *memClaim) Claim(issue string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[issue] {
		return false, nil
	}
	c.claims[issue] = true
	return true, nil
}

func (c *memClaim) Release(issue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, issue)
	return nil
}

func chainFactoryFor(scriptPath string) scheduler.ChainFactory {
	return func(observer engine.SwitchObserver) *engine.Chain {
		return engine.NewChain(engine.New("fake", scriptPath, nil), nil, observer)
	}
}

// testDeps wires a Scheduler.Deps for one scenario: real workspace/
// integration managers over repo, the given tracker, and a single-engine
// fallback chain running scriptPath. It also returns the workspace base
// directory so a scenario can assert no worktree was left behind.
func testDeps(repo string, tr tracker.Tracker, scriptPath string) (scheduler.Deps, string) {
	base, err := os.MkdirTemp("", "foreman-acceptance-worktrees-*")
	Expect(err).NotTo(HaveOccurred())

	wsMgr, err := workspace.NewManager(repo, base, "main")
	Expect(err).NotTo(HaveOccurred())

	cfg := config.DefaultConfig()
	cfg.WindowSize = 2
	cfg.MaxAttempts = 3
	cfg.SupervisorTick = 50 * time.Millisecond
	cfg.EngineTimeout = 5 * time.Second
	cfg.RateLimitBackoff = 200 * time.Millisecond
	cfg.TargetBranch = "main"

	return scheduler.Deps{
		Tracker:    tr,
		Workspaces: wsMgr,
		RepoRoot:   repo,
		Integrator: integrate.NewManager(),
		Lessons:    lessons.NewStore(repo),
		Claims:     newMemClaim(),
		Chains:     chainFactoryFor(scriptPath),
		Bus:        events.NewBus(256),
		Config:     cfg,
	}, base
}
