package acceptance_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foreman-run/foreman/internal/coordinator"
	"github.com/foreman-run/foreman/internal/events"
	"github.com/foreman-run/foreman/internal/scheduler"
	"github.com/foreman-run/foreman/internal/tracker"
)

var _ = Describe("Scheduler end-to-end scenarios", func() {
	var repo string

	BeforeEach(func() {
		repo = initRepo()
	})

	AfterEach(func() {
		Expect(os.RemoveAll(repo)).To(Succeed())
	})

	// Scenario: happy path. Item #100, max_attempts=3, window=2, the
	// engine succeeds on its first attempt with a real diff.
	It("merges a single item on its first attempt and leaves no workspace behind", func() {
		script := fakeEngineScript(`echo "feature" >> feature.txt && git add -A && git commit -q -m "feature work" && echo '{"success": true}'`)

		tr := newFakeTracker(tracker.Item{Number: 100, Title: "Add feature", Body: "do the thing"})
		deps, base := testDeps(repo, tr, script)
		recorder := events.NewRecorder(deps.Bus, 256)

		s := scheduler.New(deps, []scheduler.PendingItem{
			{ID: "100", Number: 100, Title: "Add feature", Body: "do the thing", Domain: "backend"},
		})
		Expect(s.Run(context.Background())).To(Succeed())

		snap := s.Snapshot()
		Expect(snap.CompletedCount).To(Equal(1))
		Expect(snap.FailedCount).To(Equal(0))
		Expect(snap.BlockedCount).To(Equal(0))
		Expect(tr.isClosed(100)).To(BeTrue())
		Expect(filepath.Join(repo, "feature.txt")).To(BeAnExistingFile())

		leftover, err := os.ReadDir(base)
		Expect(err).NotTo(HaveOccurred())
		Expect(leftover).To(BeEmpty(), "workspace base must hold no leftover worktree directories after a clean run")

		var sawSlotDone, sawMerge bool
		for _, e := range recorder.Events() {
			if e.Type == events.SlotDone {
				sawSlotDone = true
			}
			if e.Type == events.MergeResult && e.Error == "" {
				sawMerge = true
			}
		}
		Expect(sawSlotDone).To(BeTrue())
		Expect(sawMerge).To(BeTrue())
	})

	// Scenario: retry after stuck. Item #101's first attempt reports
	// success but makes no changes; the second attempt produces a real
	// diff on a distinct branch and the item closes.
	It("retries a stuck first attempt and succeeds on the second, on a different branch", func() {
		script := sequencedEngineScript(
			`echo '{"success": true, "stuck": true, "lessons": "looked around, nothing obvious"}'`,
			`echo "fix" >> fix.txt && git add -A && git commit -q -m "actual fix" && echo '{"success": true}'`,
		)

		tr := newFakeTracker(tracker.Item{Number: 101, Title: "Elusive bug", Body: "body"})
		deps, _ := testDeps(repo, tr, script)
		recorder := events.NewRecorder(deps.Bus, 256)

		s := scheduler.New(deps, []scheduler.PendingItem{
			{ID: "101", Number: 101, Title: "Elusive bug", Body: "body", Domain: "backend"},
		})
		Expect(s.Run(context.Background())).To(Succeed())

		snap := s.Snapshot()
		Expect(snap.CompletedCount).To(Equal(1))
		Expect(tr.isClosed(101)).To(BeTrue())
		Expect(filepath.Join(repo, "fix.txt")).To(BeAnExistingFile())

		mergeCount := 0
		for _, e := range recorder.Events() {
			if e.Type == events.MergeResult {
				mergeCount++
			}
		}
		Expect(mergeCount).To(Equal(1), "only the second, real attempt should ever reach integration")
	})

	// Scenario: integration conflict terminal. Item #102's engine makes
	// real changes, but each attempt's own run also lands a concurrent,
	// conflicting commit directly on main (standing in for another
	// actor advancing the base branch mid-attempt), so every merge
	// conflicts and the item ends terminally blocked rather than
	// retried forever or silently dropped.
	It("blocks an item whose merges conflict through every attempt", func() {
		script := fakeEngineScript(fmt.Sprintf(`set -e
cd %s
printf 'from main\n' > shared.txt
git add -A
git commit -q -m "concurrent mainline edit"
cd - >/dev/null
printf 'from engine\n' > shared.txt
git add -A
git commit -q -m "engine change"
echo '{"success": true}'`, shellQuote(repo)))

		tr := newFakeTracker(tracker.Item{Number: 102, Title: "Touches shared file", Body: "body"})
		deps, _ := testDeps(repo, tr, script)
		deps.Config.MaxAttempts = 2

		s := scheduler.New(deps, []scheduler.PendingItem{
			{ID: "102", Number: 102, Title: "Touches shared file", Body: "body", Domain: "backend"},
		})
		Expect(s.Run(context.Background())).To(Succeed())

		snap := s.Snapshot()
		Expect(snap.BlockedCount).To(Equal(1), "a terminally conflicting item ends blocked, not completed or silently retried")
		Expect(snap.CompletedCount).To(Equal(0))
		comments := tr.commentsFor(102)
		Expect(comments).NotTo(BeEmpty())
		Expect(comments[len(comments)-1]).To(ContainSubstring("integration failed"))

		status, err := exec.Command("git", "-C", repo, "status", "--porcelain").CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(status)).To(BeEmpty(), "mainline working tree must be restored clean after every failed merge")

		mergeHead := filepath.Join(repo, ".git", "MERGE_HEAD")
		_, statErr := os.Stat(mergeHead)
		Expect(os.IsNotExist(statErr)).To(BeTrue(), "no merge should be left in progress")

		stashOut, err := exec.Command("git", "-C", repo, "stash", "list").CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(stashOut)).To(BeEmpty(), "no stash should be left unpopped")
	})

	// Scenario: rate-limit recovery. Item #103's first attempt is
	// rate-limited; after the backoff it retries and succeeds. Backoff
	// is scaled down from the spec's 30s floor so the suite stays fast;
	// what's asserted is the shape (elapsed at least one full backoff,
	// exactly one failed invocation, then success), not the literal
	// wall-clock duration.
	It("retries once after a rate limit and then succeeds", func() {
		script := sequencedEngineScript(
			`echo "rate limit exceeded, try again later" >&2; exit 1`,
			`echo "done" >> done.txt && git add -A && git commit -q -m "after rate limit" && echo '{"success": true}'`,
		)

		tr := newFakeTracker(tracker.Item{Number: 103, Title: "Rate limited item", Body: "body"})
		deps, _ := testDeps(repo, tr, script)
		deps.Config.RateLimitBackoff = 300 * time.Millisecond
		recorder := events.NewRecorder(deps.Bus, 256)

		s := scheduler.New(deps, []scheduler.PendingItem{
			{ID: "103", Number: 103, Title: "Rate limited item", Body: "body", Domain: "backend"},
		})
		start := time.Now()
		Expect(s.Run(context.Background())).To(Succeed())
		elapsed := time.Since(start)

		snap := s.Snapshot()
		Expect(snap.CompletedCount).To(Equal(1))
		Expect(elapsed).To(BeNumerically(">=", deps.Config.RateLimitBackoff))

		failedInvocations := 0
		for _, e := range recorder.Events() {
			if e.Type == events.EngineInvokeDone && e.Error != "" {
				failedInvocations++
			}
		}
		Expect(failedInvocations).To(Equal(1), "exactly one failed invocation (the rate-limited one) before success")
	})

	// Scenario: concurrent processes. Two schedulers started under the
	// same run label race for the run lock; only one should ever
	// acquire it, and the loser must never touch an item claim or
	// workspace. This exercises coordinator.RunLock directly, since
	// run-lock acquisition is cli/run.go's job, not the scheduler's.
	It("lets only one of two concurrent processes acquire the run lock", func() {
		lockDir, err := os.MkdirTemp("", "foreman-acceptance-locks-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(lockDir)

		lockA := coordinator.NewRunLock(lockDir, "go")
		lockB := coordinator.NewRunLock(lockDir, "go")

		acquiredA, err := lockA.Acquire()
		Expect(err).NotTo(HaveOccurred())
		Expect(acquiredA).To(BeTrue())

		acquiredB, err := lockB.Acquire()
		Expect(err).NotTo(HaveOccurred())
		Expect(acquiredB).To(BeFalse(), "a second process under the same label must not acquire the run lock")

		record, err := coordinator.HasConflictingInstance(lockDir, "go")
		Expect(err).NotTo(HaveOccurred())
		Expect(record).To(BeNil(), "a process scanning its own held lock sees no conflicting instance")

		Expect(lockA.Release()).To(Succeed())
	})

	// Scenario: shutdown mid-attempt. Kill() delivered while item #105's
	// attempt is running must terminate the engine (SIGTERM, then
	// SIGKILL after its grace period if still alive), tear the slot's
	// workspace down, release the item's claim, and leave no directory
	// behind.
	It("kills an in-flight attempt on shutdown and cleans up its workspace", func() {
		script := fakeEngineScript(`sleep 5; echo '{"success": true}'`)

		tr := newFakeTracker(tracker.Item{Number: 105, Title: "Long running item", Body: "body"})
		deps, base := testDeps(repo, tr, script)
		deps.Config.MaxAttempts = 1
		recorder := events.NewRecorder(deps.Bus, 256)

		claim := deps.Claims

		s := scheduler.New(deps, []scheduler.PendingItem{
			{ID: "105", Number: 105, Title: "Long running item", Body: "body", Domain: "backend"},
		})

		done := make(chan struct{})
		go func() {
			_ = s.Run(context.Background())
			close(done)
		}()

		// Give the slot time to claim the item, create its workspace, and
		// start the sleeping engine before shutdown arrives mid-attempt.
		Eventually(func() int {
			return s.Snapshot().ActiveCount
		}, 2*time.Second, 20*time.Millisecond).Should(Equal(1))

		s.Kill()

		Eventually(done, 10*time.Second).Should(BeClosed())

		snap := s.Snapshot()
		Expect(snap.CompletedCount).To(Equal(0))

		claimed, err := claim.Claim("105")
		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(BeTrue(), "shutdown must release the item's claim")

		leftover, err := os.ReadDir(base)
		Expect(err).NotTo(HaveOccurred())
		Expect(leftover).To(BeEmpty(), "no directory should remain under the slot's workspace base after shutdown")

		var sawKillOrDone bool
		for _, e := range recorder.Events() {
			if e.Type == events.SlotDone || e.Type == events.EngineKill {
				sawKillOrDone = true
			}
		}
		Expect(sawKillOrDone).To(BeTrue())
	})
})

// shellQuote wraps s in single quotes for safe interpolation into a sh
// script body, escaping any single quotes it contains.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
