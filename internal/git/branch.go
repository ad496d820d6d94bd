package git

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// Branch represents a git branch with its metadata.
type Branch struct {
	// Name is the full branch name (e.g., "foreman/item-142-p4821-a91f3c").
	Name string

	// ItemID is the work item this branch was created for.
	ItemID string

	// TargetBranch is the branch this will eventually merge into.
	TargetBranch string

	// Worktree is the absolute path to the worktree checked out for this branch.
	Worktree string
}

// BranchNamer produces collision-resistant branch names for work items.
// Names are derived from the item ID, the owning pid and a hash of the
// attempt counter and the current time rather than generated creatively,
// so every call yields a fresh name, even for the same item and attempt,
// and two concurrent slots do not collide.
type BranchNamer struct {
	// Prefix namespaces every generated branch (default: "foreman/").
	Prefix string
}

// NewBranchNamer creates a branch namer with the default prefix.
func NewBranchNamer() *BranchNamer {
	return &BranchNamer{Prefix: "foreman/"}
}

// GenerateName builds a branch name for itemID's given attempt number. The
// suffix is the first 6 hex characters of sha256(itemID + attempt + the
// current time in nanoseconds), which keeps names short while making
// collisions between calls, including retries of the same item and
// attempt, astronomically unlikely. The owning process's pid is encoded in
// the name (pNNN) so the orphan reaper's workspace sweep (§4.G) can tell
// a stranded branch from a prior run apart from one belonging to a
// currently-live process without consulting any side-channel state.
func (n *BranchNamer) GenerateName(itemID string, attempt int) (string, error) {
	sanitized := SanitizeBranchName(itemID)
	if sanitized == "" {
		return "", fmt.Errorf("item id %q sanitizes to an empty branch component", itemID)
	}

	prefix := n.Prefix
	if prefix == "" {
		prefix = "foreman/"
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d#%d", itemID, attempt, time.Now().UnixNano())))
	suffix := hex.EncodeToString(sum[:])[:6]

	name := fmt.Sprintf("%s%s-p%d-%s", prefix, sanitized, os.Getpid(), suffix)
	if err := ValidateBranchName(name); err != nil {
		return "", fmt.Errorf("generated invalid branch name: %w", err)
	}
	return name, nil
}

// BranchPID extracts the pid encoded in a branch name produced by
// GenerateName, e.g. "foreman/item-142-p4821-a91f3c" -> 4821. Returns
// false if name doesn't match the expected "...-pNNN-..." shape.
func BranchPID(name string) (int, bool) {
	parts := strings.Split(name, "-p")
	if len(parts) < 2 {
		return 0, false
	}
	tail := parts[len(parts)-1]
	digits := strings.SplitN(tail, "-", 2)[0]
	pid := 0
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
		pid = pid*10 + int(r-'0')
	}
	if digits == "" {
		return 0, false
	}
	return pid, true
}

// ValidateBranchName checks if a branch name is valid for git.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("branch name cannot start with 'refs/'")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	if strings.Contains(name, " ") {
		return fmt.Errorf("branch name cannot contain spaces")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.HasSuffix(name, ".") {
		return fmt.Errorf("branch name cannot end with '.'")
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("branch name cannot end with '.lock'")
	}
	return nil
}

var (
	dotsRegex    = regexp.MustCompile(`\.\.+`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	hyphensRegex = regexp.MustCompile(`-+`)
)

// SanitizeBranchName converts a string to a valid branch name component.
// Underscores are preserved (work item IDs commonly contain them); every
// other non-alphanumeric run collapses to a single hyphen.
func SanitizeBranchName(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = dotsRegex.ReplaceAllString(s, "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = invalidChars.ReplaceAllString(s, "-")
	s = hyphensRegex.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}
