// Package tracker is the scheduler's upstream work-item tracker client
// (§6 External Interfaces): list items by label, read an item's state,
// comment, close, detect closed-reopened loops, and push project-board
// status/branch fields. The only implementation is a GitHub Issues/
// Projects-v2 HTTP client, but callers depend on the Tracker interface
// so a future tracker (Jira, Linear, ...) is a drop-in.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Item is one work item as seen by the scheduler.
type Item struct {
	ID       string
	Number   int
	Title    string
	Body     string
	Labels   []string
	State    string // "open" or "closed"
	Assignee string
}

// Tracker is the scheduler's view of the upstream issue tracker.
type Tracker interface {
	ListByLabel(ctx context.Context, label string) ([]Item, error)
	Get(ctx context.Context, number int) (Item, error)
	Comment(ctx context.Context, number int, body string) error
	Close(ctx context.Context, number int) error
	DetectLoop(ctx context.Context, number int, maxReopens int) (bool, error)
	SetBoardStatus(ctx context.Context, number int, status string) error
	SetBoardBranch(ctx context.Context, number int, branch string) error
}

// Config configures an HTTPTracker. Owner/Repo are auto-detected from
// the local git remote if left empty.
type Config struct {
	Owner       string
	Repo        string
	ProjectID   string // GitHub Projects v2 node ID, required for board field updates
	StatusField string // Projects v2 field ID for "status"
	BranchField string // Projects v2 field ID for "branch"
}

// HTTPTracker talks to the GitHub REST and GraphQL APIs.
type HTTPTracker struct {
	httpClient *http.Client
	owner      string
	repo       string
	token      string
	cfg        Config

	// issuesBase and graphqlURL default to the real GitHub API and are
	// only overridden by tests, against an httptest server.
	issuesBase string
	graphqlURL string
}

// NewHTTPTracker builds a tracker client, resolving the token from
// GITHUB_TOKEN or `gh auth token`, and owner/repo from cfg or the local
// git remote if cfg leaves them blank.
func NewHTTPTracker(cfg Config) (*HTTPTracker, error) {
	token, err := resolveToken()
	if err != nil {
		return nil, err
	}

	owner, repo := cfg.Owner, cfg.Repo
	if owner == "" || repo == "" {
		detectedOwner, detectedRepo, err := detectOwnerRepo()
		if err != nil {
			return nil, err
		}
		if owner == "" {
			owner = detectedOwner
		}
		if repo == "" {
			repo = detectedRepo
		}
	}

	return &HTTPTracker{
		httpClient: &http.Client{},
		owner:      owner,
		repo:       repo,
		token:      token,
		cfg:        cfg,
	}, nil
}

func resolveToken() (string, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	out, err := exec.Command("gh", "auth", "token").Output()
	if err == nil {
		return strings.TrimSpace(string(out)), nil
	}
	return "", fmt.Errorf("tracker: no token found: set GITHUB_TOKEN or run 'gh auth login'")
}

var (
	httpsRemote = regexp.MustCompile(`https://github\.com/([^/]+)/([^/]+?)(\.git)?$`)
	sshRemote   = regexp.MustCompile(`git@github\.com:([^/]+)/([^/]+?)(\.git)?$`)
)

func detectOwnerRepo() (owner, repo string, err error) {
	out, err := exec.Command("git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", "", fmt.Errorf("tracker: get git remote: %w", err)
	}
	remote := strings.TrimSpace(string(out))

	if m := httpsRemote.FindStringSubmatch(remote); m != nil {
		return m[1], m[2], nil
	}
	if m := sshRemote.FindStringSubmatch(remote); m != nil {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("tracker: could not parse owner/repo from remote %q", remote)
}

// doRequest executes an HTTP request against the GitHub API, retrying
// rate limits (403/429, honoring Retry-After) and 5xx errors with
// exponential backoff.
func (t *HTTPTracker) doRequest(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("tracker: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	const maxRetries = 5
	backoff := 1 * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, fmt.Errorf("tracker: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+t.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tracker: request failed: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if resp.StatusCode == 403 || resp.StatusCode == 429 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("tracker: rate limited after %d retries", maxRetries)
			}
			wait := backoff
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if secs, err := strconv.Atoi(retryAfter); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			select {
			case <-time.After(wait):
				backoff *= 2
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("tracker: server error after %d retries: status %d", maxRetries, resp.StatusCode)
			}
			select {
			case <-time.After(backoff):
				backoff *= 2
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tracker: request failed with status %d: %s", resp.StatusCode, string(msg))
	}

	return nil, fmt.Errorf("tracker: exhausted retries")
}

func (t *HTTPTracker) issuesURL(path string) string {
	base := t.issuesBase
	if base == "" {
		base = fmt.Sprintf("https://api.github.com/repos/%s/%s/issues", t.owner, t.repo)
	}
	return base + path
}

func (t *HTTPTracker) graphQLURL() string {
	if t.graphqlURL != "" {
		return t.graphqlURL
	}
	return "https://api.github.com/graphql"
}

type apiIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
}

func (issue apiIssue) toItem() Item {
	item := Item{
		ID:     strconv.Itoa(issue.Number),
		Number: issue.Number,
		Title:  issue.Title,
		Body:   issue.Body,
		State:  issue.State,
	}
	for _, l := range issue.Labels {
		item.Labels = append(item.Labels, l.Name)
	}
	if issue.Assignee != nil {
		item.Assignee = issue.Assignee.Login
	}
	return item
}

// ListByLabel returns every open issue carrying label.
func (t *HTTPTracker) ListByLabel(ctx context.Context, label string) ([]Item, error) {
	url := t.issuesURL(fmt.Sprintf("?labels=%s&state=open&per_page=100", strings.TrimSpace(label)))
	resp, err := t.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var issues []struct {
		apiIssue
		PullRequest *json.RawMessage `json:"pull_request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("tracker: decode issue list: %w", err)
	}

	items := make([]Item, 0, len(issues))
	for _, issue := range issues {
		// GitHub's issues endpoint also returns pull requests; the
		// scheduler only ever wants plain issues.
		if issue.PullRequest != nil {
			continue
		}
		items = append(items, issue.toItem())
	}
	return items, nil
}

// Get fetches a single item's current state.
func (t *HTTPTracker) Get(ctx context.Context, number int) (Item, error) {
	url := t.issuesURL(fmt.Sprintf("/%d", number))
	resp, err := t.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Item{}, err
	}
	defer resp.Body.Close()

	var issue apiIssue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return Item{}, fmt.Errorf("tracker: decode issue: %w", err)
	}
	return issue.toItem(), nil
}

// Comment posts body as a new comment on the item.
func (t *HTTPTracker) Comment(ctx context.Context, number int, body string) error {
	url := t.issuesURL(fmt.Sprintf("/%d/comments", number))
	resp, err := t.doRequest(ctx, http.MethodPost, url, map[string]string{"body": body})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close marks the item closed.
func (t *HTTPTracker) Close(ctx context.Context, number int) error {
	url := t.issuesURL(fmt.Sprintf("/%d", number))
	resp, err := t.doRequest(ctx, http.MethodPatch, url, map[string]string{"state": "closed"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

type timelineEvent struct {
	Event string `json:"event"`
}

// DetectLoop reports whether the item has been closed and reopened more
// than maxReopens times, by counting "reopened" events in its timeline.
func (t *HTTPTracker) DetectLoop(ctx context.Context, number int, maxReopens int) (bool, error) {
	url := t.issuesURL(fmt.Sprintf("/%d/timeline?per_page=250", number))
	resp, err := t.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var events []timelineEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return false, fmt.Errorf("tracker: decode timeline: %w", err)
	}

	reopens := 0
	for _, e := range events {
		if e.Event == "reopened" {
			reopens++
		}
	}
	return reopens > maxReopens, nil
}

// setBoardField updates a single-select or text Projects-v2 field via
// the updateProjectV2ItemFieldValue mutation. The caller must have
// configured ProjectID and the relevant field ID in Config; a tracker
// with no project configured treats board updates as a no-op, since not
// every repository uses a project board.
func (t *HTTPTracker) setBoardField(ctx context.Context, itemNumber int, fieldID, value string) error {
	if t.cfg.ProjectID == "" || fieldID == "" {
		return nil
	}

	query := `mutation($project:ID!, $item:ID!, $field:ID!, $value:String!) {
		updateProjectV2ItemFieldValue(input: {
			projectId: $project, itemId: $item, fieldId: $field,
			value: { text: $value }
		}) { projectV2Item { id } }
	}`

	body := map[string]any{
		"query": query,
		"variables": map[string]any{
			"project": t.cfg.ProjectID,
			"item":    strconv.Itoa(itemNumber),
			"field":   fieldID,
			"value":   value,
		},
	}

	resp, err := t.doRequest(ctx, http.MethodPost, t.graphQLURL(), body)
	if err != nil {
		return fmt.Errorf("tracker: update board field: %w", err)
	}
	resp.Body.Close()
	return nil
}

// SetBoardStatus updates the project board's status field for the item.
func (t *HTTPTracker) SetBoardStatus(ctx context.Context, number int, status string) error {
	return t.setBoardField(ctx, number, t.cfg.StatusField, status)
}

// SetBoardBranch updates the project board's branch field for the item.
func (t *HTTPTracker) SetBoardBranch(ctx context.Context, number int, branch string) error {
	return t.setBoardField(ctx, number, t.cfg.BranchField, branch)
}
