package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
)

// Provider fetches repository activity for a login.
type Provider interface {
	FetchActivity(ctx context.Context, login, token string) (*Activity, error)
}

// Activity is the upstream data the analyzer scores.
type Activity struct {
	Login       string
	Repos       []Repo
	CommitDates []time.Time

	PullRequests       int
	MergedPullRequests int
	Issues             int
	ClosedIssues       int
	Reviews            int

	// Missing lists data the provider could not fetch, such as
	// contribution counts hidden behind a scope the credential lacks.
	Missing []string
}

// Repo is one repository owned by the login.
type Repo struct {
	Name      string
	Fork      bool
	Stars     int
	Forks     int
	PushedAt  time.Time
	Languages map[string]int64
	HasReadme bool
	HasTests  bool
	HasDocs   bool
}

// Client is a Provider over a GitHub-style REST API.
type Client struct {
	http *analyzer.HTTPClient
	// MaxRepos bounds how many owned repositories are inspected in depth.
	MaxRepos int
	now      analyzer.Clock
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{http: analyzer.NewHTTPClient(baseURL), MaxRepos: 30, now: analyzer.SystemClock}
}

// WithClock overrides the clock used for the commit window.
func (c *Client) WithClock(clock analyzer.Clock) *Client {
	c.now = clock
	c.http.Now = clock
	return c
}

type repoDTO struct {
	Name     string    `json:"name"`
	Fork     bool      `json:"fork"`
	Stars    int       `json:"stargazers_count"`
	Forks    int       `json:"forks_count"`
	PushedAt time.Time `json:"pushed_at"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type contentDTO struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type commitDTO struct {
	Commit struct {
		Author struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type searchDTO struct {
	TotalCount int `json:"total_count"`
}

// FetchActivity implements Provider.
func (c *Client) FetchActivity(ctx context.Context, login, token string) (*Activity, error) {
	act := &Activity{Login: login}

	var repos []repoDTO
	q := url.Values{"per_page": {"100"}, "type": {"owner"}, "sort": {"pushed"}}
	if _, err := c.http.GetJSON(ctx, token, "/users/"+url.PathEscape(login)+"/repos", q, &repos); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	since := c.now().AddDate(-1, 0, 0)
	inspected := 0
	for _, r := range repos {
		repo := Repo{Name: r.Name, Fork: r.Fork, Stars: r.Stars, Forks: r.Forks, PushedAt: r.PushedAt}
		if !r.Fork && inspected < c.MaxRepos {
			inspected++
			owner := r.Owner.Login
			if owner == "" {
				owner = login
			}
			if err := c.inspect(ctx, token, owner, login, since, &repo, act); err != nil {
				return nil, err
			}
		}
		act.Repos = append(act.Repos, repo)
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{"author:" + login + " type:pr", &act.PullRequests},
		{"author:" + login + " type:pr is:merged", &act.MergedPullRequests},
		{"author:" + login + " type:issue", &act.Issues},
		{"author:" + login + " type:issue is:closed", &act.ClosedIssues},
		{"reviewed-by:" + login + " type:pr", &act.Reviews},
	}
	for _, cnt := range counts {
		var res searchDTO
		_, err := c.http.GetJSON(ctx, token, "/search/issues", url.Values{"q": {cnt.query}, "per_page": {"1"}}, &res)
		if errors.Is(err, analyzer.ErrScopeMissing) {
			act.Missing = append(act.Missing, "search: "+cnt.query)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", cnt.query, err)
		}
		*cnt.dst = res.TotalCount
	}
	return act, nil
}

func (c *Client) inspect(ctx context.Context, token, owner, login string, since time.Time, repo *Repo, act *Activity) error {
	base := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo.Name)

	if _, err := c.http.GetJSON(ctx, token, base+"/languages", nil, &repo.Languages); err != nil {
		if !errors.Is(err, analyzer.ErrNotFound) {
			return fmt.Errorf("languages of %s: %w", repo.Name, err)
		}
	}

	var contents []contentDTO
	if _, err := c.http.GetJSON(ctx, token, base+"/contents", nil, &contents); err != nil {
		// Empty repositories answer 404 for their contents.
		if !errors.Is(err, analyzer.ErrNotFound) {
			return fmt.Errorf("contents of %s: %w", repo.Name, err)
		}
	}
	for _, entry := range contents {
		name := strings.ToLower(entry.Name)
		switch {
		case strings.HasPrefix(name, "readme"):
			repo.HasReadme = true
		case entry.Type == "dir" && (name == "test" || name == "tests" || name == "spec" || name == "__tests__"):
			repo.HasTests = true
		case entry.Type == "dir" && (name == "docs" || name == "doc" || name == "documentation"):
			repo.HasDocs = true
		}
	}

	var commits []commitDTO
	q := url.Values{"author": {login}, "since": {since.Format(time.RFC3339)}, "per_page": {"100"}}
	if _, err := c.http.GetJSON(ctx, token, base+"/commits", q, &commits); err != nil {
		// 409 for empty repositories arrives as a NoRetry status error.
		var se *analyzer.StatusError
		if errors.As(err, &se) && (se.Status == 409 || se.Status == 404) {
			return nil
		}
		return fmt.Errorf("commits of %s: %w", repo.Name, err)
	}
	for _, cm := range commits {
		act.CommitDates = append(act.CommitDates, cm.Commit.Author.Date)
	}
	return nil
}
