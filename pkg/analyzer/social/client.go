package social

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
)

// Provider fetches one platform account.
type Provider interface {
	FetchAccount(ctx context.Context, platform, handle, token string) (*Account, error)
}

// Account is the upstream data the analyzer scores.
type Account struct {
	Platform  string
	Handle    string
	Followers int
	Following int
	Verified  bool
	Business  bool
	Posts     []Post

	// EngagementAvailable is false when the credential cannot read
	// interaction counts; posts then carry zero interactions.
	EngagementAvailable bool
	Missing             []string
}

// Post is one publication.
type Post struct {
	PublishedAt time.Time
	Likes       int
	Comments    int
	Shares      int
	Views       int
}

// Interactions sums the engagement a post received.
func (p Post) Interactions() int {
	return p.Likes + p.Comments + p.Shares
}

// Client is a Provider over a social gateway REST API serving every
// platform under /{platform}/users/{handle}.
type Client struct {
	http *analyzer.HTTPClient
	// Window is how far back posts are requested.
	Window time.Duration
	now    analyzer.Clock
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{http: analyzer.NewHTTPClient(baseURL), Window: 90 * 24 * time.Hour, now: analyzer.SystemClock}
}

// WithClock overrides the clock used for the post window.
func (c *Client) WithClock(clock analyzer.Clock) *Client {
	c.now = clock
	c.http.Now = clock
	return c
}

type profileDTO struct {
	Followers int  `json:"followers"`
	Following int  `json:"following"`
	Verified  bool `json:"verified"`
	Business  bool `json:"business"`
}

type postDTO struct {
	PublishedAt time.Time `json:"publishedAt"`
	Likes       int       `json:"likes"`
	Comments    int       `json:"comments"`
	Shares      int       `json:"shares"`
	Views       int       `json:"views"`
}

// FetchAccount implements Provider.
func (c *Client) FetchAccount(ctx context.Context, platform, handle, token string) (*Account, error) {
	base := "/" + url.PathEscape(platform) + "/users/" + url.PathEscape(handle)

	var p profileDTO
	if _, err := c.http.GetJSON(ctx, token, base, nil, &p); err != nil {
		return nil, fmt.Errorf("%s profile: %w", platform, err)
	}
	acct := &Account{
		Platform:            platform,
		Handle:              handle,
		Followers:           p.Followers,
		Following:           p.Following,
		Verified:            p.Verified,
		Business:            p.Business,
		EngagementAvailable: true,
	}

	since := c.now().Add(-c.Window)
	var posts []postDTO
	q := url.Values{"since": {since.Format(time.RFC3339)}, "fields": {"engagement"}}
	_, err := c.http.GetJSON(ctx, token, base+"/posts", q, &posts)
	if errors.Is(err, analyzer.ErrScopeMissing) {
		// Fall back to timestamps only.
		acct.EngagementAvailable = false
		acct.Missing = append(acct.Missing, "engagement metrics")
		q.Del("fields")
		posts = nil
		_, err = c.http.GetJSON(ctx, token, base+"/posts", q, &posts)
	}
	if err != nil {
		return nil, fmt.Errorf("%s posts: %w", platform, err)
	}
	for _, dto := range posts {
		post := Post{PublishedAt: dto.PublishedAt}
		if acct.EngagementAvailable {
			post.Likes, post.Comments, post.Shares, post.Views = dto.Likes, dto.Comments, dto.Shares, dto.Views
		}
		acct.Posts = append(acct.Posts, post)
	}
	return acct, nil
}
