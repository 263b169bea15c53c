package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// Config identifies the knowledge repository.
type Config struct {
	Owner string
	Repo  string
	Token string
	// BaseURL overrides https://api.github.com/, for GitHub Enterprise or tests.
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond is the proactive throttle; zero uses ProactiveRate.
	RequestsPerSecond float64
}

// Validate checks the repository coordinates.
func (c Config) Validate() error {
	if c.Owner == "" {
		return &domain.ValidationError{Field: "github.owner", Reason: "required"}
	}
	if c.Repo == "" {
		return &domain.ValidationError{Field: "github.repo", Reason: "required"}
	}
	return nil
}

// Client wraps go-github for one repository.
type Client struct {
	gh      *gh.Client
	owner   string
	repo    string
	limiter *RateLimiter
}

// NewClient creates a client for cfg.Owner/cfg.Repo.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = timeout
	}

	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		client.BaseURL = base
	}

	return &Client{
		gh:      client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		limiter: NewRateLimiter(cfg.RequestsPerSecond),
	}, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// GetFileContent returns the decoded content of path at ref.
func (c *Client) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.RepositoryContentGetOptions{Ref: ref}
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	c.observe(resp)
	if err != nil {
		return "", c.wrapError(err, "get contents")
	}
	if file == nil {
		return "", fmt.Errorf("%s: %w", path, ErrNotAFile)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return content, nil
}

// ResolveRef returns the commit SHA a branch, tag or SHA points at.
func (c *Client) ResolveRef(ctx context.Context, ref string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	sha, resp, err := c.gh.Repositories.GetCommitSHA1(ctx, c.owner, c.repo, ref, "")
	c.observe(resp)
	if err != nil {
		return "", c.wrapError(err, "resolve ref")
	}
	return sha, nil
}

// CompareCommits builds sync params for the changes between base and head.
// A renamed file counts as a delete of the old path and a change of the new.
func (c *Client) CompareCommits(ctx context.Context, base, head string) (domain.SyncParams, error) {
	sha, err := c.ResolveRef(ctx, head)
	if err != nil {
		return domain.SyncParams{}, err
	}

	changes := newChangeSet()
	opts := &gh.ListOptions{PerPage: 100}
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.SyncParams{}, fmt.Errorf("rate limit wait: %w", err)
		}
		cmp, resp, err := c.gh.Repositories.CompareCommits(ctx, c.owner, c.repo, base, sha, opts)
		c.observe(resp)
		if err != nil {
			return domain.SyncParams{}, c.wrapError(err, "compare commits")
		}

		for _, f := range cmp.Files {
			switch f.GetStatus() {
			case "removed":
				changes.remove(f.GetFilename())
			case "renamed":
				changes.remove(f.GetPreviousFilename())
				changes.change(f.GetFilename())
			default:
				changes.change(f.GetFilename())
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return changes.params(sha), nil
}

// ListMarkdown returns sync params covering every syncable file at ref.
func (c *Client) ListMarkdown(ctx context.Context, ref string) (domain.SyncParams, error) {
	sha, err := c.ResolveRef(ctx, ref)
	if err != nil {
		return domain.SyncParams{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.SyncParams{}, fmt.Errorf("rate limit wait: %w", err)
	}

	tree, resp, err := c.gh.Git.GetTree(ctx, c.owner, c.repo, sha, true)
	c.observe(resp)
	if err != nil {
		return domain.SyncParams{}, c.wrapError(err, "get tree")
	}
	if tree.GetTruncated() {
		logger.Warn("Tree for %s at %s is truncated; some files will not be synced", c.Repository(), sha)
	}

	changes := newChangeSet()
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" {
			changes.change(entry.GetPath())
		}
	}
	return changes.params(sha), nil
}

func (c *Client) observe(resp *gh.Response) {
	if resp != nil {
		c.limiter.Observe(resp.Response)
	}
}

// wrapError converts go-github errors to APIError and RateLimitError.
func (c *Client) wrapError(err error, operation string) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &RateLimitError{
			ResetAt:   rateErr.Rate.Reset.Time,
			Remaining: rateErr.Rate.Remaining,
			Limit:     rateErr.Rate.Limit,
		}
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		limited := c.limiter.exhausted()
		if abuseErr.RetryAfter != nil {
			limited.ResetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return limited
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		apiErr := &APIError{StatusCode: respErr.Response.StatusCode, Message: respErr.Message}
		if respErr.Response.Request != nil {
			apiErr.URL = respErr.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
