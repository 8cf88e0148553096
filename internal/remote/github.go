package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// GitHubConfig configures the contents-API client.
type GitHubConfig struct {
	BaseURL string `yaml:"base_url"`
	Owner   string `yaml:"owner"`
	Token   string `yaml:"token"`
	Branch  string `yaml:"branch"`
	Timeout string `yaml:"timeout"`
}

// DefaultGitHubConfig returns sensible defaults for api.github.com.
func DefaultGitHubConfig(owner, token string) GitHubConfig {
	return GitHubConfig{
		BaseURL: "https://api.github.com",
		Owner:   owner,
		Token:   token,
		Branch:  "main",
		Timeout: "30s",
	}
}

// GitHubStore implements ContentStore against the GitHub contents API.
type GitHubStore struct {
	baseURL    string
	owner      string
	token      string
	branch     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGitHubStore builds a client from config. A nil logger is replaced with
// a no-op logger.
func NewGitHubStore(cfg GitHubConfig, logger *zap.Logger) (*GitHubStore, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("github: owner is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("github: invalid timeout %q: %w", cfg.Timeout, err)
		}
		timeout = d
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHubStore{
		baseURL:    baseURL,
		owner:      cfg.Owner,
		token:      cfg.Token,
		branch:     branch,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type contentResponse struct {
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content contentResponse `json:"content"`
}

// Stat fetches the current blob SHA and size of repo/path.
func (s *GitHubStore) Stat(ctx context.Context, repo, path string) (FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.contentsURL(repo, path), nil)
	if err != nil {
		return FileInfo{}, fmt.Errorf("github: build request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return FileInfo{}, fmt.Errorf("github: stat %s/%s: %w", repo, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FileInfo{}, fmt.Errorf("github: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var cr contentResponse
		if err := json.Unmarshal(body, &cr); err != nil {
			return FileInfo{}, fmt.Errorf("github: decode stat response: %w", err)
		}
		return FileInfo{Revision: cr.SHA, Size: cr.Size}, nil
	case http.StatusNotFound:
		return FileInfo{}, ErrNotFound
	default:
		return FileInfo{}, s.statusError(resp, body, repo, path)
	}
}

// Put creates or overwrites repo/path. The contents API frames all payloads
// as base64 on the wire regardless of their transport encoding.
func (s *GitHubStore) Put(ctx context.Context, repo, path string, content []byte, message, priorRevision string) (string, error) {
	reqBody := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  s.branch,
		SHA:     priorRevision,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("github: marshal put request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(repo, path), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("github: build request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github: put %s/%s: %w", repo, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("github: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var pr putResponse
		if err := json.Unmarshal(body, &pr); err != nil {
			return "", fmt.Errorf("github: decode put response: %w", err)
		}
		s.logger.Debug("remote write accepted",
			zap.String("repo", repo),
			zap.String("path", path),
			zap.String("revision", pr.Content.SHA))
		return pr.Content.SHA, nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return "", &ConflictError{Repo: repo, Path: path}
	default:
		return "", s.statusError(resp, body, repo, path)
	}
}

func (s *GitHubStore) contentsURL(repo, path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		s.baseURL, url.PathEscape(s.owner), url.PathEscape(repo), path)
}

func (s *GitHubStore) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}

// statusError maps non-success statuses to typed errors. GitHub signals
// rate limiting with 429 or with 403 plus an exhausted quota header.
func (s *GitHubStore) statusError(resp *http.Response, body []byte, repo, path string) error {
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}
	return &StatusError{Code: resp.StatusCode, Repo: repo, Path: path, Body: truncate(body, 200)}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
