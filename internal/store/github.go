package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/result"
)

const defaultGitHubAPIBase = "https://api.github.com"

// GitHubConfig configures a GitHub-backed store. Token is a bearer token
// with contents read/write access to the repository.
type GitHubConfig struct {
	// APIBase overrides the API endpoint, e.g. for GitHub Enterprise or tests.
	APIBase string
	Owner   string
	Repo    string
	// Branch is the ref written to; empty means the repository default.
	Branch  string
	Token   string
	Timeout time.Duration
}

// GitHub implements Store over the GitHub repository contents API. The API
// is natively hash-guarded: every update or delete must carry the current
// git blob SHA of the file, and a stale SHA is rejected with 409.
type GitHub struct {
	cfg GitHubConfig
	hc  *http.Client
	log logging.Logger
}

// NewGitHub constructs a GitHub store.
func NewGitHub(cfg GitHubConfig, log logging.Logger) *GitHub {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultGitHubAPIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GitHub{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
		log: log.With("store", "github", "repo", cfg.Owner+"/"+cfg.Repo),
	}
}

type githubContent struct {
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type githubWriteResponse struct {
	Content *githubContent `json:"content"`
}

func (g *GitHub) contentsURL(path string) string {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		g.cfg.APIBase, url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), path)
	if g.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(g.cfg.Branch)
	}
	return u
}

func (g *GitHub) do(ctx context.Context, method, rawURL string, body any) (*http.Response, *Error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, transport(rawURL, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, transport(rawURL, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, transport(rawURL, err)
	}
	return resp, nil
}

// classify maps a GitHub response status to a store error. 409 is the
// documented stale-SHA response; 422 is returned when the SHA is missing or
// malformed for an existing file, which for this store means the caller's
// create-only expectation was stale.
func (g *GitHub) classify(path string, resp *http.Response) *Error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return notFound(path)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return conflict(path)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return transport(path, fmt.Errorf("github: %s: %s", resp.Status, bytes.TrimSpace(body)))
	}
}

func (g *GitHub) fetch(ctx context.Context, path string) (githubContent, *Error) {
	resp, serr := g.do(ctx, http.MethodGet, g.contentsURL(path), nil)
	if serr != nil {
		return githubContent{}, serr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return githubContent{}, g.classify(path, resp)
	}
	var c githubContent
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return githubContent{}, transport(path, err)
	}
	return c, nil
}

func (g *GitHub) GetFileInfo(ctx context.Context, path string) result.Result[FileInfo, *Error] {
	c, serr := g.fetch(ctx, path)
	if serr != nil {
		return result.Err[FileInfo](serr)
	}
	return result.Ok[FileInfo, *Error](FileInfo{Path: path, Hash: c.SHA, Size: c.Size})
}

func (g *GitHub) ReadFile(ctx context.Context, path string) result.Result[File, *Error] {
	c, serr := g.fetch(ctx, path)
	if serr != nil {
		return result.Err[File](serr)
	}
	raw, err := base64.StdEncoding.DecodeString(stripNewlines(c.Content))
	if err != nil {
		return result.Err[File](transport(path, fmt.Errorf("decode content: %w", err)))
	}
	return result.Ok[File, *Error](File{Path: path, Hash: c.SHA, Content: raw})
}

func (g *GitHub) WriteFile(ctx context.Context, path string, content []byte, expectedHash string) result.Result[string, *Error] {
	body := map[string]any{
		"message": "vaultsync: update " + path,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if expectedHash != "" {
		body["sha"] = expectedHash
	}
	if g.cfg.Branch != "" {
		body["branch"] = g.cfg.Branch
	}

	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		g.cfg.APIBase, url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), path)
	resp, serr := g.do(ctx, http.MethodPut, u, body)
	if serr != nil {
		return result.Err[string](serr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		// Creating over an existing file surfaces as 422 ("sha wasn't
		// supplied"), which classify reports as a conflict.
		return result.Err[string](g.classify(path, resp))
	}
	var wr githubWriteResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil || wr.Content == nil {
		return result.Err[string](transport(path, fmt.Errorf("decode write response: %v", err)))
	}
	return result.Ok[string, *Error](wr.Content.SHA)
}

func (g *GitHub) DeleteFile(ctx context.Context, path string, expectedHash string) result.Result[result.Unit, *Error] {
	body := map[string]any{
		"message": "vaultsync: delete " + path,
		"sha":     expectedHash,
	}
	if g.cfg.Branch != "" {
		body["branch"] = g.cfg.Branch
	}

	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		g.cfg.APIBase, url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), path)
	resp, serr := g.do(ctx, http.MethodDelete, u, body)
	if serr != nil {
		return result.Err[result.Unit](serr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result.Err[result.Unit](g.classify(path, resp))
	}
	return result.Ok[result.Unit, *Error](result.Unit{})
}

// stripNewlines removes the line breaks GitHub inserts into base64 content.
func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ Store = (*GitHub)(nil)
