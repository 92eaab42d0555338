// Package hub publishes finished datasets to a remote dataset store.
package hub

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"domin/internal/config"
	"domin/internal/faults"
	"domin/internal/logging"
)

const userAgent = "domin/1 (+dataset publisher)"

// PushOptions controls how a dataset appears remotely.
type PushOptions struct {
	RepoID  string
	Tags    []string
	Private bool
}

// PushResult summarizes an upload.
type PushResult struct {
	Files int
	Bytes int64
}

// Publisher uploads a dataset root.
type Publisher interface {
	Push(ctx context.Context, root string, opts PushOptions) (PushResult, error)
}

// NewPublisher returns the HTTP publisher when push_to_hub is enabled and
// a no-op publisher otherwise.
func NewPublisher(cfg *config.Config, logger *slog.Logger) Publisher {
	if cfg == nil || !cfg.Dataset.PushToHub || strings.TrimSpace(cfg.Hub.BaseURL) == "" {
		return noopPublisher{}
	}
	return NewHTTPPublisher(cfg.Hub.BaseURL, cfg.Hub.Token, time.Duration(cfg.Hub.TimeoutSeconds)*time.Second, logger)
}

// HTTPPublisher PUTs every dataset file to
// {base}/datasets/{repo_id}/{relative path}.
type HTTPPublisher struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPPublisher builds a publisher. A non-positive timeout means none.
func NewHTTPPublisher(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPPublisher {
	if timeout < 0 {
		timeout = 0
	}
	return &HTTPPublisher{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "hub"),
	}
}

func (p *HTTPPublisher) Push(ctx context.Context, root string, opts PushOptions) (PushResult, error) {
	repo := strings.Trim(strings.TrimSpace(opts.RepoID), "/")
	if repo == "" {
		return PushResult{}, faults.Wrap(faults.ErrConfiguration, "hub", "push", "repo id required", nil)
	}
	files, err := collectFiles(root)
	if err != nil {
		return PushResult{}, faults.Wrap(faults.ErrValidation, "hub", "push", "list dataset files", err)
	}

	var result PushResult
	for _, rel := range files {
		n, err := p.upload(ctx, root, repo, rel, opts)
		if err != nil {
			return result, faults.Wrap(faults.ErrExternalTool, "hub", "push", rel, err)
		}
		result.Files++
		result.Bytes += n
	}
	p.logger.Info("dataset pushed",
		logging.String("repo_id", repo),
		logging.Int("files", result.Files),
		logging.Int64("bytes", result.Bytes),
		logging.Bool("private", opts.Private),
	)
	return result, nil
}

func (p *HTTPPublisher) upload(ctx context.Context, root, repo, rel string, opts PushOptions) (int64, error) {
	file, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return 0, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}

	endpoint := p.baseURL + "/datasets/" + escapePath(repo) + "/" + escapePath(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, file)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/octet-stream")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if len(opts.Tags) > 0 {
		req.Header.Set("X-Dataset-Tags", strings.Join(opts.Tags, ","))
	}
	req.Header.Set("X-Dataset-Private", strconv.FormatBool(opts.Private))

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, fmt.Errorf("hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return info.Size(), nil
}

// collectFiles lists regular files under root as slash paths, skipping
// hidden entries such as the lock file and staging area.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasSuffix(d.Name(), "-wal") || strings.HasSuffix(d.Name(), "-shm") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

func escapePath(p string) string {
	parts := strings.Split(path.Clean(p), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

type noopPublisher struct{}

func (noopPublisher) Push(context.Context, string, PushOptions) (PushResult, error) {
	return PushResult{}, nil
}
