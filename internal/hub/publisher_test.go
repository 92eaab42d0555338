package hub_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"domin/internal/config"
	"domin/internal/faults"
	"domin/internal/hub"
	"domin/internal/testsupport"
)

func TestHTTPPublisherUploadsVisibleFiles(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{
		"meta.db": "db",
		"images/observation.images.front/episode_000000/frame_000000.png": "png",
		".lock":             "",
		".staging/x/a.png":  "staged",
		"meta.db-wal":       "wal",
	})

	var (
		mu       sync.Mutex
		received = map[string]string{}
		headers  http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received[r.URL.Path] = string(body)
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	pub := hub.NewHTTPPublisher(server.URL, "secret", 5*time.Second, nil)
	result, err := pub.Push(context.Background(), root, hub.PushOptions{RepoID: "lab/pick", Tags: []string{"sim", "pick"}, Private: true})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if result.Files != 2 || result.Bytes != 5 {
		t.Fatalf("unexpected result %+v", result)
	}
	paths := make([]string, 0, len(received))
	for p := range received {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	want := []string{
		"/datasets/lab/pick/images/observation.images.front/episode_000000/frame_000000.png",
		"/datasets/lab/pick/meta.db",
	}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("uploaded %v, want %v", paths, want)
	}
	if got := headers.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("authorization header %q", got)
	}
	if headers.Get("X-Dataset-Tags") != "sim,pick" || headers.Get("X-Dataset-Private") != "true" {
		t.Fatalf("unexpected dataset headers %v", headers)
	}
}

func TestHTTPPublisherReportsServerError(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteTree(t, root, map[string]string{"meta.db": "db"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := hub.NewHTTPPublisher(server.URL, "", time.Second, nil).Push(context.Background(), root, hub.PushOptions{RepoID: "lab/pick"})
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestHTTPPublisherRequiresRepo(t *testing.T) {
	_, err := hub.NewHTTPPublisher("http://localhost", "", time.Second, nil).Push(context.Background(), t.TempDir(), hub.PushOptions{})
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewPublisherIsNoopWhenDisabled(t *testing.T) {
	cfg := config.Default()
	pub := hub.NewPublisher(&cfg, nil)
	result, err := pub.Push(context.Background(), "/nonexistent", hub.PushOptions{})
	if err != nil || result.Files != 0 {
		t.Fatalf("expected noop push, got %+v %v", result, err)
	}
}
