package build

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/project"
)

func TestDirDeployerCopiesPackage(t *testing.T) {
	cfg := project.Default(t.TempDir())
	out := writeFile(t, cfg.OutFile, "zipbytes")
	cfg.Deploy.Dir = filepath.Join(t.TempDir(), "device")

	if err := (DirDeployer{}).Deploy(context.Background(), cfg, out); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Deploy.Dir, filepath.Base(out)))
	if err != nil || string(data) != "zipbytes" {
		t.Fatalf("deployed copy = %q, %v", data, err)
	}
}

func TestHTTPDeployerUploadsArchive(t *testing.T) {
	var gotUser, gotPass, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plugin_install" {
			http.NotFound(w, r)
			return
		}
		gotUser, gotPass, _ = r.BasicAuth()
		f, _, err := r.FormFile("archive")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		gotBody = string(data)
	}))
	defer srv.Close()

	cfg := project.Default(t.TempDir())
	out := writeFile(t, cfg.OutFile, "zipbytes")
	cfg.Deploy.Host = strings.TrimPrefix(srv.URL, "http://")
	cfg.Deploy.Password = "secret"

	if err := (HTTPDeployer{Client: srv.Client()}).Deploy(context.Background(), cfg, out); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if gotUser != "quill" || gotPass != "secret" || gotBody != "zipbytes" {
		t.Fatalf("server saw user=%q pass=%q body=%q", gotUser, gotPass, gotBody)
	}
}

func TestHTTPDeployerReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad password", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := project.Default(t.TempDir())
	out := writeFile(t, cfg.OutFile, "zipbytes")
	cfg.Deploy.Host = strings.TrimPrefix(srv.URL, "http://")
	err := (HTTPDeployer{Client: srv.Client()}).Deploy(context.Background(), cfg, out)
	if err == nil || !strings.Contains(err.Error(), "bad password") {
		t.Fatalf("expected the server message, got %v", err)
	}
}

func TestDeployerFor(t *testing.T) {
	cfg := project.Default(t.TempDir())
	if DeployerFor(cfg) != nil {
		t.Fatalf("no target should yield no deployer")
	}
	if err := (DirDeployer{}).Deploy(context.Background(), cfg, cfg.OutFile); !errors.Is(err, ErrNoDeployTarget) {
		t.Fatalf("Deploy without dir = %v", err)
	}
	cfg.Deploy.Host = "10.0.0.2"
	if _, ok := DeployerFor(cfg).(HTTPDeployer); !ok {
		t.Fatalf("host should select the HTTP deployer")
	}
	cfg.Deploy.Dir = t.TempDir()
	if _, ok := DeployerFor(cfg).(DirDeployer); !ok {
		t.Fatalf("dir wins over host")
	}
}
