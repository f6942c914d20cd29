package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"quill/internal/project"
)

// ErrNoDeployTarget is returned when deploy is requested without a target.
var ErrNoDeployTarget = errors.New("no deploy target configured")

// Deployer delivers a built package.
type Deployer interface {
	Deploy(ctx context.Context, cfg *project.Config, outFile string) error
}

// DirDeployer copies the package into cfg.Deploy.Dir.
type DirDeployer struct{}

func (DirDeployer) Deploy(ctx context.Context, cfg *project.Config, outFile string) error {
	if cfg.Deploy.Dir == "" {
		return ErrNoDeployTarget
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(outFile)
	if err != nil {
		return fmt.Errorf("read package: %w", err)
	}
	if err := os.MkdirAll(cfg.Deploy.Dir, 0o755); err != nil {
		return fmt.Errorf("create deploy dir: %w", err)
	}
	return os.WriteFile(filepath.Join(cfg.Deploy.Dir, filepath.Base(outFile)), data, 0o644)
}

// HTTPDeployer uploads the package as multipart form field "archive" to
// http://<host>/plugin_install, authenticating with the configured password.
type HTTPDeployer struct {
	Client *http.Client
	// User is the basic-auth user name; defaults to "quill".
	User string
}

func (d HTTPDeployer) Deploy(ctx context.Context, cfg *project.Config, outFile string) error {
	if cfg.Deploy.Host == "" {
		return ErrNoDeployTarget
	}
	data, err := os.ReadFile(outFile)
	if err != nil {
		return fmt.Errorf("read package: %w", err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("archive", filepath.Base(outFile))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+cfg.Deploy.Host+"/plugin_install", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	user := d.User
	if user == "" {
		user = "quill"
	}
	req.SetBasicAuth(user, cfg.Deploy.Password)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deploy to %s: %w", cfg.Deploy.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deploy to %s: %s: %s", cfg.Deploy.Host, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// DeployerFor picks the deployer matching cfg, or nil when nothing is
// configured.
func DeployerFor(cfg *project.Config) Deployer {
	switch {
	case cfg.Deploy.Dir != "":
		return DirDeployer{}
	case cfg.Deploy.Host != "":
		return HTTPDeployer{}
	default:
		return nil
	}
}
