package host

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommander records commands and answers from a map keyed by Cmd.String().
type fakeCommander struct {
	calls   []Cmd
	results map[string]model.CommandResult
	errs    map[string]error
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{results: map[string]model.CommandResult{}, errs: map[string]error{}}
}

func (f *fakeCommander) Run(_ context.Context, c Cmd) (model.CommandResult, error) {
	f.calls = append(f.calls, c)
	return f.results[c.String()], f.errs[c.String()]
}

func (f *fakeCommander) commands() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func TestExecCommander(t *testing.T) {
	ctx := context.Background()
	var c ExecCommander

	res, err := c.Run(ctx, Cmd{Name: "sh", Args: []string{"-c", "echo out; echo err >&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")

	res, err = c.Run(ctx, Cmd{Name: "sh", Args: []string{"-c", "kill -9 $$"}})
	require.NoError(t, err)
	assert.Equal(t, 137, res.ExitCode)

	_, err = c.Run(ctx, Cmd{Name: "definitely-not-a-binary-wasm"})
	require.Error(t, err)
}

func TestSystemd(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeCommander()
	dir := t.TempDir()
	s := NewSystemd(cmd, dir, nil)

	require.NoError(t, s.Create(ctx, model.UnitSpec{Name: "wasm-shop", Content: "[Unit]\n"}))
	got, err := os.ReadFile(filepath.Join(dir, "wasm-shop.service"))
	require.NoError(t, err)
	assert.Equal(t, "[Unit]\n", string(got))
	assert.Equal(t, []string{"systemctl daemon-reload", "systemctl enable wasm-shop.service"}, cmd.commands())

	cmd.results["systemctl show wasm-shop.service --property=ActiveState,MainPID"] = model.CommandResult{
		Output: "MainPID=4242\nActiveState=active\n",
	}
	st, err := s.Status(ctx, "wasm-shop")
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, 4242, st.PID)

	cmd.results["systemctl restart wasm-shop.service"] = model.CommandResult{ExitCode: 1, Output: "Job failed"}
	err = s.Restart(ctx, "wasm-shop")
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegration(err))
	assert.Equal(t, "Job failed", apperrors.GetDiagnostic(err))

	require.NoError(t, s.Remove(ctx, "wasm-shop"))
	assert.NoFileExists(t, filepath.Join(dir, "wasm-shop.service"))
	require.NoError(t, s.Remove(ctx, "wasm-shop"))
}

func TestParseShow_Inactive(t *testing.T) {
	st := parseShow("ActiveState=failed\nMainPID=0")
	assert.False(t, st.Active)
	assert.Zero(t, st.PID)
}

func TestNginx(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeCommander()
	base := t.TempDir()
	n := NewNginx(cmd, NginxOptions{
		AvailableDir: filepath.Join(base, "sites-available"),
		EnabledDir:   filepath.Join(base, "sites-enabled"),
	})

	require.Error(t, n.Enable(ctx, "shop.example.com"))

	require.NoError(t, n.CreateSite(ctx, model.SiteSpec{Domain: "shop.example.com", Content: "server {}\n"}))
	require.NoError(t, n.Enable(ctx, "shop.example.com"))
	require.NoError(t, n.Enable(ctx, "shop.example.com"))

	link := filepath.Join(base, "sites-enabled", "shop.example.com.conf")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sites-available", "shop.example.com.conf"), target)

	require.NoError(t, n.Reload(ctx))
	assert.Equal(t, []string{"nginx -t", "systemctl reload nginx"}, cmd.commands())

	cmd.results["nginx -t"] = model.CommandResult{ExitCode: 1, Output: "syntax error"}
	err = n.Reload(ctx)
	require.Error(t, err)
	assert.Equal(t, "syntax error", apperrors.GetDiagnostic(err))

	require.NoError(t, n.RemoveSite(ctx, "shop.example.com"))
	assert.NoFileExists(t, link)
	require.NoError(t, n.RemoveSite(ctx, "shop.example.com"))
}

func TestCertbot(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeCommander()
	live := t.TempDir()
	c := NewCertbot(cmd, "ops@example.com", live)

	ok, err := c.Exists(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := c.Issue(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(live, "shop.example.com", "fullchain.pem"), rec.CertPath)
	assert.Nil(t, rec.ExpiresAt)
	assert.Equal(t,
		"certbot certonly --nginx --non-interactive --agree-tos -d shop.example.com -m ops@example.com",
		cmd.commands()[0])

	require.NoError(t, os.MkdirAll(filepath.Join(live, "shop.example.com"), 0o755))
	require.NoError(t, os.WriteFile(rec.CertPath, []byte("x"), 0o600))
	ok, err = c.Exists(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func nodeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestBuildRunner_InstallAndBuild(t *testing.T) {
	ctx := context.Background()
	cmd := newFakeCommander()
	root := nodeTree(t, map[string]string{"package.json": `{"dependencies":{"next":"14"}}`})
	b := NewBuildRunner(cmd, BuildRunnerOptions{LookPath: func(string) (string, error) { return "/usr/bin/npm", nil }})

	res, err := b.Install(ctx, model.AppTypeNextJS, root)
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)

	cmd.results["npm run build"] = model.CommandResult{ExitCode: 137, Output: "Killed"}
	res, err = b.Build(ctx, model.AppTypeNextJS, root)
	require.NoError(t, err)
	assert.Equal(t, 137, res.ExitCode)
	assert.Contains(t, res.Output, "$ npm run build")
	assert.Contains(t, res.Output, "Killed")

	assert.Equal(t, []string{"npm install", "npm run build"}, cmd.commands())
	assert.Equal(t, root, cmd.calls[1].Dir)
	assert.Equal(t, []string{"NODE_ENV=production"}, cmd.calls[1].Env)
}

func TestBuildRunner_StopsAtFirstFailure(t *testing.T) {
	cmd := newFakeCommander()
	root := nodeTree(t, map[string]string{"requirements.txt": "flask\n"})
	b := NewBuildRunner(cmd, BuildRunnerOptions{})

	cmd.results["python3 -m venv .venv"] = model.CommandResult{ExitCode: 1, Output: "no venv"}
	res, err := b.Install(context.Background(), model.AppTypePython, root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Len(t, cmd.calls, 1)
}

func TestBuildRunner_NodeBuildScript(t *testing.T) {
	cmd := newFakeCommander()
	withScript := nodeTree(t, map[string]string{"package.json": `{"scripts":{"build":"tsc"}}`, "yarn.lock": ""})
	b := NewBuildRunner(cmd, BuildRunnerOptions{})

	_, err := b.Build(context.Background(), model.AppTypeNodeJS, withScript)
	require.NoError(t, err)
	assert.Equal(t, []string{"yarn run build"}, cmd.commands())

	cmd.calls = nil
	plain := nodeTree(t, map[string]string{"package.json": `{}`})
	_, err = b.Build(context.Background(), model.AppTypeNodeJS, plain)
	require.NoError(t, err)
	assert.Empty(t, cmd.calls)
}

func TestBuildRunner_MissingToolUsesAllowlistedInstaller(t *testing.T) {
	root := nodeTree(t, map[string]string{"package.json": `{}`, "pnpm-lock.yaml": ""})
	missing := func(string) (string, error) { return "", errors.New("not found") }

	t.Run("allowed", func(t *testing.T) {
		cmd := newFakeCommander()
		b := NewBuildRunner(cmd, BuildRunnerOptions{LookPath: missing})
		_, err := b.Install(context.Background(), model.AppTypeNodeJS, root)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"bash -c curl -fsSL https://get.pnpm.io/install.sh | bash",
			"pnpm install",
		}, cmd.commands())
	})

	t.Run("refused", func(t *testing.T) {
		cmd := newFakeCommander()
		b := NewBuildRunner(cmd, BuildRunnerOptions{
			LookPath:   missing,
			Installers: security.NewAllowlist([]string{"https://bun.sh/install"}, nil),
		})
		_, err := b.Install(context.Background(), model.AppTypeNodeJS, root)
		require.Error(t, err)
		assert.True(t, apperrors.IsSecurity(err))
		assert.Empty(t, cmd.calls)
	})
}

func TestTemplateRenderer(t *testing.T) {
	r, err := NewTemplateRenderer()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("systemd unit", func(t *testing.T) {
		out, err := r.Render(ctx, model.TemplateSystemd, model.RenderContext{
			Domain:      "api.example.com",
			Root:        "/var/www/apps/api.example.com",
			Port:        8000,
			AppType:     model.AppTypePython,
			ServiceName: "wasm-api-example-com",
			Start:       []string{".venv/bin/gunicorn", "--bind", "127.0.0.1:${PORT}", "app:app"},
			Env:         map[string]string{"GREETING": "hello world"},
			User:        "www-data",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "ExecStart=/var/www/apps/api.example.com/.venv/bin/gunicorn --bind 127.0.0.1:${PORT} app:app")
		assert.Contains(t, out, "User=www-data\n")
		assert.Contains(t, out, "Environment=PORT=8000\n")
		assert.Contains(t, out, `Environment="GREETING=hello world"`)
		assert.True(t, strings.HasPrefix(out, "[Unit]"))
	})

	t.Run("nginx proxy with ssl", func(t *testing.T) {
		out, err := r.Render(ctx, model.TemplateNginx, model.RenderContext{
			Domain:   "shop.example.com",
			Port:     3000,
			SSL:      true,
			CertPath: "/etc/letsencrypt/live/shop.example.com/fullchain.pem",
			KeyPath:  "/etc/letsencrypt/live/shop.example.com/privkey.pem",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "return 301 https://$host$request_uri;")
		assert.Contains(t, out, "listen 443 ssl;")
		assert.Contains(t, out, "proxy_pass http://127.0.0.1:3000;")
	})

	t.Run("nginx static", func(t *testing.T) {
		out, err := r.Render(ctx, model.TemplateNginx, model.RenderContext{
			Domain:   "site.example.com",
			Root:     "/var/www/apps/site.example.com",
			ServeDir: "dist",
		})
		require.NoError(t, err)
		assert.Contains(t, out, "root /var/www/apps/site.example.com/dist;")
		assert.NotContains(t, out, "proxy_pass")
		assert.NotContains(t, out, "443")
	})

	t.Run("errors", func(t *testing.T) {
		_, err := r.Render(ctx, model.TemplateSystemd, model.RenderContext{Domain: "x.example.com"})
		assert.True(t, apperrors.IsIntegration(err))
		_, err = r.Render(ctx, "apache", model.RenderContext{Domain: "x.example.com"})
		assert.True(t, apperrors.IsIntegration(err))
		_, err = r.Render(ctx, model.TemplateNginx, model.RenderContext{Domain: "x.example.com", SSL: true})
		assert.True(t, apperrors.IsIntegration(err))
	})
}

func TestHTTPHealthChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			assert.Equal(t, "shop.example.com", r.Host)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok","checks":{"db":true}}`))
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			_, _ = w.Write([]byte("<html></html>"))
		}
	}))
	t.Cleanup(srv.Close)

	h := NewHTTPHealthChecker(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		check   model.HealthCheck
		wantErr bool
	}{
		{name: "plain ok", check: model.HealthCheck{URL: srv.URL + "/"}},
		{name: "expectation met", check: model.HealthCheck{
			URL: srv.URL + "/health", Host: "shop.example.com", Expect: "status == 'ok' && checks.db",
		}},
		{name: "expectation not met", check: model.HealthCheck{
			URL: srv.URL + "/health", Host: "shop.example.com", Expect: "status == 'degraded'",
		}, wantErr: true},
		{name: "non json body", check: model.HealthCheck{URL: srv.URL + "/", Expect: "status"}, wantErr: true},
		{name: "server error", check: model.HealthCheck{URL: srv.URL + "/down"}, wantErr: true},
		{name: "timeout", check: model.HealthCheck{URL: srv.URL + "/slow", Timeout: 20 * time.Millisecond}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Check(ctx, tt.check)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsIntegration(err))
				return
			}
			require.NoError(t, err)
		})
	}
}
