package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/forgecli/forge-api/pkg/model"
	"github.com/sirupsen/logrus"
)

func serverHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return u.Hostname(), port
}

func TestFetchParsesLivePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deployments/dep-1" {
			t.Errorf("unexpected probe path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"success": true,
			"deployment": {
				"status": "deployed",
				"resources": {"cpu": 12.5, "memory": 44.0, "diskUsed": 2147483648, "disk": 13.3},
				"health": {"status": "healthy", "responseTime": 42},
				"ssl": {"enabled": true, "issuer": "Let's Encrypt"},
				"uptime": "3d 2h 5m",
				"logs": ["line one", "line two"]
			}
		}`)
	}))
	defer srv.Close()

	host, port := serverHostPort(t, srv)
	p := newProber(logrus.WithField("test", t.Name()))

	stats := p.fetch(context.Background(), host, port, "dep-1")
	if stats.Status != "deployed" {
		t.Errorf("expected status deployed, got %q", stats.Status)
	}
	if stats.CPU != 12.5 || stats.Memory != 44.0 {
		t.Errorf("resources not parsed: %+v", stats)
	}
	if stats.Health.Status != model.HealthStatusHealthy || stats.Health.ResponseTime != 42 {
		t.Errorf("health not parsed: %+v", stats.Health)
	}
	if stats.Uptime != "3d 2h 5m" {
		t.Errorf("uptime not parsed: %q", stats.Uptime)
	}
	if len(stats.Logs) != 2 {
		t.Errorf("logs not parsed: %+v", stats.Logs)
	}
	if stats.SSL == nil || !stats.SSL.Enabled {
		t.Errorf("ssl not parsed: %+v", stats.SSL)
	}
}

func TestFetchFallsBackWhenUnreachable(t *testing.T) {
	// Grab a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host, port := serverHostPort(t, srv)
	srv.Close()

	p := newProber(logrus.WithField("test", t.Name()))
	stats := p.fetch(context.Background(), host, port, "dep-1")

	if stats.Status != model.DeploymentStatusUnknown {
		t.Errorf("expected unknown status, got %q", stats.Status)
	}
	if stats.Health.Status != model.HealthStatusUnreachable {
		t.Errorf("expected unreachable health, got %q", stats.Health.Status)
	}
	if stats.Uptime != "" {
		t.Errorf("fallback must not fabricate uptime, got %q", stats.Uptime)
	}
	if len(stats.Logs) != 3 {
		t.Fatalf("expected three synthetic log lines, got %+v", stats.Logs)
	}
	target := fmt.Sprintf("%s:%d", host, port)
	if !strings.Contains(stats.Logs[1], target) {
		t.Errorf("synthetic logs should name the target %s: %q", target, stats.Logs[1])
	}
}

func TestFetchFallsBackOnBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>gateway</html>")
		}},
		{"success false", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": false}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			host, port := serverHostPort(t, srv)

			p := newProber(logrus.WithField("test", t.Name()))
			stats := p.fetch(context.Background(), host, port, "dep-1")
			if stats.Health.Status != model.HealthStatusUnreachable {
				t.Errorf("expected unreachable fallback, got %+v", stats.Health)
			}
		})
	}
}

func TestGetDeploymentMergesLiveStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"success": true,
			"deployment": {
				"status": "deployed",
				"resources": {"cpu": 10, "memory": 20, "diskUsed": 3221225472, "disk": 20},
				"health": {"status": "healthy", "responseTime": 15},
				"uptime": "1d 0h 5m",
				"logs": ["booted"]
			}
		}`)
	}))
	defer srv.Close()
	host, port := serverHostPort(t, srv)

	b, database := newTestBackend(t, newFakeProvider())
	ctx := context.Background()

	created, err := b.CreateDeployment(ctx, model.CreateDeploymentRequest{
		ProjectName: "live-app",
		Framework:   "react",
		UserID:      "user_1",
		PublicIP:    host,
		Port:        port,
	})
	if err != nil {
		t.Fatalf("create deployment failed: %v", err)
	}
	depID := created.Deployment.ID

	detail, err := b.GetDeployment(ctx, depID)
	if err != nil {
		t.Fatalf("get deployment failed: %v", err)
	}
	if detail.Status != model.DeploymentStatusDeployed {
		t.Errorf("expected live status deployed, got %q", detail.Status)
	}
	if detail.Health.Status != model.HealthStatusHealthy {
		t.Errorf("expected healthy, got %q", detail.Health.Status)
	}
	if detail.Uptime != "1d 0h 5m" {
		t.Errorf("remote uptime must win, got %q", detail.Uptime)
	}
	if detail.Resources.DiskUsed != 3.0 {
		t.Errorf("expected diskUsed 3GB, got %v", detail.Resources.DiskUsed)
	}
	if detail.Resources.DiskLimit != diskLimitGB {
		t.Errorf("expected disk limit %d, got %v", diskLimitGB, detail.Resources.DiskLimit)
	}
	if len(detail.Logs) != 1 || detail.Logs[0] != "booted" {
		t.Errorf("remote logs must win, got %+v", detail.Logs)
	}

	// The read reconciles the stored record.
	stored, err := database.GetDeployment(depID)
	if err != nil {
		t.Fatalf("loading stored deployment: %v", err)
	}
	if stored.Status != model.DeploymentStatusDeployed || stored.HealthStatus != model.HealthStatusHealthy {
		t.Errorf("merged status not written back: status=%q health=%q", stored.Status, stored.HealthStatus)
	}
	if stored.LastHealthCheck == nil {
		t.Errorf("last health check timestamp not written back")
	}
}

func TestGetDeploymentFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host, port := serverHostPort(t, srv)
	srv.Close()

	b, _ := newTestBackend(t, newFakeProvider())
	ctx := context.Background()

	created, err := b.CreateDeployment(ctx, model.CreateDeploymentRequest{
		ProjectName: "down-app",
		Framework:   "react",
		UserID:      "user_1",
		PublicIP:    host,
		Port:        port,
	})
	if err != nil {
		t.Fatalf("create deployment failed: %v", err)
	}

	detail, err := b.GetDeployment(ctx, created.Deployment.ID)
	if err != nil {
		t.Fatalf("get deployment failed: %v", err)
	}
	if detail.Status != model.DeploymentStatusUnknown {
		t.Errorf("expected unknown status, got %q", detail.Status)
	}
	if detail.Health.Status != model.HealthStatusUnreachable {
		t.Errorf("expected unreachable health, got %q", detail.Health.Status)
	}
	// With no remote uptime the local creation delta applies.
	if detail.Uptime != "0m" {
		t.Errorf("expected locally computed uptime 0m, got %q", detail.Uptime)
	}
	// Proxied records serve https, so ssl falls back to enabled.
	if !detail.SSL.Enabled {
		t.Errorf("expected ssl enabled inferred from %q", detail.URL)
	}
	if len(detail.Logs) != 3 {
		t.Errorf("expected synthetic fallback logs, got %+v", detail.Logs)
	}
}

func TestGetDeploymentNotFound(t *testing.T) {
	b, _ := newTestBackend(t, newFakeProvider())

	_, err := b.GetDeployment(context.Background(), "no-such-id")
	wantAPIError(t, err, 404, model.CodeNotFound)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{-5 * time.Minute, "0m"},
		{42 * time.Minute, "42m"},
		{3*time.Hour + 7*time.Minute, "3h 7m"},
		{26*time.Hour + 5*time.Minute, "1d 2h 5m"},
		{49 * time.Hour, "2d 1h 0m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
