package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forgecli/forge-api/pkg/model"
	"github.com/sirupsen/logrus"
)

// probeTimeout bounds the live-status call so one unreachable deployment
// host cannot stall the control-plane read path.
const probeTimeout = 10 * time.Second

const diskLimitGB = 15

// liveStats is what the remote deployment host reports, or the fallback
// when it cannot be reached.
type liveStats struct {
	Status          string
	CPU             float64
	Memory          float64
	DiskUsedBytes   float64
	DiskUsedPercent float64
	Health          model.HealthState
	SSL             *model.SSLInfo
	Uptime          string
	Logs            []string
}

type remotePayload struct {
	Success    bool `json:"success"`
	Deployment struct {
		Status    string `json:"status"`
		Resources struct {
			CPU      float64 `json:"cpu"`
			Memory   float64 `json:"memory"`
			DiskUsed float64 `json:"diskUsed"`
			Disk     float64 `json:"disk"`
		} `json:"resources"`
		Health *model.HealthState `json:"health"`
		SSL    *model.SSLInfo     `json:"ssl"`
		Uptime string             `json:"uptime"`
		Logs   []string           `json:"logs"`
	} `json:"deployment"`
}

type prober struct {
	client *http.Client
	log    *logrus.Entry
}

func newProber(log *logrus.Entry) *prober {
	return &prober{
		client: &http.Client{Timeout: probeTimeout},
		log:    log,
	}
}

// fetch queries the deployment host for real-time stats. It never returns an
// error: any failure (timeout, refused connection, malformed payload)
// degrades to a fallback payload so the read path stays available.
func (p *prober) fetch(ctx context.Context, serverIP string, port int, deploymentID string) liveStats {
	stats, err := p.tryFetch(ctx, serverIP, port, deploymentID)
	if err == nil {
		return stats
	}

	p.log.WithError(err).WithFields(logrus.Fields{
		"server":     fmt.Sprintf("%s:%d", serverIP, port),
		"deployment": deploymentID,
	}).Warn("failed to contact deployment server")

	now := time.Now().UTC().Format(time.RFC3339)
	return liveStats{
		Status: model.DeploymentStatusUnknown,
		Health: model.HealthState{
			Status:    model.HealthStatusUnreachable,
			LastCheck: time.Now(),
		},
		Logs: []string{
			fmt.Sprintf("[%s] Failed to contact deployment server - server may be offline", now),
			fmt.Sprintf("[%s] Attempted connection to %s:%d", now, serverIP, port),
			fmt.Sprintf("[%s] This deployment may need manual restart", now),
		},
	}
}

func (p *prober) tryFetch(ctx context.Context, serverIP string, port int, deploymentID string) (liveStats, error) {
	url := fmt.Sprintf("http://%s:%d/api/deployments/%s", serverIP, port, deploymentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return liveStats{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return liveStats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return liveStats{}, fmt.Errorf("server responded with status: %d", resp.StatusCode)
	}

	var payload remotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return liveStats{}, fmt.Errorf("decoding status payload: %w", err)
	}
	if !payload.Success {
		return liveStats{}, fmt.Errorf("invalid response format from deployment server")
	}

	d := payload.Deployment
	stats := liveStats{
		Status:          d.Status,
		CPU:             d.Resources.CPU,
		Memory:          d.Resources.Memory,
		DiskUsedBytes:   d.Resources.DiskUsed,
		DiskUsedPercent: d.Resources.Disk,
		SSL:             d.SSL,
		Uptime:          d.Uptime,
		Logs:            d.Logs,
	}
	if d.Health != nil {
		stats.Health = *d.Health
	} else {
		stats.Health = model.HealthState{Status: model.HealthStatusUnknown, LastCheck: time.Now()}
	}
	return stats, nil
}

// GetDeployment merges the stored record with a live-status probe and lazily
// writes the merged status back.
func (b *backend) GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentDetail, error) {
	dep, err := b.db.GetDeployment(deploymentID)
	if err != nil {
		return model.DeploymentDetail{}, err
	}
	if dep.ID == 0 {
		return model.DeploymentDetail{}, model.NewAPIError(http.StatusNotFound, model.CodeNotFound,
			"Deployment not found")
	}

	stats := b.prober.fetch(ctx, dep.ServerIP, dep.Port, deploymentID)

	status := stats.Status
	if status == "" {
		status = dep.Status
	}
	if stats.Health.Status == model.HealthStatusUnreachable || status == "" {
		status = model.DeploymentStatusUnknown
	}

	uptime := stats.Uptime
	if uptime == "" {
		uptime = formatUptime(time.Since(dep.CreatedAt))
	}

	ssl := stats.SSL
	if ssl == nil {
		ssl = &model.SSLInfo{Enabled: strings.HasPrefix(dep.URL, "https://")}
	}

	logs := stats.Logs
	if len(logs) == 0 {
		logs = []string{
			fmt.Sprintf("[%s] Deployment created", dep.CreatedAt.UTC().Format(time.RFC3339)),
			fmt.Sprintf("[%s] Initial deployment completed", dep.CreatedAt.UTC().Format(time.RFC3339)),
		}
	}

	detail := model.DeploymentDetail{
		ID:          dep.DeploymentID,
		ProjectName: dep.ProjectName,
		Subdomain:   dep.Subdomain,
		Framework:   dep.Framework,
		Status:      status,
		URL:         dep.URL,
		Uptime:      uptime,
		LastUpdated: time.Now(),
		ServerIP:    dep.ServerIP,
		ServerPort:  dep.Port,
		CreatedAt:   dep.CreatedAt,
		Health: model.HealthState{
			Status:       stats.Health.Status,
			ResponseTime: stats.Health.ResponseTime,
			LastCheck:    time.Now(),
		},
		Resources: model.Resources{
			CPU:       stats.CPU,
			Memory:    stats.Memory,
			Disk:      stats.DiskUsedPercent,
			DiskUsed:  stats.DiskUsedBytes / (1024 * 1024 * 1024),
			DiskLimit: diskLimitGB,
		},
		SSL:  *ssl,
		Logs: logs,
	}

	// Lazy reconciliation: the read refreshes the stored status/health.
	if err := b.db.UpdateDeploymentStatus(deploymentID, detail.Status, detail.Health.Status); err != nil {
		b.log.WithError(err).Warn("failed to write merged status back")
	}

	return detail, nil
}

// formatUptime renders a calendar delta the way the dashboard expects:
// "2d 3h 4m", dropping leading zero units.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
