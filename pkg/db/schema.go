package db

import (
	"encoding/json"
	"time"

	"github.com/forgecli/forge-api/pkg/model"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	UserID        string `gorm:"uniqueIndex"`
	Email         string `gorm:"uniqueIndex"`
	Username      string
	PasswordHash  string
	APIKey        string `gorm:"uniqueIndex"`
	IsActive      bool
	EmailVerified bool
	LastActiveAt  time.Time
}

// Subdomain links a provisioned DNS name to its owner. It is created only
// after the DNS record exists, so DNSRecordID never references a record that
// was never created (it can reference one that has since been lost remotely;
// the platform is the only writer in practice but does not own the zone).
type Subdomain struct {
	gorm.Model
	Subdomain    string `gorm:"uniqueIndex"`
	UserID       string `gorm:"index"`
	DeploymentID string `gorm:"index"`
	DNSRecordID  string
	Status       string
	ExpiresAt    *time.Time
}

type Deployment struct {
	gorm.Model
	DeploymentID    string `gorm:"uniqueIndex"`
	UserID          string `gorm:"index"`
	Subdomain       string
	ProjectName     string
	Status          string
	URL             string
	GitRepository   string
	GitBranch       string
	GitCommit       string
	Framework       string
	BuildCommand    string
	OutputDirectory string
	EnvVars         string `gorm:"type:text"` // JSON; intentionally denormalized
	Logs            string `gorm:"type:text"` // JSON
	ServerIP        string
	Port            int
	HealthStatus    string
	DeployedAt      *time.Time
	LastHealthCheck *time.Time
}

func (d *Deployment) SetEnvironment(env map[string]string) {
	if len(env) == 0 {
		d.EnvVars = ""
		return
	}
	raw, _ := json.Marshal(env)
	d.EnvVars = string(raw)
}

func (d *Deployment) Environment() map[string]string {
	if d.EnvVars == "" {
		return nil
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(d.EnvVars), &env); err != nil {
		return nil
	}
	return env
}

func (d *Deployment) SetLogEntries(entries []model.LogEntry) {
	if len(entries) == 0 {
		d.Logs = ""
		return
	}
	raw, _ := json.Marshal(entries)
	d.Logs = string(raw)
}

func (d *Deployment) LogEntries() []model.LogEntry {
	if d.Logs == "" {
		return nil
	}
	var entries []model.LogEntry
	if err := json.Unmarshal([]byte(d.Logs), &entries); err != nil {
		return nil
	}
	return entries
}
