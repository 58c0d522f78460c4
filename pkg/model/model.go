package model

import (
	"net/http"
	"time"
)

const (
	SubdomainStatusPending = "pending"
	SubdomainStatusActive  = "active"
	SubdomainStatusFailed  = "failed"
	SubdomainStatusExpired = "expired"

	DeploymentStatusPending  = "pending"
	DeploymentStatusBuilding = "building"
	DeploymentStatusDeployed = "deployed"
	DeploymentStatusFailed   = "failed"
	DeploymentStatusStopped  = "stopped"
	DeploymentStatusUnknown  = "unknown"

	HealthStatusHealthy     = "healthy"
	HealthStatusUnhealthy   = "unhealthy"
	HealthStatusUnknown     = "unknown"
	HealthStatusUnreachable = "unreachable"
)

// Error codes surfaced in the response envelope.
const (
	CodeInvalidJSON       = "INVALID_JSON"
	CodeMissingFields     = "MISSING_FIELDS"
	CodeMissingParams     = "MISSING_PARAMS"
	CodeInvalidEmail      = "INVALID_EMAIL"
	CodeWeakPassword      = "WEAK_PASSWORD"
	CodeInvalidUsername   = "INVALID_USERNAME"
	CodeInvalidIP         = "INVALID_IP"
	CodeEmailExists       = "EMAIL_EXISTS"
	CodeInvalidCreds      = "INVALID_CREDENTIALS"
	CodeMissingAPIKey     = "MISSING_API_KEY"
	CodeInvalidKeyFormat  = "INVALID_API_KEY_FORMAT"
	CodeInvalidAPIKey     = "INVALID_API_KEY"
	CodeAccountDisabled   = "ACCOUNT_DEACTIVATED"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeNotFound          = "NOT_FOUND"
	CodeSubdomainNotFound = "SUBDOMAIN_NOT_FOUND"
	CodeDNSUpdateFailed   = "DNS_UPDATE_FAILED"
	CodeDNSProviderError  = "DNS_PROVIDER_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeHealthCheckFailed = "HEALTH_CHECK_FAILED"
)

// APIError is the error branch of the response envelope. Backend operations
// return it for expected failures so handlers can map status codes without
// string matching; anything else becomes a 500 INTERNAL_ERROR at the boundary.
type APIError struct {
	HTTPStatus int         `json:"-"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(httpStatus int, code, message string) *APIError {
	return &APIError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
	}
}

func InternalError(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, CodeInternalError, message)
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
	Version   string    `json:"version"`
}

// Response is the envelope every API path returns, success or failure.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserInfo struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	APIKey    string    `json:"apiKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type SignupResponse struct {
	User    UserInfo `json:"user"`
	Message string   `json:"message"`
}

type UserStats struct {
	TotalDeployments  int64 `json:"totalDeployments"`
	TotalSubdomains   int64 `json:"totalSubdomains"`
	ActiveDeployments int64 `json:"activeDeployments"`
}

type ProfileResponse struct {
	User  UserInfo  `json:"user"`
	Stats UserStats `json:"stats"`
}

type SubdomainRequest struct {
	DeploymentID string `json:"deploymentId"`
	UserID       string `json:"userId"`
	PublicIP     string `json:"publicIP,omitempty"`
}

type SubdomainResponse struct {
	Subdomain   string `json:"subdomain"`
	URL         string `json:"url"`
	DNSRecordID string `json:"dnsRecordId"`
	Status      string `json:"status"`
}

type SubdomainInfo struct {
	Subdomain    string     `json:"subdomain"`
	UserID       string     `json:"userId"`
	DeploymentID string     `json:"deploymentId"`
	DNSRecordID  string     `json:"dnsRecordId"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

type RetargetRequest struct {
	DeploymentID string `json:"deploymentId,omitempty"`
	Subdomain    string `json:"subdomain,omitempty"`
	PublicIP     string `json:"publicIP"`
}

type RetargetResponse struct {
	Message string `json:"message"`
}

type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
}

type CreateDeploymentRequest struct {
	ProjectName          string            `json:"projectName"`
	Framework            string            `json:"framework"`
	UserID               string            `json:"userId,omitempty"`
	GitRepository        string            `json:"gitRepository,omitempty"`
	GitBranch            string            `json:"gitBranch,omitempty"`
	BuildCommand         string            `json:"buildCommand,omitempty"`
	OutputDirectory      string            `json:"outputDirectory,omitempty"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
	PublicIP             string            `json:"publicIP,omitempty"`
	Port                 int               `json:"port,omitempty"`
	CustomSubdomain      string            `json:"customSubdomain,omitempty"`
}

type DeploymentInfo struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"userId"`
	Subdomain            string            `json:"subdomain"`
	ProjectName          string            `json:"projectName"`
	Status               string            `json:"status"`
	URL                  string            `json:"url"`
	GitRepository        string            `json:"gitRepository,omitempty"`
	GitBranch            string            `json:"gitBranch,omitempty"`
	GitCommit            string            `json:"gitCommit,omitempty"`
	Framework            string            `json:"framework"`
	BuildCommand         string            `json:"buildCommand,omitempty"`
	OutputDirectory      string            `json:"outputDirectory,omitempty"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
	DeploymentLogs       []LogEntry        `json:"deploymentLogs,omitempty"`
	ServerIP             string            `json:"serverIP,omitempty"`
	Port                 int               `json:"port,omitempty"`
	HealthStatus         string            `json:"healthStatus"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
	DeployedAt           *time.Time        `json:"deployedAt,omitempty"`
	LastHealthCheck      *time.Time        `json:"lastHealthCheck,omitempty"`
}

type CreateDeploymentResponse struct {
	Deployment DeploymentInfo `json:"deployment"`
	Subdomain  string         `json:"subdomain"`
	URL        string         `json:"url"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type DeploymentListResponse struct {
	Deployments []DeploymentInfo `json:"deployments"`
	Pagination  Pagination       `json:"pagination"`
}

type HealthState struct {
	Status       string    `json:"status"`
	ResponseTime int64     `json:"responseTime"`
	LastCheck    time.Time `json:"lastCheck"`
}

type Resources struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Disk      float64 `json:"disk"`
	DiskUsed  float64 `json:"diskUsed"`
	DiskLimit float64 `json:"diskLimit"`
}

type SSLInfo struct {
	Enabled         bool   `json:"enabled"`
	ExpiresAt       string `json:"expiresAt,omitempty"`
	Issuer          string `json:"issuer,omitempty"`
	DaysUntilExpiry int    `json:"daysUntilExpiry,omitempty"`
}

// DeploymentDetail is the stored deployment merged with a live-status probe.
type DeploymentDetail struct {
	ID          string      `json:"id"`
	ProjectName string      `json:"projectName"`
	Subdomain   string      `json:"subdomain"`
	Framework   string      `json:"framework"`
	Status      string      `json:"status"`
	URL         string      `json:"url"`
	Uptime      string      `json:"uptime"`
	LastUpdated time.Time   `json:"lastUpdated"`
	ServerIP    string      `json:"serverIP"`
	ServerPort  int         `json:"serverPort"`
	CreatedAt   time.Time   `json:"createdAt"`
	Health      HealthState `json:"health"`
	Resources   Resources   `json:"resources"`
	SSL         SSLInfo     `json:"ssl"`
	Logs        []string    `json:"logs"`
}

type ServiceHealth struct {
	Status       string    `json:"status"`
	ResponseTime int64     `json:"responseTime"`
	LastCheck    time.Time `json:"lastCheck"`
	Message      string    `json:"message,omitempty"`
}

const (
	OverallHealthy   = "healthy"
	OverallDegraded  = "degraded"
	OverallUnhealthy = "unhealthy"
)

type HealthCheckResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
	Uptime    int64                    `json:"uptime"`
	Version   string                   `json:"version"`
}
