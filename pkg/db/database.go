package db

import "context"

type ListDeploymentsFilter struct {
	UserID    string
	Status    string
	Framework string
	Page      int
	Limit     int
}

type UserResourceCounts struct {
	Deployments       int64
	ActiveDeployments int64
	Subdomains        int64
}

// Database is the platform's document store. Lookups follow "empty result,
// no error" semantics for not-found (check the record's ID field); updates
// report an error when no row was touched.
type Database interface {
	CreateUser(user *User) error
	GetUserByEmail(email string) (User, error)
	GetUserByAPIKey(apiKey string) (User, error)
	GetUserByUserID(userID string) (User, error)
	UpdateUserAPIKey(userID, apiKey string) error
	TouchUser(userID string) error
	CountUserResources(userID string) (UserResourceCounts, error)

	CreateSubdomain(sub *Subdomain) error
	ListSubdomains(userID, deploymentID string) ([]Subdomain, error)
	FindSubdomain(deploymentID, name string) (Subdomain, error)
	MarkSubdomainRetargeted(id uint) error

	CreateDeployment(dep *Deployment) error
	GetDeployment(deploymentID string) (Deployment, error)
	ListDeployments(filter ListDeploymentsFilter) ([]Deployment, int64, error)
	UpdateDeploymentStatus(deploymentID, status, healthStatus string) error

	HealthCheck(ctx context.Context) bool
}
