package backend

import (
	"context"

	"github.com/forgecli/forge-api/pkg/db"
	"github.com/forgecli/forge-api/pkg/model"
)

// Backend is the operation surface the api server exposes over HTTP.
// Expected failures come back as *model.APIError so the handler layer can
// map status codes without inspecting error text.
type Backend interface {
	SignUp(ctx context.Context, req model.SignupRequest) (model.SignupResponse, error)
	LogIn(ctx context.Context, req model.LoginRequest) (model.UserInfo, error)
	VerifyAPIKey(ctx context.Context, apiKey string) (model.UserInfo, error)
	Profile(ctx context.Context, userID string) (model.ProfileResponse, error)
	RegenerateAPIKey(ctx context.Context, userID string) (model.UserInfo, error)

	CreateSubdomain(ctx context.Context, req model.SubdomainRequest) (model.SubdomainResponse, error)
	ListSubdomains(ctx context.Context, userID, deploymentID string) ([]model.SubdomainInfo, error)
	RetargetSubdomain(ctx context.Context, req model.RetargetRequest) (model.RetargetResponse, error)

	CreateDeployment(ctx context.Context, req model.CreateDeploymentRequest) (model.CreateDeploymentResponse, error)
	ListDeployments(ctx context.Context, filter db.ListDeploymentsFilter) (model.DeploymentListResponse, error)
	GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentDetail, error)

	Health(ctx context.Context) model.HealthCheckResponse
}
