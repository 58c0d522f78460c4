package backend

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/forgecli/forge-api/pkg/auth"
	"github.com/forgecli/forge-api/pkg/db"
	"github.com/forgecli/forge-api/pkg/dns"
	"github.com/forgecli/forge-api/pkg/model"
	"github.com/forgecli/forge-api/pkg/provision"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultDeploymentPort = 8080

type backend struct {
	db        db.Database
	provider  dns.Provider
	provision *provision.Service
	prober    *prober
	log       *logrus.Entry
	startTime time.Time
}

func New(database db.Database, provider dns.Provider, svc *provision.Service, log *logrus.Entry) Backend {
	return &backend{
		db:        database,
		provider:  provider,
		provision: svc,
		prober:    newProber(log),
		log:       log,
		startTime: time.Now(),
	}
}

func validIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && !strings.Contains(s, ":")
}

func (b *backend) SignUp(ctx context.Context, req model.SignupRequest) (model.SignupResponse, error) {
	if req.Email == "" || req.Password == "" {
		return model.SignupResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeMissingFields,
			"Email and password are required")
	}
	if !auth.IsValidEmail(req.Email) {
		return model.SignupResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeInvalidEmail,
			"Invalid email format")
	}
	if errs := auth.ValidatePassword(req.Password); len(errs) > 0 {
		apiErr := model.NewAPIError(http.StatusBadRequest, model.CodeWeakPassword,
			"Password does not meet security requirements")
		apiErr.Details = map[string]interface{}{"errors": errs}
		return model.SignupResponse{}, apiErr
	}
	if req.Username != "" {
		if errs := auth.ValidateUsername(req.Username); len(errs) > 0 {
			apiErr := model.NewAPIError(http.StatusBadRequest, model.CodeInvalidUsername,
				"Username does not meet requirements")
			apiErr.Details = map[string]interface{}{"errors": errs}
			return model.SignupResponse{}, apiErr
		}
	}

	email := strings.ToLower(req.Email)

	existing, err := b.db.GetUserByEmail(email)
	if err != nil {
		return model.SignupResponse{}, err
	}
	if existing.ID != 0 {
		return model.SignupResponse{}, model.NewAPIError(http.StatusConflict, model.CodeEmailExists,
			"An account with this email already exists")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return model.SignupResponse{}, err
	}

	user := db.User{
		UserID:       auth.GenerateUserID(),
		Email:        email,
		Username:     req.Username,
		PasswordHash: hash,
		APIKey:       auth.GenerateAPIKey(),
		IsActive:     true,
		LastActiveAt: time.Now(),
	}
	if err := b.db.CreateUser(&user); err != nil {
		return model.SignupResponse{}, err
	}

	b.log.WithField("user", user.UserID).Info("user created")

	return model.SignupResponse{
		User:    userInfo(user, true),
		Message: "Account created successfully",
	}, nil
}

func (b *backend) LogIn(ctx context.Context, req model.LoginRequest) (model.UserInfo, error) {
	if req.Email == "" || req.Password == "" {
		return model.UserInfo{}, model.NewAPIError(http.StatusBadRequest, model.CodeMissingFields,
			"Email and password are required")
	}

	user, err := b.db.GetUserByEmail(strings.ToLower(req.Email))
	if err != nil {
		return model.UserInfo{}, err
	}
	if user.ID == 0 || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		return model.UserInfo{}, model.NewAPIError(http.StatusUnauthorized, model.CodeInvalidCreds,
			"Invalid email or password")
	}
	if !user.IsActive {
		return model.UserInfo{}, model.NewAPIError(http.StatusForbidden, model.CodeAccountDisabled,
			"User account is deactivated")
	}

	if err := b.db.TouchUser(user.UserID); err != nil {
		b.log.WithError(err).Warn("failed to update last active timestamp")
	}

	return userInfo(user, true), nil
}

func (b *backend) VerifyAPIKey(ctx context.Context, apiKey string) (model.UserInfo, error) {
	if apiKey == "" {
		return model.UserInfo{}, model.NewAPIError(http.StatusUnauthorized, model.CodeMissingAPIKey,
			`API key is required. Provide it in the Authorization header as "Bearer <api_key>" or "ApiKey <api_key>"`)
	}
	if !auth.IsValidAPIKeyFormat(apiKey) {
		return model.UserInfo{}, model.NewAPIError(http.StatusUnauthorized, model.CodeInvalidKeyFormat,
			"Invalid API key format")
	}

	user, err := b.db.GetUserByAPIKey(apiKey)
	if err != nil {
		return model.UserInfo{}, err
	}
	if user.ID == 0 {
		return model.UserInfo{}, model.NewAPIError(http.StatusUnauthorized, model.CodeInvalidAPIKey,
			"Invalid or expired API key")
	}

	if err := b.db.TouchUser(user.UserID); err != nil {
		b.log.WithError(err).Warn("failed to update last active timestamp")
	}

	return userInfo(user, false), nil
}

func (b *backend) Profile(ctx context.Context, userID string) (model.ProfileResponse, error) {
	user, err := b.db.GetUserByUserID(userID)
	if err != nil {
		return model.ProfileResponse{}, err
	}
	if user.ID == 0 {
		return model.ProfileResponse{}, model.NewAPIError(http.StatusNotFound, model.CodeNotFound, "User not found")
	}

	counts, err := b.db.CountUserResources(userID)
	if err != nil {
		return model.ProfileResponse{}, err
	}

	return model.ProfileResponse{
		User: userInfo(user, false),
		Stats: model.UserStats{
			TotalDeployments:  counts.Deployments,
			TotalSubdomains:   counts.Subdomains,
			ActiveDeployments: counts.ActiveDeployments,
		},
	}, nil
}

func (b *backend) RegenerateAPIKey(ctx context.Context, userID string) (model.UserInfo, error) {
	user, err := b.db.GetUserByUserID(userID)
	if err != nil {
		return model.UserInfo{}, err
	}
	if user.ID == 0 {
		return model.UserInfo{}, model.NewAPIError(http.StatusNotFound, model.CodeNotFound, "User not found")
	}

	newKey := auth.GenerateAPIKey()
	if err := b.db.UpdateUserAPIKey(userID, newKey); err != nil {
		return model.UserInfo{}, err
	}

	b.log.WithField("user", userID).Info("api key regenerated")

	user.APIKey = newKey
	return userInfo(user, true), nil
}

func userInfo(user db.User, includeKey bool) model.UserInfo {
	info := model.UserInfo{
		ID:        user.UserID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}
	if includeKey {
		info.APIKey = user.APIKey
	}
	return info
}

func (b *backend) CreateSubdomain(ctx context.Context, req model.SubdomainRequest) (model.SubdomainResponse, error) {
	if req.DeploymentID == "" || req.UserID == "" {
		return model.SubdomainResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeMissingFields,
			"Missing required fields: deploymentId and userId")
	}
	if req.PublicIP != "" && !validIPv4(req.PublicIP) {
		return model.SubdomainResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeInvalidIP,
			"Invalid public IP address format")
	}

	result, err := b.provision.Provision(ctx, "", req.PublicIP)
	if err != nil {
		return model.SubdomainResponse{}, mapProvisionError(err)
	}

	err = b.provision.WithCompensation(ctx, result, func() error {
		return b.db.CreateSubdomain(&db.Subdomain{
			Subdomain:    result.Subdomain,
			UserID:       req.UserID,
			DeploymentID: req.DeploymentID,
			DNSRecordID:  result.DNSRecordID,
			Status:       result.Status,
		})
	})
	if err != nil {
		b.log.WithError(err).Error("failed to save subdomain")
		return model.SubdomainResponse{}, model.InternalError("Failed to save subdomain to database")
	}

	return model.SubdomainResponse{
		Subdomain:   result.Subdomain,
		URL:         result.URL,
		DNSRecordID: result.DNSRecordID,
		Status:      result.Status,
	}, nil
}

// mapProvisionError turns provisioning failures into envelope errors while
// keeping the provider's own detail text visible to the caller.
func mapProvisionError(err error) error {
	if apiErr, ok := err.(*model.APIError); ok {
		return apiErr
	}

	switch e := err.(type) {
	case *provision.ExhaustedError:
		return model.NewAPIError(http.StatusInternalServerError, model.CodeInternalError, e.Error())
	case *dns.ProviderError:
		status := http.StatusBadGateway
		if e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden {
			status = e.HTTPStatus
		}
		return model.NewAPIError(status, model.CodeDNSProviderError, e.Error())
	}
	return err
}

func (b *backend) ListSubdomains(ctx context.Context, userID, deploymentID string) ([]model.SubdomainInfo, error) {
	if userID == "" && deploymentID == "" {
		return nil, model.NewAPIError(http.StatusBadRequest, model.CodeMissingParams,
			"Either userId or deploymentId parameter is required")
	}

	subs, err := b.db.ListSubdomains(userID, deploymentID)
	if err != nil {
		return nil, err
	}

	infos := make([]model.SubdomainInfo, 0, len(subs))
	for _, s := range subs {
		infos = append(infos, model.SubdomainInfo{
			Subdomain:    s.Subdomain,
			UserID:       s.UserID,
			DeploymentID: s.DeploymentID,
			DNSRecordID:  s.DNSRecordID,
			Status:       s.Status,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			ExpiresAt:    s.ExpiresAt,
		})
	}
	return infos, nil
}

func (b *backend) RetargetSubdomain(ctx context.Context, req model.RetargetRequest) (model.RetargetResponse, error) {
	if req.DeploymentID == "" && req.Subdomain == "" {
		return model.RetargetResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeMissingFields,
			"Either deploymentId or subdomain is required")
	}
	if !validIPv4(req.PublicIP) {
		return model.RetargetResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeInvalidIP,
			"Valid public IP address is required")
	}

	sub, err := b.db.FindSubdomain(req.DeploymentID, req.Subdomain)
	if err != nil {
		return model.RetargetResponse{}, err
	}
	if sub.ID == 0 {
		return model.RetargetResponse{}, model.NewAPIError(http.StatusNotFound, model.CodeSubdomainNotFound,
			"Subdomain record not found")
	}

	if _, err := b.provision.Retarget(ctx, sub.DNSRecordID, req.PublicIP); err != nil {
		// Local record stays untouched when the remote update fails.
		return model.RetargetResponse{}, model.NewAPIError(http.StatusInternalServerError, model.CodeDNSUpdateFailed,
			"Failed to update DNS record: "+err.Error())
	}

	if err := b.db.MarkSubdomainRetargeted(sub.ID); err != nil {
		b.log.WithError(err).Warn("dns updated but local subdomain status write failed")
	}

	return model.RetargetResponse{
		Message: "DNS record updated for " + b.provision.FQDN(sub.Subdomain) + " -> " + req.PublicIP,
	}, nil
}

func (b *backend) CreateDeployment(ctx context.Context, req model.CreateDeploymentRequest) (model.CreateDeploymentResponse, error) {
	if req.ProjectName == "" || req.Framework == "" {
		return model.CreateDeploymentResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeMissingFields,
			"Missing required fields: projectName and framework")
	}
	if req.PublicIP != "" && !validIPv4(req.PublicIP) {
		return model.CreateDeploymentResponse{}, model.NewAPIError(http.StatusBadRequest, model.CodeInvalidIP,
			"Invalid public IP address format")
	}

	deploymentID := uuid.NewString()

	userID := req.UserID
	if userID == "" {
		userID = "user_" + strings.Split(uuid.NewString(), "-")[0]
	}

	gitBranch := req.GitBranch
	if gitBranch == "" {
		gitBranch = "main"
	}
	port := req.Port
	if port == 0 {
		port = defaultDeploymentPort
	}

	result, err := b.provision.Provision(ctx, req.CustomSubdomain, req.PublicIP)
	if err != nil {
		return model.CreateDeploymentResponse{}, mapProvisionError(err)
	}

	now := time.Now()
	logMessage := "Deployment created with subdomain " + result.Subdomain
	if req.PublicIP != "" {
		logMessage += " pointing to " + req.PublicIP
	}

	dep := db.Deployment{
		DeploymentID:    deploymentID,
		UserID:          userID,
		Subdomain:       result.Subdomain,
		ProjectName:     req.ProjectName,
		Status:          model.DeploymentStatusPending,
		URL:             result.URL,
		GitRepository:   req.GitRepository,
		GitBranch:       gitBranch,
		Framework:       req.Framework,
		BuildCommand:    req.BuildCommand,
		OutputDirectory: req.OutputDirectory,
		ServerIP:        req.PublicIP,
		Port:            port,
		HealthStatus:    model.HealthStatusUnknown,
	}
	dep.SetEnvironment(req.EnvironmentVariables)
	dep.SetLogEntries([]model.LogEntry{{
		ID:        uuid.NewString(),
		Timestamp: now,
		Level:     "info",
		Message:   logMessage,
		Source:    "system",
	}})

	err = b.provision.WithCompensation(ctx, result, func() error {
		if err := b.db.CreateDeployment(&dep); err != nil {
			return err
		}
		return b.db.CreateSubdomain(&db.Subdomain{
			Subdomain:    result.Subdomain,
			UserID:       userID,
			DeploymentID: deploymentID,
			DNSRecordID:  result.DNSRecordID,
			Status:       result.Status,
		})
	})
	if err != nil {
		b.log.WithError(err).Error("failed to save deployment")
		return model.CreateDeploymentResponse{}, model.InternalError("Failed to save deployment to database")
	}

	return model.CreateDeploymentResponse{
		Deployment: deploymentInfo(dep),
		Subdomain:  result.Subdomain,
		URL:        result.URL,
	}, nil
}

func (b *backend) ListDeployments(ctx context.Context, filter db.ListDeploymentsFilter) (model.DeploymentListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}

	deps, total, err := b.db.ListDeployments(filter)
	if err != nil {
		return model.DeploymentListResponse{}, err
	}

	infos := make([]model.DeploymentInfo, 0, len(deps))
	for _, d := range deps {
		infos = append(infos, deploymentInfo(d))
	}

	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))

	return model.DeploymentListResponse{
		Deployments: infos,
		Pagination: model.Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    filter.Page < totalPages,
			HasPrev:    filter.Page > 1,
		},
	}, nil
}

func deploymentInfo(d db.Deployment) model.DeploymentInfo {
	return model.DeploymentInfo{
		ID:                   d.DeploymentID,
		UserID:               d.UserID,
		Subdomain:            d.Subdomain,
		ProjectName:          d.ProjectName,
		Status:               d.Status,
		URL:                  d.URL,
		GitRepository:        d.GitRepository,
		GitBranch:            d.GitBranch,
		GitCommit:            d.GitCommit,
		Framework:            d.Framework,
		BuildCommand:         d.BuildCommand,
		OutputDirectory:      d.OutputDirectory,
		EnvironmentVariables: d.Environment(),
		DeploymentLogs:       d.LogEntries(),
		ServerIP:             d.ServerIP,
		Port:                 d.Port,
		HealthStatus:         d.HealthStatus,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		DeployedAt:           d.DeployedAt,
		LastHealthCheck:      d.LastHealthCheck,
	}
}
