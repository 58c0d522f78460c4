package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgecli/forge-api/pkg/db"
	"github.com/forgecli/forge-api/pkg/model"
	"github.com/forgecli/forge-api/pkg/ratelimit"
	"github.com/sirupsen/logrus"
)

// stubBackend returns canned answers so handler behavior can be tested
// without a database or DNS provider.
type stubBackend struct {
	healthStatus string
	validKey     string
}

func (s *stubBackend) SignUp(ctx context.Context, req model.SignupRequest) (model.SignupResponse, error) {
	if req.Email == "" {
		return model.SignupResponse{}, model.NewAPIError(400, model.CodeMissingFields, "Email and password are required")
	}
	return model.SignupResponse{
		User:    model.UserInfo{ID: "user_1", Email: req.Email, APIKey: "fapi_abc_def"},
		Message: "Account created successfully",
	}, nil
}

func (s *stubBackend) LogIn(ctx context.Context, req model.LoginRequest) (model.UserInfo, error) {
	if req.Password != "good" {
		return model.UserInfo{}, model.NewAPIError(401, model.CodeInvalidCreds, "Invalid email or password")
	}
	return model.UserInfo{ID: "user_1", Email: req.Email}, nil
}

func (s *stubBackend) VerifyAPIKey(ctx context.Context, apiKey string) (model.UserInfo, error) {
	if apiKey == "" {
		return model.UserInfo{}, model.NewAPIError(401, model.CodeMissingAPIKey, "API key is required")
	}
	if apiKey != s.validKey {
		return model.UserInfo{}, model.NewAPIError(401, model.CodeInvalidAPIKey, "Invalid or expired API key")
	}
	return model.UserInfo{ID: "user_1", Email: "dev@example.com"}, nil
}

func (s *stubBackend) Profile(ctx context.Context, userID string) (model.ProfileResponse, error) {
	return model.ProfileResponse{
		User:  model.UserInfo{ID: userID},
		Stats: model.UserStats{TotalDeployments: 2},
	}, nil
}

func (s *stubBackend) RegenerateAPIKey(ctx context.Context, userID string) (model.UserInfo, error) {
	return model.UserInfo{ID: userID, APIKey: "fapi_new_key"}, nil
}

func (s *stubBackend) CreateSubdomain(ctx context.Context, req model.SubdomainRequest) (model.SubdomainResponse, error) {
	return model.SubdomainResponse{Subdomain: "abc123", URL: "https://abc123.example.test", Status: "active"}, nil
}

func (s *stubBackend) ListSubdomains(ctx context.Context, userID, deploymentID string) ([]model.SubdomainInfo, error) {
	if userID == "" && deploymentID == "" {
		return nil, model.NewAPIError(400, model.CodeMissingParams, "Either userId or deploymentId parameter is required")
	}
	return []model.SubdomainInfo{{Subdomain: "abc123", UserID: userID}}, nil
}

func (s *stubBackend) RetargetSubdomain(ctx context.Context, req model.RetargetRequest) (model.RetargetResponse, error) {
	return model.RetargetResponse{Message: "DNS record updated"}, nil
}

func (s *stubBackend) CreateDeployment(ctx context.Context, req model.CreateDeploymentRequest) (model.CreateDeploymentResponse, error) {
	return model.CreateDeploymentResponse{Subdomain: "abc123", URL: "https://abc123.example.test"}, nil
}

func (s *stubBackend) ListDeployments(ctx context.Context, filter db.ListDeploymentsFilter) (model.DeploymentListResponse, error) {
	return model.DeploymentListResponse{
		Deployments: []model.DeploymentInfo{},
		Pagination:  model.Pagination{Page: filter.Page, Limit: filter.Limit},
	}, nil
}

func (s *stubBackend) GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentDetail, error) {
	if deploymentID == "missing" {
		return model.DeploymentDetail{}, model.NewAPIError(404, model.CodeNotFound, "Deployment not found")
	}
	return model.DeploymentDetail{
		ID:     deploymentID,
		Status: model.DeploymentStatusUnknown,
		Health: model.HealthState{Status: model.HealthStatusUnreachable},
	}, nil
}

func (s *stubBackend) Health(ctx context.Context) model.HealthCheckResponse {
	return model.HealthCheckResponse{
		Status:    s.healthStatus,
		Timestamp: time.Now(),
		Services:  map[string]model.ServiceHealth{},
	}
}

func newTestServer(t *testing.T, b *stubBackend) *httptest.Server {
	t.Helper()
	limiter := ratelimit.NewMemory()
	t.Cleanup(limiter.Close)

	srv := httptest.NewServer(Router(b, limiter, logrus.WithField("test", t.Name())))
	t.Cleanup(srv.Close)
	return srv
}

func decodeEnvelope(t *testing.T, resp *http.Response) model.Response {
	t.Helper()
	defer resp.Body.Close()

	var envelope model.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return envelope
}

func TestEnvelopeShape(t *testing.T) {
	srv := newTestServer(t, &stubBackend{healthStatus: model.OverallHealthy})

	resp, err := http.Get(srv.URL + "/api/subdomains?userId=user_1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	envelope := decodeEnvelope(t, resp)

	if !envelope.Success || envelope.Error != nil {
		t.Errorf("expected success envelope, got %+v", envelope)
	}
	if envelope.Meta == nil || envelope.Meta.RequestID == "" || envelope.Meta.Timestamp.IsZero() {
		t.Errorf("meta block incomplete: %+v", envelope.Meta)
	}

	// Error responses carry the same meta block and a coded error.
	resp, err = http.Get(srv.URL + "/api/subdomains")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	envelope = decodeEnvelope(t, resp)
	if envelope.Success || envelope.Error == nil || envelope.Error.Code != model.CodeMissingParams {
		t.Errorf("expected MISSING_PARAMS error envelope, got %+v", envelope)
	}
	if envelope.Meta == nil || envelope.Meta.RequestID == "" {
		t.Errorf("error envelope missing meta: %+v", envelope.Meta)
	}
}

func TestSignupRateLimit(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	body := `{"email": "a@b.com", "password": "Str0ng!pass"}`
	for i := 0; i < signupLimit; i++ {
		resp, err := http.Post(srv.URL+"/api/auth/signup", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 201 {
			t.Fatalf("request %d: expected 201, got %d", i, resp.StatusCode)
		}
	}

	resp, err := http.Post(srv.URL+"/api/auth/signup", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 429 {
		t.Fatalf("expected 429 after %d signups, got %d", signupLimit, resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Errorf("429 response missing Retry-After header")
	}
	envelope := decodeEnvelope(t, resp)
	if envelope.Error == nil || envelope.Error.Code != model.CodeRateLimited {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %+v", envelope.Error)
	}
}

func TestLoginRateLimitKeyedByEmail(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	// Failed attempts against one account burn its budget.
	for i := 0; i < loginLimit; i++ {
		resp, err := http.Post(srv.URL+"/api/auth/login", "application/json",
			bytes.NewBufferString(`{"email": "victim@example.com", "password": "bad"}`))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 401 {
			t.Fatalf("request %d: expected 401, got %d", i, resp.StatusCode)
		}
	}

	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json",
		bytes.NewBufferString(`{"email": "victim@example.com", "password": "good"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 429 {
		t.Errorf("expected 429 for exhausted account, got %d", resp.StatusCode)
	}

	// A different account from the same client is unaffected.
	resp, err = http.Post(srv.URL+"/api/auth/login", "application/json",
		bytes.NewBufferString(`{"email": "other@example.com", "password": "good"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 for other account, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, &stubBackend{validKey: "fapi_good_key"})

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing key", "", 401, model.CodeMissingAPIKey},
		{"wrong key", "Bearer fapi_bad_key", 401, model.CodeInvalidAPIKey},
		{"valid bearer", "Bearer fapi_good_key", 200, ""},
		{"valid apikey scheme", "ApiKey fapi_good_key", 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", srv.URL+"/api/auth/verify", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			envelope := decodeEnvelope(t, resp)
			if tt.code != "" && (envelope.Error == nil || envelope.Error.Code != tt.code) {
				t.Errorf("expected error code %s, got %+v", tt.code, envelope.Error)
			}
		})
	}
}

func TestGetDeploymentHandler(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	resp, err := http.Get(srv.URL + "/api/deployments/dep-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 even for unreachable deployments, got %d", resp.StatusCode)
	}
	envelope := decodeEnvelope(t, resp)
	raw, _ := json.Marshal(envelope.Data)
	var data struct {
		Deployment model.DeploymentDetail `json:"deployment"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decoding deployment: %v", err)
	}
	if data.Deployment.Health.Status != model.HealthStatusUnreachable {
		t.Errorf("expected unreachable health in payload, got %+v", data.Deployment.Health)
	}

	resp, err = http.Get(srv.URL + "/api/deployments/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		overall string
		status  int
	}{
		{model.OverallHealthy, 200},
		{model.OverallDegraded, 503},
		{model.OverallUnhealthy, 503},
	}
	for _, tt := range tests {
		t.Run(tt.overall, func(t *testing.T) {
			srv := newTestServer(t, &stubBackend{healthStatus: tt.overall})

			resp, err := http.Get(srv.URL + "/api/health")
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d for %s, got %d", tt.status, tt.overall, resp.StatusCode)
			}

			resp, err = http.Head(srv.URL + "/api/health")
			if err != nil {
				t.Fatalf("head request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("HEAD: expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	resp, err := http.Post(srv.URL+"/api/deployments", "application/json", bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	envelope := decodeEnvelope(t, resp)
	if envelope.Error == nil || envelope.Error.Code != model.CodeInvalidJSON {
		t.Errorf("expected INVALID_JSON, got %+v", envelope.Error)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	resp, err := http.Get(srv.URL + "/api/nope")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for unknown route, got %d", resp.StatusCode)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"forwarded for", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", "10.0.0.1:1234", map[string]string{"X-Real-IP": "203.0.113.6"}, "203.0.113.6"},
		{"remote addr", "10.0.0.1:1234", nil, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := realIP(req); got != tt.want {
				t.Errorf("realIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
