package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/forgecli/forge-api/pkg/backend"
	"github.com/forgecli/forge-api/pkg/db"
	"github.com/forgecli/forge-api/pkg/model"
	"github.com/forgecli/forge-api/pkg/ratelimit"
	"github.com/forgecli/forge-api/pkg/version"
	"github.com/gorilla/mux"
)

// Abuse limits on the credential endpoints. Signup is keyed by client IP,
// login by the attempted account so one address cannot lock out another
// user's logins from a shared NAT.
const (
	signupLimit = 3
	loginLimit  = 5
	authWindow  = 15 * time.Minute
)

type handler struct {
	backend backend.Backend
	limiter ratelimit.Limiter
}

func newHandler(b backend.Backend, limiter ratelimit.Limiter) *handler {
	return &handler{
		backend: b,
		limiter: limiter,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, version.Get())
}

// checkLimit writes a 429 and returns false when the key is over budget.
func (h *handler) checkLimit(w http.ResponseWriter, key string, limit int) bool {
	decision := h.limiter.Check(key, limit, authWindow)
	if decision.Allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(decision.ResetTime).Seconds())))
	apiErr := model.NewAPIError(http.StatusTooManyRequests, model.CodeRateLimited,
		"Too many requests, please try again later")
	apiErr.Details = map[string]interface{}{
		"limit":     limit,
		"resetTime": decision.ResetTime.UTC(),
	}
	writeError(w, apiErr)
	return false
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewAPIError(http.StatusBadRequest, model.CodeInvalidJSON, "Invalid JSON in request body")
	}
	return nil
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	if !h.checkLimit(w, "signup:"+realIP(r), signupLimit) {
		return
	}

	var input model.SignupRequest
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.backend.SignUp(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, resp)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var input model.LoginRequest
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}

	key := "login:" + strings.ToLower(input.Email)
	if input.Email == "" {
		key = "login:" + realIP(r)
	}
	if !h.checkLimit(w, key, loginLimit) {
		return
	}

	user, err := h.backend.LogIn(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"valid": true,
		"user":  user,
	})
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	resp, err := h.backend.Profile(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *handler) regenerateKey(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	rotated, err := h.backend.RegenerateAPIKey(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": rotated})
}

func (h *handler) createDeployment(w http.ResponseWriter, r *http.Request) {
	var input model.CreateDeploymentRequest
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.backend.CreateDeployment(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, resp)
}

func (h *handler) listDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	resp, err := h.backend.ListDeployments(r.Context(), db.ListDeploymentsFilter{
		UserID:    q.Get("userId"),
		Status:    q.Get("status"),
		Framework: q.Get("framework"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *handler) getDeployment(w http.ResponseWriter, r *http.Request) {
	deploymentID := mux.Vars(r)["id"]

	detail, err := h.backend.GetDeployment(r.Context(), deploymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"deployment": detail})
}

func (h *handler) createSubdomain(w http.ResponseWriter, r *http.Request) {
	var input model.SubdomainRequest
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.backend.CreateSubdomain(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, resp)
}

func (h *handler) listSubdomains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	subs, err := h.backend.ListSubdomains(r.Context(), q.Get("userId"), q.Get("deploymentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"subdomains": subs})
}

func (h *handler) retargetSubdomain(w http.ResponseWriter, r *http.Request) {
	var input model.RetargetRequest
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.backend.RetargetSubdomain(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	health := h.backend.Health(r.Context())

	httpStatus := http.StatusOK
	if health.Status != model.OverallHealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(httpStatus)
		return
	}
	writeSuccess(w, httpStatus, health)
}
