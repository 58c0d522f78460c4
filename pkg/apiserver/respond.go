package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/forgecli/forge-api/pkg/model"
	"github.com/forgecli/forge-api/pkg/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func newMeta() *model.Meta {
	return &model.Meta{
		Timestamp: time.Now().UTC(),
		RequestID: uuid.NewString(),
		Version:   version.Get().Version,
	}
}

func writeJSON(w http.ResponseWriter, httpStatus int, resp model.Response) {
	res, err := json.Marshal(resp)
	if err != nil {
		logrus.Errorf("failed to marshal response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success": false}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(res)
}

func writeSuccess(w http.ResponseWriter, httpStatus int, data interface{}) {
	writeJSON(w, httpStatus, model.Response{
		Success: true,
		Data:    data,
		Meta:    newMeta(),
	})
}

// writeError maps *model.APIError onto its own status code; anything else is
// an unexpected failure and becomes an opaque 500 so internals do not leak.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		logrus.Errorf("unexpected handler error: %v", err)
		apiErr = model.InternalError("Internal server error")
	}

	writeJSON(w, apiErr.HTTPStatus, model.Response{
		Success: false,
		Error:   apiErr,
		Meta:    newMeta(),
	})
}
