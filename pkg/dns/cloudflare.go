package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// requestTimeout bounds every provider call so a stalled provider cannot
// hold an inbound request open indefinitely.
const requestTimeout = 15 * time.Second

// Cloudflare is a typed wrapper over the Cloudflare v4 API, authenticated by
// a bearer token scoped to one zone.
type Cloudflare struct {
	apiToken string
	zoneID   string
	baseURL  string

	httpClient *http.Client
	log        *logrus.Entry
}

func NewCloudflare(apiToken, zoneID string) (*Cloudflare, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("missing Cloudflare API token")
	}
	if zoneID == "" {
		return nil, fmt.Errorf("missing Cloudflare zone ID")
	}

	return &Cloudflare{
		apiToken: apiToken,
		zoneID:   zoneID,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		log: logrus.WithField("provider", "cloudflare"),
	}, nil
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfEnvelope struct {
	Success bool            `json:"success"`
	Errors  []cfError       `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func (c *Cloudflare) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*cfEnvelope, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}

	var envelope cfEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &ProviderError{
				HTTPStatus: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
			}
		}
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}

	if resp.StatusCode >= 300 || !envelope.Success {
		pe := &ProviderError{
			HTTPStatus: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		// The error array carries the provider's own taxonomy; the first
		// entry's code drives collision classification upstream.
		if len(envelope.Errors) > 0 {
			pe.Code = envelope.Errors[0].Code
			pe.Message = envelope.Errors[0].Message
		}
		return nil, pe
	}

	return &envelope, nil
}

func (c *Cloudflare) CreateRecord(ctx context.Context, name, content string, ttl int, proxied bool) (Record, error) {
	body := Record{
		Type:    "A",
		Name:    name,
		Content: content,
		TTL:     ttl,
		Proxied: proxied,
	}

	envelope, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", c.zoneID), body)
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(envelope.Result, &record); err != nil {
		return Record{}, fmt.Errorf("decoding created record: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"record": record.ID,
		"name":   record.Name,
	}).Debug("created dns record")

	return record, nil
}

func (c *Cloudflare) DeleteRecord(ctx context.Context, id string) bool {
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneID, id), nil)
	if err != nil {
		c.log.WithError(err).WithField("record", id).Error("failed to delete dns record")
		return false
	}
	return true
}

func (c *Cloudflare) UpdateRecord(ctx context.Context, id string, patch RecordPatch) *Record {
	envelope, err := c.doRequest(ctx, http.MethodPatch, fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneID, id), patch)
	if err != nil {
		c.log.WithError(err).WithField("record", id).Error("failed to update dns record")
		return nil
	}

	var record Record
	if err := json.Unmarshal(envelope.Result, &record); err != nil {
		c.log.WithError(err).Error("failed to decode updated dns record")
		return nil
	}
	return &record
}

func (c *Cloudflare) GetRecord(ctx context.Context, id string) *Record {
	envelope, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneID, id), nil)
	if err != nil {
		c.log.WithError(err).WithField("record", id).Debug("dns record lookup failed")
		return nil
	}

	var record Record
	if err := json.Unmarshal(envelope.Result, &record); err != nil {
		return nil
	}
	return &record
}

func (c *Cloudflare) ListRecords(ctx context.Context, nameFilter string) []Record {
	endpoint := fmt.Sprintf("/zones/%s/dns_records", c.zoneID)
	if nameFilter != "" {
		params := url.Values{}
		params.Set("name", nameFilter)
		endpoint += "?" + params.Encode()
	}

	envelope, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.WithError(err).Debug("dns record list failed")
		return nil
	}

	var records []Record
	if err := json.Unmarshal(envelope.Result, &records); err != nil {
		return nil
	}
	return records
}

// HealthCheck verifies the token via an identity lookup and then checks the
// configured zone is accessible. Used by the platform's own health endpoint.
func (c *Cloudflare) HealthCheck(ctx context.Context) bool {
	if _, err := c.doRequest(ctx, http.MethodGet, "/user", nil); err != nil {
		c.log.WithError(err).Warn("provider token verification failed")
		return false
	}

	if _, err := c.doRequest(ctx, http.MethodGet, "/zones/"+c.zoneID, nil); err != nil {
		c.log.WithError(err).Warn("provider zone access check failed")
		return false
	}

	return true
}
