package provision

import (
	"context"
	"fmt"

	"github.com/forgecli/forge-api/pkg/dns"
	"github.com/forgecli/forge-api/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 5

	// DefaultTargetIP is the placeholder (TEST-NET-1) used when the caller
	// has no public IP yet.
	DefaultTargetIP = "192.0.2.1"
)

// Result is the externally consumed provisioning contract.
type Result struct {
	Subdomain   string
	URL         string
	DNSRecordID string
	Status      string
}

// ExhaustedError means every attempt hit a duplicate-name collision.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to create subdomain after %d attempts, last error: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Service orchestrates subdomain creation against the DNS provider:
// allocate a name, create the record, retry with a fresh name on collision,
// compensate when the local persistence step fails.
type Service struct {
	provider   dns.Provider
	allocator  Allocator
	baseDomain string
	recordTTL  int
	proxied    bool
	maxRetries int
	log        *logrus.Entry
}

func NewService(provider dns.Provider, allocator Allocator, baseDomain string, recordTTL int, proxied bool) *Service {
	return &Service{
		provider:   provider,
		allocator:  allocator,
		baseDomain: baseDomain,
		recordTTL:  recordTTL,
		proxied:    proxied,
		maxRetries: defaultMaxRetries,
		log:        logrus.WithField("component", "provision"),
	}
}

// URL builds the public URL for a subdomain label. Proxied records terminate
// TLS at the provider edge; direct records are plain HTTP.
func (s *Service) URL(subdomain string) string {
	scheme := "http"
	if s.proxied {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s.%s", scheme, subdomain, s.baseDomain)
}

// Provision creates a DNS record for a fresh subdomain. preferred is used on
// the first attempt only; a collision discards it and every later attempt
// draws a new label from the allocator. Only duplicate-name rejections are
// retried. Anything else (auth, permission, validation, network) is not
// self-healing and surfaces immediately.
func (s *Service) Provision(ctx context.Context, preferred, targetIP string) (Result, error) {
	if targetIP == "" {
		targetIP = DefaultTargetIP
	}

	var lastErr error
	subdomain := preferred

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if subdomain == "" || attempt > 0 {
			label, err := s.allocator.Allocate(ctx)
			if err != nil {
				return Result{}, err
			}
			subdomain = label
		}

		s.log.WithFields(logrus.Fields{
			"subdomain": subdomain,
			"attempt":   attempt + 1,
			"max":       s.maxRetries,
		}).Info("attempting to create dns record")

		record, err := s.provider.CreateRecord(ctx, s.FQDN(subdomain), targetIP, s.recordTTL, s.proxied)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"subdomain": subdomain,
				"record":    record.ID,
				"target":    targetIP,
			}).Info("dns record created")

			return Result{
				Subdomain:   subdomain,
				URL:         s.URL(subdomain),
				DNSRecordID: record.ID,
				Status:      model.SubdomainStatusActive,
			}, nil
		}

		if !dns.IsDuplicateRecord(err) {
			s.log.WithError(err).WithField("subdomain", subdomain).Error("non-retryable provider error")
			return Result{}, err
		}

		s.log.WithField("subdomain", subdomain).Info("subdomain already exists, generating a new one")
		lastErr = err
		subdomain = ""
	}

	return Result{}, &ExhaustedError{Attempts: s.maxRetries, LastErr: lastErr}
}

// WithCompensation runs persist after a successful remote creation and, if it
// fails, deletes the just-created DNS record before surfacing the error.
// This is a manual saga, not a two-phase commit: the remote create and the
// local write are not atomic, and a crash between them leaves an orphaned
// record that no reconciliation sweep currently cleans up. Failure of the
// compensating delete itself is logged, never escalated, so a cleanup
// problem cannot mask the original persistence error.
func (s *Service) WithCompensation(ctx context.Context, result Result, persist func() error) error {
	err := persist()
	if err == nil {
		return nil
	}

	s.log.WithError(err).WithFields(logrus.Fields{
		"subdomain": result.Subdomain,
		"record":    result.DNSRecordID,
	}).Error("local persistence failed, rolling back dns record")

	if !s.provider.DeleteRecord(ctx, result.DNSRecordID) {
		s.log.WithField("record", result.DNSRecordID).Error("compensating delete failed, record orphaned")
	}

	return err
}

// Retarget points an existing record at a new IP. The caller owns updating
// the local store; on failure the local record must be left unchanged.
func (s *Service) Retarget(ctx context.Context, recordID, newIP string) (*dns.Record, error) {
	record := s.provider.UpdateRecord(ctx, recordID, dns.RecordPatch{Content: &newIP})
	if record == nil {
		return nil, fmt.Errorf("failed to update DNS record %s", recordID)
	}
	return record, nil
}

// FQDN is the fully qualified name for a subdomain label in the zone.
func (s *Service) FQDN(subdomain string) string {
	return subdomain + "." + s.baseDomain
}
