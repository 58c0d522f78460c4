package provision

import (
	"context"
	"errors"

	"github.com/forgecli/forge-api/pkg/dns"
	"github.com/forgecli/forge-api/pkg/rand"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLabelLength = 10
	defaultMaxAttempts = 10
)

// ErrAllocationExhausted is returned when the allocator cannot find a free
// label within its attempt budget.
var ErrAllocationExhausted = errors.New("unable to generate an available subdomain label")

// Allocator produces a candidate subdomain label believed to be free.
type Allocator interface {
	Allocate(ctx context.Context) (string, error)
}

// RandomAllocator draws random lowercase alphanumeric labels and checks them
// against the provider's record list.
//
// The availability check is a check-then-act race: two concurrent allocations
// can both observe "free" and both attempt creation. That is fine. The check
// is a latency optimization only; the provider's duplicate-name rejection at
// create time is the authoritative collision signal. Do not add locking here.
type RandomAllocator struct {
	provider    dns.Provider
	baseDomain  string
	labelLength int
	maxAttempts int
	log         *logrus.Entry
}

func NewAllocator(provider dns.Provider, baseDomain string, labelLength int) *RandomAllocator {
	if labelLength <= 0 {
		labelLength = DefaultLabelLength
	}
	return &RandomAllocator{
		provider:    provider,
		baseDomain:  baseDomain,
		labelLength: labelLength,
		maxAttempts: defaultMaxAttempts,
		log:         logrus.WithField("component", "allocator"),
	}
}

// Available reports whether no record currently exists for the label. A
// provider lookup failure counts as unavailable so allocation moves on.
func (a *RandomAllocator) Available(ctx context.Context, label string) bool {
	return len(a.provider.ListRecords(ctx, label+"."+a.baseDomain)) == 0
}

func (a *RandomAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		label := rand.Label(a.labelLength)
		if a.Available(ctx, label) {
			return label, nil
		}
		a.log.WithField("label", label).Debug("candidate label taken, drawing another")
	}

	return "", ErrAllocationExhausted
}
