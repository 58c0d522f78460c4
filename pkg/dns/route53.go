package dns

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/sirupsen/logrus"
)

// Route53 implements Provider against an AWS Route53 hosted zone. Route53
// has no per-record IDs, so the record's FQDN doubles as its ID. The proxied
// flag has no Route53 equivalent and is ignored.
type Route53 struct {
	zoneID     string
	baseDomain string

	svc *route53.Route53
	log *logrus.Entry
}

func NewRoute53(zoneID string) (*Route53, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("missing Route53 hosted zone ID")
	}

	s, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	svc := route53.New(s, &aws.Config{
		MaxRetries: aws.Int(3),
	})

	z, err := svc.GetHostedZone(&route53.GetHostedZoneInput{
		Id: aws.String(zoneID),
	})
	if err != nil {
		return nil, err
	}

	return &Route53{
		zoneID:     aws.StringValue(z.HostedZone.Id),
		baseDomain: strings.TrimSuffix(aws.StringValue(z.HostedZone.Name), "."),
		svc:        svc,
		log:        logrus.WithField("provider", "route53"),
	}, nil
}

func (r *Route53) CreateRecord(ctx context.Context, name, content string, ttl int, proxied bool) (Record, error) {
	rrs := &route53.ResourceRecordSet{
		Type: aws.String("A"),
		Name: aws.String(name),
		TTL:  aws.Int64(int64(ttl)),
		ResourceRecords: []*route53.ResourceRecord{
			{Value: aws.String(content)},
		},
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					// CREATE (not UPSERT) so a name collision is rejected by
					// the zone and can drive the retry loop upstream.
					Action:            aws.String("CREATE"),
					ResourceRecordSet: rrs,
				},
			},
		},
	}

	if _, err := r.svc.ChangeResourceRecordSetsWithContext(ctx, input); err != nil {
		return Record{}, r.wrapError(err)
	}

	return Record{
		ID:      name,
		Type:    "A",
		Name:    name,
		Content: content,
		TTL:     ttl,
	}, nil
}

// wrapError normalizes Route53 rejections into the provider error taxonomy
// so collision classification stays code-based above this layer.
func (r *Route53) wrapError(err error) error {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return err
	}

	pe := &ProviderError{
		Message: aerr.Message(),
	}
	if aerr.Code() == route53.ErrCodeInvalidChangeBatch && strings.Contains(aerr.Message(), "already exists") {
		pe.Code = CodeRecordAlreadyExists
	}
	return pe
}

func (r *Route53) DeleteRecord(ctx context.Context, id string) bool {
	existing := r.lookup(ctx, id)
	if existing == nil {
		return false
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					Action:            aws.String("DELETE"),
					ResourceRecordSet: existing,
				},
			},
		},
	}

	if _, err := r.svc.ChangeResourceRecordSetsWithContext(ctx, input); err != nil {
		r.log.WithError(err).WithField("record", id).Error("failed to delete record set")
		return false
	}
	return true
}

func (r *Route53) UpdateRecord(ctx context.Context, id string, patch RecordPatch) *Record {
	current := r.GetRecord(ctx, id)
	if current == nil {
		return nil
	}

	if patch.Content != nil {
		current.Content = *patch.Content
	}
	if patch.TTL != nil {
		current.TTL = *patch.TTL
	}

	rrs := &route53.ResourceRecordSet{
		Type: aws.String("A"),
		Name: aws.String(current.Name),
		TTL:  aws.Int64(int64(current.TTL)),
		ResourceRecords: []*route53.ResourceRecord{
			{Value: aws.String(current.Content)},
		},
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					Action:            aws.String("UPSERT"),
					ResourceRecordSet: rrs,
				},
			},
		},
	}

	if _, err := r.svc.ChangeResourceRecordSetsWithContext(ctx, input); err != nil {
		r.log.WithError(err).WithField("record", id).Error("failed to upsert record set")
		return nil
	}
	return current
}

func (r *Route53) GetRecord(ctx context.Context, id string) *Record {
	rrs := r.lookup(ctx, id)
	if rrs == nil || len(rrs.ResourceRecords) == 0 {
		return nil
	}

	return &Record{
		ID:      id,
		Type:    aws.StringValue(rrs.Type),
		Name:    strings.TrimSuffix(aws.StringValue(rrs.Name), "."),
		Content: aws.StringValue(rrs.ResourceRecords[0].Value),
		TTL:     int(aws.Int64Value(rrs.TTL)),
	}
}

func (r *Route53) lookup(ctx context.Context, fqdn string) *route53.ResourceRecordSet {
	out, err := r.svc.ListResourceRecordSetsWithContext(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(r.zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: aws.String("A"),
		MaxItems:        aws.String("1"),
	})
	if err != nil {
		r.log.WithError(err).WithField("record", fqdn).Debug("record set lookup failed")
		return nil
	}

	for _, rrs := range out.ResourceRecordSets {
		name := strings.TrimSuffix(aws.StringValue(rrs.Name), ".")
		if name == fqdn && aws.StringValue(rrs.Type) == "A" {
			return rrs
		}
	}
	return nil
}

func (r *Route53) ListRecords(ctx context.Context, nameFilter string) []Record {
	var records []Record

	input := &route53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(r.zoneID),
	}
	if nameFilter != "" {
		input.StartRecordName = aws.String(nameFilter)
	}

	err := r.svc.ListResourceRecordSetsPagesWithContext(ctx, input,
		func(page *route53.ListResourceRecordSetsOutput, lastPage bool) bool {
			for _, rrs := range page.ResourceRecordSets {
				if aws.StringValue(rrs.Type) != "A" || len(rrs.ResourceRecords) == 0 {
					continue
				}
				name := strings.TrimSuffix(aws.StringValue(rrs.Name), ".")
				if nameFilter != "" && name != nameFilter {
					continue
				}
				records = append(records, Record{
					ID:      name,
					Type:    "A",
					Name:    name,
					Content: aws.StringValue(rrs.ResourceRecords[0].Value),
					TTL:     int(aws.Int64Value(rrs.TTL)),
				})
			}
			// Past the exact name means no more matches when filtering.
			return nameFilter == ""
		})
	if err != nil {
		r.log.WithError(err).Error("error communicating with Route53")
		return nil
	}

	return records
}

func (r *Route53) HealthCheck(ctx context.Context) bool {
	// Account-level call first (credential check), then the zone itself.
	if _, err := r.svc.GetHostedZoneCountWithContext(ctx, &route53.GetHostedZoneCountInput{}); err != nil {
		r.log.WithError(err).Warn("credential verification failed")
		return false
	}

	if _, err := r.svc.GetHostedZoneWithContext(ctx, &route53.GetHostedZoneInput{
		Id: aws.String(r.zoneID),
	}); err != nil {
		r.log.WithError(err).Warn("hosted zone access check failed")
		return false
	}

	return true
}
