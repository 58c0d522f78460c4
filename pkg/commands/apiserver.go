package commands

import (
	"context"
	"fmt"

	"github.com/forgecli/forge-api/pkg/apiserver"
	"github.com/forgecli/forge-api/pkg/backend"
	"github.com/forgecli/forge-api/pkg/db"
	"github.com/forgecli/forge-api/pkg/dns"
	"github.com/forgecli/forge-api/pkg/provision"
	"github.com/forgecli/forge-api/pkg/ratelimit"
	"github.com/forgecli/forge-api/pkg/version"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

type apiServerCommand struct{}

func (s *apiServerCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalHandler(context.Background())

	log := logrus.WithField("command", "api-server")

	log.Infof("version: %v", version.Get())

	if c.String("base-domain") == "" {
		return fmt.Errorf("base-domain is required")
	}

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	provider, err := newProvider(c)
	if err != nil {
		return err
	}

	allocator := provision.NewAllocator(provider, c.String("base-domain"), c.Int("subdomain-length"))
	svc := provision.NewService(provider, allocator, c.String("base-domain"),
		c.Int("record-ttl"), c.Bool("proxied"))

	limiter, err := newLimiter(c)
	if err != nil {
		return err
	}
	defer limiter.Close()

	back := backend.New(database, provider, svc, log)

	apiServer := apiserver.NewAPIServer(ctx, log, c.Int("port"))

	if err := apiServer.Start(back, limiter); err != nil {
		return err
	}

	return nil
}

func newProvider(c *cli.Context) (dns.Provider, error) {
	switch c.String("dns-provider") {
	case "cloudflare":
		if c.String("cloudflare-token") == "" || c.String("cloudflare-zone-id") == "" {
			return nil, fmt.Errorf("cloudflare-token and cloudflare-zone-id are required for the cloudflare provider")
		}
		return dns.NewCloudflare(c.String("cloudflare-token"), c.String("cloudflare-zone-id"))
	case "route53":
		if c.String("route53-zone-id") == "" {
			return nil, fmt.Errorf("route53-zone-id is required for the route53 provider")
		}
		return dns.NewRoute53(c.String("route53-zone-id"))
	default:
		return nil, fmt.Errorf("unsupported dns provider: %s", c.String("dns-provider"))
	}
}

func newLimiter(c *cli.Context) (ratelimit.Limiter, error) {
	switch c.String("rate-limit-backend") {
	case "memory":
		return ratelimit.NewMemory(), nil
	case "redis":
		return ratelimit.NewRedis(c.String("redis-addr"), c.String("redis-password"), c.Int("redis-db"))
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", c.String("rate-limit-backend"))
	}
}

func serverCommand() *cli.Command {
	cmd := apiServerCommand{}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the HTTP Server Port",
			EnvVars: []string{"FORGE_PORT", "PORT"},
			Value:   4000,
		},
		&cli.StringFlag{
			Name:    "sql-dialect",
			Usage:   "The type of sql to use, sqlite or mysql",
			EnvVars: []string{"FORGE_SQL_DIALECT", "SQL_DIALECT"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "The DSN to use to connect to",
			EnvVars: []string{"FORGE_SQL_DSN", "SQL_DSN"},
			Value:   "file:forge.sqlite?_pragma=foreign_keys(1)",
		},
		&cli.StringFlag{
			Name:    "dns-provider",
			Usage:   "The DNS provider to provision records with, cloudflare or route53",
			EnvVars: []string{"FORGE_DNS_PROVIDER", "DNS_PROVIDER"},
			Value:   "cloudflare",
		},
		&cli.StringFlag{
			Name:    "cloudflare-token",
			Usage:   "Cloudflare API token with DNS edit permission on the zone",
			EnvVars: []string{"CLOUDFLARE_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "cloudflare-zone-id",
			Usage:   "Cloudflare zone to provision subdomains in",
			EnvVars: []string{"CLOUDFLARE_ZONE_ID"},
		},
		&cli.StringFlag{
			Name:    "route53-zone-id",
			Usage:   "Route53 hosted zone to provision subdomains in",
			EnvVars: []string{"ROUTE53_ZONE_ID"},
		},
		&cli.StringFlag{
			Name:    "base-domain",
			Usage:   "The domain subdomains are provisioned under",
			EnvVars: []string{"FORGE_BASE_DOMAIN", "BASE_DOMAIN"},
		},
		&cli.IntFlag{
			Name:    "subdomain-length",
			Usage:   "Length of generated subdomain labels",
			EnvVars: []string{"FORGE_SUBDOMAIN_LENGTH", "SUBDOMAIN_LENGTH"},
			Value:   provision.DefaultLabelLength,
		},
		&cli.IntFlag{
			Name:    "record-ttl",
			Usage:   "TTL in seconds for provisioned records",
			EnvVars: []string{"FORGE_RECORD_TTL", "RECORD_TTL"},
			Value:   300,
		},
		&cli.BoolFlag{
			Name:    "proxied",
			Usage:   "Serve records through the provider's proxy (enables edge TLS)",
			EnvVars: []string{"FORGE_PROXIED", "PROXIED"},
			Value:   true,
		},
		&cli.StringFlag{
			Name:    "rate-limit-backend",
			Usage:   "Where rate limit counters live, memory or redis",
			EnvVars: []string{"FORGE_RATE_LIMIT_BACKEND", "RATE_LIMIT_BACKEND"},
			Value:   "memory",
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the redis rate limit backend",
			EnvVars: []string{"FORGE_REDIS_ADDR", "REDIS_ADDR"},
			Value:   "localhost:6379",
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password for the redis rate limit backend",
			EnvVars: []string{"FORGE_REDIS_PASSWORD", "REDIS_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number for the redis rate limit backend",
			EnvVars: []string{"FORGE_REDIS_DB", "REDIS_DB"},
		},
	}

	return &cli.Command{
		Name:   "api-server",
		Usage:  "forge api server",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
