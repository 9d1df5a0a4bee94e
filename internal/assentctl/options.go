package assentctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"assent/internal/platform/config"
	"assent/pkg/consent"
	"assent/pkg/platform/audit/publisher"
	auditstore "assent/pkg/platform/audit/store"
)

// defaultSubject keys single-user setups where no subject is configured
// anywhere. Matches the client's own fallback.
const defaultSubject = "default"

// options carries the flags every subcommand shares plus the configuration
// resolved from them.
type options struct {
	profile    string
	subject    string
	driver     string
	path       string
	dsn        string
	redisAddr  string
	storageKey string
	timeout    time.Duration

	profileSubject string
	cfg            config.Config
}

func commonFlags(fs *flag.FlagSet, o *options) {
	fs.StringVar(&o.profile, "profile", "", "TOML profile overlaying environment configuration")
	fs.StringVar(&o.subject, "subject", "", "subject identifier (defaults to the profile's subject, then \"default\")")
	fs.StringVar(&o.driver, "driver", "", "storage driver: memory, file, sqlite, bolt, redis or postgres")
	fs.StringVar(&o.path, "path", "", "storage file for the file, sqlite and bolt drivers")
	fs.StringVar(&o.dsn, "dsn", "", "postgres connection string")
	fs.StringVar(&o.redisAddr, "redis-addr", "", "redis address as host:port")
	fs.StringVar(&o.storageKey, "storage-key", "", "storage key prefix")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "overall operation timeout")
}

// resolve layers the configuration. The environment is the base, the
// profile overlays it, and flags that were set win over both.
func (o *options) resolve() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if o.profile != "" {
		p, err := config.LoadProfile(o.profile)
		if err != nil {
			return err
		}
		if err := p.Apply(&cfg); err != nil {
			return err
		}
		o.profileSubject = p.Subject
	}
	if o.driver != "" {
		cfg.StorageDriver = o.driver
	}
	if o.path != "" {
		cfg.StoragePath = o.path
	}
	if o.dsn != "" {
		cfg.StorageDSN = o.dsn
	}
	if o.redisAddr != "" {
		cfg.RedisAddr = o.redisAddr
	}
	if o.storageKey != "" {
		cfg.StorageKey = o.storageKey
	}
	o.cfg = cfg
	return nil
}

// subjectOrDefault picks the effective subject: the -subject flag, then the
// profile, then defaultSubject.
func (o *options) subjectOrDefault() string {
	if o.subject != "" {
		return o.subject
	}
	if o.profileSubject != "" {
		return o.profileSubject
	}
	return defaultSubject
}

// newClient builds the SDK client for one invocation. When a persistent
// audit sink is configured the trail writes synchronously so events have
// left the process before the command returns. The in-memory ring is
// skipped: it would die with the process.
func newClient(ctx context.Context, o *options, errOut io.Writer) (*consent.Client, *publisher.Publisher, error) {
	log := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var trail *publisher.Publisher
	auditCfg := o.cfg.AuditConfig()
	if auditCfg.ResolvedDriver() != auditstore.DriverMemory {
		sink, err := auditstore.Open(ctx, auditCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit trail: %w", err)
		}
		trail = publisher.NewPublisher(sink,
			publisher.WithLogger(log),
			publisher.WithOwnedStore(),
		)
	}

	opts := o.cfg.ConsentOptions()
	opts.Logger = log
	opts.Audit = trail

	client, err := consent.New(opts)
	if err != nil {
		if trail != nil {
			_ = trail.Close()
		}
		return nil, nil, err
	}
	return client, trail, nil
}

// teardown closes the client and the audit trail, reporting rather than
// failing on close errors so the command's own result stands.
func teardown(client *consent.Client, trail *publisher.Publisher, errOut io.Writer) {
	if err := client.Close(); err != nil {
		fmt.Fprintf(errOut, "warning: close client: %v\n", err)
	}
	if trail != nil {
		if err := trail.Close(); err != nil {
			fmt.Fprintf(errOut, "warning: close audit trail: %v\n", err)
		}
	}
}

// metaFlag collects repeatable -meta key=value pairs.
type metaFlag map[string]string

func (m *metaFlag) String() string {
	if m == nil || len(*m) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*m))
	for k, v := range *m {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (m *metaFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("meta must be key=value, got %q", value)
	}
	if *m == nil {
		*m = metaFlag{}
	}
	(*m)[key] = val
	return nil
}
