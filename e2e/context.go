// Package e2e drives the consent client through Gherkin scenarios. The
// suite lives in its own module so godog stays out of the main module's
// dependency graph.
package e2e

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assent/pkg/consent"
	"assent/pkg/consent/store"
	"assent/pkg/domain"
)

// TestContext holds the state shared by all step definitions within one
// scenario: the client under test, its configuration, and the signals the
// assertions inspect (captured log output, callback counts, absorbed
// errors). Scenarios run sequentially; Reset is called before each one.
type TestContext struct {
	workDir string
	logBuf  bytes.Buffer

	opts    consent.Options
	client  *consent.Client
	subject string

	setCount    int
	revokeCount int
	absorbed    []error
}

// NewTestContext returns an empty context. Reset must run before the
// first scenario uses it.
func NewTestContext() *TestContext {
	return &TestContext{}
}

// Reset tears down the previous scenario's client and working directory
// and prepares a clean slate for the next one.
func (tc *TestContext) Reset() error {
	if err := tc.Teardown(); err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "assent-e2e-")
	if err != nil {
		return err
	}
	tc.workDir = dir
	tc.logBuf.Reset()
	tc.opts = consent.Options{}
	tc.subject = "visitor-1"
	tc.setCount = 0
	tc.revokeCount = 0
	tc.absorbed = nil
	return nil
}

// Teardown closes the client and removes the scenario's working
// directory.
func (tc *TestContext) Teardown() error {
	var firstErr error
	if tc.client != nil {
		firstErr = tc.client.Close()
		tc.client = nil
	}
	if tc.workDir != "" {
		if err := os.RemoveAll(tc.workDir); err != nil && firstErr == nil {
			firstErr = err
		}
		tc.workDir = ""
	}
	return firstErr
}

// ConfigureStorage builds a client over the named driver. Names outside
// the supported set are passed through untouched so scenarios can
// exercise the fall-back path.
func (tc *TestContext) ConfigureStorage(driver string) error {
	return tc.configure(driver, 0)
}

// ConfigureStorageWithTTL is ConfigureStorage with a default record
// lifetime.
func (tc *TestContext) ConfigureStorageWithTTL(driver string, ttl time.Duration) error {
	return tc.configure(driver, ttl)
}

func (tc *TestContext) configure(driver string, ttl time.Duration) error {
	if tc.client != nil {
		if err := tc.client.Close(); err != nil {
			return err
		}
		tc.client = nil
	}

	cfg := store.Config{Driver: driver}
	switch driver {
	case store.DriverFile:
		cfg.Path = filepath.Join(tc.workDir, "consent.json")
	case store.DriverSQLite:
		cfg.Path = filepath.Join(tc.workDir, "consent.db")
	case store.DriverBolt:
		cfg.Path = filepath.Join(tc.workDir, "consent.bolt")
	}

	tc.opts = consent.Options{
		Storage:    cfg,
		DefaultTTL: ttl,
		Logger:     tc.logger(),
		Callbacks: consent.Callbacks{
			OnConsentSet:     func(context.Context, consent.Record) { tc.setCount++ },
			OnConsentRevoked: func(context.Context, consent.Record) { tc.revokeCount++ },
			OnError:          func(_ context.Context, err error) { tc.absorbed = append(tc.absorbed, err) },
		},
	}
	return tc.open()
}

func (tc *TestContext) open() error {
	client, err := consent.New(tc.opts)
	if err != nil {
		return err
	}
	tc.client = client
	return nil
}

// Restart closes the client and opens a new one over the same options,
// simulating an application restart against the same backing storage.
func (tc *TestContext) Restart() error {
	if err := tc.ensureClient(); err != nil {
		return err
	}
	if err := tc.client.Close(); err != nil {
		return err
	}
	tc.client = nil
	return tc.open()
}

// SetSubject switches the visitor identity used by subsequent steps.
func (tc *TestContext) SetSubject(id string) {
	tc.subject = id
}

// ShowBanner asks the client whether the banner is due for the current
// visitor.
func (tc *TestContext) ShowBanner() (bool, error) {
	if err := tc.ensureClient(); err != nil {
		return false, err
	}
	return tc.client.ShowConsentBanner(context.Background(), tc.subject)
}

// Grant records a decision granting exactly the named purposes. Unnamed
// optional purposes are declined; essential ones stay granted.
func (tc *TestContext) Grant(purposes []string) error {
	if err := tc.ensureClient(); err != nil {
		return err
	}
	prefs := make(map[domain.Purpose]bool, len(domain.AllPurposes()))
	for _, p := range domain.AllPurposes() {
		prefs[p] = p.IsEssential()
	}
	for _, raw := range purposes {
		p, err := domain.ParsePurpose(raw)
		if err != nil {
			return err
		}
		prefs[p] = true
	}
	_, err := tc.client.SetConsent(context.Background(), tc.subject, prefs)
	return err
}

// DeclineAll records a decision declining every optional purpose.
func (tc *TestContext) DeclineAll() error {
	return tc.Grant(nil)
}

// Revoke deletes the current visitor's record.
func (tc *TestContext) Revoke() error {
	if err := tc.ensureClient(); err != nil {
		return err
	}
	return tc.client.RevokeConsent(context.Background(), tc.subject)
}

// Granted reports whether the current visitor holds an active grant for
// the purpose.
func (tc *TestContext) Granted(purpose string) (bool, error) {
	if err := tc.ensureClient(); err != nil {
		return false, err
	}
	p, err := domain.ParsePurpose(purpose)
	if err != nil {
		return false, err
	}
	return tc.client.HasConsented(context.Background(), tc.subject, p)
}

// ConsentSetCount reports how many times OnConsentSet has fired.
func (tc *TestContext) ConsentSetCount() int {
	return tc.setCount
}

// ConsentRevokedCount reports how many times OnConsentRevoked has fired.
func (tc *TestContext) ConsentRevokedCount() int {
	return tc.revokeCount
}

// AbsorbedErrorCount reports how many errors the client absorbed and
// routed through OnError instead of returning.
func (tc *TestContext) AbsorbedErrorCount() int {
	return len(tc.absorbed)
}

// LoggedWarning reports whether the client logged a line containing the
// fragment.
func (tc *TestContext) LoggedWarning(fragment string) bool {
	return strings.Contains(tc.logBuf.String(), fragment)
}

func (tc *TestContext) ensureClient() error {
	if tc.client == nil {
		return errors.New("no client configured; missing a setup step")
	}
	return nil
}

// logger captures everything the client logs so steps can assert on
// warnings without polluting the test output.
func (tc *TestContext) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&tc.logBuf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
