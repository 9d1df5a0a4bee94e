package consent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Grant(purposes []string) error
	DeclineAll() error
	Revoke() error
	Granted(purpose string) (bool, error)
	SetSubject(id string)
	ConsentSetCount() int
	ConsentRevokedCount() int
}

// RegisterSteps registers consent-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	// Decision steps
	ctx.Step(`^the visitor grants "([^"]*)"$`, steps.grantPurposes)
	ctx.Step(`^the visitor declines every optional purpose$`, steps.declineAll)
	ctx.Step(`^the visitor revokes consent$`, steps.revokeConsent)
	ctx.Step(`^the visitor is "([^"]*)"$`, steps.switchVisitor)

	// Consent assertion steps
	ctx.Step(`^consent for "([^"]*)" should be granted$`, steps.purposeShouldBeGranted)
	ctx.Step(`^consent for "([^"]*)" should be denied$`, steps.purposeShouldBeDenied)
	ctx.Step(`^the consent-set callback should have fired (\d+) times?$`, steps.setCallbackShouldHaveFired)
	ctx.Step(`^the revoke callback should have fired (\d+) times?$`, steps.revokeCallbackShouldHaveFired)
}

type consentSteps struct {
	tc TestContext
}

func (s *consentSteps) grantPurposes(ctx context.Context, purposes string) error {
	var names []string
	for _, raw := range strings.Split(purposes, ",") {
		names = append(names, strings.TrimSpace(raw))
	}
	return s.tc.Grant(names)
}

func (s *consentSteps) declineAll(ctx context.Context) error {
	return s.tc.DeclineAll()
}

func (s *consentSteps) revokeConsent(ctx context.Context) error {
	return s.tc.Revoke()
}

func (s *consentSteps) switchVisitor(ctx context.Context, id string) error {
	s.tc.SetSubject(id)
	return nil
}

func (s *consentSteps) purposeShouldBeGranted(ctx context.Context, purpose string) error {
	granted, err := s.tc.Granted(purpose)
	if err != nil {
		return err
	}
	if !granted {
		return fmt.Errorf("expected consent for %q to be granted, but it was denied", purpose)
	}
	return nil
}

func (s *consentSteps) purposeShouldBeDenied(ctx context.Context, purpose string) error {
	granted, err := s.tc.Granted(purpose)
	if err != nil {
		return err
	}
	if granted {
		return fmt.Errorf("expected consent for %q to be denied, but it was granted", purpose)
	}
	return nil
}

func (s *consentSteps) setCallbackShouldHaveFired(ctx context.Context, count int) error {
	if got := s.tc.ConsentSetCount(); got != count {
		return fmt.Errorf("expected the consent-set callback to have fired %d times, got %d", count, got)
	}
	return nil
}

func (s *consentSteps) revokeCallbackShouldHaveFired(ctx context.Context, count int) error {
	if got := s.tc.ConsentRevokedCount(); got != count {
		return fmt.Errorf("expected the revoke callback to have fired %d times, got %d", count, got)
	}
	return nil
}
