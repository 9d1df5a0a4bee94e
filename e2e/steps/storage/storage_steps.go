package storage

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ConfigureStorage(driver string) error
	Restart() error
	LoggedWarning(fragment string) bool
	AbsorbedErrorCount() int
}

// RegisterSteps registers storage-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &storageSteps{tc: tc}

	// Lifecycle steps
	ctx.Step(`^the SDK is configured with storage driver "([^"]*)"$`, steps.configureDriver)
	ctx.Step(`^the application restarts$`, steps.restartApplication)

	// Degradation assertion steps
	ctx.Step(`^a storage warning should have been logged$`, steps.storageWarningLogged)
	ctx.Step(`^the error callback should have fired$`, steps.errorCallbackFired)
}

type storageSteps struct {
	tc TestContext
}

func (s *storageSteps) configureDriver(ctx context.Context, driver string) error {
	return s.tc.ConfigureStorage(driver)
}

func (s *storageSteps) restartApplication(ctx context.Context) error {
	return s.tc.Restart()
}

func (s *storageSteps) storageWarningLogged(ctx context.Context) error {
	if !s.tc.LoggedWarning("storage unavailable") {
		return fmt.Errorf("no storage warning was logged")
	}
	return nil
}

func (s *storageSteps) errorCallbackFired(ctx context.Context) error {
	if s.tc.AbsorbedErrorCount() == 0 {
		return fmt.Errorf("expected the error callback to have fired, but it never did")
	}
	return nil
}
