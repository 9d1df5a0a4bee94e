package banner

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ConfigureStorage(driver string) error
	ConfigureStorageWithTTL(driver string, ttl time.Duration) error
	ShowBanner() (bool, error)
}

// RegisterSteps registers banner-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &bannerSteps{tc: tc}

	// Setup steps
	ctx.Step(`^a fresh install with (memory|file|sqlite|bolt) storage$`, steps.freshInstall)
	ctx.Step(`^a fresh install with (memory|file|sqlite|bolt) storage and a (\d+)ms consent lifetime$`, steps.freshInstallWithLifetime)
	ctx.Step(`^the visitor waits (\d+)ms$`, steps.waitMillis)

	// Banner assertion steps
	ctx.Step(`^the consent banner should be shown$`, steps.bannerShouldBeShown)
	ctx.Step(`^the consent banner should not be shown$`, steps.bannerShouldNotBeShown)
}

type bannerSteps struct {
	tc TestContext
}

func (s *bannerSteps) freshInstall(ctx context.Context, driver string) error {
	return s.tc.ConfigureStorage(driver)
}

func (s *bannerSteps) freshInstallWithLifetime(ctx context.Context, driver string, ms int) error {
	return s.tc.ConfigureStorageWithTTL(driver, time.Duration(ms)*time.Millisecond)
}

func (s *bannerSteps) waitMillis(ctx context.Context, ms int) error {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return nil
}

func (s *bannerSteps) bannerShouldBeShown(ctx context.Context) error {
	show, err := s.tc.ShowBanner()
	if err != nil {
		return err
	}
	if !show {
		return fmt.Errorf("expected the banner to be shown, but it was suppressed")
	}
	return nil
}

func (s *bannerSteps) bannerShouldNotBeShown(ctx context.Context) error {
	show, err := s.tc.ShowBanner()
	if err != nil {
		return err
	}
	if show {
		return fmt.Errorf("expected the banner to stay hidden, but it was shown")
	}
	return nil
}
