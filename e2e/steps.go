package e2e

import (
	"github.com/cucumber/godog"

	"assent/e2e/steps/banner"
	"assent/e2e/steps/consent"
	"assent/e2e/steps/storage"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register banner lifecycle steps (setup, banner assertions)
	banner.RegisterSteps(ctx, tc)

	// Register consent decision steps
	consent.RegisterSteps(ctx, tc)

	// Register storage backend steps
	storage.RegisterSteps(ctx, tc)
}
