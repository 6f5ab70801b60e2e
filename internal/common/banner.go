package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("QUAERO")
	b.PrintCenteredText("Food Pantry Discovery Orchestration Core")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 20)
	b.PrintKeyValue("Environment", config.Environment, 20)
	b.PrintKeyValue("Storage", config.Storage.Badger.Path, 20)
	b.PrintKeyValue("LLM Provider", string(config.LLM.DefaultProvider), 20)
	b.PrintKeyValue("Worker Concurrency", fmt.Sprintf("%d", config.Discovery.WorkerConcurrency), 20)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Str("storage_path", config.Storage.Badger.Path).
		Str("llm_provider", string(config.LLM.DefaultProvider)).
		Int("worker_concurrency", config.Discovery.WorkerConcurrency).
		Strs("places_variants", config.Discovery.PlacesVariants).
		Msg("Discovery core started")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("QUAERO")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Discovery core shutting down")
}

// PrintColorizedMessage prints a message with the given color; it does not log (logger is unused).
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("✓ %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("✗ %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("⚠ %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("ℹ %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
