package simulate

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/arena/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "sim_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Arena Rating Simulator
======================

Drives a running arena instance with a synthetic population: competitors
get hidden skills, comparison outcomes are sampled from them, and the
resulting leaderboard order is checked against the skills afterwards.

Usage:
  go run cmd/arena-sim/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -competitors int
        Number of competitors with hidden skills (default 200)
  -comparisons int
        Number of comparisons to sample and submit (default 5000)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -period-every int
        Close the open period after this many submissions, 0 to only
        close at the end (default 1000)
  -top int
        Number of leaderboard entries to verify against (default 100)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed int
        RNG seed; rerunning with the same seed against the same server
        reports duplicates instead of new comparisons (default 1)
  -log string
        Log file for simulation output (default: sim_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/arena-sim/main.go

  # Larger population, more churn between periods
  go run cmd/arena-sim/main.go -competitors 1000 -comparisons 50000 -period-every 5000

  # Reproducible run against a local instance
  go run cmd/arena-sim/main.go -seed 42 -url http://localhost:8080
`)
}
