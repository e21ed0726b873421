package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/arena/internal/simulate"
)

// Default configuration constants.
const (
	defaultCompetitors = 200
	defaultComparisons = 5000
	defaultPeriodEvery = 1000
	defaultTopN        = 100
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultSeed        = 1
	defaultTimeout     = 30 * time.Second
	defaultSimTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "Base URL of the service")
		competitors = flag.Int("competitors", defaultCompetitors, "Number of competitors with hidden skills")
		comparisons = flag.Int("comparisons", defaultComparisons, "Number of comparisons to sample and submit")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		periodEvery = flag.Int("period-every", defaultPeriodEvery, "Close the open period after this many submissions (0: only at the end)")
		topN        = flag.Int("top", defaultTopN, "Number of leaderboard entries to verify against")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed        = flag.Int64("seed", defaultSeed, "RNG seed for the population and matchups")
		logFile     = flag.String("log", "", "Log file for simulation output (default: sim_log_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	// Setup logging
	if err := simulate.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultSimTimeout)
	defer cancel()

	// Create simulation configuration
	config := &simulate.Config{
		BaseURL:     *baseURL,
		Competitors: *competitors,
		Comparisons: *comparisons,
		Workers:     *workers,
		PeriodEvery: *periodEvery,
		TopN:        *topN,
		Timeout:     *timeout,
		Seed:        *seed,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	// Run the simulation
	if err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
