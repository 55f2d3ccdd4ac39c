package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/tomhv/usagegraph/cli/internal/config"
	"github.com/tomhv/usagegraph/cli/internal/output"
	"github.com/tomhv/usagegraph/cli/internal/sync"
	"github.com/tomhv/usagegraph/internal/aggregator"
	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/internal/parser"
	"github.com/tomhv/usagegraph/internal/pricing"
	"github.com/tomhv/usagegraph/internal/summary"
)

const version = "1.0.0"

func main() {
	// Detect subcommand first
	command := "graph"
	args := os.Args[1:]

	// Find and extract the subcommand from args
	var filteredArgs []string
	for i, arg := range args {
		switch arg {
		case "graph", "daily", "intervals", "sync", "config":
			command = arg
			// Keep remaining args for flag parsing
			filteredArgs = append(args[:i], args[i+1:]...)
		}
		if command != "graph" || arg == "graph" {
			break
		}
	}
	if filteredArgs == nil {
		filteredArgs = args
	}

	// Handle special commands
	switch command {
	case "sync":
		runSync(filteredArgs)
		return
	case "config":
		runConfig(filteredArgs)
		return
	}

	// Create a new FlagSet for clean parsing
	fs := flag.NewFlagSet("usagegraph", flag.ExitOnError)

	var (
		since    string
		until    string
		interval time.Duration
		jsonOut  bool
		compact  bool
		offline  bool
		showHelp bool
		showVer  bool
	)

	fs.StringVar(&since, "since", "", "Start date filter (YYYYMMDD)")
	fs.StringVar(&until, "until", "", "End date filter (YYYYMMDD)")
	fs.DurationVar(&interval, "interval", time.Hour, "Bucket width for the intervals command (e.g., 5m, 1h)")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	fs.BoolVar(&compact, "compact", false, "Force compact table output")
	fs.BoolVar(&compact, "c", false, "Force compact table output")
	fs.BoolVar(&offline, "offline", false, "Use embedded pricing data (no network)")
	fs.BoolVar(&showHelp, "help", false, "Show help")
	fs.BoolVar(&showHelp, "h", false, "Show help")
	fs.BoolVar(&showVer, "version", false, "Show version")
	fs.BoolVar(&showVer, "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `usagegraph - AI usage cost and activity overview

Usage: usagegraph [command] [options]

Commands:
  graph      Full usage graph as JSON (default)
  daily      Daily usage table with activity intensity
  intervals  Usage bucketed by time interval with token rates
  sync       Sync usage data to server
  config     Configure sync settings

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  usagegraph                       Print the full usage graph
  usagegraph daily --since 20250101
  usagegraph intervals --interval 5m
  usagegraph daily --json
  usagegraph config --server https://example.com --api-key <key>
  usagegraph sync
`)
	}

	fs.Parse(filteredArgs)

	if showVer {
		fmt.Printf("usagegraph version %s\n", version)
		return
	}

	if showHelp {
		fs.Usage()
		return
	}

	// Parse date filters into the YYYY-MM-DD form used for grouping
	var sinceDate, untilDate string
	if since != "" {
		t, err := time.Parse("20060102", since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid --since date format. Use YYYYMMDD.\n")
			os.Exit(1)
		}
		sinceDate = t.Format("2006-01-02")
	}
	if until != "" {
		t, err := time.Parse("20060102", until)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid --until date format. Use YYYYMMDD.\n")
			os.Exit(1)
		}
		untilDate = t.Format("2006-01-02")
	}

	start := time.Now()

	// Load pricing and parse all usage data
	catalog := pricing.Load(offline)

	messages, err := parser.ParseAll(catalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage data: %v\n", err)
		os.Exit(1)
	}

	if len(messages) == 0 {
		fmt.Println("No usage data found in ~/.claude/projects/")
		return
	}

	// Filter by date range
	messages = aggregator.Filter(messages, sinceDate, untilDate)

	if len(messages) == 0 {
		fmt.Println("No usage data found for the specified date range.")
		return
	}

	tableOpts := output.TableOptions{ForceCompact: compact}

	switch command {
	case "graph":
		days := aggregator.ByDate(messages)
		result := summary.BuildGraphResult(days, time.Since(start).Milliseconds())
		if err := output.PrintJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}

	case "daily":
		days := aggregator.ByDate(messages)
		if jsonOut {
			if err := output.PrintJSON(days); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
				os.Exit(1)
			}
			return
		}
		output.PrintDaily(days, summary.Calculate(days), tableOpts)

	case "intervals":
		if interval <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --interval must be positive.\n")
			os.Exit(1)
		}
		buckets := aggregator.ByInterval(messages, interval.Milliseconds())
		if jsonOut {
			if err := output.PrintJSON(buckets); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
				os.Exit(1)
			}
			return
		}
		output.PrintIntervals(buckets, tableOpts)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fs.Usage()
		os.Exit(1)
	}
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var (
		server string
		apiKey string
		show   bool
	)
	fs.StringVar(&server, "server", "", "Server URL")
	fs.StringVar(&apiKey, "api-key", "", "API key for authentication")
	fs.BoolVar(&show, "show", false, "Show current configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagegraph config [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  usagegraph config --server https://example.com --api-key ug_xxx
  usagegraph config --show
`)
	}

	fs.Parse(args)

	if show {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if cfg.Server == "" {
			fmt.Println("No configuration found. Run 'usagegraph config --server <url> --api-key <key>' to configure.")
			return
		}
		fmt.Printf("Server: %s\n", cfg.Server)
		if len(cfg.APIKey) > 14 {
			fmt.Printf("API Key: %s...%s\n", cfg.APIKey[:10], cfg.APIKey[len(cfg.APIKey)-4:])
		}
		if cfg.ClientID != "" {
			fmt.Printf("Client ID: %s\n", cfg.ClientID)
		}
		return
	}

	if server == "" && apiKey == "" {
		fs.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	if server != "" {
		cfg.Server = server
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration saved.")
}

// syncService implements service.Interface for background syncing
type syncService struct {
	interval time.Duration
	stop     chan struct{}
	logger   service.Logger
}

func (s *syncService) Start(svc service.Service) error {
	s.stop = make(chan struct{})
	go s.run()
	return nil
}

func (s *syncService) Stop(svc service.Service) error {
	close(s.stop)
	return nil
}

func (s *syncService) run() {
	cfg, err := config.Load()
	if err != nil || cfg.Server == "" || cfg.APIKey == "" {
		if s.logger != nil {
			s.logger.Error("Not configured. Run 'usagegraph config' first.")
		}
		return
	}

	client := sync.NewClient(cfg)

	// Sync immediately on start
	s.doSync(client)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.doSync(client)
		case <-s.stop:
			return
		}
	}
}

func (s *syncService) doSync(client *sync.Client) {
	lastSync, _ := client.GetSyncStatus()

	messages, err := parser.ParseAll(pricing.EmbeddedCatalog())
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error reading usage data: %v", err)
		}
		return
	}

	toSync := newerThan(messages, lastSync)
	if len(toSync) == 0 {
		return
	}

	inserted, err := client.Sync(toSync)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error syncing: %v", err)
		}
		return
	}

	if s.logger != nil {
		s.logger.Infof("Synced %d messages", inserted)
	}
}

func newerThan(messages []model.UnifiedMessage, lastSync *time.Time) []model.UnifiedMessage {
	if lastSync == nil {
		return messages
	}
	cutoff := lastSync.UnixMilli()
	var out []model.UnifiedMessage
	for _, m := range messages {
		if m.Timestamp > cutoff {
			out = append(out, m)
		}
	}
	return out
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var (
		dryRun   bool
		interval time.Duration
	)
	fs.BoolVar(&dryRun, "dry-run", false, "Show what would be synced without sending")
	fs.DurationVar(&interval, "interval", time.Hour, "Sync interval for service mode (e.g., 1h, 30m)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagegraph sync [command] [options]

Commands:
  (none)      Sync once
  install     Install as a background service
  start       Start the background service
  stop        Stop the background service
  uninstall   Remove the background service
  status      Show service status

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  usagegraph sync                       Sync once
  usagegraph sync install               Install service (syncs every hour)
  usagegraph sync install --interval 30m
  usagegraph sync start                 Start the service
  usagegraph sync stop                  Stop the service
`)
	}

	// Check for service commands before parsing flags
	var svcCommand string
	if len(args) > 0 {
		switch args[0] {
		case "install", "start", "stop", "uninstall", "status":
			svcCommand = args[0]
			args = args[1:]
		}
	}

	fs.Parse(args)

	// Create service config
	svcConfig := &service.Config{
		Name:        "usagegraph-sync",
		DisplayName: "usagegraph Sync Service",
		Description: "Automatically syncs AI usage data to server",
		Arguments:   []string{"sync", "run", fmt.Sprintf("--interval=%s", interval)},
	}

	svc := &syncService{interval: interval}
	s, err := service.New(svc, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	// Handle service commands
	switch svcCommand {
	case "install":
		cfg, err := config.Load()
		if err != nil || cfg.Server == "" || cfg.APIKey == "" {
			fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'usagegraph config --server <url> --api-key <key>' first.\n")
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Printf("Service installed and started.\n")
		fmt.Printf("Sync interval: %s\n", interval)
		return

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")
		return

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")
		return

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")
		return

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
		} else {
			switch status {
			case service.StatusRunning:
				fmt.Println("Service status: running")
			case service.StatusStopped:
				fmt.Println("Service status: stopped")
			default:
				fmt.Println("Service status: unknown")
			}
		}
		return

	case "": // No service command - do a one-time sync
		cfg, err := config.Load()
		if err != nil || cfg.Server == "" || cfg.APIKey == "" {
			fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'usagegraph config --server <url> --api-key <key>' first.\n")
			os.Exit(1)
		}

		client := sync.NewClient(cfg)
		doSyncOnce(client, dryRun)
		return

	default:
		// Running as service (internal command)
		logger, err := s.Logger(nil)
		if err == nil {
			svc.logger = logger
		}
		if err := s.Run(); err != nil {
			logger.Error(err)
		}
	}
}

func doSyncOnce(client *sync.Client, dryRun bool) {
	lastSync, err := client.GetSyncStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get sync status: %v\n", err)
	}

	messages, err := parser.ParseAll(pricing.EmbeddedCatalog())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage data: %v\n", err)
		os.Exit(1)
	}

	toSync := newerThan(messages, lastSync)
	if len(toSync) == 0 {
		fmt.Println("No new messages to sync.")
		return
	}

	fmt.Printf("Found %d new messages to sync.\n", len(toSync))

	if dryRun {
		fmt.Println("Dry run - no data sent.")
		return
	}

	inserted, err := client.Sync(toSync)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error syncing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sync complete. %d messages inserted.\n", inserted)
}
