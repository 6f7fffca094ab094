// activityd - Keyboard and mouse activity monitoring daemon
//
// activityd counts input events and tracks idle time. It records HOW MUCH
// activity happened, never WHAT was typed:
//
//	activityd run       Run the monitoring daemon
//	activityd status    Probe input-hook availability on this machine
//	activityd config    Show or initialize the configuration
//	activityd version   Print version information
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activityd/internal/config"
	"activityd/internal/engine"
	"activityd/internal/hook"
	"activityd/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "config":
		cmdConfig()
	case "version", "-v", "--version":
		fmt.Printf("activityd %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`activityd - Keyboard and Mouse Activity Monitoring

USAGE:
    activityd <command> [options]

COMMANDS:
    run         Run the monitoring daemon
    status      Probe input-hook availability on this machine
    config      Show or initialize the configuration
    version     Print version information
    help        Show this help message

PRIVACY NOTE:
    activityd counts input events - it does NOT capture which keys are
    pressed. This is NOT a keylogger. Only event counts and idle time
    are recorded.

PERMISSIONS:
    macOS:   Grant Accessibility permission in System Settings
    Linux:   Add yourself to the 'input' group, or enable the
             compositor idle fallback (idle clock only)
    Windows: No special permissions required`)
}

// cmdRun runs the monitoring daemon until interrupted.
func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default: platform config dir)")
	logPath := fs.String("log", "", "override the activity log path")
	fs.Parse(os.Args[2:])

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	defer loader.Close()

	if *logPath != "" {
		cfg.Log.Path = *logPath
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing directories: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	engOpts := engine.Options{
		KeyTimeout:      cfg.KeyTimeout(),
		PumpInterval:    cfg.PumpInterval(),
		CleanupInterval: cfg.CleanupInterval(),
		Logger:          log.Logger,
	}
	eng := engine.New(engOpts)

	if ok, reason := eng.Available(); !ok {
		log.Warn("input hook unavailable", "reason", reason)
	}
	if !eng.StartMonitoring() {
		fb, ok := fallbackEngine(engOpts, cfg, log)
		if !ok {
			fmt.Fprintln(os.Stderr, "Error: could not start input monitoring.")
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "On macOS: Grant Accessibility permission in System Settings")
			fmt.Fprintln(os.Stderr, "On Linux: Add yourself to the 'input' group or run as root")
			os.Exit(1)
		}
		eng = fb
	}
	log.Info("activityd started",
		"version", version,
		"activity_log", cfg.Log.Path,
		"key_timeout", cfg.KeyTimeout())

	// Hot reload: key timeout, log level and flush cadence apply live;
	// hook timing applies on restart. Reloads are funneled into the main
	// loop so the flush ticker is only touched from one goroutine.
	reload := make(chan *config.Config, 1)
	loader.OnChange(func(newCfg *config.Config) {
		select {
		case reload <- newCfg:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch unavailable", "error", err)
	}
	go func() {
		for err := range loader.Errors() {
			log.Warn("config reload failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	// The -log flag wins over any reloaded config value.
	activityLogPath := func() string {
		if *logPath != "" {
			return *logPath
		}
		return loader.Config().Log.Path
	}

	var (
		ticker *time.Ticker
		flush  <-chan time.Time
	)
	if iv := cfg.FlushInterval(); iv > 0 {
		ticker = time.NewTicker(iv)
		flush = ticker.C
	}

	for {
		select {
		case newCfg := <-reload:
			eng.SetKeyTimeout(newCfg.KeyTimeout())
			if level, err := logging.ParseLevel(newCfg.Logging.Level); err == nil {
				log.SetLevel(level)
			}
			if iv := newCfg.FlushInterval(); iv > 0 {
				if ticker == nil {
					ticker = time.NewTicker(iv)
					flush = ticker.C
				} else {
					ticker.Reset(iv)
				}
			} else if ticker != nil {
				ticker.Stop()
				ticker = nil
				flush = nil
			}
			log.Info("config reloaded",
				"key_timeout", newCfg.KeyTimeout(),
				"flush_interval", newCfg.FlushInterval(),
				"log_level", newCfg.Logging.Level)
		case <-flush:
			path := activityLogPath()
			if err := eng.SaveActivityLog(path); err != nil {
				log.Error("activity log flush failed", "path", path, "error", err)
			}
		case s := <-sig:
			log.Info("shutting down", "signal", s.String())
			// Final flush so the last accounting window isn't lost.
			path := activityLogPath()
			if err := eng.SaveActivityLog(path); err != nil {
				log.Error("final activity log flush failed", "path", path, "error", err)
			}
			eng.StopMonitoring()
			return
		}
	}
}

// cmdStatus probes whether input monitoring can run here.
func cmdStatus() {
	eng := engine.New(engine.Options{})
	ok, reason := eng.Available()

	fmt.Printf("activityd %s\n\n", version)
	if ok {
		fmt.Println("Input monitoring: available")
	} else {
		fmt.Println("Input monitoring: NOT available")
	}
	fmt.Printf("Detail: %s\n", reason)
	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Data:   %s\n", config.DataDir())

	if !ok {
		os.Exit(1)
	}
}

// cmdConfig shows the effective configuration or writes the default file.
func cmdConfig() {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default: platform config dir)")
	initialize := fs.Bool("init", false, "write a default config file if none exists")
	fs.Parse(os.Args[2:])

	if *initialize {
		cfg, created, err := config.LoadOrCreate(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		if created {
			fmt.Printf("Wrote default config to %s\n", path)
		} else {
			fmt.Printf("Config already exists at %s\n", path)
		}
		printConfig(cfg)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config is invalid: %v\n", err)
	}
	printConfig(cfg)
}

func printConfig(cfg *config.Config) {
	fmt.Println()
	fmt.Printf("Key timeout:      %s\n", cfg.KeyTimeout())
	fmt.Printf("Pump interval:    %s\n", cfg.PumpInterval())
	fmt.Printf("Cleanup interval: %s\n", cfg.CleanupInterval())
	fmt.Printf("Idle fallback:    %v\n", cfg.Engine.IdleFallback)
	fmt.Printf("Activity log:     %s\n", cfg.Log.Path)
	if iv := cfg.FlushInterval(); iv > 0 {
		fmt.Printf("Flush interval:   %s\n", iv)
	} else {
		fmt.Println("Flush interval:   disabled")
	}
	fmt.Printf("Log level:        %s\n", cfg.Logging.Level)
}

// fallbackEngine builds and starts an engine on the platform's degraded
// adapter when the full input hook cannot run. On Linux that is the
// compositor idle-monitor probe: the idle clock stays live but event
// counters cannot advance.
func fallbackEngine(opts engine.Options, cfg *config.Config, log *logging.Logger) (*engine.Engine, bool) {
	if !cfg.Engine.IdleFallback {
		return nil, false
	}

	var adapter hook.Adapter
	eng := engine.NewWithAdapter(opts, func(d *hook.Dispatcher) hook.Adapter {
		a, ok := hook.NewFallback(d)
		if !ok {
			return nil
		}
		adapter = a
		return a
	})
	if adapter == nil {
		return nil, false
	}
	if !eng.StartMonitoring() {
		return nil, false
	}
	log.Warn("input hooks unavailable; idle-clock fallback active (event counters disabled)")
	return eng, true
}

// newLogger builds the daemon logger from config.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "activityd",
	})
}
