// Command orchestratord boots the multi-agent coordination runtime: it
// loads configuration, wires the Orchestrator and its subsystems, loads
// AgentSpec documents from the configured specs directory, and keeps
// watching that directory for changes until it is asked to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aosanya/agentruntime/internal/allocator"
	"github.com/aosanya/agentruntime/internal/config"
	"github.com/aosanya/agentruntime/internal/debugmgr"
	"github.com/aosanya/agentruntime/internal/demoagent"
	"github.com/aosanya/agentruntime/internal/orchestrator"
	"github.com/aosanya/agentruntime/internal/perfmon"
	"github.com/aosanya/agentruntime/internal/pubsub"
	"github.com/aosanya/agentruntime/internal/specs"
	"github.com/aosanya/agentruntime/internal/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("orchestratord\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
		"specs_dir":  cfg.SpecsDir,
	}).Info("starting orchestratord")

	orch := orchestrator.New(orchestrator.Config{
		Allocator: allocator.Config{
			StarvationThreshold:  cfg.Allocator.StarvationThreshold(),
			FairnessWindow:       cfg.Allocator.FairnessWindow,
			PriorityBoostStarved: cfg.Allocator.PriorityBoostForStarved,
		},
		DebugMgr: debugmgr.Config{
			Enabled:          cfg.DebugMgr.Enabled,
			LogMessages:      cfg.DebugMgr.LogMessages,
			LogRouting:       cfg.DebugMgr.LogRouting,
			LogAgentState:    cfg.DebugMgr.LogAgentState,
			LogWorkflowState: cfg.DebugMgr.LogWorkflowState,
		},
		PerfMon:     perfmon.Config{MaxHistorySize: cfg.PerfMonitor.MaxHistorySize},
		RetryPolicy: cfg.Retry.RetryPolicy(),
		BaseDelay:   50 * time.Millisecond,
	}, logger)

	loader, err := specs.New(cfg.SpecsDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to start spec loader")
	}
	defer loader.Close()

	initial, err := loader.LoadAll()
	if err != nil {
		logger.WithError(err).Fatal("failed to load agent specs")
	}
	for _, spec := range initial {
		registerFromSpec(orch, logger, spec)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go loader.Start(ctx)
	go watchSpecChanges(ctx, orch, loader, logger)

	if err := orch.Initialize(ctx); err != nil {
		logger.WithError(err).Error("one or more agents failed to initialize")
	}

	<-ctx.Done()
	logger.Info("shutting down orchestratord")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("one or more agents failed to shut down cleanly")
	}
}

// watchSpecChanges registers and deregisters agents as the specs
// directory changes, mirroring the loader's added/modified/removed
// events onto the orchestrator's agent registry.
func watchSpecChanges(ctx context.Context, orch *orchestrator.Orchestrator, loader *specs.Loader, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-loader.Changes():
			if change.Err != nil {
				logger.WithError(change.Err).WithField("spec_id", change.SpecID).Warn("invalid agent spec")
				continue
			}
			switch change.Type {
			case specs.ChangeRemoved:
				orch.DeregisterAgent(change.SpecID)
			case specs.ChangeAdded, specs.ChangeModified:
				orch.DeregisterAgent(change.SpecID)
				registerFromSpec(orch, logger, *change.Spec)
			}
			orch.Events().Publish(pubsub.Event{Topic: pubsub.TopicSpecChanged, Payload: change})
		}
	}
}

// registerFromSpec instantiates and registers the agent described by
// spec. The runtime currently ships one concrete agent implementation
// (the echo fixture); a production deployment would dispatch on
// spec.Capabilities to select among several registered agent builders.
func registerFromSpec(orch *orchestrator.Orchestrator, logger *logrus.Logger, spec types.AgentSpec) {
	a := demoagent.New(spec.ID, spec.Name)
	if err := orch.RegisterAgent(a); err != nil {
		logger.WithError(err).WithField("spec_id", spec.ID).Warn("failed to register agent from spec")
	}
}
