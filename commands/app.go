// Package commands wires the engine's packages into the CLI surface named
// in the external-interfaces contract: poll, task, scan, lint, watch,
// metrics serve, config.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/dispatch"
	"github.com/c360studio/aof/events"
	"github.com/c360studio/aof/gateway"
	"github.com/c360studio/aof/gateway/mock"
	"github.com/c360studio/aof/lease"
	"github.com/c360studio/aof/metrics"
	"github.com/c360studio/aof/murmur"
	"github.com/c360studio/aof/protocol"
	"github.com/c360studio/aof/scheduler"
	"github.com/c360studio/aof/store"
)

// RootEnv is the environment variable that selects the data directory
// (§6: "AOF_ROOT selects the data directory").
const RootEnv = "AOF_ROOT"

// App bundles every package a command needs, built once per invocation from
// the data directory named by --root/AOF_ROOT.
type App struct {
	Root     string
	Logger   *slog.Logger
	Project  *config.Project
	OrgChart *config.OrgChart

	Store     *store.Store
	Events    *events.Logger
	Leases    *lease.Manager
	Throttle  *dispatch.Throttle
	Executor  *dispatch.Executor
	Murmur    *murmur.Manager
	SLA       *metrics.Checker
	Metrics   *metrics.Registry
	Gateway   gateway.Gateway
	Router    *protocol.Router
	Scheduler *scheduler.Scheduler
}

// resolveRoot applies the --root flag over AOF_ROOT over the working
// directory, in that precedence order.
func resolveRoot(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(RootEnv); v != "" {
		return v
	}
	return "."
}

// NewApp loads the project manifest and org chart from root and wires the
// full engine around it. Lint warnings are logged; lint errors fail load.
func NewApp(rootFlag string) (*App, []config.Issue, error) {
	root := resolveRoot(rootFlag)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	loader := config.NewLoader(root, logger)
	loaded, issues, err := loader.Load()
	if err != nil {
		return nil, issues, fmt.Errorf("load config: %w", err)
	}
	for _, issue := range issues {
		logger.Warn("config lint warning", slog.String("rule", issue.Rule), slog.String("message", issue.Message))
	}

	emit := events.NewLogger(root, logger)
	s := store.New(root, logger, emit)
	leases := lease.New(s)

	throttle := dispatch.NewThrottle(dispatch.Limits{
		MaxConcurrentDispatches: dispatch.DefaultMaxConcurrentDispatches,
		MinDispatchIntervalMs:   dispatch.DefaultMinDispatchIntervalMs,
		MaxDispatchesPerPoll:    dispatch.DefaultMaxDispatchesPerPoll,
	})
	globalLimits := dispatch.Limits{
		MaxConcurrentDispatches: dispatch.DefaultMaxConcurrentDispatches,
		MinDispatchIntervalMs:   dispatch.DefaultMinDispatchIntervalMs,
		MaxDispatchesPerPoll:    dispatch.DefaultMaxDispatchesPerPoll,
	}
	for _, team := range loaded.OrgChart.Teams {
		if team.Dispatch.MaxConcurrent > 0 || team.Dispatch.MinIntervalMs > 0 {
			throttle.SetTeamLimits(team.ID, globalLimits.TeamOverride(team.Dispatch.MaxConcurrent, team.Dispatch.MinIntervalMs))
		}
	}

	gw := mock.New()
	mreg := metrics.NewRegistry()
	executor := dispatch.NewExecutor(s, leases, gw, throttle, emit, logger, dispatch.DefaultMaxDispatchRetries)
	murmurMgr := murmur.New(s, emit, logger)
	sla := metrics.NewChecker(loaded.Project, loaded.OrgChart, emit, mreg)

	resolver := func(projectID string) (*store.Store, *config.Project, bool) {
		if projectID != loaded.Project.ID {
			return nil, nil, false
		}
		return s, loaded.Project, true
	}
	router := protocol.NewRouter(resolver, emit, murmurMgr)

	sched := &scheduler.Scheduler{
		Store: s, Leases: leases, Gateway: gw, Throttle: throttle, Executor: executor,
		Murmur: murmurMgr, SLA: sla, Metrics: mreg, Events: emit,
		Project: loaded.Project, OrgChart: loaded.OrgChart, Logger: logger,
	}

	return &App{
		Root: root, Logger: logger, Project: loaded.Project, OrgChart: loaded.OrgChart,
		Store: s, Events: emit, Leases: leases, Throttle: throttle, Executor: executor,
		Murmur: murmurMgr, SLA: sla, Metrics: mreg, Gateway: gw, Router: router, Scheduler: sched,
	}, issues, nil
}
