package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/droxporter/droxporter/internal/config"
	"github.com/droxporter/droxporter/internal/httpapi"
	"github.com/droxporter/droxporter/internal/jobs"
	"github.com/droxporter/droxporter/internal/logging"
	"github.com/droxporter/droxporter/internal/provider"
	"github.com/droxporter/droxporter/internal/ratelimit"
	"github.com/droxporter/droxporter/internal/registry"
	"github.com/droxporter/droxporter/internal/scheduler"
	"github.com/droxporter/droxporter/internal/selftelemetry"
	"github.com/droxporter/droxporter/internal/store"
)

const configEnvVar = "DROXPORTER_CONFIG"

// rootCmd represents the base command: droxporter has no
// subcommands, it is a single long-running daemon started by flags.
func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "droxporter",
		Short: "Prometheus exporter for DigitalOcean droplet metrics",
		Long: `droxporter polls the DigitalOcean API for droplet fleet metrics
(bandwidth, CPU, filesystem, memory, load average) and exposes them in
Prometheus text format on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv(configEnvVar)
			}
			if configPath == "" {
				return fmt.Errorf("no config path given: pass --config or set %s", configEnvVar)
			}
			return run(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file (or set "+configEnvVar+")")
	return cmd
}

// Execute runs the root command. It only needs to happen once, from
// main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCmd()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires every component together and blocks until ctx is
// cancelled or the HTTP listener fails to start.
func run(ctx context.Context, configPath string) error {
	logger := logging.New("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	groups := buildKeyGroups(cfg)
	pool := ratelimit.NewPool(groups, defaultPrefill(cfg))

	// Every family is exposed under the droxporter_ namespace, after the
	// operator's custom.prefix (e.g. do_droxporter_droplet_cpu).
	s := store.New(cfg.Custom.Prefix+"droxporter_", cfg.Custom.Labels)
	families := jobs.NewFamilies(s)

	telemetry, err := selftelemetry.New(cfg.ExporterMetrics, pool, s, float64(time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("self telemetry: %w", err)
	}

	client := provider.New(pool, "", telemetry.RecordProviderRequest)

	evictor := s
	reg := registry.New(evictor)

	jobsCounter, jobsHistogram := scheduler.RegisterMetrics(s.NewCounter, s.NewHistogram)
	sched := scheduler.New(logger, jobsCounter, jobsHistogram)

	dropletsGroup := groupNameOrDefault(cfg.Droplets.Keys)
	sched.Register(jobs.NewDropletListJob(client, reg, families, cfg.Droplets, dropletsGroup), cfg.Droplets.Interval)

	registerFamilyJob(sched, cfg.Metrics.Bandwidth, "bandwidth", func(fc config.FamilyConfig, group string) scheduler.Job {
		return jobs.NewBandwidthJob(client, reg, families, fc, group)
	})
	registerFamilyJob(sched, cfg.Metrics.CPU, "cpu", func(fc config.FamilyConfig, group string) scheduler.Job {
		return jobs.NewCPUJob(client, reg, families, fc, group)
	})
	registerFamilyJob(sched, cfg.Metrics.Filesystem, "filesystem", func(fc config.FamilyConfig, group string) scheduler.Job {
		return jobs.NewFilesystemJob(client, reg, families, fc, group)
	})
	registerFamilyJob(sched, cfg.Metrics.Memory, "memory", func(fc config.FamilyConfig, group string) scheduler.Job {
		return jobs.NewMemoryJob(client, reg, families, fc, group)
	})
	registerFamilyJob(sched, cfg.Metrics.Load, "load", func(fc config.FamilyConfig, group string) scheduler.Job {
		return jobs.NewLoadJob(client, reg, families, fc, group)
	})

	if cfg.ExporterMetrics.Enabled {
		sched.Register(telemetry, cfg.ExporterMetrics.Interval)
	}

	handler := httpapi.NewHandler(s, cfg.Endpoint)
	srv := &http.Server{Addr: httpapi.Addr(cfg.Endpoint), Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", srv.Addr)
		errCh <- httpapi.ListenAndServe(srv, cfg.Endpoint)
	}()

	go sched.Run(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("http shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// buildKeyGroups assembles the ratelimit.Pool's group->tokens map from
// the top-level default-keys plus each family's own key override.
func buildKeyGroups(cfg *config.Config) map[string][]string {
	groups := map[string][]string{ratelimit.DefaultGroup: cfg.DefaultKeys}
	addGroup := func(name string, keys []string) {
		if len(keys) > 0 {
			groups[name] = keys
		}
	}
	addGroup("droplets", cfg.Droplets.Keys)
	addGroup("bandwidth", cfg.Metrics.Bandwidth.Keys)
	addGroup("cpu", cfg.Metrics.CPU.Keys)
	addGroup("filesystem", cfg.Metrics.Filesystem.Keys)
	addGroup("memory", cfg.Metrics.Memory.Keys)
	addGroup("load", cfg.Metrics.Load.Keys)
	return groups
}

// defaultPrefill resolves the Open Question left by spec.md §9: absent
// an explicit warm-up knob in the configuration table, every bucket
// pre-fills to full capacity so the first tick after startup is never
// artificially throttled.
func defaultPrefill(cfg *config.Config) float64 {
	return 5000
}

func groupNameOrDefault(keys []string) string {
	if len(keys) > 0 {
		return "droplets"
	}
	return ratelimit.DefaultGroup
}

// registerFamilyJob registers build's job under groupName if that
// family has its own keys configured (matching buildKeyGroups' naming
// for that family), falling back to the default group otherwise.
func registerFamilyJob(sched *scheduler.Scheduler, fc config.FamilyConfig, groupName string, build func(config.FamilyConfig, string) scheduler.Job) {
	if !fc.Enabled {
		return
	}
	group := ratelimit.DefaultGroup
	if len(fc.Keys) > 0 {
		group = groupName
	}
	sched.Register(build(fc, group), fc.Interval)
}
