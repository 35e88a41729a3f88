package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	agentapi "github.com/agentapi-dev/agentapi"
	"github.com/agentapi-dev/agentapi/internal/api"
	"github.com/agentapi-dev/agentapi/internal/metrics"
	"github.com/agentapi-dev/agentapi/internal/monitor"
	"github.com/agentapi-dev/agentapi/pkg/auth"
	"github.com/agentapi-dev/agentapi/pkg/backup"
	"github.com/agentapi-dev/agentapi/pkg/deploy"
	"github.com/agentapi-dev/agentapi/pkg/observability"
	"github.com/agentapi-dev/agentapi/pkg/store"

	// Register built-in agent roles.
	_ "github.com/agentapi-dev/agentapi/agents"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "agentapi",
		Short:         "Multi-agent coordination runtime",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), agentTypesCmd(), backupCmd(), deployCmd())

	if err := root.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the framework with the REST API and observability servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "configuration file")
	return cmd
}

func serve(cfg *agentapi.Config) error {
	log.Printf("Starting agentapi v%s", Version)

	observability.InitMetrics()
	health := observability.NewHealth(Version)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	health.AddProbe(observability.StoreProbe(st.Ping))

	fw := agentapi.New(cfg)
	health.AddProbe(observability.BusProbe(fw.Running))
	health.AddStatus("agents", func() any { return fw.ListAgents() })

	mon := monitor.New(monitor.DefaultThresholds())
	fw.Subscribe(agentapi.MetricsTopic, mon.Observe)
	health.AddStatus("monitor", func() any {
		return map[string]any{
			"healthy": mon.Healthy(),
			"latest":  mon.Latest(),
		}
	})

	// Persist every published snapshot so the history endpoint and backups
	// have data across restarts.
	fw.Subscribe(agentapi.MetricsTopic, func(data any) {
		snap, ok := data.(metrics.Snapshot)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.SaveMetrics(ctx, snap); err != nil {
			log.Printf("Persist metrics snapshot: %v", err)
		}
	})

	ctx := context.Background()
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("start framework: %w", err)
	}

	for _, def := range cfg.Agents {
		if _, err := fw.SpawnAgent(ctx, def); err != nil {
			return fmt.Errorf("spawn agent %s: %w", def.Name, err)
		}
		log.Printf("Spawned agent %s (role %s)", def.Name, def.Role)
	}

	authMgr, err := auth.NewManager(cfg.API.JWTSecret, cfg.API.TokenTTL.Duration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.API.AdminPassword != "" {
		if err := authMgr.CreateUser("admin", cfg.API.AdminPassword, []string{"admin"}); err != nil {
			return fmt.Errorf("seed admin user: %w", err)
		}
	}

	var backupMgr *backup.Manager
	if cfg.Backup.Enabled {
		backupMgr, err = backup.NewManager(backup.Config{
			Schedule: cfg.Backup.Schedule,
			Dir:      cfg.Backup.Dir,
			Keep:     cfg.Backup.Keep,
		}, st)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if err := backupMgr.Start(); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	apiServer := api.NewServer(cfg.API, fw, authMgr, st, mon)
	obsServer := observability.NewServer(cfg.Observability.Port, health)

	errChan := make(chan error, 2)
	go func() {
		if err := apiServer.Start(); err != nil {
			errChan <- err
		}
	}()
	go func() {
		log.Printf("Observability server on :%d", cfg.Observability.Port)
		if err := obsServer.Start(); err != nil {
			errChan <- fmt.Errorf("observability server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("Error: %v", err)
	case <-quit:
		log.Println("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown: %v", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Observability server shutdown: %v", err)
	}
	if backupMgr != nil {
		backupMgr.Stop()
	}
	if err := fw.Stop(shutdownCtx); err != nil {
		log.Printf("Framework shutdown: %v", err)
	}

	log.Println("Stopped")
	return nil
}

func agentTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent-types",
		Short: "List the agent roles this binary can spawn",
		Run: func(cmd *cobra.Command, args []string) {
			fw := agentapi.New(nil)
			for _, role := range fw.AgentRoles() {
				fmt.Fprintln(cmd.OutOrStdout(), role)
			}
		},
	}
}

func backupCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage store backups",
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "configuration file")

	now := &cobra.Command{
		Use:   "now",
		Short: "Write a backup archive immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, st, err := openBackup(configFile)
			if err != nil {
				return err
			}
			defer st.Close()

			path, err := mgr.BackupNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Load an archive back into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, st, err := openBackup(configFile)
			if err != nil {
				return err
			}
			defer st.Close()
			return mgr.Restore(cmd.Context(), args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backup archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, st, err := openBackup(configFile)
			if err != nil {
				return err
			}
			defer st.Close()

			paths, err := mgr.List()
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.AddCommand(now, restore, list)
	return cmd
}

func deployCmd() *cobra.Command {
	var (
		dir      string
		project  string
		replicas int
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Generate Kubernetes manifests and a docker-compose file",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := deploy.NewGenerator(project)
			gen.SetReplicas(replicas)
			if err := gen.WriteManifests(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deployment files generated in %s\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./k8s", "output directory for manifests")
	cmd.Flags().StringVar(&project, "project", "agentapi", "project name used in manifests")
	cmd.Flags().IntVar(&replicas, "replicas", 3, "deployment replica count")
	return cmd
}

func loadConfig(path string) (*agentapi.Config, error) {
	var cfg *agentapi.Config
	if path == "" {
		cfg = agentapi.DefaultConfig()
	} else {
		var err error
		cfg, err = agentapi.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *agentapi.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}

func openBackup(configFile string) (*backup.Manager, store.Store, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	mgr, err := backup.NewManager(backup.Config{
		Schedule: cfg.Backup.Schedule,
		Dir:      cfg.Backup.Dir,
		Keep:     cfg.Backup.Keep,
	}, st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return mgr, st, nil
}
