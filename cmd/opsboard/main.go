package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/authz"
	"github.com/saltyorg/opsboard/internal/config"
	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/logging"
	"github.com/saltyorg/opsboard/internal/maintenance"
	"github.com/saltyorg/opsboard/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultDBPath = "./opsboard.db"

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	policyPath  string
	corsOrigins []string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout  time.Duration
	queryTimeout time.Duration
)

// user add flags
var (
	newUsername  string
	newPassword  string
	newRole      string
	newCompanyID int64
)

func main() {
	// Missing .env is normal outside development
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "opsboard",
		Short: "Opsboard - operations dashboard backend",
		Long:  `Opsboard serves the department, stock and sales APIs of the operations dashboard and queries external databases on behalf of managers.`,
		RunE:  run,
	}

	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", defaultDBPath, "SQLite database path (or set DB_PATH env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVar(&policyPath, "policy", "", "Casbin policy CSV file, reloaded on change (or set OPSBOARD_POLICY env var)")
	rootCmd.Flags().StringArrayVar(&corsOrigins, "cors-origin", nil, "Origin allowed to call the API from a browser (repeatable)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 60*time.Second, "Timeout for handling a regular API request")
	rootCmd.Flags().DurationVar(&queryTimeout, "query-timeout", 30*time.Second, "Default timeout for external database queries")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opsboard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user in an existing company",
		RunE:  addUser,
	}
	addCmd.Flags().StringVarP(&newUsername, "username", "u", "", "Username (required)")
	addCmd.Flags().StringVar(&newPassword, "password", "", "Password (or set OPSBOARD_PASSWORD env var)")
	addCmd.Flags().StringVar(&newRole, "role", database.RoleManager, "Role: admin or manager")
	addCmd.Flags().Int64Var(&newCompanyID, "company", 0, "Company ID (required)")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("company")
	userCmd.AddCommand(addCmd)
	rootCmd.AddCommand(userCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveDBPath() {
	if dbPath == defaultDBPath {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}
}

func openDatabase() (*database.DB, error) {
	db, err := database.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return db, nil
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}
	resolveDBPath()
	if policyPath == "" {
		policyPath = os.Getenv("OPSBOARD_POLICY")
	}

	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Console only until the settings table is readable
	logging.Console(verbosity)

	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPRequest:   httpTimeout,
		ExternalQuery: queryTimeout,
		Shutdown:      30 * time.Second,
	})

	db, err := openDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	logging.Apply(verbosity, config.NewLoader(db), logging.FilePathForDB(dbPath))

	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Str("policy", policyPath).
		Strs("cors_origins", corsOrigins).
		Msg("Starting Opsboard")

	authorizer, err := authz.New(policyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load authorization policy")
	}
	if policyPath != "" {
		watcher, err := authz.NewPolicyWatcher(authorizer)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create policy watcher")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to watch policy file; changes need a restart")
		} else {
			defer watcher.Stop()
		}
	}

	server := web.NewServer(db, authorizer, web.Options{
		Port:        port,
		Bind:        bind,
		AllowedNet:  allowedNet,
		CORSOrigins: corsOrigins,
		IsDev:       version == "dev",
		Version:     version,
	})

	maintenanceMgr := maintenance.New(db)
	if err := maintenanceMgr.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start maintenance scheduler")
	}
	defer maintenanceMgr.Stop()
	server.SetMaintenanceManager(maintenanceMgr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Opsboard stopped")
	return nil
}

func addUser(cmd *cobra.Command, args []string) error {
	resolveDBPath()
	logging.Console(verbosity)

	if newPassword == "" {
		newPassword = os.Getenv("OPSBOARD_PASSWORD")
	}
	role := strings.ToLower(newRole)
	if !database.ValidRole(role) {
		return fmt.Errorf("invalid role %q", newRole)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	company, err := db.GetCompany(newCompanyID)
	if err != nil {
		return err
	}
	if company == nil {
		return fmt.Errorf("company %d not found", newCompanyID)
	}

	user, err := auth.NewAuthService(db).CreateUser(newUsername, newPassword, role, company.ID)
	if err != nil {
		return err
	}

	log.Info().
		Int64("id", user.ID).
		Str("username", user.Username).
		Str("role", user.Role).
		Str("company", company.Name).
		Msg("User created")
	return nil
}
