package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/eventstream/config"
	"github.com/customeros/eventstream/internal/database"
	"github.com/customeros/eventstream/internal/repository"
	"github.com/customeros/eventstream/server"
)

func main() {
	app := &cli.App{
		Name:    "eventstream",
		Version: "0.1.0",
		Usage:   "Analytics event ingestion and live streaming service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	cfg := mustLoadConfig()
	eventstreamDB := mustOpenDatabase(cfg)

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Eventstream starting up...")

	srv, err := server.NewServer(cfg, eventstreamDB)
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("Server startup failed: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func runMigrate(c *cli.Context) error {
	cfg := mustLoadConfig()

	if !cfg.DatabaseConfig.Configured() {
		log.Fatalf("Database migration requires EVENTSTREAM_POSTGRES_* settings")
	}
	eventstreamDB := mustOpenDatabase(cfg)

	if err := repository.MigrateEventstreamDB(eventstreamDB); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}

func mustLoadConfig() *config.Config {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}
	return cfg
}

// mustOpenDatabase connects to the token store when it is configured and
// returns nil otherwise. Without a store the server keeps token counters
// in memory only.
func mustOpenDatabase(cfg *config.Config) *gorm.DB {
	if !cfg.DatabaseConfig.Configured() {
		log.Println("Token store not configured, token counters stay in memory")
		return nil
	}

	eventstreamDB, err := database.InitEventstreamDatabase(&database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Eventstream database initialization failed: %v", err)
	}
	return eventstreamDB
}
