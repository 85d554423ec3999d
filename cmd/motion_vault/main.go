package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/config"
	"mocap_platform/motion_vault/runner"
	"mocap_platform/motion_vault/runner/kubernetes"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/services"
	"mocap_platform/motion_vault/storage"
)

func initLogging(dataDir string) (*os.File, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0777); err != nil {
		return nil, fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, "motion_vault.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(io.MultiWriter(logFile, os.Stderr), nil)))
	return logFile, nil
}

func initDb(cfg config.Config) *gorm.DB {
	var dialector gorm.Dialector
	if cfg.DbURL != "" {
		dialector = postgres.Open(cfg.DbURL)
	} else {
		dialector = sqlite.Open(cfg.DbPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

// bootstrapAdmin creates the configured admin account on first start so a
// fresh database is usable without manual inserts.
func bootstrapAdmin(db *gorm.DB, cfg config.Config) {
	if cfg.AdminUsername == "" || cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}

	_, err := schema.GetUserByName(cfg.AdminUsername, db)
	if err == nil {
		return
	}
	if !errors.Is(err, schema.ErrUserNotFound) {
		log.Fatalf("error checking for admin user: %v", err)
	}

	admin := schema.User{
		Name:     cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: auth.HashPassword(cfg.AdminPassword),
		Role:     schema.RoleAdmin,
	}
	if result := db.Create(&admin); result.Error != nil {
		log.Fatalf("error creating admin user: %v", result.Error)
	}

	slog.Info("created admin user", "user_id", admin.ID)
}

func jobClient(cfg config.Config) runner.Client {
	if cfg.ClusterURL == "" && cfg.KubeConfig == "" {
		slog.Info("no cluster configured, using local job client")
		return runner.NewLocalClient()
	}

	client, err := kubernetes.NewKubernetesClient(cfg.KubeConfig, cfg.ClusterNamespace)
	if err != nil {
		log.Fatalf("error creating kubernetes client: %v", err)
	}
	return client
}

func main() {
	configFile := flag.String("config", "", "Path to yaml config file. Environment variables override file values.")
	envFile := flag.String("env", "", "Optional .env file to load before reading config.")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading env file %q: %v", *envFile, err)
		}
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	logFile, err := initLogging(cfg.DataDir)
	if err != nil {
		log.Fatalf("error initializing logging: %v", err)
	}
	defer logFile.Close()

	db := initDb(cfg)
	bootstrapAdmin(db, cfg)

	store := storage.NewSharedDisk(cfg.DataDir)

	vault := services.NewMotionVault(db, store, jobClient(cfg), auth.LogMailer{}, services.Options{
		Secret:         []byte(cfg.ServerSecret),
		PublicURL:      cfg.PublicURL,
		Port:           cfg.Port,
		ClusterURL:     cfg.ClusterURL,
		ClusterImage:   cfg.ClusterImage,
		EnableEditing:  cfg.EnableEditing,
		EnableDownload: cfg.EnableDownload,
	})

	if err := vault.ActivateLoaders(); err != nil {
		log.Fatalf("error activating data loaders: %v", err)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", vault.Routes())

	slog.Info("starting server", "port", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), r); err != nil {
		log.Fatalf("listen and serve returned error: %v", err)
	}
}
