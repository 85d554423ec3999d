package tests

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/runner"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/services"
	"mocap_platform/motion_vault/storage"

	"github.com/go-chi/chi/v5"
)

type testEnv struct {
	vault   *services.MotionVault
	api     chi.Router
	db      *gorm.DB
	dataDir string
	jobs    *runner.LocalClient
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		t.Fatal(err)
	}

	admin := schema.User{
		Name:     adminUsername,
		Email:    adminEmail,
		Password: auth.HashPassword(adminPassword),
		Role:     schema.RoleAdmin,
	}
	if result := db.Create(&admin); result.Error != nil {
		t.Fatal(result.Error)
	}

	dataDir := filepath.Join(t.TempDir(), "storage")
	if err := os.MkdirAll(dataDir, 0777); err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	jobs := runner.NewLocalClient()

	vault := services.NewMotionVault(
		db, storage.NewSharedDisk(dataDir), jobs, auth.LogMailer{},
		services.Options{
			Secret:         []byte("290zcv02ai249"),
			PublicURL:      "http://localhost",
			Port:           8000,
			ClusterImage:   "motion-vault-jobs",
			EnableEditing:  true,
			EnableDownload: true,
		},
	)

	return &testEnv{vault: vault, api: vault.Routes(), db: db, dataDir: dataDir, jobs: jobs}
}

func (e *testEnv) newClient() *client {
	return &client{api: e.api}
}

func (e *testEnv) adminClient(t *testing.T) *client {
	c := e.newClient()
	if err := c.login(adminUsername, adminPassword); err != nil {
		t.Fatal(err)
	}
	return c
}

// newUser registers a regular user through the admin account and logs them in.
func (e *testEnv) newUser(t *testing.T, name string) *client {
	admin := e.adminClient(t)

	var res map[string]interface{}
	err := admin.postJson("/users/add", map[string]interface{}{
		"name": name, "email": name + "@mail.com", "password": name + "_password",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}

	c := e.newClient()
	if err := c.login(name, name+"_password"); err != nil {
		t.Fatal(err)
	}
	return c
}

// blobCount counts the blob files stored for a catalog table.
func (e *testEnv) blobCount(t *testing.T, table string) int {
	entries, err := os.ReadDir(filepath.Join(e.dataDir, table))
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatal(err)
	}
	return len(entries)
}
