package explog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mocap_platform/motion_vault/explog"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/storage"
)

func setupStore(t *testing.T) (*explog.Store, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.Experiment{}))

	return explog.NewStore(storage.NewSharedDisk(t.TempDir()), db), db
}

func createExperiment(t *testing.T, db *gorm.DB, name string) uint {
	exp := schema.Experiment{Name: name, OwnerID: 1}
	require.NoError(t, db.Create(&exp).Error)
	return exp.ID
}

func TestFirstAppendCreatesLog(t *testing.T) {
	store, db := setupStore(t)
	expId := createExperiment(t, db, "gait_analysis")

	err := store.Append(expId, []explog.Field{
		{Key: "epoch", Value: "1"}, {Key: "loss", Value: "0.52"},
	})
	require.NoError(t, err)

	exp, err := schema.GetExperiment(expId, db)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(exp.LogFile, "gait_analysis_"))
	assert.True(t, strings.HasSuffix(exp.LogFile, ".csv"))
	assert.JSONEq(t, `["epoch","loss"]`, exp.LogFields)

	fields, rows, err := store.Get(expId)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch", "loss"}, fields)
	assert.Equal(t, [][]string{{"1", "0.52"}}, rows)
}

func TestSubsequentAppendsFollowFieldOrder(t *testing.T) {
	store, db := setupStore(t)
	expId := createExperiment(t, db, "gait_analysis")

	require.NoError(t, store.Append(expId, []explog.Field{
		{Key: "epoch", Value: "1"}, {Key: "loss", Value: "0.52"},
	}))
	// Later entries may list keys in a different order.
	require.NoError(t, store.Append(expId, []explog.Field{
		{Key: "loss", Value: "0.31"}, {Key: "epoch", Value: "2"},
	}))

	fields, rows, err := store.Get(expId)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch", "loss"}, fields)
	assert.Equal(t, [][]string{{"1", "0.52"}, {"2", "0.31"}}, rows)
}

func TestGetWithoutLog(t *testing.T) {
	store, db := setupStore(t)
	expId := createExperiment(t, db, "fresh")

	fields, rows, err := store.Get(expId)
	require.NoError(t, err)
	assert.Empty(t, fields)
	assert.Empty(t, rows)
}

func TestAppendToMissingExperiment(t *testing.T) {
	store, _ := setupStore(t)

	err := store.Append(999, []explog.Field{{Key: "epoch", Value: "1"}})
	assert.ErrorIs(t, err, schema.ErrExperimentNotFound)
}
