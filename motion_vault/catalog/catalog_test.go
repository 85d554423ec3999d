package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mocap_platform/motion_vault/catalog"
)

type fileRow struct {
	ID       uint `gorm:"primaryKey"`
	Name     string
	DataType string
}

type taggingRow struct {
	DataType string `gorm:"primaryKey"`
	Tag      string `gorm:"primaryKey"`
}

func (taggingRow) TableName() string { return "taggings" }

func setupDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&fileRow{}, &taggingRow{}))

	files := []fileRow{
		{Name: "walk_01", DataType: "motion"},
		{Name: "walk_02", DataType: "motion"},
		{Name: "walk_model", DataType: "motion_primitive"},
		{Name: "run_01", DataType: "motion"},
	}
	require.NoError(t, db.Create(&files).Error)

	taggings := []taggingRow{
		{DataType: "motion", Tag: "time_series"},
		{DataType: "motion_primitive", Tag: "model"},
	}
	require.NoError(t, db.Create(&taggings).Error)

	return db
}

func listNames(t *testing.T, db *gorm.DB, q catalog.Query) []string {
	var names []string
	err := q.Apply(db.Table("file_rows").Select("file_rows.name")).Scan(&names).Error
	require.NoError(t, err)
	return names
}

func TestSubstringFilter(t *testing.T) {
	db := setupDb(t)

	names := listNames(t, db, catalog.Query{
		Filters: []catalog.Filter{{Column: "name", Value: "walk"}},
	})
	assert.ElementsMatch(t, []string{"walk_01", "walk_02", "walk_model"}, names)
}

func TestExactMatchFilter(t *testing.T) {
	db := setupDb(t)

	names := listNames(t, db, catalog.Query{
		Filters: []catalog.Filter{{Column: "name", Value: "walk", ExactMatch: true}},
	})
	assert.Empty(t, names)

	names = listNames(t, db, catalog.Query{
		Filters: []catalog.Filter{{Column: "name", Value: "walk_01", ExactMatch: true}},
	})
	assert.Equal(t, []string{"walk_01"}, names)
}

func TestInFilter(t *testing.T) {
	db := setupDb(t)

	names := listNames(t, db, catalog.Query{
		Filters: []catalog.Filter{{Column: "name", Value: []string{"walk_01", "run_01"}}},
	})
	assert.ElementsMatch(t, []string{"walk_01", "run_01"}, names)
}

func TestIntersectionGroupIsAndedWithFilters(t *testing.T) {
	db := setupDb(t)

	names := listNames(t, db, catalog.Query{
		Filters: []catalog.Filter{{Column: "data_type", Value: "motion", ExactMatch: true}},
		Intersections: []catalog.Filter{
			{Column: "name", Value: "walk_01", ExactMatch: true},
			{Column: "name", Value: "run_01", ExactMatch: true},
		},
	})
	assert.ElementsMatch(t, []string{"walk_01", "run_01"}, names)
}

func TestJoinWithDistinct(t *testing.T) {
	db := setupDb(t)

	q := catalog.Query{
		Joins: []catalog.Join{
			{Table: "taggings", On: "file_rows.data_type = taggings.data_type"},
		},
		Intersections: []catalog.Filter{
			{Column: "taggings.tag", Value: "model", ExactMatch: true},
		},
		Distinct: true,
	}
	names := listNames(t, db, q)
	assert.Equal(t, []string{"walk_model"}, names)

	q.Intersections = append(q.Intersections, catalog.Filter{Column: "taggings.tag", Value: "time_series", ExactMatch: true})
	names = listNames(t, db, q)
	assert.ElementsMatch(t, []string{"walk_01", "walk_02", "walk_model", "run_01"}, names)
}

func TestOrder(t *testing.T) {
	db := setupDb(t)

	names := listNames(t, db, catalog.Query{Order: "name desc"})
	assert.Equal(t, []string{"walk_model", "walk_02", "walk_01", "run_01"}, names)
}
