package table

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"mocap_platform/motion_vault/blob"
	"mocap_platform/motion_vault/catalog"
)

var ErrRowNotFound = errors.New("row not found")

type Record map[string]interface{}

// Table wraps one catalog table whose data columns hold blob filenames. Every
// mutation keeps the blob store and the row in lock-step: writes store the
// blob before the row references it, deletes remove blobs before rows, and
// replacing a data column deletes the previously referenced blob. Reads
// substitute the loaded payload for the filename.
type Table struct {
	name        string
	dataColumns []string
	db          *gorm.DB
	blobs       *blob.Store
}

// New creates a façade for the named table. Data columns default to
// {data, meta_data} when none are given.
func New(name string, db *gorm.DB, blobs *blob.Store, dataColumns ...string) *Table {
	if len(dataColumns) == 0 {
		dataColumns = []string{"data", "meta_data"}
	}
	return &Table{name: name, dataColumns: dataColumns, db: db, blobs: blobs}
}

func (t *Table) Name() string { return t.name }

func (t *Table) isDataColumn(col string) bool {
	for _, c := range t.dataColumns {
		if c == col {
			return true
		}
	}
	return false
}

func asBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("data column value must be bytes, got %T", value)
	}
}

func asFilename(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// saveDataColumns replaces each data-column payload in the record with the
// filename assigned by the blob store.
func (t *Table) saveDataColumns(record Record) (Record, error) {
	row := make(Record, len(record)+1)
	for col, value := range record {
		if !t.isDataColumn(col) {
			row[col] = value
			continue
		}

		data, err := asBytes(value)
		if err != nil {
			return nil, err
		}
		filename, err := t.blobs.Save(t.name, col, data)
		if err != nil {
			return nil, err
		}
		row[col] = filename
	}
	return row, nil
}

func (t *Table) Create(record Record) (uint, error) {
	row, err := t.saveDataColumns(record)
	if err != nil {
		return 0, err
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = time.Now().UTC()
	}

	if err := t.db.Table(t.name).Create(map[string]interface{}(row)).Error; err != nil {
		slog.Error("sql error creating row", "table", t.name, "error", err)
		return 0, fmt.Errorf("error creating row in %v: %w", t.name, err)
	}

	return t.MaxId()
}

func (t *Table) MaxId() (uint, error) {
	var maxId *uint
	err := t.db.Table(t.name).Select("max(id)").Scan(&maxId).Error
	if err != nil {
		slog.Error("sql error getting max id", "table", t.name, "error", err)
		return 0, fmt.Errorf("error getting max id of %v: %w", t.name, err)
	}
	if maxId == nil {
		return 0, nil
	}
	return *maxId, nil
}

// Get returns the row with the given id, loading data-column payloads. Only
// the requested columns are populated; pass nil for all columns.
func (t *Table) Get(id uint, cols []string) (Record, error) {
	return t.getWhere(cols, "id = ?", id)
}

func (t *Table) GetByName(name string, cols []string) (Record, error) {
	return t.getWhere(cols, "name = ?", name)
}

func (t *Table) getWhere(cols []string, cond string, args ...interface{}) (Record, error) {
	tx := t.db.Table(t.name)
	if len(cols) > 0 {
		tx = tx.Select(cols)
	}

	var row map[string]interface{}
	if err := tx.Where(cond, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRowNotFound
		}
		slog.Error("sql error reading row", "table", t.name, "error", err)
		return nil, fmt.Errorf("error reading row from %v: %w", t.name, err)
	}

	if err := t.loadDataColumns(row); err != nil {
		return nil, err
	}
	return row, nil
}

// List runs the query and substitutes blob payloads into every returned row.
func (t *Table) List(cols []string, q catalog.Query) ([]Record, error) {
	tx := t.db.Table(t.name)
	if len(cols) > 0 {
		tx = tx.Select(cols)
	}

	var rows []map[string]interface{}
	if err := q.Apply(tx).Find(&rows).Error; err != nil {
		slog.Error("sql error listing rows", "table", t.name, "error", err)
		return nil, fmt.Errorf("error listing rows from %v: %w", t.name, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		if err := t.loadDataColumns(row); err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	return records, nil
}

func (t *Table) loadDataColumns(row map[string]interface{}) error {
	for _, col := range t.dataColumns {
		value, ok := row[col]
		if !ok {
			continue
		}
		data, err := t.blobs.Load(t.name, asFilename(value))
		if err != nil {
			return err
		}
		row[col] = data
	}
	return nil
}

// Update replaces the given columns on the row. For data columns the old blob
// filenames are read back before the row is touched, the new payloads are
// stored, the old blobs deleted, and only then is the row updated.
func (t *Table) Update(id uint, record Record) error {
	return t.updateWhere(record, "id = ?", id)
}

func (t *Table) UpdateByCondition(record Record, cond string, args ...interface{}) error {
	return t.updateWhere(record, cond, args...)
}

func (t *Table) updateWhere(record Record, cond string, args ...interface{}) error {
	modified := make([]string, 0, len(t.dataColumns))
	for _, col := range t.dataColumns {
		if _, ok := record[col]; ok {
			modified = append(modified, col)
		}
	}

	var oldRows []map[string]interface{}
	if len(modified) > 0 {
		err := t.db.Table(t.name).Select(modified).Where(cond, args...).Find(&oldRows).Error
		if err != nil {
			slog.Error("sql error reading old blob filenames", "table", t.name, "error", err)
			return fmt.Errorf("error reading row from %v: %w", t.name, err)
		}
	}

	row, err := t.saveDataColumns(record)
	if err != nil {
		return err
	}

	for _, oldRow := range oldRows {
		for _, col := range modified {
			if err := t.blobs.Remove(t.name, asFilename(oldRow[col])); err != nil {
				return err
			}
		}
	}

	err = t.db.Table(t.name).Where(cond, args...).Updates(map[string]interface{}(row)).Error
	if err != nil {
		slog.Error("sql error updating row", "table", t.name, "error", err)
		return fmt.Errorf("error updating row in %v: %w", t.name, err)
	}
	return nil
}

// Delete removes the row and its blobs. Deleting an absent id is a no-op.
func (t *Table) Delete(id uint) error {
	return t.deleteWhere("id = ?", id)
}

func (t *Table) DeleteByName(name string) error {
	return t.deleteWhere("name = ?", name)
}

func (t *Table) DeleteByCondition(cond string, args ...interface{}) error {
	return t.deleteWhere(cond, args...)
}

func (t *Table) deleteWhere(cond string, args ...interface{}) error {
	var rows []map[string]interface{}
	err := t.db.Table(t.name).Select(t.dataColumns).Where(cond, args...).Find(&rows).Error
	if err != nil {
		slog.Error("sql error reading rows for delete", "table", t.name, "error", err)
		return fmt.Errorf("error reading rows from %v: %w", t.name, err)
	}

	for _, row := range rows {
		for _, col := range t.dataColumns {
			if err := t.blobs.Remove(t.name, asFilename(row[col])); err != nil {
				return err
			}
		}
	}

	err = t.db.Table(t.name).Where(cond, args...).Delete(nil).Error
	if err != nil {
		slog.Error("sql error deleting rows", "table", t.name, "error", err)
		return fmt.Errorf("error deleting rows from %v: %w", t.name, err)
	}
	return nil
}
