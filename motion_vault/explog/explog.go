package explog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/storage"
)

const logDir = "experiments"

// Field is one ordered key/value pair of a log entry. The key order of the
// first entry fixes the CSV column order for the life of the experiment.
type Field struct {
	Key   string
	Value string
}

// Store appends experiment progress entries to per-experiment CSV files under
// <data_dir>/experiments/ and records the file name and field set on the
// experiment row.
type Store struct {
	storage storage.Storage
	db      *gorm.DB
}

func NewStore(s storage.Storage, db *gorm.DB) *Store {
	return &Store{storage: s, db: db}
}

func logFilename(expName string, expId uint) string {
	return fmt.Sprintf("%s_%d_%d.csv", expName, expId, time.Now().Unix())
}

// Append writes one row. The first append creates the log file, writes the
// header, and stores the filename and field list on the experiment.
func (s *Store) Append(expId uint, entry []Field) error {
	exp, err := schema.GetExperiment(expId, s.db)
	if err != nil {
		return err
	}

	if exp.LogFile == "" {
		return s.startLog(exp, entry)
	}

	var fields []string
	if err := json.Unmarshal([]byte(exp.LogFields), &fields); err != nil {
		return fmt.Errorf("error parsing log fields for experiment %d: %w", expId, err)
	}

	values := make(map[string]string, len(entry))
	for _, field := range entry {
		values[field.Key] = field.Value
	}

	row := make([]string, 0, len(fields))
	for _, field := range fields {
		row = append(row, values[field])
	}

	return s.appendRow(exp.LogFile, row)
}

func (s *Store) startLog(exp schema.Experiment, entry []Field) error {
	filename := logFilename(exp.Name, exp.ID)

	fields := make([]string, 0, len(entry))
	row := make([]string, 0, len(entry))
	for _, field := range entry {
		fields = append(fields, field.Key)
		row = append(row, field.Value)
	}

	fieldsJson, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("error encoding log fields: %w", err)
	}

	if err := s.appendRow(filename, fields); err != nil {
		return err
	}
	if err := s.appendRow(filename, row); err != nil {
		return err
	}

	result := s.db.Model(&schema.Experiment{}).Where("id = ?", exp.ID).
		Updates(map[string]interface{}{"log_file": filename, "log_fields": string(fieldsJson)})
	if result.Error != nil {
		return fmt.Errorf("error recording log file on experiment %d: %w", exp.ID, result.Error)
	}

	return nil
}

func (s *Store) appendRow(filename string, row []string) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("error encoding log row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("error encoding log row: %w", err)
	}

	return s.storage.Append(filepath.Join(logDir, filename), &buf)
}

// Get parses the experiment's log and returns the field names and data rows.
// An experiment that has never logged returns empty fields and no rows.
func (s *Store) Get(expId uint) ([]string, [][]string, error) {
	exp, err := schema.GetExperiment(expId, s.db)
	if err != nil {
		return nil, nil, err
	}

	if exp.LogFile == "" {
		return []string{}, nil, nil
	}

	file, err := s.storage.Read(filepath.Join(logDir, exp.LogFile))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return parseLog(file)
}

func parseLog(data io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(data)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing experiment log: %w", err)
	}
	if len(records) == 0 {
		return []string{}, nil, nil
	}

	return records[0], records[1:], nil
}
