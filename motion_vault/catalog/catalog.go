package catalog

import (
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
)

// Filter is one comparison term. Slice values compare with IN, strings
// compare with LIKE '%v%' unless ExactMatch is set, everything else with =.
type Filter struct {
	Column     string
	Value      interface{}
	ExactMatch bool
}

func (f Filter) condition() (string, interface{}) {
	value := reflect.ValueOf(f.Value)
	if value.Kind() == reflect.Slice && value.Type().Elem().Kind() != reflect.Uint8 {
		return fmt.Sprintf("%s IN ?", f.Column), f.Value
	}

	if s, ok := f.Value.(string); ok && !f.ExactMatch {
		return fmt.Sprintf("%s LIKE ?", f.Column), "%" + s + "%"
	}

	return fmt.Sprintf("%s = ?", f.Column), f.Value
}

// Join is a LEFT JOIN fragment supplied by the caller, e.g. joining
// data_type_taggings onto files for tag filtering.
type Join struct {
	Table string
	On    string
}

// Query is the structured form of a catalog SELECT: Filters are AND-joined,
// Intersections form a single parenthesized OR group that is AND-ed with the
// filters when both are present.
type Query struct {
	Filters       []Filter
	Intersections []Filter
	Joins         []Join
	Distinct      bool
	Order         string
}

func (q Query) Apply(db *gorm.DB) *gorm.DB {
	for _, join := range q.Joins {
		db = db.Joins(fmt.Sprintf("LEFT JOIN %s ON %s", join.Table, join.On))
	}

	for _, filter := range q.Filters {
		cond, arg := filter.condition()
		db = db.Where(cond, arg)
	}

	if len(q.Intersections) > 0 {
		conds := make([]string, 0, len(q.Intersections))
		args := make([]interface{}, 0, len(q.Intersections))
		for _, filter := range q.Intersections {
			cond, arg := filter.condition()
			conds = append(conds, cond)
			args = append(args, arg)
		}
		db = db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}

	if q.Distinct {
		db = db.Distinct()
	}

	if q.Order != "" {
		db = db.Order(q.Order)
	}

	return db
}
