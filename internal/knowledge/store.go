// Package knowledge provides read/append access to the business knowledge
// base: (category, key, value) facts the prompt assembler folds into every
// conversation. Knowledge only grows; corrections are additional rows.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

// defaultCategory is assigned to rows with an empty category cell.
const defaultCategory = "general"

// Base is the knowledge base grouped by category. Categories keep the order
// in which they first appeared in the table, so prompt output is stable
// across loads of the same data.
type Base struct {
	categories []string
	keyOrder   map[string][]string
	entries    map[string]map[string]string
}

// Categories returns category names in load order.
func (b *Base) Categories() []string {
	if b == nil {
		return nil
	}
	return b.categories
}

// Keys returns a category's keys in the order they first appeared.
func (b *Base) Keys(category string) []string {
	if b == nil {
		return nil
	}
	return b.keyOrder[category]
}

// Entries returns the key/value pairs of one category.
func (b *Base) Entries(category string) map[string]string {
	if b == nil {
		return nil
	}
	return b.entries[category]
}

// Len returns the total number of entries across all categories.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, e := range b.entries {
		n += len(e)
	}
	return n
}

// Store reads and appends knowledge rows.
type Store struct {
	rows  rowstore.Store
	clock func() time.Time
}

// NewStore creates a Store over the given row store.
func NewStore(rows rowstore.Store) *Store {
	return &Store{rows: rows, clock: time.Now}
}

// LoadAll reads every knowledge row and groups it by category. Duplicate keys
// within a category shadow silently: the last row wins, matching the
// storage-append order. Rows missing a key or value are skipped.
func (s *Store) LoadAll(ctx context.Context) (*Base, error) {
	rows, err := s.rows.ListRows(ctx, rowstore.TableKnowledge)
	if err != nil {
		return nil, err
	}

	base := &Base{
		keyOrder: make(map[string][]string),
		entries:  make(map[string]map[string]string),
	}
	if len(rows) == 0 {
		return base, nil
	}

	for _, row := range rows[1:] { // skip header
		if len(row) < 3 {
			continue
		}
		category, key, value := row[0], row[1], row[2]
		if key == "" || value == "" {
			continue
		}
		if category == "" {
			category = defaultCategory
		}
		if _, ok := base.entries[category]; !ok {
			base.entries[category] = make(map[string]string)
			base.categories = append(base.categories, category)
		}
		if _, seen := base.entries[category][key]; !seen {
			base.keyOrder[category] = append(base.keyOrder[category], key)
		}
		base.entries[category][key] = value
	}
	return base, nil
}

// Add appends one knowledge row stamped with the current time.
func (s *Store) Add(ctx context.Context, category, key, value, notes string) error {
	if key == "" || value == "" {
		return fmt.Errorf("knowledge entry needs both key and value")
	}
	if category == "" {
		category = defaultCategory
	}
	row := rowstore.Row{category, key, value, notes, s.clock().UTC().Format(time.RFC3339)}
	return s.rows.AppendRow(ctx, rowstore.TableKnowledge, row)
}
