package knowledge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

type fakeRows struct {
	mu     sync.Mutex
	tables map[string][]rowstore.Row
}

func newFakeRows() *fakeRows {
	return &fakeRows{tables: map[string][]rowstore.Row{
		rowstore.TableKnowledge: {rowstore.KnowledgeHeaders},
		rowstore.TableTraining:  {{"DateTime", "Sender", "Message"}},
	}}
}

func (f *fakeRows) ListRows(ctx context.Context, table string) ([]rowstore.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]rowstore.Row, len(f.tables[table]))
	copy(rows, f.tables[table])
	return rows, nil
}

func (f *fakeRows) AppendRow(ctx context.Context, table string, row rowstore.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], row)
	return nil
}

func (f *fakeRows) UpdateRow(ctx context.Context, table string, rowIndex int, row rowstore.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table][rowIndex-1] = row
	return nil
}

func (f *fakeRows) InitializeSchema(ctx context.Context) error { return nil }

func TestLoadAll_GroupsByCategory(t *testing.T) {
	rows := newFakeRows()
	rows.tables[rowstore.TableKnowledge] = append(rows.tables[rowstore.TableKnowledge],
		rowstore.Row{"pricing", "RTX 4070", "$600", "", ""},
		rowstore.Row{"shipping", "delivery", "3-5 days", "", ""},
		rowstore.Row{"pricing", "RTX 4060", "$450", "", ""},
	)
	s := NewStore(rows)

	base, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", base.Len())
	}

	cats := base.Categories()
	if len(cats) != 2 || cats[0] != "pricing" || cats[1] != "shipping" {
		t.Errorf("categories not in first-seen order: %v", cats)
	}
	keys := base.Keys("pricing")
	if len(keys) != 2 || keys[0] != "RTX 4070" || keys[1] != "RTX 4060" {
		t.Errorf("keys not in first-seen order: %v", keys)
	}
	if base.Entries("shipping")["delivery"] != "3-5 days" {
		t.Errorf("entry lookup failed: %v", base.Entries("shipping"))
	}
}

func TestLoadAll_LastWriteWins(t *testing.T) {
	rows := newFakeRows()
	rows.tables[rowstore.TableKnowledge] = append(rows.tables[rowstore.TableKnowledge],
		rowstore.Row{"pricing", "RTX 4070", "$650", "", ""},
		rowstore.Row{"pricing", "RTX 4070", "$600", "price drop", ""},
	)
	s := NewStore(rows)

	base, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := base.Entries("pricing")["RTX 4070"]; got != "$600" {
		t.Errorf("later row should shadow earlier, got %q", got)
	}
	if keys := base.Keys("pricing"); len(keys) != 1 {
		t.Errorf("duplicate key should not repeat in order: %v", keys)
	}
}

func TestLoadAll_SkipsMalformedRows(t *testing.T) {
	rows := newFakeRows()
	rows.tables[rowstore.TableKnowledge] = append(rows.tables[rowstore.TableKnowledge],
		rowstore.Row{"pricing"},               // too short
		rowstore.Row{"pricing", "", "$100"},   // empty key
		rowstore.Row{"pricing", "thing", ""},  // empty value
		rowstore.Row{"", "warranty", "6 mo"},  // empty category -> general
	)
	s := NewStore(rows)

	base, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", base.Len())
	}
	if base.Entries("general")["warranty"] != "6 mo" {
		t.Errorf("categoryless row should land in general: %v", base.Entries("general"))
	}
}

func TestAdd_AppendsStampedRow(t *testing.T) {
	rows := newFakeRows()
	s := NewStore(rows)
	s.clock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	if err := s.Add(context.Background(), "", "warranty", "6 months", "from owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := rows.tables[rowstore.TableKnowledge]
	if len(got) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(got))
	}
	row := got[1]
	if row[0] != "general" || row[1] != "warranty" || row[2] != "6 months" || row[3] != "from owner" {
		t.Errorf("row content wrong: %v", row)
	}
	if row[4] != "2024-06-01T12:00:00Z" {
		t.Errorf("timestamp wrong: %q", row[4])
	}
}

func TestAdd_RejectsEmptyKeyOrValue(t *testing.T) {
	s := NewStore(newFakeRows())

	if err := s.Add(context.Background(), "c", "", "v", ""); err == nil {
		t.Error("empty key should be rejected")
	}
	if err := s.Add(context.Background(), "c", "k", "", ""); err == nil {
		t.Error("empty value should be rejected")
	}
}

func TestLoadTraining_GroupsOfFour(t *testing.T) {
	rows := newFakeRows()
	for i, msg := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		sender := "Customer"
		if i%2 == 1 {
			sender = "Owner"
		}
		rows.tables[rowstore.TableTraining] = append(rows.tables[rowstore.TableTraining],
			rowstore.Row{"2024-01-01", sender, msg})
	}
	s := NewStore(rows)

	convos, err := s.LoadTraining(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 9 lines -> two full groups of four, trailing single line dropped.
	if len(convos) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convos))
	}
	if len(convos[0]) != 4 || len(convos[1]) != 4 {
		t.Errorf("group sizes wrong: %d and %d", len(convos[0]), len(convos[1]))
	}
	if convos[0][0].Message != "a" || convos[1][3].Message != "h" {
		t.Errorf("grouping order wrong: %+v", convos)
	}
}

func TestLoadTraining_KeepsTrailingPair(t *testing.T) {
	rows := newFakeRows()
	rows.tables[rowstore.TableTraining] = append(rows.tables[rowstore.TableTraining],
		rowstore.Row{"2024-01-01", "Customer", "hi"},
		rowstore.Row{"2024-01-01", "Owner", "hello"},
	)
	s := NewStore(rows)

	convos, err := s.LoadTraining(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(convos) != 1 || len(convos[0]) != 2 {
		t.Fatalf("trailing pair should be kept: %+v", convos)
	}
}

func TestLoadTraining_SkipsBlankMessages(t *testing.T) {
	rows := newFakeRows()
	rows.tables[rowstore.TableTraining] = append(rows.tables[rowstore.TableTraining],
		rowstore.Row{"2024-01-01", "Customer", "hi"},
		rowstore.Row{"2024-01-01", "Owner", "   "},
		rowstore.Row{"2024-01-01", "Owner", "hello"},
	)
	s := NewStore(rows)

	convos, err := s.LoadTraining(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(convos) != 1 || len(convos[0]) != 2 {
		t.Fatalf("blank line should be skipped: %+v", convos)
	}
	if convos[0][1].Message != "hello" {
		t.Errorf("wrong second line: %+v", convos[0])
	}
}
