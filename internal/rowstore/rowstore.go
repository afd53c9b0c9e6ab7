package rowstore

import (
	"context"
	"errors"
	"fmt"
)

// Row is one spreadsheet row as an ordered sequence of cell values.
type Row []string

// Store is the row-oriented persistence contract. Implementations provide no
// transactions and no partial updates: UpdateRow replaces the whole row, so a
// caller must carry every column forward or data is silently dropped.
//
// rowIndex for UpdateRow is 1-based and counts the header row, matching the
// Apps Script convention (first data row is index 2).
type Store interface {
	ListRows(ctx context.Context, table string) ([]Row, error)
	AppendRow(ctx context.Context, table string, row Row) error
	UpdateRow(ctx context.Context, table string, rowIndex int, row Row) error
	InitializeSchema(ctx context.Context) error
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TransportError marks a failure to reach or understand the remote store, as
// opposed to a record simply being absent. Callers can retry transport errors
// while treating not-found as terminal.
type TransportError struct {
	Op    string
	Table string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("rowstore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rowstore: %s %q: %v", e.Op, e.Table, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Well-known table names.
const (
	TableContacts  = "Contacts"
	TableKnowledge = "AI Memory"
	TableTraining  = "TrainingChats"
)

// ContactsHeaders is the expected header row of the Contacts table.
var ContactsHeaders = Row{
	"Phone Number", "Name", "First Contact", "Last Contact",
	"Total Messages", "Lead Status", "Tags", "Notes", "Chat History",
}

// KnowledgeHeaders is the expected header row of the knowledge table.
var KnowledgeHeaders = Row{"Category", "Key", "Value", "Notes", "Added At"}
