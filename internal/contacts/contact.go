package contacts

import (
	"strconv"
	"time"

	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

// Lead status values a contact can carry.
const (
	StatusBrowsing    = "browsing"
	StatusInterested  = "interested"
	StatusHotLead     = "hot lead"
	StatusCustomer    = "customer"
	StatusUnqualified = "unqualified"
)

// Contact is the durable identity record for one normalized phone number.
// One row in the Contacts table per number; never deleted by the system.
type Contact struct {
	PhoneNumber  string
	Name         string
	FirstContact time.Time
	LastContact  time.Time
	MessageCount int
	LeadStatus   string
	Tags         string
	Notes        string
	ChatHistory  string // serialized transcript, parsed on demand
}

// contactColumns is the width of a Contacts row. Writes must always carry all
// columns: the store has no partial-update primitive.
const contactColumns = 9

func contactFromRow(row rowstore.Row) Contact {
	row = padRow(row, contactColumns)
	count, _ := strconv.Atoi(row[4])
	return Contact{
		PhoneNumber:  row[0],
		Name:         row[1],
		FirstContact: parseTime(row[2]),
		LastContact:  parseTime(row[3]),
		MessageCount: count,
		LeadStatus:   row[5],
		Tags:         row[6],
		Notes:        row[7],
		ChatHistory:  row[8],
	}
}

func (c Contact) toRow() rowstore.Row {
	return rowstore.Row{
		c.PhoneNumber,
		c.Name,
		formatTime(c.FirstContact),
		formatTime(c.LastContact),
		strconv.Itoa(c.MessageCount),
		c.LeadStatus,
		c.Tags,
		c.Notes,
		c.ChatHistory,
	}
}

// padRow extends short rows with empty cells. Sheets created before the chat
// history column was added return rows narrower than nine cells.
func padRow(row rowstore.Row, width int) rowstore.Row {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
