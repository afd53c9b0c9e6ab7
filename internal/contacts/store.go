package contacts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store maps normalized phone numbers to Contact rows in the remote row
// store. The backing store has no transactions, so every mutation here is a
// read-modify-write of a whole row; a per-number mutex serializes those
// sequences within the process so two near-simultaneous messages from the
// same contact cannot overwrite each other's turn.
//
// Lookups are linear scans over the whole table. The store exposes no
// indexing primitive, so there is nothing better to do.
type Store struct {
	rows  rowstore.Store
	clock Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store over the given row store.
func NewStore(rows rowstore.Store) *Store {
	return &Store{
		rows:  rows,
		clock: realClock{},
		locks: make(map[string]*sync.Mutex),
	}
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(rows rowstore.Store, clock Clock) *Store {
	s := NewStore(rows)
	s.clock = clock
	return s
}

// lockFor returns the mutex serializing writes to one normalized number.
// Mutexes are never removed; the contact set is small and rows are never
// deleted.
func (s *Store) lockFor(normalized string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[normalized]
	if !ok {
		l = &sync.Mutex{}
		s.locks[normalized] = l
	}
	return l
}

// findRow scans the Contacts table for the normalized phone. Returns the
// contact and its 1-based sheet row index (header counted), or
// rowstore.ErrNotFound.
func (s *Store) findRow(ctx context.Context, normalized string) (Contact, int, error) {
	rows, err := s.rows.ListRows(ctx, rowstore.TableContacts)
	if err != nil {
		return Contact{}, 0, err
	}
	if len(rows) == 0 {
		return Contact{}, 0, rowstore.ErrNotFound
	}

	for i, row := range rows[1:] { // skip header
		if len(row) == 0 {
			continue
		}
		if Normalize(row[0]) == normalized {
			return contactFromRow(row), i + 2, nil
		}
	}
	return Contact{}, 0, rowstore.ErrNotFound
}

// Get returns the contact for a phone number, or rowstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, phone string) (Contact, error) {
	c, _, err := s.findRow(ctx, Normalize(phone))
	return c, err
}

// Upsert records one inbound turn against a contact identity. An existing row
// keeps its first-contact timestamp, lead status, tags, notes, and chat
// history; the name is replaced only when a new one is given. The message
// count goes up by exactly one per call. A missing row is created with count
// 1 and status browsing.
func (s *Store) Upsert(ctx context.Context, phone, name string) (Contact, error) {
	normalized := Normalize(phone)
	lock := s.lockFor(normalized)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now()

	existing, rowIndex, err := s.findRow(ctx, normalized)
	if err == nil {
		updated := existing
		updated.PhoneNumber = normalized
		if name != "" {
			updated.Name = name
		}
		updated.LastContact = now
		updated.MessageCount++
		if err := s.rows.UpdateRow(ctx, rowstore.TableContacts, rowIndex, updated.toRow()); err != nil {
			return Contact{}, fmt.Errorf("updating contact %s: %w", normalized, err)
		}
		return updated, nil
	}
	if rowstore.IsTransport(err) {
		return Contact{}, err
	}

	created := Contact{
		PhoneNumber:  normalized,
		Name:         name,
		FirstContact: now,
		LastContact:  now,
		MessageCount: 1,
		LeadStatus:   StatusBrowsing,
	}
	if created.Name == "" {
		created.Name = "Unknown"
	}
	if err := s.rows.AppendRow(ctx, rowstore.TableContacts, created.toRow()); err != nil {
		return Contact{}, fmt.Errorf("creating contact %s: %w", normalized, err)
	}
	return created, nil
}

// AppendTurn attaches a customer message and/or an assistant reply to the
// contact's transcript, bumping last-contact and message count. Either
// message may be empty. Returns rowstore.ErrNotFound if the contact has not
// been upserted yet.
func (s *Store) AppendTurn(ctx context.Context, phone, customerMessage, assistantMessage string) error {
	normalized := Normalize(phone)
	lock := s.lockFor(normalized)
	lock.Lock()
	defer lock.Unlock()

	contact, rowIndex, err := s.findRow(ctx, normalized)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	ts := historyTimestamp(now)

	var turns []Turn
	if customerMessage != "" {
		turns = append(turns, Turn{Timestamp: ts, Role: RoleUser, Message: customerMessage})
	}
	if assistantMessage != "" {
		turns = append(turns, Turn{Timestamp: ts, Role: RoleAssistant, Message: assistantMessage})
	}

	serialized, err := appendTurns(contact.ChatHistory, turns)
	if err != nil {
		return fmt.Errorf("serializing history for %s: %w", normalized, err)
	}

	contact.ChatHistory = serialized
	contact.LastContact = now
	contact.MessageCount++

	if err := s.rows.UpdateRow(ctx, rowstore.TableContacts, rowIndex, contact.toRow()); err != nil {
		return fmt.Errorf("writing history for %s: %w", normalized, err)
	}
	return nil
}

// History reconstructs the contact's transcript and returns the most recent
// limit turns in chronological order. A contact with no transcript yields an
// empty slice; an unknown contact yields rowstore.ErrNotFound.
func (s *Store) History(ctx context.Context, phone string, limit int) ([]Turn, error) {
	contact, err := s.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	return lastTurns(parseHistory(contact.ChatHistory), limit), nil
}

// SetLeadStatus overwrites the lead status column, carrying every other
// column forward unchanged.
func (s *Store) SetLeadStatus(ctx context.Context, phone, status string) error {
	normalized := Normalize(phone)
	lock := s.lockFor(normalized)
	lock.Lock()
	defer lock.Unlock()

	contact, rowIndex, err := s.findRow(ctx, normalized)
	if err != nil {
		return err
	}

	contact.LeadStatus = status
	if err := s.rows.UpdateRow(ctx, rowstore.TableContacts, rowIndex, contact.toRow()); err != nil {
		return fmt.Errorf("updating lead status for %s: %w", normalized, err)
	}
	return nil
}

// Count returns the number of contact rows, header excluded.
func (s *Store) Count(ctx context.Context) (int, error) {
	rows, err := s.rows.ListRows(ctx, rowstore.TableContacts)
	if err != nil {
		return 0, err
	}
	if len(rows) <= 1 {
		return 0, nil
	}
	return len(rows) - 1, nil
}
