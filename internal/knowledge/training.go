package knowledge

import (
	"context"
	"strings"

	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

// Line is one utterance in a training conversation: who said it and what.
type Line struct {
	Sender  string
	Message string
}

// Conversation is a short group of lines used as a style exemplar. Immutable
// at runtime; sourced from the TrainingChats table.
type Conversation []Line

// LoadTraining reads the style-example chats and groups them into
// conversations of up to four lines. A trailing group is kept only if it has
// at least two lines, otherwise it isn't a conversation.
func (s *Store) LoadTraining(ctx context.Context) ([]Conversation, error) {
	raw, err := s.rows.ListRows(ctx, rowstore.TableTraining)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var conversations []Conversation
	var current Conversation
	for _, row := range raw[1:] { // skip header: DateTime | Sender | Message
		if len(row) < 3 || strings.TrimSpace(row[2]) == "" {
			continue
		}
		current = append(current, Line{Sender: row[1], Message: row[2]})
		if len(current) >= 4 {
			conversations = append(conversations, current)
			current = nil
		}
	}
	if len(current) >= 2 {
		conversations = append(conversations, current)
	}
	return conversations, nil
}
