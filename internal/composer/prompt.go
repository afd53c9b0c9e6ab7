// Package composer assembles the system prompt sent to the text-generation
// service: business persona, style examples, the full knowledge base, and the
// requesting contact's reconstructed chat history.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Mugen-GS/MUGEN-STORE/internal/contacts"
	"github.com/Mugen-GS/MUGEN-STORE/internal/knowledge"
	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

const (
	// maxStyleExamples caps how many training conversations land in the prompt.
	maxStyleExamples = 3
	// maxHistoryTurns caps the previous-chat block.
	maxHistoryTurns = 10
)

// Identity configures the business persona the prompt speaks as.
//
// Marker and NegativeMarker decide which training lines are the business
// voice: a sender containing Marker but not NegativeMarker is the persona.
// The negative marker exists because a lookalike account with a
// homoglyph-spoofed name appears in the exported chats.
type Identity struct {
	VoiceName      string
	Preamble       string
	Marker         string
	NegativeMarker string
}

// DefaultIdentity is the MUGEN sleeper-PC store persona.
func DefaultIdentity() Identity {
	return Identity{
		VoiceName: "MUGEN",
		Preamble: "You are MUGEN's AI assistant for WhatsApp. " +
			"MUGEN sells sleeper PCs (office desktops upgraded with GPU and other gaming parts).\n\n",
		Marker:         "MUGEN",
		NegativeMarker: "ＳｐｉｒｉｃＸ",
	}
}

// TrainingLoader fetches style-example conversations.
type TrainingLoader interface {
	LoadTraining(ctx context.Context) ([]knowledge.Conversation, error)
}

// KnowledgeLoader fetches the grouped knowledge base.
type KnowledgeLoader interface {
	LoadAll(ctx context.Context) (*knowledge.Base, error)
}

// HistoryLoader reconstructs a contact's recent turns.
type HistoryLoader interface {
	History(ctx context.Context, phone string, limit int) ([]contacts.Turn, error)
}

// Composer builds the full system prompt for one inbound message.
type Composer struct {
	identity  Identity
	training  TrainingLoader
	knowledge KnowledgeLoader
	history   HistoryLoader
	logger    *slog.Logger
}

// New creates a Composer. A zero-value identity falls back to the default
// persona.
func New(identity Identity, training TrainingLoader, kb KnowledgeLoader, history HistoryLoader) *Composer {
	if identity.VoiceName == "" {
		identity = DefaultIdentity()
	}
	return &Composer{
		identity:  identity,
		training:  training,
		knowledge: kb,
		history:   history,
		logger:    slog.Default(),
	}
}

// BuildPrompt assembles the prompt for the given phone number. Pass an empty
// phone for a contact-free prompt (no previous-chat block). Source fetches
// that fail on transport degrade to empty sections so the conversation can
// proceed with whatever context is available; degraded sections are logged.
func (c *Composer) BuildPrompt(ctx context.Context, phone string) string {
	var (
		examples []knowledge.Conversation
		base     *knowledge.Base
		turns    []contacts.Turn
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		examples, err = c.training.LoadTraining(gctx)
		if err != nil {
			c.logger.Warn("training examples unavailable, degrading prompt", "error", err)
			examples = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		base, err = c.knowledge.LoadAll(gctx)
		if err != nil {
			c.logger.Warn("knowledge base unavailable, degrading prompt", "error", err)
			base = nil
		}
		return nil
	})
	if phone != "" {
		g.Go(func() error {
			var err error
			turns, err = c.history.History(gctx, phone, maxHistoryTurns)
			if err != nil && !errors.Is(err, rowstore.ErrNotFound) {
				c.logger.Warn("history unavailable, degrading prompt", "phone", contacts.Normalize(phone), "error", err)
			}
			return nil
		})
	}
	g.Wait()

	var sb strings.Builder
	sb.WriteString(c.identity.Preamble)
	c.writeStyleSection(&sb, examples)
	c.writeKnowledgeSection(&sb, base)
	if phone != "" {
		c.writeHistorySection(&sb, turns)
	}
	c.writeRules(&sb)
	return sb.String()
}

func (c *Composer) writeStyleSection(sb *strings.Builder, examples []knowledge.Conversation) {
	if len(examples) == 0 {
		return
	}
	if len(examples) > maxStyleExamples {
		examples = examples[:maxStyleExamples]
	}

	fmt.Fprintf(sb, "HOW TO TALK (copy %s's style):\n", c.identity.VoiceName)
	for i, convo := range examples {
		fmt.Fprintf(sb, "Example %d:\n", i+1)
		for _, line := range convo {
			fmt.Fprintf(sb, "%s: %s\n", c.lineVoice(line.Sender), line.Message)
		}
		sb.WriteString("\n")
	}
}

// lineVoice resolves whether a training line was spoken by the business
// persona or by a customer.
func (c *Composer) lineVoice(sender string) string {
	if strings.Contains(sender, c.identity.Marker) &&
		(c.identity.NegativeMarker == "" || !strings.Contains(sender, c.identity.NegativeMarker)) {
		return c.identity.VoiceName
	}
	return "Customer"
}

func (c *Composer) writeKnowledgeSection(sb *strings.Builder, base *knowledge.Base) {
	categories := base.Categories()
	if len(categories) == 0 {
		return
	}

	fmt.Fprintf(sb, "\nWHAT %s SELLS:\n", strings.ToUpper(c.identity.VoiceName))
	for _, category := range categories {
		fmt.Fprintf(sb, "\n%s:\n", strings.ToUpper(category))
		entries := base.Entries(category)
		for _, key := range base.Keys(category) {
			fmt.Fprintf(sb, "- %s: %s\n", key, entries[key])
		}
	}
}

func (c *Composer) writeHistorySection(sb *strings.Builder, turns []contacts.Turn) {
	if len(turns) == 0 {
		sb.WriteString("\n(NEW CUSTOMER - No previous messages)\n\n")
		return
	}

	sb.WriteString("\n=== YOUR PREVIOUS CHAT WITH THIS CUSTOMER ===\n")
	for _, turn := range turns {
		label := "You"
		if turn.Role == contacts.RoleUser {
			label = "Customer"
		}
		fmt.Fprintf(sb, "%s: %s\n", label, turn.Message)
	}
	sb.WriteString("=== END PREVIOUS CHAT ===\n\n")
}

func (c *Composer) writeRules(sb *strings.Builder) {
	name := c.identity.VoiceName
	fmt.Fprintf(sb, "\nRULES:\n"+
		"1. ONLY say \"first chat\" if there's NO previous messages above\n"+
		"2. If previous messages exist, reference them naturally (\"like we talked about...\", \"you mentioned...\")\n"+
		"3. Talk EXACTLY like %s - casual, direct, helpful\n"+
		"4. Use info from \"WHAT %s SELLS\" section to answer questions\n"+
		"5. Keep it SHORT (1-2 sentences unless technical)\n"+
		"6. NEVER make up info - only use what's in this prompt\n\n",
		name, strings.ToUpper(name))
}
