package contacts

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Turn roles after reconstruction.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one reconstructed exchange unit from a contact's serialized history.
type Turn struct {
	Timestamp string `json:"ts"`
	Role      string `json:"role"`
	Message   string `json:"msg"`
}

// historyEnvelope is the canonical on-sheet representation of a transcript.
// Versioned so the format can evolve without another round of lossy reparsing.
type historyEnvelope struct {
	Version int    `json:"v"`
	Turns   []Turn `json:"turns"`
}

const historyVersion = 1

// legacyLine matches the old plain-text transcript format,
// "[<timestamp>] <Role>: <text>". Lines that don't match are dropped.
var legacyLine = regexp.MustCompile(`^\[(.*?)\] (.*?): (.*)$`)

// parseHistory reconstructs turns from a serialized transcript cell. The
// canonical form is the versioned JSON envelope; cells written by the old
// Node service hold the bracketed line format and are parsed best-effort,
// silently dropping anything malformed.
func parseHistory(serialized string) []Turn {
	trimmed := strings.TrimSpace(serialized)
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var env historyEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Version >= 1 {
			return env.Turns
		}
	}

	var turns []Turn
	for _, line := range strings.Split(trimmed, "\n") {
		m := legacyLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		role := RoleAssistant
		if strings.EqualFold(m[2], "customer") {
			role = RoleUser
		}
		turns = append(turns, Turn{Timestamp: m[1], Role: role, Message: m[3]})
	}
	return turns
}

// appendTurns re-serializes the transcript with the new turns attached,
// upgrading legacy-format cells to the JSON envelope as a side effect.
func appendTurns(serialized string, turns []Turn) (string, error) {
	all := append(parseHistory(serialized), turns...)
	data, err := json.Marshal(historyEnvelope{Version: historyVersion, Turns: all})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// historyTimestamp renders a turn timestamp the way the legacy transcript did:
// "2006-01-02 15:04".
func historyTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// lastTurns returns the trailing limit turns in original order. A limit <= 0
// returns everything.
func lastTurns(turns []Turn, limit int) []Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}
