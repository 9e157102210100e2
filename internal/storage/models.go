package storage

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRole is returned when a message role is neither RoleUser nor RoleBot.
var ErrInvalidRole = errors.New("invalid message role")

// Message roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Session is a customer conversation. Sessions are never mutated.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// Message is one persisted turn of a session. IDs increase monotonically
// within a store.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	Timestamp time.Time
}

// NewMessage is a message to be appended.
type NewMessage struct {
	Role    string
	Content string
}

func newSessionID() string {
	return uuid.NewString()
}

func validateRoles(msgs []NewMessage) error {
	for _, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleBot {
			return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
	}
	return nil
}

type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations returns the embedded migrations of dialect in ascending order.
func loadMigrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := migrationsFS.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		out = append(out, migration{version: version, name: entry.Name(), sql: string(content)})
	}
	return out, nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}
