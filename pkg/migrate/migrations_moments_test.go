package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tracehq/trace-backend/pkg/migrate"
)

func TestMomentsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_moments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no moments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS moments",
		"FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE",
		"CHECK (size_bytes > 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_moments_dedup",
		"WHERE status IN ('processing', 'active')",
		"DROP TABLE IF EXISTS moments",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationFilenamesValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
