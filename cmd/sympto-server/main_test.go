package main

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/sympto/sympto/internal/platform/db"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand", name)
		}
	}

	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("Find serve: %v", err)
	}
	if serve.Flags().Lookup("migrate") == nil {
		t.Error("expected serve --migrate flag")
	}
}

func TestMigrateDown_Warns(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "down"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "not supported") {
		t.Errorf("expected warning, got %q", out.String())
	}
}

func TestMigrationSource(t *testing.T) {
	embedded, err := fs.Glob(migrationSource(""), "*.sql")
	if err != nil || len(embedded) == 0 {
		t.Fatalf("expected embedded migrations, got %v (%v)", embedded, err)
	}

	dir := t.TempDir()
	got, err := fs.Glob(migrationSource(dir), "*.sql")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty directory source, got %v", got)
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	var out bytes.Buffer
	printStatus(&out, []db.MigrationStatus{
		{Version: 1, Name: "users", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "reports"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and two rows, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-03-01 10:30:00") {
		t.Errorf("unexpected applied row %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row %q", lines[3])
	}
}
