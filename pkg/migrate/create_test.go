package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestCreateSQLMigrationWritesValidFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Refund Index!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260901123000_add_refund_index.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}

	if _, err := CreateSQLMigration(dir, "add refund index", now); err == nil {
		t.Fatalf("expected an error when the file already exists")
	}
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), " -- ", time.Now()); err == nil {
		t.Fatalf("expected error for unusable name")
	}
}

func TestValidateFS(t *testing.T) {
	valid := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]struct {
		files   fstest.MapFS
		wantErr bool
	}{
		"empty": {files: fstest.MapFS{}},
		"ignores non sql": {files: fstest.MapFS{
			"README.md": {Data: []byte("notes")},
		}},
		"bad name": {files: fstest.MapFS{
			"2026_orders.sql": {Data: []byte(valid)},
		}, wantErr: true},
		"duplicate version": {files: fstest.MapFS{
			"20260901090000_a.sql": {Data: []byte(valid)},
			"20260901090000_b.sql": {Data: []byte(valid)},
		}, wantErr: true},
		"missing down": {files: fstest.MapFS{
			"20260901090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		}, wantErr: true},
		"down before up": {files: fstest.MapFS{
			"20260901090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		}, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateFS(tc.files)
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEmbeddedMigrationsMatchSourceDir(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if _, err := Migrations().Open(e.Name()); err != nil {
			t.Fatalf("%s not embedded: %v", e.Name(), err)
		}
	}
	if err := ValidateFS(Migrations()); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}
