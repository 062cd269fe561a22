package builddb

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLegacyIndex(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crc_index")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportLegacyIndex(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	path := writeLegacyIndex(t, `# legacy CRC index
app/core:deadbeef

lib/parser:cafebabe
app/web:12345678
`)

	stats, err := db.ImportLegacyIndex(path, nil)
	if err != nil {
		t.Fatalf("ImportLegacyIndex failed: %v", err)
	}

	if stats.Scanned != 3 || stats.Imported != 3 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 3 scanned, 3 imported", stats)
	}

	want := map[string]uint32{
		"app/core":   0xdeadbeef,
		"lib/parser": 0xcafebabe,
		"app/web":    0x12345678,
	}
	for id, wantCRC := range want {
		crc, found, err := db.GetCRC(id)
		if err != nil || !found {
			t.Errorf("GetCRC(%s) = (%v, %v)", id, found, err)
			continue
		}
		if crc != wantCRC {
			t.Errorf("GetCRC(%s) = %#x, want %#x", id, crc, wantCRC)
		}
	}

	// Imported CRCs drive staleness exactly like natively recorded ones
	stale, err := db.NeedsBuild("app/core", 0xdeadbeef)
	if err != nil {
		t.Fatalf("NeedsBuild failed: %v", err)
	}
	if stale {
		t.Error("imported CRC should satisfy NeedsBuild")
	}
}

func TestImportLegacyIndex_SkipsInvalidRows(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	path := writeLegacyIndex(t, `app/core:deadbeef
no-colon-row
not-a-target-id:deadbeef
lib/parser:NOTHEX
lib/codec:deadbeefff
group/ok:00ff
`)

	var warnings []string
	stats, err := db.ImportLegacyIndex(path, func(format string, args ...any) {
		warnings = append(warnings, format)
	})
	if err != nil {
		t.Fatalf("ImportLegacyIndex failed: %v", err)
	}

	// Valid: app/core, group/ok. Skipped: missing colon, key not in the
	// group/name scheme, non-hex CRC, CRC wider than 32 bits.
	if stats.Scanned != 6 {
		t.Errorf("Scanned = %d, want 6", stats.Scanned)
	}
	if stats.Imported != 2 {
		t.Errorf("Imported = %d, want 2", stats.Imported)
	}
	if stats.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", stats.Skipped)
	}
	if len(warnings) != 4 {
		t.Errorf("warnings = %d, want 4", len(warnings))
	}

	if _, found, _ := db.GetCRC("lib/parser"); found {
		t.Error("row with invalid CRC was imported")
	}
	if _, found, _ := db.GetCRC("not-a-target-id"); found {
		t.Error("row with malformed key was imported")
	}
	if crc, found, _ := db.GetCRC("group/ok"); !found || crc != 0x00ff {
		t.Errorf("short hex row = (%#x, %v), want imported as 0x00ff", crc, found)
	}
}

func TestImportLegacyIndex_MissingFile(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	_, err := db.ImportLegacyIndex(filepath.Join(t.TempDir(), "crc_index"), nil)
	if err == nil {
		t.Fatal("ImportLegacyIndex should fail for a missing file")
	}
	if !IsDatabaseError(err) {
		t.Errorf("expected DatabaseError, got %T", err)
	}
}

func TestImportLegacyIndex_EmptyFile(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	path := writeLegacyIndex(t, "# nothing but comments\n\n")

	stats, err := db.ImportLegacyIndex(path, nil)
	if err != nil {
		t.Fatalf("ImportLegacyIndex failed: %v", err)
	}
	if stats.Scanned != 0 || stats.Imported != 0 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}

func TestImportLegacyIndex_OverwritesExisting(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	if err := db.UpdateCRC("app/core", 0x1111); err != nil {
		t.Fatal(err)
	}

	path := writeLegacyIndex(t, "app/core:deadbeef\n")
	if _, err := db.ImportLegacyIndex(path, nil); err != nil {
		t.Fatalf("ImportLegacyIndex failed: %v", err)
	}

	crc, found, _ := db.GetCRC("app/core")
	if !found || crc != 0xdeadbeef {
		t.Errorf("CRC after import = (%#x, %v), want legacy value", crc, found)
	}

	// Importing the same file again is harmless
	if _, err := db.ImportLegacyIndex(path, nil); err != nil {
		t.Fatalf("second import failed: %v", err)
	}
}
