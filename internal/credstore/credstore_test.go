package credstore

import (
	"path/filepath"
	"testing"

	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zap.NewNop())
}

func TestWriteReadDelete(t *testing.T) {
	creds := testStore(t).ForSession("s1")

	if err := creds.Write("creds", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := creds.Write("creds", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	data, err := creds.Read("creds")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Errorf("data = %q, want v2", data)
	}

	if err := creds.Delete("creds"); err != nil {
		t.Fatal(err)
	}
	data, err = creds.Read("creds")
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Errorf("data = %q after delete, want nil", data)
	}
}

func TestReadAbsentIsNotError(t *testing.T) {
	creds := testStore(t).ForSession("s1")

	data, err := creds.Read("never-written")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if data != nil {
		t.Errorf("data = %v, want nil", data)
	}
}

func TestIDSanitization(t *testing.T) {
	creds := testStore(t).ForSession("s1")

	if err := creds.Write("app-state-sync-key/AAA:1", []byte("k")); err != nil {
		t.Fatal(err)
	}
	// Readable through the same unsanitized id.
	data, err := creds.Read("app-state-sync-key/AAA:1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "k" {
		t.Errorf("data = %q, want k", data)
	}
}

func TestSessionScoping(t *testing.T) {
	s := testStore(t)
	if err := s.ForSession("s1").Write("creds", []byte("a")); err != nil {
		t.Fatal(err)
	}

	data, err := s.ForSession("s2").Read("creds")
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Error("record leaked across sessions")
	}
}
