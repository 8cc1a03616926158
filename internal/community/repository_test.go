package community

import (
	"path/filepath"
	"testing"

	"github.com/rvaldez/porteria/internal/db"
)

func TestCreateAndGet(t *testing.T) {
	repo := testSetup(t)

	c, err := repo.Create("Los Robles")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if c.Name != "Los Robles" {
		t.Errorf("name = %q, want %q", c.Name, "Los Robles")
	}
	if c.GateOpen {
		t.Error("gate should start closed")
	}

	got, err := repo.GetByID(c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != c.Name {
		t.Errorf("name = %q, want %q", got.Name, c.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := testSetup(t)

	if _, err := repo.GetByID(9999); err == nil {
		t.Fatal("expected error for missing community")
	}
}

func TestGateFlag(t *testing.T) {
	repo := testSetup(t)

	c, err := repo.Create("Vista Hermosa")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.SetGateOpen(c.ID, true); err != nil {
		t.Fatalf("open: %v", err)
	}
	open, err := repo.GateOpen(c.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !open {
		t.Error("gate should be open")
	}

	// Closing twice is harmless.
	for i := 0; i < 2; i++ {
		if err := repo.SetGateOpen(c.ID, false); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	open, err = repo.GateOpen(c.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if open {
		t.Error("gate should be closed")
	}
}

func TestSetGateOpenNotFound(t *testing.T) {
	repo := testSetup(t)

	if err := repo.SetGateOpen(9999, true); err == nil {
		t.Fatal("expected error for missing community")
	}
}

func TestList(t *testing.T) {
	repo := testSetup(t)

	for _, name := range []string{"Zafiro", "Alameda"} {
		if _, err := repo.Create(name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	communities, err := repo.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(communities) != 2 {
		t.Fatalf("got %d communities, want 2", len(communities))
	}
	if communities[0].Name != "Alameda" {
		t.Errorf("first = %q, want alphabetical order", communities[0].Name)
	}
}

func testSetup(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return NewRepository(d)
}
