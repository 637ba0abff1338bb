package migrate

import (
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

const latestVersion = 3

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunCreatesCatalogTables(t *testing.T) {
	db := openTestDB(t)
	if err := NewRunner(db).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"products", "import_runs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var col string
	err := db.QueryRow("SELECT column_name FROM information_schema.columns WHERE table_name = 'products' AND column_name = 'expires_at'").Scan(&col)
	if err != nil {
		t.Errorf("products.expires_at missing: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	if err := r.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	cur, pending, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != latestVersion || pending != 0 {
		t.Errorf("expected version=%d pending=0, got version=%d pending=%d", latestVersion, cur, pending)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	db := openTestDB(t)
	cur, pending, err := NewRunner(db).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != latestVersion {
		t.Errorf("expected version=0 pending=%d, got version=%d pending=%d", latestVersion, cur, pending)
	}
}

func TestLoadMigrationsSorted(t *testing.T) {
	migs, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	for i := 1; i < len(migs); i++ {
		if migs[i-1].version >= migs[i].version {
			t.Fatalf("migrations out of order: %s before %s", migs[i-1].name, migs[i].name)
		}
	}
}
