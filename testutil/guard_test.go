package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal module path", InternalImportForbidden, "kittycore/internal/core", true},
		{"internal nested", InternalImportForbidden, "example.com/x/internal/y", true},
		{"public", InternalImportForbidden, "kittycore/pkg/pow", false},
		{"domain", DomainImportForbidden, "kittycore/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/mod/pkg/domain@v1", true},
		{"not domain", DomainImportForbidden, "kittycore/pkg/domainx", false},
		{"pgx", StorageImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{"sql", StorageImportForbidden, "database/sql", true},
		{"sqlite backend", StorageImportForbidden, "kittycore/internal/infra/persistence/sqlite", true},
		{"blob backend", StorageImportForbidden, "kittycore/internal/infra/blob/s3", false},
		{"any of", AnyOf(DomainImportForbidden, StorageImportForbidden), "modernc.org/sqlite", true},
		{"none of", AnyOf(), "fmt", false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.in); got != tc.want {
			t.Fatalf("%s: pred(%q)=%v want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.go", "package x\n\nimport (\n\t\"fmt\"\n\t\"kittycore/internal/core\"\n)\n\nvar _ = fmt.Sprint\nvar _ core.Kitty\n")
	write("b_test.go", "package x\n\nimport \"kittycore/internal/node\"\n")
	write("notes.txt", "import \"kittycore/internal/offchain\"")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "kittycore/internal/core (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	rec := &recordingFatal{}
	failIfViolations(rec, "reason", viols)
	if rec.msg == "" {
		t.Fatalf("expected failure for violations")
	}
	rec = &recordingFatal{}
	failIfViolations(rec, "reason", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure without violations")
	}

	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
