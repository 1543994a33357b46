package skillrepo

import (
	"testing"

	"github.com/haasonsaas/agentcore/pkg/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestWriteThenGetAndPreview(t *testing.T) {
	repo := newTestRepo(t)

	skill := &models.Skill{ID: "code-review", Name: "Code Review", Tags: []string{"quality"}, Body: "Review the diff for correctness and style."}
	if err := repo.Write(skill); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := repo.Get("code-review")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Code Review" {
		t.Fatalf("expected name Code Review, got %q", got.Name)
	}
	if repo.Preview("code-review") == "" {
		t.Fatalf("expected non-empty preview")
	}
	if repo.Preview("does-not-exist") != "" {
		t.Fatalf("expected empty preview for unknown skill")
	}
}

func TestGetManySkipsMissingIDs(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Write(&models.Skill{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("Write(a): %v", err)
	}

	got := repo.GetMany([]string{"a", "missing"})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only skill a, got %+v", got)
	}
}

func TestListFiltersByTag(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Write(&models.Skill{ID: "a", Name: "A", Tags: []string{"go"}}); err != nil {
		t.Fatalf("Write(a): %v", err)
	}
	if err := repo.Write(&models.Skill{ID: "b", Name: "B", Tags: []string{"python"}}); err != nil {
		t.Fatalf("Write(b): %v", err)
	}

	goSkills := repo.List("go")
	if len(goSkills) != 1 || goSkills[0].ID != "a" {
		t.Fatalf("expected only skill a for tag go, got %+v", goSkills)
	}
}

func TestSoftDeleteRemovesSkill(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Write(&models.Skill{ID: "temp", Name: "Temp"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := repo.SoftDelete("temp"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := repo.Get("temp"); err == nil {
		t.Fatalf("expected soft-deleted skill to be unresolvable")
	}
}
