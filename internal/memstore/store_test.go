package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rescale/rescale-foldernav/internal/models"
)

func TestSeededRoot(t *testing.T) {
	s := New(Options{Seed: true})

	root, err := s.FetchNode(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchNode(root) failed: %v", err)
	}
	if root.ID != models.RootID || len(root.Children) != 2 {
		t.Fatalf("unexpected root: %+v", root)
	}
	if root.Children[0].Name != "Reports" || root.Children[1].Name != "Dashboards" {
		t.Errorf("children = %q, %q", root.Children[0].Name, root.Children[1].Name)
	}
	if root.Children[0].Children != nil {
		t.Error("children must be shallow")
	}
}

func TestFetchFile(t *testing.T) {
	s := New(Options{Seed: true})
	f, err := s.FetchNode(context.Background(), "file-2-1")
	if err != nil {
		t.Fatal(err)
	}
	if f.IsFolder() || f.SQL == "" || f.ParentID != "folder-2" {
		t.Errorf("unexpected file: %+v", f)
	}
}

func TestFetchUnknown(t *testing.T) {
	s := New(Options{})
	if _, err := s.FetchNode(context.Background(), "nope"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestCreateNode(t *testing.T) {
	s := New(Options{})
	ctx := context.Background()

	n, err := s.CreateNode(ctx, models.RootID, models.Draft{Name: "Reports", Kind: models.KindFolder})
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if n.ID == "" || n.ParentID != models.RootID || n.UpdatedAt.IsZero() {
		t.Errorf("unexpected node: %+v", n)
	}

	f, err := s.CreateNode(ctx, n.ID, models.Draft{Name: "q.sql", Kind: models.KindFile, SQL: "SELECT 1"})
	if err != nil {
		t.Fatalf("CreateNode(file) failed: %v", err)
	}
	if f.Size != int64(len("SELECT 1")) {
		t.Errorf("size = %d", f.Size)
	}

	folder, _ := s.FetchNode(ctx, n.ID)
	if len(folder.Children) != 1 || folder.Children[0].ID != f.ID {
		t.Errorf("children = %+v", folder.Children)
	}
}

func TestCreateNodeErrors(t *testing.T) {
	s := New(Options{Seed: true})
	ctx := context.Background()

	tests := []struct {
		name   string
		parent string
		draft  models.Draft
		want   error
	}{
		{"missing parent", "nope", models.Draft{Name: "x", Kind: models.KindFolder}, models.ErrNodeNotFound},
		{"file parent", "file-2-1", models.Draft{Name: "x", Kind: models.KindFolder}, models.ErrNotAFolder},
		{"sibling conflict", models.RootID, models.Draft{Name: "Reports", Kind: models.KindFolder}, models.ErrNameConflict},
		{"bad name", models.RootID, models.Draft{Name: "a/b", Kind: models.KindFolder}, models.ErrInvalidName},
		{"bad kind", models.RootID, models.Draft{Name: "x", Kind: "link"}, models.ErrInvalidDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateNode(ctx, tt.parent, tt.draft); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRenameNode(t *testing.T) {
	s := New(Options{Seed: true})
	ctx := context.Background()

	n, err := s.RenameNode(ctx, "folder-1", "Archive")
	if err != nil {
		t.Fatalf("RenameNode failed: %v", err)
	}
	if n.Name != "Archive" {
		t.Errorf("name = %q", n.Name)
	}
	if _, err := s.RenameNode(ctx, "folder-1", "Dashboards"); !errors.Is(err, models.ErrNameConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := s.RenameNode(ctx, "folder-1", "Archive"); err != nil {
		t.Errorf("renaming to the current name should succeed: %v", err)
	}
	if _, err := s.RenameNode(ctx, models.RootID, "Top"); !errors.Is(err, models.ErrRootImmutable) {
		t.Errorf("expected ErrRootImmutable, got %v", err)
	}
}

func TestDeleteRejectsNonEmptyFolder(t *testing.T) {
	s := New(Options{Seed: true})
	ctx := context.Background()

	if err := s.DeleteNode(ctx, "folder-1"); !errors.Is(err, models.ErrFolderNotEmpty) {
		t.Fatalf("expected ErrFolderNotEmpty, got %v", err)
	}
	if err := s.DeleteNode(ctx, "file-2-1"); err != nil {
		t.Fatalf("deleting a file failed: %v", err)
	}
	if err := s.DeleteNode(ctx, "folder-2"); err != nil {
		t.Fatalf("deleting an empty folder failed: %v", err)
	}
	root, _ := s.FetchNode(ctx, models.RootID)
	if len(root.Children) != 1 {
		t.Errorf("root children = %+v", root.Children)
	}
}

func TestDeleteCascade(t *testing.T) {
	s := New(Options{Seed: true, DeletePolicy: DeleteCascade})
	before := s.Len()

	if err := s.DeleteNode(context.Background(), "folder-1"); err != nil {
		t.Fatalf("cascade delete failed: %v", err)
	}
	// folder-1, two subfolders, three reports
	if got := before - s.Len(); got != 6 {
		t.Errorf("removed %d nodes, want 6", got)
	}
	if _, err := s.FetchNode(context.Background(), "file-1-1-1"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Error("descendants should be gone")
	}
}

func TestDeleteRootAndUnknown(t *testing.T) {
	s := New(Options{})
	if err := s.DeleteNode(context.Background(), models.RootID); !errors.Is(err, models.ErrRootImmutable) {
		t.Errorf("got %v", err)
	}
	if err := s.DeleteNode(context.Background(), "nope"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestLatencyHonorsContext(t *testing.T) {
	s := New(Options{Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.FetchNode(ctx, models.RootID); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestParseDeletePolicy(t *testing.T) {
	for in, want := range map[string]DeletePolicy{"": DeleteReject, "reject": DeleteReject, "CASCADE": DeleteCascade} {
		got, err := ParseDeletePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseDeletePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDeletePolicy("purge"); err == nil {
		t.Error("expected error")
	}
}
