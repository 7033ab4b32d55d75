package parser

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("valid character with full frontmatter", func(t *testing.T) {
		content := []byte("---\ntitle: Mira of Hilltop\ntype: character\nstatus: alive\nhome: Hilltop\ntags: [ruler, founding-era]\n---\n\nMira claimed the hilltop after the siege.\n")
		doc, err := Parse(content)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if doc.Title != "Mira of Hilltop" {
			t.Fatalf("expected title, got %q", doc.Title)
		}
		if doc.EntityType != "character" {
			t.Fatalf("expected type character, got %q", doc.EntityType)
		}
		if doc.ID != "mira-of-hilltop" {
			t.Fatalf("expected slug id, got %q", doc.ID)
		}
		if doc.Body == "" {
			t.Fatalf("expected body")
		}
		if !reflect.DeepEqual(doc.Tags, []string{"ruler", "founding-era"}) {
			t.Fatalf("unexpected tags: %#v", doc.Tags)
		}
	})

	t.Run("byte order mark before frontmatter", func(t *testing.T) {
		doc, err := Parse([]byte("\xef\xbb\xbf---\ntitle: Mira\ntype: character\n---\n"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if doc.Title != "Mira" {
			t.Fatalf("expected title, got %q", doc.Title)
		}
	})

	t.Run("explicit id wins over slug", func(t *testing.T) {
		doc, err := Parse([]byte("---\nid: mira\ntitle: Mira of Hilltop\ntype: character\n---\n"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if doc.ID != "mira" {
			t.Fatalf("expected explicit id, got %q", doc.ID)
		}
	})

	t.Run("minimal frontmatter", func(t *testing.T) {
		doc, err := Parse([]byte("---\ntitle: Minimal\ntype: place\n---\n"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if doc.Tags != nil {
			t.Fatalf("expected nil tags, got %#v", doc.Tags)
		}
		if doc.Body != "" {
			t.Fatalf("expected empty body, got %q", doc.Body)
		}
	})

	t.Run("no frontmatter", func(t *testing.T) {
		_, err := Parse([]byte("Just text"))
		if !errors.Is(err, ErrNoFrontmatter) {
			t.Fatalf("expected ErrNoFrontmatter, got %v", err)
		}
	})

	t.Run("missing closing marker", func(t *testing.T) {
		_, err := Parse([]byte("---\ntitle: Missing\n"))
		if !errors.Is(err, ErrNoFrontmatter) {
			t.Fatalf("expected ErrNoFrontmatter, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Parse([]byte("---\ntitle: [\n---\n"))
		if !errors.Is(err, ErrInvalidYAML) {
			t.Fatalf("expected ErrInvalidYAML, got %v", err)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		_, err := Parse([]byte("---\ntype: character\n---\n"))
		if !errors.Is(err, ErrMissingTitle) {
			t.Fatalf("expected ErrMissingTitle, got %v", err)
		}
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Parse([]byte("---\ntitle: Something\n---\n"))
		if !errors.Is(err, ErrMissingType) {
			t.Fatalf("expected ErrMissingType, got %v", err)
		}
	})

	t.Run("single string tag", func(t *testing.T) {
		doc, err := Parse([]byte("---\ntitle: Tags\ntype: character\ntags: solo\n---\n"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(doc.Tags, []string{"solo"}) {
			t.Fatalf("unexpected tags: %#v", doc.Tags)
		}
	})

	t.Run("non-string tags rejected", func(t *testing.T) {
		if _, err := Parse([]byte("---\ntitle: Tags\ntype: character\ntags: [1, 2]\n---\n")); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestAttributes_SkipsReservedFields(t *testing.T) {
	doc, err := Parse([]byte("---\nid: mira\ntitle: Mira\ntype: character\nstatus: alive\ntags: [ruler]\n---\n"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	attrs := doc.Attributes()
	if _, present := attrs["title"]; present {
		t.Fatalf("title must not become an attribute")
	}
	if _, present := attrs["tags"]; present {
		t.Fatalf("tags must not become an attribute")
	}
	if attrs["status"] != "alive" {
		t.Fatalf("expected status attribute, got %#v", attrs)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Mira of Hilltop":    "mira-of-hilltop",
		"  The Siege (1042)": "the-siege-1042",
		"Ærin":               "rin",
	}
	for title, want := range cases {
		if got := Slug(title); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mira.md")
	if err := os.WriteFile(path, []byte("---\ntitle: Mira\ntype: character\n---\nBody.\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if doc.SourceFile != path {
		t.Fatalf("expected source file %q, got %q", path, doc.SourceFile)
	}
}
