package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one lore file: YAML frontmatter describing an entity,
// followed by free-text body.
type Document struct {
	Frontmatter map[string]any
	ID          string
	Title       string
	EntityType  string
	Tags        []string
	Body        string
	SourceFile  string
}

var (
	ErrNoFrontmatter = errors.New("no frontmatter found")
	ErrInvalidYAML   = errors.New("invalid YAML in frontmatter")
	ErrMissingTitle  = errors.New("frontmatter missing required 'title' field")
	ErrMissingType   = errors.New("frontmatter missing required 'type' field")
)

// reservedFields never become entity attributes.
var reservedFields = map[string]struct{}{
	"id": {}, "title": {}, "type": {}, "tags": {},
}

func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.SourceFile = path
	return doc, nil
}

func Parse(content []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}

	rest := trimmed[len("---\n"):]
	end := bytes.Index(rest, []byte("---\n"))
	if end == -1 {
		return nil, ErrNoFrontmatter
	}

	yamlBytes := rest[:end]
	body := string(rest[end+len("---\n"):])

	var frontmatter map[string]any
	if err := yaml.Unmarshal(yamlBytes, &frontmatter); err != nil {
		return nil, ErrInvalidYAML
	}

	title, ok := frontmatter["title"].(string)
	if !ok || strings.TrimSpace(title) == "" {
		return nil, ErrMissingTitle
	}

	entityType, ok := frontmatter["type"].(string)
	if !ok || strings.TrimSpace(entityType) == "" {
		return nil, ErrMissingType
	}

	id, _ := frontmatter["id"].(string)
	if strings.TrimSpace(id) == "" {
		id = Slug(title)
	}

	tags, err := parseTags(frontmatter["tags"])
	if err != nil {
		return nil, err
	}

	return &Document{
		Frontmatter: frontmatter,
		ID:          id,
		Title:       title,
		EntityType:  entityType,
		Tags:        tags,
		Body:        strings.TrimSpace(body),
	}, nil
}

// Attributes returns the frontmatter fields that describe the entity
// itself, i.e. everything except the reserved identity fields.
func (d *Document) Attributes() map[string]any {
	attrs := make(map[string]any, len(d.Frontmatter))
	for key, value := range d.Frontmatter {
		if _, reserved := reservedFields[strings.ToLower(key)]; reserved {
			continue
		}
		attrs[key] = value
	}
	return attrs
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a stable entity id from a title.
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func parseTags(value any) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("tags must be strings")
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			tags = append(tags, s)
		}
		if len(tags) == 0 {
			return nil, nil
		}
		return tags, nil
	default:
		return nil, fmt.Errorf("tags must be string or list of strings")
	}
}
