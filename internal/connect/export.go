package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/timeline/internal/extract"
)

// ExportConfig is the config for the export provider.
type ExportConfig struct {
	// Path is the export file: JSON (.json) or YAML (anything else).
	Path string `json:"path"`

	// Source is the tag applied to posts that carry none of their own.
	Source string `json:"source,omitempty"`
}

// exportPost is one post as written in an export file.
type exportPost struct {
	ID       string `json:"id" yaml:"id"`
	Text     string `json:"text" yaml:"text"`
	Source   string `json:"source" yaml:"source"`
	PostedAt string `json:"posted_at" yaml:"posted_at"`
}

type exportFile struct {
	Posts []exportPost `json:"posts" yaml:"posts"`
}

// postNamespace seeds deterministic ids for posts exported without one, so a
// re-import of the same file maps onto the same rows.
var postNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("timeline:export"))

var postedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ExportProvider reads posts from a local export file.
type ExportProvider struct{}

func (p *ExportProvider) Name() string        { return "export" }
func (p *ExportProvider) DisplayName() string { return "Post export file" }

func (p *ExportProvider) DefaultConfig() json.RawMessage {
	return json.RawMessage(`{
  "path": "~/exports/posts.json",
  "source": ""
}`)
}

func (p *ExportProvider) ValidateConfig(config json.RawMessage) error {
	_, err := parseExportConfig(config)
	return err
}

// Fetch reads the whole file on every call; since is ignored and unchanged
// posts are skipped by the store.
func (p *ExportProvider) Fetch(ctx context.Context, cfg json.RawMessage, since *time.Time) ([]Record, error) {
	c, err := parseExportConfig(cfg)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expandHome(c.Path))
	if err != nil {
		return nil, fmt.Errorf("reading export file: %w", err)
	}
	return ParseExport(data, c.Path, extract.SourceTag(c.Source))
}

func parseExportConfig(config json.RawMessage) (ExportConfig, error) {
	var c ExportConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return c, fmt.Errorf("invalid config JSON: %w", err)
	}
	c.Path = strings.TrimSpace(c.Path)
	if c.Path == "" {
		return c, fmt.Errorf("path is required")
	}
	if c.Source != "" {
		tag, err := extract.ParseSourceTag(c.Source)
		if err != nil {
			return c, err
		}
		c.Source = string(tag)
	}
	return c, nil
}

// ParseExport decodes an export file's contents. The name picks the decoder:
// ".json" is JSON, anything else YAML. The document is either a list of posts
// or a mapping with a "posts" list. Posts with no text are dropped; an
// unrecognised per-post source falls back to defaultSource.
func ParseExport(data []byte, name string, defaultSource extract.SourceTag) ([]Record, error) {
	posts, err := decodeExport(data, strings.EqualFold(filepath.Ext(name), ".json"))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	records := make([]Record, 0, len(posts))
	for i, ep := range posts {
		if strings.TrimSpace(ep.Text) == "" {
			continue
		}

		source := defaultSource
		if tag, err := extract.ParseSourceTag(ep.Source); err == nil && tag != extract.SourceUnknown {
			source = tag
		}

		rec, err := NewRecord(ep.ID, ep.Text, source, ep.PostedAt)
		if err != nil {
			return nil, fmt.Errorf("post %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NewRecord builds a record from loosely typed fields. An empty id is
// derived from postedAt and text, so the same post always gets the same id.
func NewRecord(id, text string, source extract.SourceTag, postedAt string) (Record, error) {
	rec := Record{
		Text:       text,
		Source:     source,
		ExternalID: strings.TrimSpace(id),
	}
	if postedAt != "" {
		ts, err := parsePostedAt(postedAt)
		if err != nil {
			return Record{}, err
		}
		rec.Timestamp = ts
	}
	if rec.ExternalID == "" {
		rec.ExternalID = uuid.NewSHA1(postNamespace, []byte(postedAt+"\x00"+text)).String()
	}
	return rec, nil
}

func decodeExport(data []byte, isJSON bool) ([]exportPost, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if isJSON {
		if trimmed[0] == '[' {
			var posts []exportPost
			err := json.Unmarshal(trimmed, &posts)
			return posts, err
		}
		var f exportFile
		err := json.Unmarshal(trimmed, &f)
		return f.Posts, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var posts []exportPost
		err := node.Decode(&posts)
		return posts, err
	}
	var f exportFile
	err := node.Decode(&f)
	return f.Posts, err
}

func parsePostedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range postedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised posted_at %q", s)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
