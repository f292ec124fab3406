package template

import (
	"log/slog"
	"os"
	"strings"

	"moodreply/app/config"
	"moodreply/app/label"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"gopkg.in/yaml.v3"
)

// Key addresses a template entry. Either side may be label.Wildcard.
type Key struct {
	Emotion label.Emotion
	Intent  label.Intent
}

var GlobalKey = Key{Emotion: label.Wildcard, Intent: label.Wildcard}

func (k Key) String() string {
	return string(k.Emotion) + "," + string(k.Intent)
}

// ParseKey parses an "emotion,intent" pair.
func ParseKey(raw string) (Key, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Key{}, label.ConfigErrorf("template key %q must look like emotion,intent", raw)
	}

	emotion := strings.TrimSpace(parts[0])
	intent := strings.TrimSpace(parts[1])
	if emotion == "" || intent == "" {
		return Key{}, label.ConfigErrorf("template key %q has an empty side", raw)
	}

	return Key{Emotion: label.Emotion(emotion), Intent: label.Intent(intent)}, nil
}

// Store is an immutable catalog of reply candidates. It is safe for
// concurrent use; returned slices must not be modified.
type Store struct {
	entries map[Key][]string
}

func New(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)
	labels := do.MustInvoke[*label.Set](di)

	store, err := LoadFile(cfg.Responder.TemplatesFile, labels)
	if err != nil {
		return nil, err
	}

	slog.Info("Templates loaded",
		"file", cfg.Responder.TemplatesFile,
		"entries", store.Len())

	return store, nil
}

// LoadFile reads templates from a YAML or JSON file.
func LoadFile(path string, labels *label.Set) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, label.ConfigErrorf("failed to read templates file %q: %v", path, err)
	}

	return Parse(data, labels)
}

func Parse(data []byte, labels *label.Set) (*Store, error) {
	var raw map[string][]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, label.ConfigErrorf("templates must map emotion,intent keys to lists of replies: %v", err)
	}

	// only string scalars; yaml.v3 would otherwise turn 1 or true into text
	source := make(map[string][]string, len(raw))
	for key, nodes := range raw {
		replies := make([]string, 0, len(nodes))
		for _, node := range nodes {
			if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
				return nil, label.ConfigErrorf("template %q: reply at line %d must be a string", key, node.Line)
			}
			replies = append(replies, node.Value)
		}
		source[key] = replies
	}

	return Load(source, labels)
}

// Load validates and indexes the source. The global "*,*" entry is mandatory.
func Load(source map[string][]string, labels *label.Set) (*Store, error) {
	if len(source) == 0 {
		return nil, label.ConfigErrorf("no templates configured")
	}

	entries := make(map[Key][]string, len(source))

	for _, rawKey := range pie.Sort(pie.Keys(source)) {
		key, err := ParseKey(rawKey)
		if err != nil {
			return nil, err
		}

		if _, exists := entries[key]; exists {
			return nil, label.ConfigErrorf("duplicate template key %q", key)
		}

		if key.Emotion != label.Wildcard && !labels.HasEmotion(key.Emotion) {
			return nil, label.ConfigErrorf("template key %q uses unknown emotion %q", rawKey, key.Emotion)
		}
		if key.Intent != label.Wildcard && !labels.HasIntent(key.Intent) {
			return nil, label.ConfigErrorf("template key %q uses unknown intent %q", rawKey, key.Intent)
		}

		candidates := source[rawKey]
		if len(candidates) == 0 {
			return nil, label.ConfigErrorf("template %q has no replies", rawKey)
		}

		for i, text := range candidates {
			if strings.TrimSpace(text) == "" {
				return nil, label.ConfigErrorf("template %q has blank reply at position %d", rawKey, i)
			}
		}

		entries[key] = append([]string(nil), candidates...)
	}

	if len(entries[GlobalKey]) == 0 {
		return nil, label.ConfigErrorf("global fallback %q is missing", GlobalKey)
	}

	return &Store{entries: entries}, nil
}

// Lookup returns the candidates of the most specific matching entry.
func (s *Store) Lookup(emotion label.Emotion, intent label.Intent) []string {
	_, candidates := s.Resolve(emotion, intent)
	return candidates
}

// Resolve walks exact, intent-only, emotion-only and global keys in that
// order and returns the first entry found along with its key.
func (s *Store) Resolve(emotion label.Emotion, intent label.Intent) (Key, []string) {
	chain := [...]Key{
		{Emotion: emotion, Intent: intent},
		{Emotion: label.Wildcard, Intent: intent},
		{Emotion: emotion, Intent: label.Wildcard},
		GlobalKey,
	}

	for _, key := range chain {
		if candidates := s.entries[key]; len(candidates) > 0 {
			return key, candidates
		}
	}

	return GlobalKey, nil
}

func (s *Store) Len() int {
	return len(s.entries)
}

// Keys returns all entry keys sorted by their string form.
func (s *Store) Keys() []Key {
	return pie.SortUsing(pie.Keys(s.entries), func(a, b Key) bool {
		return a.String() < b.String()
	})
}
