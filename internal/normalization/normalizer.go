// Package normalization turns the loosely shaped results delivered by the
// generation workflow into jobs.Content, or into a typed Failure. It never
// panics and never returns a half-filled success.
package normalization

import (
	"fmt"
	"strings"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
)

const (
	DefaultMaxDepth     = 6
	DefaultPreviewLimit = 2000
	levelsKey           = "levels"
)

// outputKey is the field the workflow puts its JSON text in.
const outputKey = "output"

// DefaultEmbeddedKeys are the object fields that carry the real payload as
// JSON text. Keys other than output are only consulted on objects without
// levels, so a commentary field next to real levels is left alone.
var DefaultEmbeddedKeys = []string{outputKey}

type FailureKind string

const (
	FailureParse      FailureKind = "parse"
	FailureUpstream   FailureKind = "upstream"
	FailureValidation FailureKind = "validation"
)

type Failure struct {
	Kind       FailureKind
	Reason     string
	Message    string
	RawPreview string
}

// ErrorInfo converts the failure into the persisted job error shape.
func (f *Failure) ErrorInfo() *jobs.ErrorInfo {
	if f == nil {
		return nil
	}
	kind := jobs.ErrorKindParse
	switch f.Kind {
	case FailureUpstream:
		kind = jobs.ErrorKindUpstream
	case FailureValidation:
		kind = jobs.ErrorKindValidation
	}
	return &jobs.ErrorInfo{Kind: kind, Reason: f.Reason, Message: f.Message, RawPreview: f.RawPreview}
}

// Result is either OK with a fully backfilled Content, or carries a Failure.
type Result struct {
	OK      bool
	Content *jobs.Content
	Failure *Failure
}

type Options struct {
	Levels       []string
	MaxDepth     int
	PreviewLimit int
	EmbeddedKeys []string
}

func DefaultOptions() Options {
	return Options{
		Levels:       append([]string(nil), jobs.DefaultLevels...),
		MaxDepth:     DefaultMaxDepth,
		PreviewLimit: DefaultPreviewLimit,
		EmbeddedKeys: append([]string(nil), DefaultEmbeddedKeys...),
	}
}

type Normalizer struct {
	opts Options
}

// New fills zero-valued options with defaults.
func New(opts Options) *Normalizer {
	def := DefaultOptions()
	if len(opts.Levels) == 0 {
		opts.Levels = def.Levels
	}
	levels := make([]string, 0, len(opts.Levels))
	for _, l := range opts.Levels {
		if l = NormalizeKey(l); l != "" {
			levels = append(levels, l)
		}
	}
	opts.Levels = levels
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = def.PreviewLimit
	}
	if len(opts.EmbeddedKeys) == 0 {
		opts.EmbeddedKeys = def.EmbeddedKeys
	}
	return &Normalizer{opts: opts}
}

func (n *Normalizer) Options() Options { return n.opts }

// Normalize extracts content from payload. topic fills content.topic when the
// payload does not carry one.
func (n *Normalizer) Normalize(payload any, topic string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(&Failure{
				Kind:   FailureValidation,
				Reason: fmt.Sprintf("unprocessable results: %v", r),
			})
		}
	}()

	candidate, f := n.resolve(payload, 0)
	if f != nil {
		return failed(f)
	}
	levels, f := n.levelsOf(candidate)
	if f != nil {
		return failed(f)
	}
	return Result{OK: true, Content: n.build(candidate, levels, topic)}
}

// NormalizeJSON is Normalize for raw JSON bytes.
func (n *Normalizer) NormalizeJSON(raw []byte, topic string) Result {
	v, err := strictParse(string(raw))
	if err != nil {
		return failed(&Failure{
			Kind:       FailureParse,
			Reason:     "results are not valid JSON: " + err.Error(),
			RawPreview: Preview(string(raw), n.opts.PreviewLimit),
		})
	}
	return n.Normalize(v, topic)
}

func failed(f *Failure) Result {
	return Result{OK: false, Failure: f}
}

// resolve walks the ordered unwrapping rules until it reaches an object that
// should contain levels. hops bounds repeated string to JSON unwrapping.
func (n *Normalizer) resolve(v any, hops int) (map[string]any, *Failure) {
	if hops > n.opts.MaxDepth {
		return nil, &Failure{
			Kind:       FailureValidation,
			Reason:     fmt.Sprintf("results are wrapped more than %d levels deep", n.opts.MaxDepth),
			RawPreview: Preview(v, n.opts.PreviewLimit),
		}
	}

	if arr, ok := v.([]any); ok && len(arr) > 0 {
		v = arr[0]
	}

	switch t := v.(type) {
	case string:
		parsed, err := strictParse(t)
		if err != nil {
			return nil, &Failure{
				Kind:       FailureParse,
				Reason:     "results string is not valid JSON: " + err.Error(),
				RawPreview: Preview(t, n.opts.PreviewLimit),
			}
		}
		return n.resolve(parsed, hops+1)

	case map[string]any:
		if f := upstreamFailure(t); f != nil {
			return nil, f
		}
		_, hasLevels := t[levelsKey]
		for _, key := range n.opts.EmbeddedKeys {
			if hasLevels && key != outputKey {
				continue
			}
			s, ok := t[key].(string)
			if !ok {
				continue
			}
			parsed, f := n.parseEmbedded(key, s)
			if f != nil {
				return nil, f
			}
			return n.resolve(parsed, hops+1)
		}
		if hasLevels {
			return t, nil
		}
		return n.searchNested(t)

	case []any:
		return n.searchNested(t)
	}

	return nil, &Failure{
		Kind:       FailureValidation,
		Reason:     fmt.Sprintf("results of type %s carry no levels structure", kindOf(v)),
		RawPreview: Preview(v, n.opts.PreviewLimit),
	}
}

// searchNested looks for a levels key below root. A string levels value is
// parsed the same way as an embedded text field.
func (n *Normalizer) searchNested(root any) (map[string]any, *Failure) {
	holder, ok := findLevels(root, n.opts.MaxDepth)
	if !ok {
		return nil, &Failure{
			Kind:       FailureValidation,
			Reason:     fmt.Sprintf("results are missing the levels structure (searched %d levels deep)", n.opts.MaxDepth),
			RawPreview: Preview(root, n.opts.PreviewLimit),
		}
	}
	return holder, nil
}

// levelsOf enforces that candidate carries an object-valued levels key.
func (n *Normalizer) levelsOf(candidate map[string]any) (map[string]any, *Failure) {
	raw, ok := candidate[levelsKey]
	if !ok {
		return nil, &Failure{
			Kind:       FailureValidation,
			Reason:     "results are missing the levels structure",
			RawPreview: Preview(candidate, n.opts.PreviewLimit),
		}
	}
	if s, isString := raw.(string); isString {
		parsed, f := n.parseEmbedded(levelsKey, s)
		if f != nil {
			return nil, f
		}
		if m, isMap := parsed.(map[string]any); isMap {
			if inner, nested := m[levelsKey]; nested {
				raw = inner
			} else {
				raw = m
			}
		} else {
			raw = parsed
		}
	}
	levels, ok := raw.(map[string]any)
	if !ok {
		return nil, &Failure{
			Kind:       FailureValidation,
			Reason:     fmt.Sprintf("levels must be an object, got %s", kindOf(raw)),
			RawPreview: Preview(candidate, n.opts.PreviewLimit),
		}
	}
	return levels, nil
}

func (n *Normalizer) build(candidate map[string]any, levels map[string]any, topic string) *jobs.Content {
	c := &jobs.Content{Topic: strings.TrimSpace(topic)}
	if t := strings.TrimSpace(stringOf(candidate["topic"])); t != "" {
		c.Topic = t
	}
	c.Levels = make(map[string]jobs.LevelContent, len(levels))
	for _, name := range sortedKeys(levels) {
		key := NormalizeKey(name)
		if key == "" {
			continue
		}
		lvl := coerceLevel(levels[name])
		if prev, dup := c.Levels[key]; dup {
			lvl = mergeLevels(prev, lvl)
		}
		c.Levels[key] = lvl
	}
	c.Backfill(n.opts.Levels)
	return c
}

// upstreamFailure recognizes an explicit {error, message} report from the
// workflow. Null, false, empty strings and empty objects do not count.
func upstreamFailure(m map[string]any) *Failure {
	raw, ok := m["error"]
	if !ok || isBlank(raw) {
		return nil
	}
	reason := ""
	if inner, isMap := raw.(map[string]any); isMap {
		reason = strings.TrimSpace(stringOf(inner["message"]))
	}
	if reason == "" {
		reason = strings.TrimSpace(stringOf(raw))
	}
	return &Failure{
		Kind:    FailureUpstream,
		Reason:  reason,
		Message: strings.TrimSpace(stringOf(m["message"])),
	}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	}
	return false
}
