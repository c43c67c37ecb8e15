// internal/segmentation/segmenter.go
package segmentation

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/wonderpush/segmenter/internal/types"
)

// ParsedSegment is a segment ready for evaluation.
type ParsedSegment struct {
	Criterion   Criterion
	Root        *DataSource
	Fingerprint uint64

	canonical string
}

// String renders the parsed criterion tree.
func (s *ParsedSegment) String() string {
	return Format(s.Criterion)
}

// Segmenter parses segments and matches them against runtime snapshots.
// Safe for concurrent use.
type Segmenter struct {
	grammar *Grammar
	parser  *Parser
	logger  hclog.Logger
	now     func() time.Time
	cache   *segmentCache
}

// Option configures a Segmenter.
type Option func(*segmenterConfig)

type segmenterConfig struct {
	grammar   *Grammar
	logger    hclog.Logger
	now       func() time.Time
	cacheSize int
}

// WithGrammar selects the grammar used for parsing. Defaults to DefaultGrammar().
func WithGrammar(g *Grammar) Option {
	return func(c *segmenterConfig) {
		c.grammar = g
	}
}

// WithLogger sets the logger. Defaults to a null logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *segmenterConfig) {
		c.logger = logger
	}
}

// WithClock sets the clock used for durations, relative dates and presence.
func WithClock(now func() time.Time) Option {
	return func(c *segmenterConfig) {
		c.now = now
	}
}

// WithCacheSize enables a parsed segment cache holding up to size entries.
// Zero disables caching.
func WithCacheSize(size int) Option {
	return func(c *segmenterConfig) {
		c.cacheSize = size
	}
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(opts ...Option) (*Segmenter, error) {
	cfg := segmenterConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.grammar == nil {
		cfg.grammar = DefaultGrammar()
	}
	if cfg.logger == nil {
		cfg.logger = hclog.NewNullLogger()
	}

	s := &Segmenter{
		grammar: cfg.grammar,
		parser:  NewParser(cfg.grammar, WithParserClock(cfg.now)),
		logger:  cfg.logger,
		now:     cfg.now,
	}
	if cfg.cacheSize > 0 {
		cache, err := newSegmentCache(cfg.cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Grammar returns the grammar segments are parsed with.
func (s *Segmenter) Grammar() *Grammar {
	return s.grammar
}

// Parse decodes a JSON segment and parses it under the installation root.
// Returns ErrSegmentTooLarge above MaxSegmentSize.
func (s *Segmenter) Parse(raw []byte) (*ParsedSegment, error) {
	if len(raw) > types.MaxSegmentSize {
		return nil, fmt.Errorf("%w: %d bytes", types.ErrSegmentTooLarge, len(raw))
	}
	v, err := DecodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBadInput, err)
	}
	return s.ParseValue(v)
}

// ParseValue parses a decoded segment under the installation root.
func (s *Segmenter) ParseValue(v any) (*ParsedSegment, error) {
	return s.ParseFor(InstallationSource(), v)
}

// ParseFor parses a decoded segment under root.
func (s *Segmenter) ParseFor(root *DataSource, v any) (*ParsedSegment, error) {
	if !root.IsRoot() {
		return nil, fmt.Errorf("%w: segments must be parsed under a root data source, got %s", types.ErrBadInput, root)
	}
	v = Normalize(v)

	canonical, fingerprint, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if seg, ok := s.cache.get(root.Kind, canonical); ok {
			return seg, nil
		}
	}

	criterion, err := s.parser.Parse(v, root)
	if err != nil {
		s.logger.Debug("segment rejected", "root", root, "error", err)
		return nil, err
	}
	seg := &ParsedSegment{Criterion: criterion, Root: root, Fingerprint: fingerprint, canonical: canonical}
	if s.cache != nil {
		s.cache.add(seg)
	}
	return seg, nil
}

// Matches evaluates seg against data.
func (s *Segmenter) Matches(seg *ParsedSegment, data *Data) bool {
	return s.evaluator(data).Matches(seg.Criterion)
}

// MatchesEvent evaluates an event-rooted seg with event bound as the current event.
func (s *Segmenter) MatchesEvent(seg *ParsedSegment, data *Data, event map[string]any) bool {
	return s.evaluator(data).ForEvent(event).Matches(seg.Criterion)
}

func (s *Segmenter) evaluator(data *Data) *Evaluator {
	return NewEvaluator(data,
		WithEvaluatorClock(s.now),
		WithEvaluatorLogger(s.logger.Named("evaluator")),
	)
}

// CachedSegments returns the number of parsed segments held in the cache.
func (s *Segmenter) CachedSegments() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.len()
}
