// internal/segmentation/cache.go
package segmentation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mitchellh/hashstructure/v2"
)

/*
 * Parsed segment cache.
 *
 * Campaigns are re-evaluated on every triggering event, so the same segment
 * definitions are parsed over and over. The cache keys parsed ASTs by the
 * root kind and the canonical text of the normalized definition: object
 * keys sorted, every scalar tagged with its type, numbers in their
 * normalized form (1 and 1.0 both render as i1). The key is the full
 * text, so distinct definitions never share an entry. The fingerprint is
 * a hash of that text.
 *
 * The LRU is safe for concurrent use; parsed ASTs are immutable.
 */

type cacheKey struct {
	root      SourceKind
	canonical string
}

type segmentCache struct {
	lru *lru.Cache
}

func newSegmentCache(size int) (*segmentCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating segment cache: %w", err)
	}
	return &segmentCache{lru: c}, nil
}

func (c *segmentCache) get(root SourceKind, canonical string) (*ParsedSegment, bool) {
	v, ok := c.lru.Get(cacheKey{root: root, canonical: canonical})
	if !ok {
		return nil, false
	}
	return v.(*ParsedSegment), true
}

func (c *segmentCache) add(seg *ParsedSegment) {
	c.lru.Add(cacheKey{root: seg.Root.Kind, canonical: seg.canonical}, seg)
}

func (c *segmentCache) len() int {
	return c.lru.Len()
}

// Fingerprint returns a hash of the canonical form of a decoded segment definition.
// Map key order does not affect the result; array order and value types do.
func Fingerprint(definition any) (uint64, error) {
	_, fingerprint, err := canonicalize(definition)
	return fingerprint, err
}

// canonicalize renders definition in canonical form and hashes it.
func canonicalize(definition any) (string, uint64, error) {
	var b strings.Builder
	if err := writeCanonical(&b, Normalize(definition)); err != nil {
		return "", 0, fmt.Errorf("fingerprinting segment: %w", err)
	}
	canonical := b.String()
	h, err := hashstructure.Hash(canonical, hashstructure.FormatV2, nil)
	if err != nil {
		return "", 0, fmt.Errorf("fingerprinting segment: %w", err)
	}
	return canonical, h, nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int64:
		b.WriteString("i")
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString("f")
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case string:
		b.WriteString(strconv.Quote(t))
	case []any:
		b.WriteString("[")
		for i, child := range t {
			if i > 0 {
				b.WriteString(",")
			}
			if err := writeCanonical(b, child); err != nil {
				return err
			}
		}
		b.WriteString("]")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(":")
			if err := writeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteString("}")
	default:
		// hand-built documents with other Go types
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		b.WriteString("j")
		b.Write(raw)
	}
	return nil
}
