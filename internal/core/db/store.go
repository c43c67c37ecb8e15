package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/wonderpush/segmenter/internal/segmentation"
	"github.com/wonderpush/segmenter/internal/types"
)

// Segment is a named segment definition stored for an application.
type Segment struct {
	ID          types.SegmentID
	AppID       types.ApplicationID
	Name        string
	Definition  types.Definition
	Fingerprint uint64
	CreatedAt   time.Time
}

type segmentRow struct {
	ID          string    `db:"segment_id"`
	AppID       string    `db:"app_id"`
	Name        string    `db:"name"`
	Definition  string    `db:"definition"`
	Fingerprint string    `db:"fingerprint"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r segmentRow) segment() (*Segment, error) {
	fingerprint, err := strconv.ParseUint(r.Fingerprint, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("segment %s has a corrupt fingerprint: %w", r.ID, err)
	}
	return &Segment{
		ID:          types.SegmentID(r.ID),
		AppID:       types.ApplicationID(r.AppID),
		Name:        r.Name,
		Definition:  types.Definition(r.Definition),
		Fingerprint: fingerprint,
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

// SegmentStore persists segment definitions per application.
// Definitions are checked against the strict grammar before they are stored.
type SegmentStore struct {
	queries   *Queries
	segmenter *segmentation.Segmenter
	logger    hclog.Logger
	now       func() time.Time
}

// NewSegmentStore creates a store over the named catalogue queries.
func NewSegmentStore(queries *Queries, logger hclog.Logger) (*SegmentStore, error) {
	segmenter, err := segmentation.NewSegmenter(
		segmentation.WithGrammar(segmentation.StrictGrammar()),
		segmentation.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &SegmentStore{
		queries:   queries,
		segmenter: segmenter,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Create validates and stores a new segment.
func (s *SegmentStore) Create(ctx context.Context, appID types.ApplicationID, name string, definition []byte) (*Segment, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: application id is required", types.ErrBadInput)
	}
	if name == "" || len(name) > types.MaxSegmentNameLength {
		return nil, fmt.Errorf("%w: segment name must be 1-%d bytes", types.ErrBadInput, types.MaxSegmentNameLength)
	}

	parsed, err := s.segmenter.Parse(definition)
	if err != nil {
		return nil, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, definition); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBadInput, err)
	}

	seg := &Segment{
		ID:          types.NewSegmentID(),
		AppID:       appID,
		Name:        name,
		Definition:  types.Definition(compact.Bytes()),
		Fingerprint: parsed.Fingerprint,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}

	_, err = s.queries.Exec(ctx, "create-segment",
		string(seg.ID), string(seg.AppID), seg.Name, compact.String(),
		strconv.FormatUint(seg.Fingerprint, 10), seg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", types.ErrSegmentExists, name)
		}
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}

	s.logger.Info("segment created", "app_id", appID, "segment_id", seg.ID, "name", name)
	return seg, nil
}

// Get returns one segment of appID.
func (s *SegmentStore) Get(ctx context.Context, appID types.ApplicationID, id types.SegmentID) (*Segment, error) {
	var row segmentRow
	err := s.queries.Get(ctx, "get-segment", &row, string(appID), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return row.segment()
}

// List returns the segments of appID ordered by ID.
func (s *SegmentStore) List(ctx context.Context, appID types.ApplicationID) ([]*Segment, error) {
	var rows []segmentRow
	if err := s.queries.Select(ctx, "list-segments", &rows, string(appID), types.MaxListedSegments); err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	segments := make([]*Segment, 0, len(rows))
	for _, row := range rows {
		seg, err := row.segment()
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// Delete removes one segment of appID.
func (s *SegmentStore) Delete(ctx context.Context, appID types.ApplicationID, id types.SegmentID) error {
	result, err := s.queries.Exec(ctx, "delete-segment", string(appID), string(id))
	if err != nil {
		return fmt.Errorf("failed to delete segment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete segment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}

	s.logger.Info("segment deleted", "app_id", appID, "segment_id", id)
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
