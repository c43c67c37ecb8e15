// Package api implements the gRPC segmenter service: segment validation and
// matching against runtime snapshots sent by the caller.
package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wonderpush/segmenter/internal/core/auth"
	"github.com/wonderpush/segmenter/internal/core/config"
	"github.com/wonderpush/segmenter/internal/core/db"
	"github.com/wonderpush/segmenter/internal/segmentation"
	"github.com/wonderpush/segmenter/internal/types"
)

// SegmentLoader loads catalogue segments. Implemented by *db.SegmentStore.
type SegmentLoader interface {
	Get(ctx context.Context, appID types.ApplicationID, id types.SegmentID) (*db.Segment, error)
}

// SegmenterService implements SegmenterServer.
// Thin orchestration layer over the segmentation package and the catalogue.
type SegmenterService struct {
	tolerant *segmentation.Segmenter
	strict   *segmentation.Segmenter
	segments SegmentLoader
	cfg      *config.ServiceConfig
	logger   hclog.Logger
}

var _ SegmenterServer = (*SegmenterService)(nil)

// NewSegmenterService creates the service. segments may be nil, in which
// case requests naming a segmentId are rejected.
func NewSegmenterService(cfg *config.ServiceConfig, segments SegmentLoader, logger hclog.Logger) (*SegmenterService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	tolerant, err := segmentation.NewSegmenter(
		segmentation.WithGrammar(segmentation.DefaultGrammar()),
		segmentation.WithCacheSize(cfg.CacheSize),
		segmentation.WithLogger(logger.Named("tolerant")),
	)
	if err != nil {
		return nil, err
	}
	strict, err := segmentation.NewSegmenter(
		segmentation.WithGrammar(segmentation.StrictGrammar()),
		segmentation.WithCacheSize(cfg.CacheSize),
		segmentation.WithLogger(logger.Named("strict")),
	)
	if err != nil {
		return nil, err
	}

	return &SegmenterService{
		tolerant: tolerant,
		strict:   strict,
		segments: segments,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Validate parses the JSON body {"segment": {...}} with the strict grammar.
// Rejection is reported in the response, not as an RPC error.
func (s *SegmenterService) Validate(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	body, err := s.decodeRequest(req)
	if err != nil {
		return nil, err
	}
	definition, ok := body["segment"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "segment is required")
	}

	result := map[string]any{"valid": true, "error": "", "fingerprint": ""}
	seg, err := s.strict.ParseValue(definition)
	if err != nil {
		result["valid"] = false
		result["error"] = err.Error()
	} else {
		result["fingerprint"] = strconv.FormatUint(seg.Fingerprint, 10)
		result["formatted"] = seg.String()
	}

	out, err := structpb.NewStruct(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Match evaluates a segment against the snapshot carried by req.
//
// The segment is given inline as "segment" or by catalogue "segmentId".
// When "event" is present the segment is parsed under the event root and
// evaluated with that event bound.
func (s *SegmenterService) Match(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	appID := auth.ApplicationIDFromContext(ctx)

	body, err := s.decodeRequest(req)
	if err != nil {
		return nil, err
	}

	data, err := decodeData(body)
	if err != nil {
		return nil, toStatus(err)
	}

	definition, err := s.definition(ctx, appID, body)
	if err != nil {
		return nil, toStatus(err)
	}

	segmenter := s.tolerant
	if s.cfg.IsStrictApp(string(appID)) {
		segmenter = s.strict
	}

	event, isEvent := body["event"]
	if !isEvent {
		seg, err := segmenter.ParseValue(definition)
		if err != nil {
			return nil, toStatus(err)
		}
		return wrapperspb.Bool(segmenter.Matches(seg, data)), nil
	}

	eventObj, ok := event.(map[string]any)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "event must be an object")
	}
	seg, err := segmenter.ParseFor(segmentation.EventSource(), definition)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(segmenter.MatchesEvent(seg, data, eventObj)), nil
}

// definition returns the inline segment or loads it from the catalogue.
func (s *SegmenterService) definition(ctx context.Context, appID types.ApplicationID, body map[string]any) (any, error) {
	if definition, ok := body["segment"]; ok {
		return definition, nil
	}

	rawID, ok := body["segmentId"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: segment or segmentId is required", types.ErrBadInput)
	}
	if s.segments == nil {
		return nil, fmt.Errorf("%w: segment catalogue not configured", types.ErrBadInput)
	}
	id, err := types.ParseSegmentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: segmentId: %w", types.ErrBadInput, err)
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	stored, err := s.segments.Get(ctx, appID, id)
	if err != nil {
		return nil, err
	}
	return segmentation.DecodeJSON(stored.Definition)
}

// decodeRequest decodes the JSON object carried by req, keeping integers exact.
func (s *SegmenterService) decodeRequest(req *wrapperspb.BytesValue) (map[string]any, error) {
	raw := req.GetValue()
	if len(raw) == 0 {
		return nil, status.Error(codes.InvalidArgument, "request body is required")
	}
	if size := len(raw); s.cfg.MaxSnapshotSize > 0 && size > s.cfg.MaxSnapshotSize {
		return nil, status.Errorf(codes.InvalidArgument, "request of %d bytes exceeds maximum of %d", size, s.cfg.MaxSnapshotSize)
	}
	body, err := segmentation.DecodeObject(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return body, nil
}
