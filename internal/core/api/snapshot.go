package api

import (
	"fmt"

	"github.com/wonderpush/segmenter/internal/segmentation"
	"github.com/wonderpush/segmenter/internal/types"
)

// decodeData builds the runtime snapshot from a decoded request body.
// Every field is optional; an absent installation is an empty document.
func decodeData(body map[string]any) (*segmentation.Data, error) {
	data := segmentation.EmptyData()

	if v, ok := body["installation"]; ok && v != nil {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: installation must be an object", types.ErrBadInput)
		}
		data.Installation = obj
	}

	if v, ok := body["user"]; ok && v != nil {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: user must be an object", types.ErrBadInput)
		}
		data.User = obj
	}

	if v, ok := body["events"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: events must be an array", types.ErrBadInput)
		}
		for i, item := range list {
			event, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: events[%d] must be an object", types.ErrBadInput, i)
			}
			data.Events = append(data.Events, event)
		}
	}

	if v, ok := body["presence"]; ok && v != nil {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: presence must be an object", types.ErrBadInput)
		}
		presence := &segmentation.PresenceInfo{}
		for key, dest := range map[string]*int64{
			"fromDate":    &presence.FromDate,
			"untilDate":   &presence.UntilDate,
			"elapsedTime": &presence.ElapsedTime,
		} {
			n, err := int64Field(obj, key)
			if err != nil {
				return nil, fmt.Errorf("%w: presence.%s: %w", types.ErrBadInput, key, err)
			}
			*dest = n
		}
		data.Presence = presence
	}

	n, err := int64Field(body, "lastAppOpenDate")
	if err != nil {
		return nil, fmt.Errorf("%w: lastAppOpenDate: %w", types.ErrBadInput, err)
	}
	data.LastAppOpenDate = n

	return data, nil
}

// int64Field reads an optional numeric field. Absent and null read as zero.
func int64Field(obj map[string]any, key string) (int64, error) {
	switch v := obj[key].(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
