package rpc

import (
	"context"
	"encoding/json"

	"genproxy/crypto"
	"genproxy/indexer"
)

// EventSource serves indexed contract events.
type EventSource interface {
	List(ctx context.Context, f indexer.Filter) ([]indexer.EventRecord, error)
}

type eventsListParams struct {
	Type     string `json:"type,omitempty"`
	Contract string `json:"contract,omitempty"`
	Before   uint64 `json:"before,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type eventJSON struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	Contract   string            `json:"contract"`
	Label      string            `json:"label,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleEventsList(ctx context.Context, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p eventsListParams
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	if p.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	filter := indexer.Filter{Type: p.Type, Before: p.Before, Limit: p.Limit}
	if p.Contract != "" {
		addr, err := s.resolve(p.Contract)
		if err != nil {
			return nil, err
		}
		filter.Contract = addr.String()
	}
	records, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]eventJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, eventJSON{
			ID:         rec.ID.String(),
			Seq:        rec.Seq,
			Height:     rec.Height,
			Contract:   rec.Contract,
			Label:      rec.Label,
			Type:       rec.Type,
			Attributes: rec.Attrs(),
		})
	}
	return out, nil
}
