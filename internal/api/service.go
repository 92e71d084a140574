// Package api exposes the backend endpoints behind the dashboard views as
// typed calls, reshaping responses where a view needs a different form.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// JSONClient is the part of gateway.Client the service needs.
type JSONClient interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

type Service struct {
	client JSONClient
}

func NewService(c JSONClient) *Service {
	return &Service{client: c}
}

// ClampPageSize bounds n to [1, MaxPageSize]; zero or negative means the default.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

func (s *Service) ListCases(ctx context.Context, f CaseFilter) (*Page[Case], error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(ClampPageSize(f.PageSize)))
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.District != "" {
		q.Set("district", f.District)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}

	var out Page[Case]
	if err := s.client.GetJSON(ctx, "/cases", q, &out); err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	if out.Items == nil {
		out.Items = []Case{}
	}
	return &out, nil
}

func (s *Service) GetCase(ctx context.Context, id string) (*Case, error) {
	if id == "" {
		return nil, errors.New("case id is required")
	}
	var out Case
	if err := s.client.GetJSON(ctx, "/cases/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get case %s: %w", id, err)
	}
	return &out, nil
}

func (s *Service) GetAccused(ctx context.Context, id string) (*Accused, error) {
	if id == "" {
		return nil, errors.New("accused id is required")
	}
	var out Accused
	if err := s.client.GetJSON(ctx, "/accused/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get accused %s: %w", id, err)
	}
	return &out, nil
}

func (s *Service) ConvictionRates(ctx context.Context, r Range) ([]ConvictionRate, error) {
	var out []ConvictionRate
	if err := s.client.GetJSON(ctx, "/analytics/conviction-rates", r.values(), &out); err != nil {
		return nil, fmt.Errorf("failed to get conviction rates: %w", err)
	}
	return out, nil
}

// PersonnelScorecards returns officers ordered by score, highest first.
func (s *Service) PersonnelScorecards(ctx context.Context, r Range) ([]PersonnelScore, error) {
	var out []PersonnelScore
	if err := s.client.GetJSON(ctx, "/analytics/personnel", r.values(), &out); err != nil {
		return nil, fmt.Errorf("failed to get personnel scorecards: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Service) GeoDistribution(ctx context.Context, r Range) ([]GeoPoint, error) {
	var out []GeoPoint
	if err := s.client.GetJSON(ctx, "/geo/distribution", r.values(), &out); err != nil {
		return nil, fmt.Errorf("failed to get geo distribution: %w", err)
	}
	return out, nil
}

func (s *Service) ChargesheetFlow(ctx context.Context, r Range) (*Sankey, error) {
	var edges []FlowEdge
	if err := s.client.GetJSON(ctx, "/analytics/chargesheet-flow", r.values(), &edges); err != nil {
		return nil, fmt.Errorf("failed to get chargesheet flow: %w", err)
	}
	sankey := BuildSankey(edges)
	return &sankey, nil
}

func (s *Service) Trends(ctx context.Context, r Range, g Granularity) ([]TrendPoint, error) {
	var samples []TrendSample
	if err := s.client.GetJSON(ctx, "/analytics/trends", r.values(), &samples); err != nil {
		return nil, fmt.Errorf("failed to get trends: %w", err)
	}
	return AggregateTrend(samples, g), nil
}

// Ask sends a question to the case-retrieval chat.
func (s *Service) Ask(ctx context.Context, question string) (*ChatAnswer, error) {
	if question == "" {
		return nil, errors.New("question is required")
	}
	var out ChatAnswer
	in := map[string]string{"question": question}
	if err := s.client.PostJSON(ctx, "/rag/query", in, &out); err != nil {
		return nil, fmt.Errorf("failed to query case chat: %w", err)
	}
	return &out, nil
}
