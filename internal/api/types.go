package api

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const dateLayout = "2006-01-02"

type Case struct {
	ID                   string    `json:"id"`
	FIRNumber            string    `json:"fir_number"`
	Title                string    `json:"title"`
	Status               string    `json:"status"`
	District             string    `json:"district"`
	PoliceStation        string    `json:"police_station"`
	Sections             []string  `json:"sections"`
	InvestigatingOfficer string    `json:"investigating_officer"`
	AccusedIDs           []string  `json:"accused_ids"`
	RegisteredAt         time.Time `json:"registered_at"`
}

type Accused struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Age              int      `json:"age"`
	Gender           string   `json:"gender"`
	Address          string   `json:"address"`
	PriorConvictions int      `json:"prior_convictions"`
	CaseIDs          []string `json:"case_ids"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (p *Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

func (p *Page[T]) HasNext() bool {
	return p.Page < p.TotalPages()
}

type CaseFilter struct {
	Page     int
	PageSize int
	Status   string
	District string
	Query    string
}

// Range limits analytics to [From, To]. Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) values() url.Values {
	v := url.Values{}
	if !r.From.IsZero() {
		v.Set("from", r.From.Format(dateLayout))
	}
	if !r.To.IsZero() {
		v.Set("to", r.To.Format(dateLayout))
	}
	return v
}

// ParseRange parses optional YYYY-MM-DD bounds.
func ParseRange(from, to string) (Range, error) {
	var r Range
	var err error
	if from != "" {
		if r.From, err = time.Parse(dateLayout, from); err != nil {
			return Range{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
	}
	if to != "" {
		if r.To, err = time.Parse(dateLayout, to); err != nil {
			return Range{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return Range{}, errors.New("date range ends before it starts")
	}
	return r, nil
}

type ConvictionRate struct {
	District  string  `json:"district"`
	Convicted int     `json:"convicted"`
	Acquitted int     `json:"acquitted"`
	Pending   int     `json:"pending"`
	Rate      float64 `json:"rate"`
}

type PersonnelScore struct {
	OfficerID     string  `json:"officer_id"`
	Name          string  `json:"name"`
	Rank          string  `json:"rank"`
	CasesHandled  int     `json:"cases_handled"`
	Chargesheeted int     `json:"chargesheeted"`
	Convictions   int     `json:"convictions"`
	Score         float64 `json:"score"`
}

type GeoPoint struct {
	District  string  `json:"district"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Cases     int     `json:"cases"`
}

// FlowEdge is one stage transition as reported by the backend.
type FlowEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

type SankeyNode struct {
	Name string `json:"name"`
}

// SankeyLink references nodes by index into Sankey.Nodes.
type SankeyLink struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Value  float64 `json:"value"`
}

type Sankey struct {
	Nodes []SankeyNode `json:"nodes"`
	Links []SankeyLink `json:"links"`
}

type TrendSample struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

type TrendPoint struct {
	Period time.Time `json:"period"`
	Count  int       `json:"count"`
}

type ChatSource struct {
	CaseID  string  `json:"case_id"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

type ChatAnswer struct {
	Answer  string       `json:"answer"`
	Sources []ChatSource `json:"sources"`
}
