package api

import (
	"fmt"
	"sort"
	"time"
)

type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity accepts day, week or month. Empty means month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return Month, nil
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// BuildSankey turns stage transitions into an indexed node/link graph. Nodes
// keep first-seen order, links with a non-positive value are dropped and
// repeated source/target pairs are summed into one link.
func BuildSankey(edges []FlowEdge) Sankey {
	s := Sankey{Nodes: []SankeyNode{}, Links: []SankeyLink{}}
	index := make(map[string]int)
	node := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(s.Nodes)
		s.Nodes = append(s.Nodes, SankeyNode{Name: name})
		return index[name]
	}

	type pair struct{ src, dst int }
	links := make(map[pair]int)
	for _, e := range edges {
		if e.Value <= 0 || e.Source == "" || e.Target == "" || e.Source == e.Target {
			continue
		}
		p := pair{node(e.Source), node(e.Target)}
		if i, ok := links[p]; ok {
			s.Links[i].Value += e.Value
			continue
		}
		links[p] = len(s.Links)
		s.Links = append(s.Links, SankeyLink{Source: p.src, Target: p.dst, Value: e.Value})
	}
	return s
}

// AggregateTrend sums samples into UTC buckets of the given granularity,
// ascending. Buckets with a zero total are omitted. Weeks start on Monday.
func AggregateTrend(samples []TrendSample, g Granularity) []TrendPoint {
	totals := make(map[time.Time]int)
	for _, s := range samples {
		totals[bucketStart(s.Date, g)] += s.Count
	}

	points := make([]TrendPoint, 0, len(totals))
	for period, count := range totals {
		if count == 0 {
			continue
		}
		points = append(points, TrendPoint{Period: period, Count: count})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period.Before(points[j].Period) })
	return points
}

func bucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case Week:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}
