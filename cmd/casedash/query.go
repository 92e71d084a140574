package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/casedash/casedash/internal/api"
	"github.com/spf13/cobra"
)

var (
	queryParams []string

	casesFilter api.CaseFilter
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "GET an API path with the stored session",
	Long: `Send an authenticated GET to the backend API and print the response body.

Examples:
  casedash get /analytics/conviction-rates --query from=2024-01-01
  casedash get /accused/A-1042`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List cases",
	Args:  cobra.NoArgs,
	RunE:  runCases,
}

func init() {
	getCmd.Flags().StringArrayVarP(&queryParams, "query", "q", nil, "query parameter as key=value (repeatable)")

	casesCmd.Flags().IntVar(&casesFilter.Page, "page", 1, "page number")
	casesCmd.Flags().IntVar(&casesFilter.PageSize, "page-size", api.DefaultPageSize, "items per page (max 100)")
	casesCmd.Flags().StringVar(&casesFilter.Status, "status", "", "filter by case status")
	casesCmd.Flags().StringVar(&casesFilter.District, "district", "", "filter by district")
	casesCmd.Flags().StringVar(&casesFilter.Query, "search", "", "free-text search")
}

func parseQuery(pairs []string) (url.Values, error) {
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	query, err := parseQuery(queryParams)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}

	req, err := a.Gateway.NewRequest(cmd.Context(), http.MethodGet, args[0], query, nil)
	if err != nil {
		return err
	}
	resp, err := a.Gateway.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s returned %s", args[0], resp.Status)
	}
	return nil
}

func runCases(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	page, err := a.API.ListCases(cmd.Context(), casesFilter)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), page)
}
