package main

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	q, err := parseQuery([]string{"from=2024-01-01", "district=Pune", "district=Nashik", "q="})
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"from":     {"2024-01-01"},
		"district": {"Pune", "Nashik"},
		"q":        {""},
	}, q)

	_, err = parseQuery([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseQuery([]string{"=x"})
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "login", "logout", "status", "get", "cases"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
