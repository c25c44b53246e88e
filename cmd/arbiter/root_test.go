package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "exec", "health"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestExecCommandPrintsEnvelope(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"exec", "--agent", "customer_segmentation"})

	in := bytes.NewBufferString(`{"users": [{"ltv": 1500, "recency_days": 5, "tenure_days": 365}], "consent_given": true}`)
	var out bytes.Buffer
	root.SetIn(in)
	root.SetOut(&out)

	require.NoError(t, root.Execute())

	var env map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &env))
	assert.Equal(t, "success", env["status"])
	assert.Equal(t, "customer_segmentation", env["agent"])
}

func TestHealthCommandListsAgents(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"health"})

	var out bytes.Buffer
	root.SetOut(&out)

	require.NoError(t, root.Execute())

	var health map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &health))
	assert.Contains(t, health, "customer_segmentation")
	assert.Contains(t, health, "credit_risk")
}
