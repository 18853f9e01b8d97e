package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

func sampleSnapshot() *engine.Snapshot {
	return &engine.Snapshot{
		Components: []engine.Component{
			{ID: 1, Kind: engine.Actuator, Position: engine.Vec2{X: 400, Y: 300}, State: engine.Engaged},
			{ID: 2, Kind: engine.Retention, Position: engine.Vec2{X: 260, Y: 350}, State: engine.Engaged},
		},
		Engagements: []engine.Engagement{{From: 1, To: 2, Kind: "engagement"}},
		SystemState: engine.Engaged,
		Metrics: engine.Metrics{
			RotationStress: 33,
			ContactStress:  75,
			Forces:         engine.Forces{SpringForce: 50},
		},
		Failures: []engine.FailureReport{
			{Component: "system", Reason: "no actuator element", Severity: engine.SeverityCritical},
			{Component: "retention #2", Reason: "excessive rotation stress", Severity: engine.SeverityMedium},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown("Latch", sampleSnapshot())

	assert.True(t, strings.HasPrefix(md, "# Latch\n"))
	assert.Contains(t, md, "System state: **ENGAGED**")
	assert.Contains(t, md, "| 1 | actuator | (400, 300) | 0.00 rad | ENGAGED |")
	assert.Contains(t, md, "- #1 → #2 (engagement)")
	assert.Contains(t, md, "| Contact | 75 |")
	assert.Contains(t, md, "- Spring force: 50.00 N")

	critical := strings.Index(md, "CRITICAL")
	medium := strings.Index(md, "MEDIUM")
	require.NotEqual(t, -1, critical)
	assert.Less(t, critical, medium)
}

func TestMarkdownEmptyWorkspace(t *testing.T) {
	md := Markdown("Empty", &engine.Snapshot{SystemState: engine.AtRest})

	assert.Contains(t, md, "_Workspace is empty._")
	assert.Contains(t, md, "No failure modes detected.")
	assert.NotContains(t, md, "## Forces")
	assert.NotContains(t, md, "## Engagements")
}

func TestStyleForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "notty", Style(&buf))
	assert.Equal(t, defaultWidth, Width(&buf))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FailuresMarkdown(sampleSnapshot().Failures)))

	out := buf.String()
	assert.Contains(t, out, "Failure analysis")
	assert.Contains(t, out, "no actuator element")
}
