package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stepFragment = Fragment{
	ID: "polaris-step", Name: "Polaris Step", Kind: FragmentStep, Category: "polaris",
	Body: `- name: Polaris Scan
  uses: synopsys-sig/polaris-github-action@v2
  env:
    POLARIS_ASSESSMENT_TYPES: SAST
`,
}

var jobFragment = Fragment{
	ID: "polaris-job", Name: "Polaris Job", Kind: FragmentJob, Category: "polaris",
	Body: `polaris-scan:
  runs-on: ubuntu-latest
  steps:
    - uses: actions/checkout@v4
    - name: Polaris Scan
      uses: synopsys-sig/polaris-github-action@v2
`,
}

var pipelineFragment = Fragment{
	ID: "polaris-pipeline", Name: "Polaris Pipeline", Kind: FragmentPipeline, Category: "polaris",
	Body: `name: Security Scan
on:
  push:
jobs:
  polaris-scan:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: synopsys-sig/polaris-github-action@v2
`,
}

func TestMergeAppendStep(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	point := Resolve(doc, Decision{StaticAnalysis: true})
	require.Equal(t, InsertAppendStep, point.Kind)

	merged, diff, err := Merge(doc, stepFragment, point)
	require.NoError(t, err)

	// Original two steps survive untouched, new step appended after the build.
	job := merged.Jobs[0]
	require.Len(t, job.Steps, 4)
	assert.Equal(t, "Polaris Scan", job.Steps[3].Name)
	assert.True(t, job.HasScanStep)

	// Every line outside the inserted span matches the input verbatim.
	assertBytePreservation(t, doc, merged, diff)

	// The inserted step is indented like its siblings.
	assert.True(t, strings.HasPrefix(merged.Lines[diff.InsertStart-1], "      - name:"),
		"inserted line %q not at step indentation", merged.Lines[diff.InsertStart-1])
}

func TestMergeAppendJob(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	point := InsertionPoint{Kind: InsertAppendJob, AfterJob: "build"}

	merged, diff, err := Merge(doc, jobFragment, point)
	require.NoError(t, err)

	require.Len(t, merged.Jobs, 2)
	assert.Equal(t, "build", merged.Jobs[0].ID)
	assert.Equal(t, "polaris-scan", merged.Jobs[1].ID)
	assertBytePreservation(t, doc, merged, diff)

	// Job keys land at the document's job indentation.
	found := false
	for _, line := range merged.Lines {
		if line == "  polaris-scan:" {
			found = true
		}
	}
	assert.True(t, found, "appended job not found at job indentation")
}

func TestMergeNewPipeline(t *testing.T) {
	merged, diff, err := Merge(nil, pipelineFragment, InsertionPoint{Kind: InsertNewPipeline})
	require.NoError(t, err)

	// No existing content to preserve: output is the fragment text itself.
	assert.Equal(t, pipelineFragment.Body, merged.Raw)
	require.Len(t, merged.Jobs, 1)
	assert.Equal(t, "polaris-scan", merged.Jobs[0].ID)

	for _, line := range diff.Lines {
		assert.Equal(t, DiffAdded, line.Op)
	}
}

func TestMergeKindMismatch(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	cases := []struct {
		frag  Fragment
		point InsertionPoint
	}{
		{stepFragment, InsertionPoint{Kind: InsertAppendJob, AfterJob: "build"}},
		{jobFragment, InsertionPoint{Kind: InsertAppendStep, TargetJob: "build"}},
		{pipelineFragment, InsertionPoint{Kind: InsertAppendJob, AfterJob: "build"}},
		{stepFragment, InsertionPoint{Kind: InsertNewPipeline}},
	}
	for _, tc := range cases {
		_, _, err := Merge(doc, tc.frag, tc.point)
		var me *MergeError
		require.ErrorAs(t, err, &me, "fragment %s at %s", tc.frag.Kind, tc.point.Kind)
	}
}

func TestMergeInvalidFragmentBody(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	bad := stepFragment
	bad.Body = "- name: broken\n  uses: [unclosed\n"

	_, _, err := Merge(doc, bad, InsertionPoint{Kind: InsertAppendStep, TargetJob: "build"})
	var me *MergeError
	require.ErrorAs(t, err, &me)
}

func TestMergeUnknownTargetJob(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	_, _, err := Merge(doc, stepFragment, InsertionPoint{Kind: InsertAppendStep, TargetJob: "missing"})
	var me *MergeError
	require.ErrorAs(t, err, &me)
}

func TestMergeIsDeterministic(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	point := Resolve(doc, Decision{StaticAnalysis: true})

	first, diffA, err := Merge(doc, stepFragment, point)
	require.NoError(t, err)
	second, diffB, err := Merge(doc, stepFragment, point)
	require.NoError(t, err)

	assert.Equal(t, first.Raw, second.Raw)
	assert.Equal(t, diffA, diffB)
}

func TestMergeStepFragmentWithoutListMarker(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	frag := stepFragment
	frag.Body = "name: Polaris Scan\nuses: synopsys-sig/polaris-github-action@v2\n"

	merged, _, err := Merge(doc, frag, InsertionPoint{Kind: InsertAppendStep, TargetJob: "build"})
	require.NoError(t, err)

	job := merged.Jobs[0]
	require.Len(t, job.Steps, 4)
	assert.Equal(t, "Polaris Scan", job.Steps[3].Name)
}

func TestMergeIndentedFragmentIsNormalized(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	frag := stepFragment
	frag.Body = "        - name: Polaris Scan\n          uses: synopsys-sig/polaris-github-action@v2\n"

	merged, diff, err := Merge(doc, frag, InsertionPoint{Kind: InsertAppendStep, TargetJob: "build"})
	require.NoError(t, err)
	assert.Equal(t, "      - name: Polaris Scan", merged.Lines[diff.InsertStart-1])
}

func TestDiffIsOneContiguousInsertion(t *testing.T) {
	doc := mustParse(t, mavenPipeline)
	point := Resolve(doc, Decision{StaticAnalysis: true})
	_, diff, err := Merge(doc, stepFragment, point)
	require.NoError(t, err)

	inAdded := false
	doneAdded := false
	for _, line := range diff.Lines {
		switch line.Op {
		case DiffAdded:
			require.False(t, doneAdded, "second insertion region found")
			inAdded = true
		case DiffUnchanged:
			if inAdded {
				doneAdded = true
				inAdded = false
			}
		}
	}
	assert.GreaterOrEqual(t, diff.InsertEnd, diff.InsertStart)
}

// assertBytePreservation verifies every output line outside the inserted span
// equals the corresponding input line.
func assertBytePreservation(t *testing.T, before, after *Document, diff Diff) {
	t.Helper()
	for _, line := range diff.Lines {
		if line.Op != DiffUnchanged {
			continue
		}
		require.Equal(t, before.Lines[line.OldLine-1], after.Lines[line.NewLine-1],
			"line %d/%d changed outside the insertion", line.OldLine, line.NewLine)
	}
	// Unchanged count covers the whole original.
	unchanged := 0
	for _, line := range diff.Lines {
		if line.Op == DiffUnchanged {
			unchanged++
		}
	}
	assert.Equal(t, len(before.Lines), unchanged)
}
