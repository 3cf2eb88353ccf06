// Package workflow is the pure analysis core for CI pipeline enhancement.
// It parses pipeline documents into an immutable line-oriented model, detects
// package-manager signals, decides applicable scan categories, resolves
// insertion points and splices template fragments without disturbing the
// bytes it does not touch. Nothing in this package performs I/O.
package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed pipeline document. The batch layer treats it
// as "repository excluded from analysis", never as a fatal condition.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Document is an immutable parsed pipeline definition. Raw and Lines hold the
// original bytes; Jobs carry line spans into Lines so that insertion is a
// splice between two line indices, preserving formatting and comments of
// everything else by construction.
type Document struct {
	Path     string
	Raw      string
	Lines    []string
	Name     string
	Triggers []string
	Jobs     []Job

	jobsLine  int // 1-based line of the "jobs:" key, 0 when absent
	jobIndent int // leading spaces of job keys
}

// Job is a named unit of work inside a Document.
type Job struct {
	ID      string
	Name    string
	RunsOn  string
	Steps   []Step
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive, trailing blank lines excluded

	HasBuildStep bool
	HasTestStep  bool
	HasScanStep  bool
	BuildTools   []string
	Languages    []string
	ScanTools    []string

	stepsLine  int // line of the "steps:" key, 0 when absent
	stepsEnd   int // last line of the steps block
	stepIndent int // leading spaces of the "- " item markers
}

// Step is a single action or command within a Job.
type Step struct {
	Name      string
	Uses      string
	Run       string
	StartLine int
	EndLine   int

	IsBuild   bool
	IsTest    bool
	IsScan    bool
	BuildTool string
	Language  string
	ScanTool  string
}

var yamlErrLine = regexp.MustCompile(`line (\d+):`)

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Msg: strings.TrimPrefix(err.Error(), "yaml: ")}
	if m := yamlErrLine.FindStringSubmatch(err.Error()); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
		pe.Msg = strings.TrimSpace(strings.TrimPrefix(pe.Msg, "line "+m[1]+":"))
	}
	return pe
}

// Parse turns raw pipeline text into a Document. A structurally valid document
// with no jobs is not an error. Parsing is pure: the same input always yields
// the same Document.
func Parse(path, raw string) (*Document, error) {
	doc := &Document{
		Path:  path,
		Raw:   raw,
		Lines: strings.Split(raw, "\n"),
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &root); err != nil {
		return nil, newParseError(path, err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		// Empty document: zero jobs, nothing to analyze.
		return doc, nil
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Line: mapping.Line, Column: mapping.Column, Msg: "pipeline document must be a mapping"}
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		switch {
		case key.Value == "name":
			doc.Name = value.Value
		case isTriggerKey(key):
			doc.Triggers = triggerEvents(value)
		case key.Value == "jobs":
			if value.Kind != yaml.MappingNode {
				continue
			}
			doc.jobsLine = key.Line
			doc.parseJobs(value)
		}
	}

	return doc, nil
}

// isTriggerKey recognizes the trigger key whether the YAML resolver left it as
// the literal "on" or folded it into a boolean.
func isTriggerKey(key *yaml.Node) bool {
	return key.Value == "on" || (key.Tag == "!!bool" && strings.EqualFold(key.Value, "on"))
}

func triggerEvents(value *yaml.Node) []string {
	var events []string
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value != "" {
			events = append(events, value.Value)
		}
	case yaml.SequenceNode:
		for _, item := range value.Content {
			events = append(events, item.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			events = append(events, value.Content[i].Value)
		}
	}
	return events
}

func (d *Document) parseJobs(jobsNode *yaml.Node) {
	for i := 0; i+1 < len(jobsNode.Content); i += 2 {
		key, value := jobsNode.Content[i], jobsNode.Content[i+1]
		if value.Kind != yaml.MappingNode {
			continue
		}
		if d.jobIndent == 0 {
			d.jobIndent = key.Column - 1
		}

		job := Job{ID: key.Value, Name: key.Value, StartLine: key.Line}
		d.parseJob(&job, value)
		d.Jobs = append(d.Jobs, job)
	}

	// Job spans: each job ends where the next one starts; the last job runs to
	// the last content line of the document.
	for i := range d.Jobs {
		end := d.lastContentLine()
		if i+1 < len(d.Jobs) {
			end = d.Jobs[i+1].StartLine - 1
		}
		d.Jobs[i].EndLine = d.trimBlank(end, d.Jobs[i].StartLine)
		if d.Jobs[i].stepsLine > 0 {
			d.finishSteps(&d.Jobs[i])
		}
	}
}

func (d *Document) parseJob(job *Job, node *yaml.Node) {
	var stepsNode *yaml.Node
	var keysAfterSteps []int

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "name":
			job.Name = value.Value
		case "runs-on":
			job.RunsOn = value.Value
		case "steps":
			if value.Kind == yaml.SequenceNode {
				stepsNode = value
				job.stepsLine = key.Line
			}
		}
		if job.stepsLine > 0 && key.Line > job.stepsLine {
			keysAfterSteps = append(keysAfterSteps, key.Line)
		}
	}

	if stepsNode == nil {
		return
	}
	job.stepIndent = stepsNode.Column - 1

	for _, item := range stepsNode.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		step := Step{StartLine: item.Line}
		for i := 0; i+1 < len(item.Content); i += 2 {
			key, value := item.Content[i], item.Content[i+1]
			switch key.Value {
			case "name":
				step.Name = value.Value
			case "uses":
				step.Uses = value.Value
			case "run":
				step.Run = value.Value
			}
		}
		classifyStep(&step)
		job.Steps = append(job.Steps, step)
		applyStepFlags(job, step)
	}

	// The steps block is bounded by the first job key that follows it, if any.
	job.stepsEnd = 0
	for _, line := range keysAfterSteps {
		if job.stepsEnd == 0 || line < job.stepsEnd {
			job.stepsEnd = line
		}
	}
}

// finishSteps computes step line spans once the owning job's span is known.
func (d *Document) finishSteps(job *Job) {
	blockEnd := job.EndLine
	if job.stepsEnd > 0 {
		blockEnd = job.stepsEnd - 1
	}
	job.stepsEnd = d.trimBlank(blockEnd, job.stepsLine)

	for i := range job.Steps {
		end := job.stepsEnd
		if i+1 < len(job.Steps) {
			end = job.Steps[i+1].StartLine - 1
		}
		job.Steps[i].EndLine = d.trimBlank(end, job.Steps[i].StartLine)
	}
}

func classifyStep(step *Step) {
	if step.Run != "" {
		if tool, ok := classifyBuild(step.Run); ok {
			step.IsBuild = true
			step.BuildTool = tool
		}
		step.IsTest = classifyTest(step.Run)
		if tool, ok := classifyScan(step.Run); ok {
			step.IsScan = true
			step.ScanTool = tool
		}
	}
	if step.Uses != "" {
		if lang, ok := languageForAction(step.Uses); ok {
			step.Language = lang
			step.IsBuild = true
		}
		if tool, ok := classifyScan(step.Uses); ok {
			step.IsScan = true
			step.ScanTool = tool
		}
	}
}

func applyStepFlags(job *Job, step Step) {
	if step.IsBuild {
		job.HasBuildStep = true
	}
	if step.IsTest {
		job.HasTestStep = true
	}
	if step.IsScan {
		job.HasScanStep = true
	}
	if step.BuildTool != "" && !contains(job.BuildTools, step.BuildTool) {
		job.BuildTools = append(job.BuildTools, step.BuildTool)
	}
	if step.Language != "" && !contains(job.Languages, step.Language) {
		job.Languages = append(job.Languages, step.Language)
	}
	if step.ScanTool != "" && !contains(job.ScanTools, step.ScanTool) {
		job.ScanTools = append(job.ScanTools, step.ScanTool)
	}
}

// HasPullRequestTrigger reports whether the document reacts to pull requests,
// which enables PR-oriented scan optimizations.
func (d *Document) HasPullRequestTrigger() bool {
	for _, t := range d.Triggers {
		if t == "pull_request" || t == "pull_request_target" {
			return true
		}
	}
	return false
}

// ScanTools returns the distinct scan tools already present in the document.
func (d *Document) ScanTools() []string {
	var tools []string
	for _, job := range d.Jobs {
		for _, tool := range job.ScanTools {
			if !contains(tools, tool) {
				tools = append(tools, tool)
			}
		}
	}
	return tools
}

// Languages returns the distinct languages implied by setup actions.
func (d *Document) Languages() []string {
	var langs []string
	for _, job := range d.Jobs {
		for _, lang := range job.Languages {
			if !contains(langs, lang) {
				langs = append(langs, lang)
			}
		}
	}
	return langs
}

func (d *Document) job(id string) *Job {
	for i := range d.Jobs {
		if d.Jobs[i].ID == id {
			return &d.Jobs[i]
		}
	}
	return nil
}

func (d *Document) lastContentLine() int {
	for i := len(d.Lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(d.Lines[i]) != "" {
			return i + 1
		}
	}
	return 0
}

// trimBlank walks end backwards over blank lines, never before floor.
func (d *Document) trimBlank(end, floor int) int {
	for end > floor && strings.TrimSpace(d.Lines[end-1]) == "" {
		end--
	}
	return end
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
