package workflow

import "strings"

// Classification is a pure lookup against the fixed tables below. Matching is
// substring/prefix only, so results are deterministic for a given input.

// buildIndicator matches a run command against a known build tool. The command
// must contain Tool text, and at least one verb when Verbs is non-empty.
type buildIndicator struct {
	Name     string
	Contains string
	Verbs    []string
}

var buildIndicators = []buildIndicator{
	{Name: "maven", Contains: "mvn", Verbs: []string{"compile", "package", "install", "verify"}},
	{Name: "gradle", Contains: "gradle", Verbs: []string{"build", "assemble"}},
	{Name: "npm", Contains: "npm", Verbs: []string{"build"}},
	{Name: "dotnet", Contains: "dotnet", Verbs: []string{"build", "publish"}},
	{Name: "go", Contains: "go build"},
	{Name: "cargo", Contains: "cargo", Verbs: []string{"build"}},
	{Name: "make", Contains: "make"},
}

func (b buildIndicator) matches(text string) bool {
	if !strings.Contains(text, b.Contains) {
		return false
	}
	if len(b.Verbs) == 0 {
		return true
	}
	for _, verb := range b.Verbs {
		if strings.Contains(text, verb) {
			return true
		}
	}
	return false
}

var testIndicators = []buildIndicator{
	{Name: "maven", Contains: "mvn", Verbs: []string{"test"}},
	{Name: "gradle", Contains: "gradle", Verbs: []string{"test"}},
	{Name: "npm", Contains: "npm", Verbs: []string{"test"}},
	{Name: "dotnet", Contains: "dotnet test"},
	{Name: "go", Contains: "go test"},
	{Name: "cargo", Contains: "cargo test"},
	{Name: "pytest", Contains: "pytest"},
	{Name: "jest", Contains: "jest"},
}

// scanIndicator identifies a known security scanning tool in a run command or
// action reference.
type scanIndicator struct {
	Tool     string
	Contains []string
}

var scanIndicators = []scanIndicator{
	{Tool: "polaris", Contains: []string{"polaris"}},
	{Tool: "coverity", Contains: []string{"coverity"}},
	{Tool: "blackduck", Contains: []string{"blackduck", "black-duck", "black_duck"}},
	{Tool: "codeql", Contains: []string{"codeql"}},
	{Tool: "snyk", Contains: []string{"snyk"}},
	{Tool: "sonarqube", Contains: []string{"sonarqube", "sonar"}},
	{Tool: "owasp", Contains: []string{"owasp"}},
}

func (s scanIndicator) matches(text string) bool {
	for _, c := range s.Contains {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}

// setupActionLanguages maps toolchain setup action prefixes to the language
// they imply. Setup actions also count as build indicators: a job that sets up
// a toolchain is a build job even when the compile command is not recognized.
var setupActionLanguages = map[string]string{
	"actions/setup-java":   "java",
	"actions/setup-python": "python",
	"actions/setup-node":   "javascript",
	"actions/setup-dotnet": "csharp",
	"actions/setup-go":     "go",
	"actions/setup-ruby":   "ruby",
	"ruby/setup-ruby":      "ruby",
}

// ecosystemInfo describes a package-management ecosystem implied by a manifest
// file. DependencyRisk marks ecosystems that pull third-party packages and so
// warrant composition analysis.
type ecosystemInfo struct {
	Ecosystem      string
	Languages      []string
	DependencyRisk bool
}

// manifestEcosystems maps manifest basenames to their ecosystem.
var manifestEcosystems = map[string]ecosystemInfo{
	"pom.xml":              {Ecosystem: "maven", Languages: []string{"java"}, DependencyRisk: true},
	"build.gradle":         {Ecosystem: "gradle", Languages: []string{"java", "kotlin"}, DependencyRisk: true},
	"build.gradle.kts":     {Ecosystem: "gradle", Languages: []string{"java", "kotlin"}, DependencyRisk: true},
	"settings.gradle":      {Ecosystem: "gradle", Languages: []string{"java", "kotlin"}, DependencyRisk: true},
	"settings.gradle.kts":  {Ecosystem: "gradle", Languages: []string{"java", "kotlin"}, DependencyRisk: true},
	"package.json":         {Ecosystem: "npm", Languages: []string{"javascript", "typescript"}, DependencyRisk: true},
	"package-lock.json":    {Ecosystem: "npm", Languages: []string{"javascript", "typescript"}, DependencyRisk: true},
	"yarn.lock":            {Ecosystem: "yarn", Languages: []string{"javascript", "typescript"}, DependencyRisk: true},
	"requirements.txt":     {Ecosystem: "pip", Languages: []string{"python"}, DependencyRisk: true},
	"requirements-dev.txt": {Ecosystem: "pip", Languages: []string{"python"}, DependencyRisk: true},
	"setup.py":             {Ecosystem: "pip", Languages: []string{"python"}, DependencyRisk: true},
	"pyproject.toml":       {Ecosystem: "pip", Languages: []string{"python"}, DependencyRisk: true},
	"Pipfile":              {Ecosystem: "pip", Languages: []string{"python"}, DependencyRisk: true},
	"packages.config":      {Ecosystem: "nuget", Languages: []string{"csharp"}, DependencyRisk: true},
	"nuget.config":         {Ecosystem: "nuget", Languages: []string{"csharp"}, DependencyRisk: true},
	"composer.json":        {Ecosystem: "composer", Languages: []string{"php"}, DependencyRisk: true},
	"composer.lock":        {Ecosystem: "composer", Languages: []string{"php"}, DependencyRisk: true},
	"Cargo.toml":           {Ecosystem: "cargo", Languages: []string{"rust"}, DependencyRisk: true},
	"Cargo.lock":           {Ecosystem: "cargo", Languages: []string{"rust"}, DependencyRisk: true},
	"go.mod":               {Ecosystem: "gomod", Languages: []string{"go"}, DependencyRisk: true},
	"go.sum":               {Ecosystem: "gomod", Languages: []string{"go"}, DependencyRisk: true},
	"Gemfile":              {Ecosystem: "bundler", Languages: []string{"ruby"}, DependencyRisk: true},
	"Gemfile.lock":         {Ecosystem: "bundler", Languages: []string{"ruby"}, DependencyRisk: true},
}

// manifestSuffixes handles project files matched by extension rather than
// exact basename (.NET solution and project files).
var manifestSuffixes = map[string]ecosystemInfo{
	".csproj": {Ecosystem: "nuget", Languages: []string{"csharp"}, DependencyRisk: true},
	".sln":    {Ecosystem: "nuget", Languages: []string{"csharp"}, DependencyRisk: true},
}

func classifyBuild(run string) (string, bool) {
	text := strings.ToLower(run)
	for _, ind := range buildIndicators {
		if ind.matches(text) {
			return ind.Name, true
		}
	}
	return "", false
}

func classifyTest(run string) bool {
	text := strings.ToLower(run)
	for _, ind := range testIndicators {
		if ind.matches(text) {
			return true
		}
	}
	return false
}

func classifyScan(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, ind := range scanIndicators {
		if ind.matches(text) {
			return ind.Tool, true
		}
	}
	return "", false
}

// languageForAction returns the language implied by a setup action reference,
// ignoring any version suffix after '@'.
func languageForAction(uses string) (string, bool) {
	action := strings.ToLower(uses)
	if at := strings.Index(action, "@"); at >= 0 {
		action = action[:at]
	}
	for prefix, lang := range setupActionLanguages {
		if strings.HasPrefix(action, prefix) {
			return lang, true
		}
	}
	return "", false
}
