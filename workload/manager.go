package workload

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/streetrace-ai/streetrace/codegen"
	"github.com/streetrace-ai/streetrace/diag"
	"github.com/streetrace-ai/streetrace/dsl"
	"github.com/streetrace-ai/streetrace/reminder"
)

// Manager discovers agent definitions under a set of search paths and
// resolves a name or path to a Definition on demand.
type Manager struct {
	SearchPaths []string

	// Reminders, when set, is handed to every workload's agent runner so
	// run-scoped <system-reminder> blocks get attached to rendered
	// prompts. Nil disables reminder injection entirely.
	Reminders *reminder.Engine

	definitions map[string][]Definition
	byPath      map[string]Definition
	Diagnostics []diag.Diagnostic
}

// NewManager builds a Manager over the given search paths (the default
// set, extended by config.Load's STREETRACE_AGENT_PATHS parse).
func NewManager(searchPaths []string) *Manager {
	return &Manager{
		SearchPaths: searchPaths,
		definitions: map[string][]Definition{},
		byPath:      map[string]Definition{},
	}
}

// Discover walks every search path, compiling `.sr` sources immediately
// and decoding `.yaml`/`.yml` declarations; directories containing
// agent.py are recorded as an unsupported-discovery warning, never an
// error. A missing search path is silently skipped (cwd and the two
// fixed system paths are rarely all present).
func (m *Manager) Discover() error {
	for _, root := range m.SearchPaths {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		fsys := os.DirFS(root)
		walkErr := fs.WalkDir(fsys, ".", func(relPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			full := filepath.Join(root, relPath)
			if d.IsDir() {
				return nil
			}
			switch {
			case d.Name() == "agent.py":
				m.Diagnostics = append(m.Diagnostics, diag.Diagnostic{
					Severity: diag.SeverityWarning,
					Code:     diag.CodePyAgentUnsupported,
					Message:  fmt.Sprintf("python agent at %s is not supported by this runtime", filepath.Dir(full)),
					File:     full,
				})
			case strings.HasSuffix(d.Name(), ".sr"):
				m.loadDSL(full)
			case strings.HasSuffix(d.Name(), ".yaml") || strings.HasSuffix(d.Name(), ".yml"):
				m.loadYAML(full)
			}
			return nil
		})
		if walkErr != nil {
			return fmt.Errorf("workload: walk %s: %w", root, walkErr)
		}
	}
	return nil
}

func (m *Manager) loadDSL(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		m.warn(path, fmt.Sprintf("cannot read: %v", err))
		return
	}
	prog, parserDiags := dsl.Parse(path, string(raw))
	result := dsl.Analyze(prog, parserDiags)
	m.Diagnostics = append(m.Diagnostics, result.Warnings...)
	if !result.IsValid {
		// Invalid files are skipped with a warning, never an error.
		for _, e := range result.Errors {
			e.Severity = diag.SeverityWarning
			m.Diagnostics = append(m.Diagnostics, e)
		}
		return
	}
	wd, err := codegen.BuildWorkflowData(prog)
	if err != nil {
		m.warn(path, err.Error())
		return
	}
	m.register(&DslDefinition{Path: path, Program: prog, Data: wd})
}

func (m *Manager) loadYAML(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		m.warn(path, fmt.Sprintf("cannot read: %v", err))
		return
	}
	var spec AgentSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		m.warn(path, fmt.Sprintf("invalid yaml agent: %v", err))
		return
	}
	if spec.Name == "" {
		spec.Name = nameFromPath(path)
	}
	m.register(&YamlDefinition{Path: path, Spec: spec})
}

func (m *Manager) register(def Definition) {
	name := def.DefinitionName()
	m.definitions[name] = append(m.definitions[name], def)
	m.byPath[def.SourcePath()] = def
}

func (m *Manager) warn(path, message string) {
	m.Diagnostics = append(m.Diagnostics, diag.Diagnostic{
		Severity: diag.SeverityWarning, Code: diag.CodeSyntax, Message: message, File: path,
	})
}

// Resolve looks up a Definition by agent name or filesystem path,
// accepting either form as the ident.
func (m *Manager) Resolve(ident string) (Definition, error) {
	if def, ok := m.byPath[ident]; ok {
		return def, nil
	}
	defs, ok := m.definitions[ident]
	if !ok || len(defs) == 0 {
		return nil, &AgentNotFoundError{Ident: ident}
	}
	if len(defs) > 1 {
		paths := make([]string, 0, len(defs))
		for _, d := range defs {
			paths = append(paths, d.SourcePath())
		}
		return nil, &AgentDuplicateNameError{Name: ident, Paths: paths}
	}
	return defs[0], nil
}

func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
}
