package diag

import (
	"fmt"
	"strings"
)

const (
	gutterWidth  = 5
	contextLines = 1
)

// Reporter formats Diagnostics rustc-style, using the source text of each
// file it has been shown via AddSource.
type Reporter struct {
	sources map[string][]string // file -> lines, newline-stripped
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{sources: make(map[string][]string)}
}

// AddSource registers a file's text so the reporter can render source
// context and carets for diagnostics against it.
func (r *Reporter) AddSource(file, source string) {
	r.sources[file] = strings.Split(source, "\n")
}

// FormatDiagnostic renders a single diagnostic as rustc-style text, with no
// trailing newline.
func (r *Reporter) FormatDiagnostic(d Diagnostic) string {
	var b strings.Builder

	if d.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", d.Severity, d.Code, d.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", d.Severity, d.Message)
	}

	colDisplay := d.Column + 1
	fmt.Fprintf(&b, "  --> %s:%d:%d\n", d.File, d.Line, colDisplay)

	if lines, ok := r.sources[d.File]; ok {
		r.writeSourceContext(&b, lines, d)
	}

	if d.HelpText != "" {
		fmt.Fprintf(&b, "  = help: %s\n", d.HelpText)
	}

	for _, note := range d.Related {
		r.writeNote(&b, note)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (r *Reporter) writeSourceContext(b *strings.Builder, lines []string, d Diagnostic) {
	emptyGutter := strings.Repeat(" ", gutterWidth) + "|\n"

	start := d.Line - contextLines
	if start < 1 {
		start = 1
	}
	end := d.Line + contextLines
	if end > len(lines) {
		end = len(lines)
	}

	b.WriteString(emptyGutter)
	for ln := start; ln <= end; ln++ {
		text := ""
		if ln-1 >= 0 && ln-1 < len(lines) {
			text = lines[ln-1]
		}
		fmt.Fprintf(b, "%*d | %s\n", gutterWidth-1, ln, text)
		if ln == d.Line {
			writeCaretLine(b, text, d)
		}
	}
	b.WriteString(emptyGutter)
}

func writeCaretLine(b *strings.Builder, lineText string, d Diagnostic) {
	col := d.Column
	if col > len(lineText) {
		col = len(lineText)
	}
	prefix := lineText[:col]
	gutter := strings.Repeat(" ", gutterWidth) + "| "

	spanLen := 1
	if d.HasEnd && d.EndLine == d.Line {
		spanLen = d.EndColumn - d.Column
	} else {
		spanLen = guessSpanLength(lineText, col)
	}
	if spanLen < 1 {
		spanLen = 1
	}

	var pad strings.Builder
	for _, c := range prefix {
		if c == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
	}

	b.WriteString(gutter)
	b.WriteString(pad.String())
	b.WriteString(strings.Repeat("^", spanLen))
	b.WriteByte('\n')
}

func guessSpanLength(lineText string, col int) int {
	i := col
	for i < len(lineText) && lineText[i] != ' ' && lineText[i] != '\t' {
		i++
	}
	if i-col < 1 {
		return 1
	}
	return i - col
}

func (r *Reporter) writeNote(b *strings.Builder, note Related) {
	colDisplay := note.Column + 1
	fmt.Fprintf(b, "note: %s\n  --> %s:%d:%d\n", note.Message, note.File, note.Line, colDisplay)
}

// FormatDiagnostics renders a full set of diagnostics separated by blank
// lines, with an optional trailing summary.
func (r *Reporter) FormatDiagnostics(diags []Diagnostic, includeSummary bool) string {
	parts := make([]string, 0, len(diags)+1)
	for _, d := range diags {
		parts = append(parts, r.FormatDiagnostic(d))
	}
	if includeSummary {
		if s := r.summary(diags); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r *Reporter) summary(diags []Diagnostic) string {
	var errs, warns int
	files := make(map[string]struct{})
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		}
		files[d.File] = struct{}{}
	}
	if errs == 0 && warns == 0 {
		return ""
	}
	return fmt.Sprintf("Found %s and %s in %s", pluralize(errs, "error"), pluralize(warns, "warning"), pluralize(len(files), "file"))
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Stats is an open bag of extra JSON-serializable counters, e.g. model or
// agent counts, attached to a JSON report.
type Stats map[string]any

// JSONDiagnostic is the wire shape of a single Diagnostic entry.
type JSONDiagnostic struct {
	Severity  Severity  `json:"severity"`
	Code      Code      `json:"code,omitempty"`
	Message   string    `json:"message"`
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Column    int       `json:"column"`
	EndLine   int       `json:"end_line,omitempty"`
	EndColumn int       `json:"end_column,omitempty"`
	HelpText  string    `json:"help_text,omitempty"`
	Related   []Related `json:"related,omitempty"`
}

// Report is the top-level JSON diagnostic report shape.
type Report struct {
	Version  string           `json:"version"`
	File     string           `json:"file"`
	Valid    bool             `json:"valid"`
	Errors   []JSONDiagnostic `json:"errors"`
	Warnings []JSONDiagnostic `json:"warnings"`
	Stats    Stats            `json:"stats,omitempty"`
}

// FormatJSON builds the JSON report shape for a set of diagnostics against
// a single file.
func (r *Reporter) FormatJSON(file string, diags []Diagnostic, stats Stats) Report {
	rep := Report{Version: "1.0", File: file, Stats: stats}
	for _, d := range diags {
		jd := JSONDiagnostic{
			Severity: d.Severity, Code: d.Code, Message: d.Message,
			File: d.File, Line: d.Line, Column: d.Column, HelpText: d.HelpText,
			Related: d.Related,
		}
		if d.HasEnd {
			jd.EndLine, jd.EndColumn = d.EndLine, d.EndColumn
		}
		switch d.Severity {
		case SeverityError:
			rep.Errors = append(rep.Errors, jd)
		case SeverityWarning:
			rep.Warnings = append(rep.Warnings, jd)
		}
	}
	rep.Valid = len(rep.Errors) == 0
	return rep
}

// FormatSuccessMessage renders the "valid (N models, M agents, ...)" message
// emitted by the CLI loader on a clean compile.
func FormatSuccessMessage(file string, models, agents, flows, handlers int) string {
	if models == 0 && agents == 0 && flows == 0 && handlers == 0 {
		return "valid"
	}
	parts := []string{}
	if models > 0 {
		parts = append(parts, pluralize(models, "model"))
	}
	if agents > 0 {
		parts = append(parts, pluralize(agents, "agent"))
	}
	if flows > 0 {
		parts = append(parts, pluralize(flows, "flow"))
	}
	if handlers > 0 {
		parts = append(parts, pluralize(handlers, "handler"))
	}
	return fmt.Sprintf("valid (%s)", strings.Join(parts, ", "))
}
