package dsl

import (
	"strconv"
	"strings"

	"github.com/streetrace-ai/streetrace/diag"
)

// Lexer turns StreetRace DSL source into a token stream, tracking
// indentation as INDENT/DEDENT tokens the way Python's tokenizer does.
type Lexer struct {
	file  string
	lines []string
	diags []diag.Diagnostic
}

// NewLexer returns a Lexer over source attributed to file.
func NewLexer(file, source string) *Lexer {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	return &Lexer{file: file, lines: lines}
}

// Lex tokenizes the whole source, returning any lexical diagnostics
// alongside the token stream. Lexing never aborts early: a line with
// inconsistent indentation is reported and still tokenized, and
// unrecognized characters are skipped, so later errors still surface.
func (l *Lexer) Lex() ([]Token, []diag.Diagnostic) {
	var toks []Token
	indentStack := []string{""}

	i := 0
	for i < len(l.lines) {
		raw := l.lines[i]
		trimmed := strings.TrimLeft(raw, " \t")
		content := strings.TrimRight(trimmed, " \t")

		if content == "" || strings.HasPrefix(content, "#") {
			i++
			continue
		}

		indent := raw[:len(raw)-len(trimmed)]
		cur := indentStack[len(indentStack)-1]

		switch {
		case indent == cur:
			// same level
		case strings.HasPrefix(indent, cur) && len(indent) > len(cur):
			indentStack = append(indentStack, indent)
			toks = append(toks, Token{Kind: TokIndent, Pos: Pos{Line: i + 1, Column: len(cur)}})
		case strings.HasPrefix(cur, indent) && len(indent) < len(cur):
			for len(indentStack) > 1 && indentStack[len(indentStack)-1] != indent {
				indentStack = indentStack[:len(indentStack)-1]
				toks = append(toks, Token{Kind: TokDedent, Pos: Pos{Line: i + 1, Column: len(indent)}})
			}
		default:
			mismatchCol := commonPrefixLen(indent, cur)
			l.diags = append(l.diags, diag.Diagnostic{
				Severity: diag.SeverityError, Code: diag.CodeBadIndent,
				Message: "inconsistent indentation: mixed tabs and spaces",
				File:    l.file, Line: i + 1, Column: mismatchCol,
			})
		}

		lineToks, consumed := l.lexLine(i, len(indent))
		toks = append(toks, lineToks...)
		toks = append(toks, Token{Kind: TokNewline, Pos: Pos{Line: i + 1, Column: len(raw)}})
		i += consumed
	}

	for len(indentStack) > 1 {
		indentStack = indentStack[:len(indentStack)-1]
		toks = append(toks, Token{Kind: TokDedent, Pos: Pos{Line: len(l.lines) + 1, Column: 0}})
	}
	toks = append(toks, Token{Kind: TokEOF, Pos: Pos{Line: len(l.lines) + 1, Column: 0}})

	return toks, l.diags
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// lexLine tokenizes the statement-content of a single logical line starting
// at line index idx, handling triple-quoted strings that span further
// lines. It returns the tokens and the number of physical lines consumed.
func (l *Lexer) lexLine(idx, indentLen int) ([]Token, int) {
	var toks []Token
	text := l.lines[idx]
	consumed := 1
	col := indentLen

	for col < len(text) {
		c := text[col]
		switch {
		case c == ' ' || c == '\t':
			col++
		case c == '#':
			col = len(text)
		case strings.HasPrefix(text[col:], `"""`):
			str, newIdx, newCol := l.lexTripleString(idx, col)
			toks = append(toks, Token{Kind: TokString, Text: str, Pos: Pos{Line: idx + 1, Column: col}})
			consumed = newIdx - idx + 1
			idx, col = newIdx, newCol
			text = l.lines[idx]
		case c == '"':
			s, next := lexSimpleString(text, col)
			toks = append(toks, Token{Kind: TokString, Text: s, Pos: Pos{Line: idx + 1, Column: col}})
			col = next
		case c == '$':
			toks = append(toks, Token{Kind: TokDollar, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == '.':
			toks = append(toks, Token{Kind: TokDot, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == ',':
			toks = append(toks, Token{Kind: TokComma, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == ':':
			toks = append(toks, Token{Kind: TokColon, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == '[':
			toks = append(toks, Token{Kind: TokLBracket, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == ']':
			toks = append(toks, Token{Kind: TokRBracket, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == '{':
			toks = append(toks, Token{Kind: TokLBrace, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == '}':
			toks = append(toks, Token{Kind: TokRBrace, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == '(':
			toks = append(toks, Token{Kind: TokLParen, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == ')':
			toks = append(toks, Token{Kind: TokRParen, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case c == '~':
			toks = append(toks, Token{Kind: TokOpTilde, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case strings.HasPrefix(text[col:], "=="):
			toks = append(toks, Token{Kind: TokOpEqEq, Pos: Pos{Line: idx + 1, Column: col}})
			col += 2
		case strings.HasPrefix(text[col:], "!="):
			toks = append(toks, Token{Kind: TokOpNotEq, Pos: Pos{Line: idx + 1, Column: col}})
			col += 2
		case c == '=':
			toks = append(toks, Token{Kind: TokEquals, Pos: Pos{Line: idx + 1, Column: col}})
			col++
		case isDigit(c):
			tok, next := lexNumber(text, col, idx+1)
			toks = append(toks, tok)
			col = next
		case isIdentStart(c) && len(toks) == 3 && toks[0].Kind == TokKeyword && toks[0].Text == "model" && toks[2].Kind == TokEquals:
			// The <provider/model> reference of a model declaration is one
			// token running to the next whitespace, keeping '/', '-' and '.'.
			start := col
			for col < len(text) && text[col] != ' ' && text[col] != '\t' && text[col] != '#' {
				col++
			}
			toks = append(toks, Token{Kind: TokIdent, Text: text[start:col], Pos: Pos{Line: idx + 1, Column: start}})
		case isIdentStart(c):
			word, next := lexIdent(text, col)
			kind := TokIdent
			if keywords[word] {
				kind = TokKeyword
			}
			toks = append(toks, Token{Kind: kind, Text: word, Pos: Pos{Line: idx + 1, Column: col}})
			col = next
		default:
			col++
		}
	}

	return toks, consumed
}

func (l *Lexer) lexTripleString(idx, col int) (string, int, int) {
	var b strings.Builder
	line := l.lines[idx]
	rest := line[col+3:]
	if end := strings.Index(rest, `"""`); end >= 0 {
		return rest[:end], idx, col + 3 + end + 3
	}
	b.WriteString(rest)
	for j := idx + 1; j < len(l.lines); j++ {
		if end := strings.Index(l.lines[j], `"""`); end >= 0 {
			b.WriteByte('\n')
			b.WriteString(l.lines[j][:end])
			return strings.Trim(b.String(), "\n"), j, end + 3
		}
		b.WriteByte('\n')
		b.WriteString(l.lines[j])
	}
	return strings.Trim(b.String(), "\n"), len(l.lines) - 1, len(l.lines[len(l.lines)-1])
}

func lexSimpleString(text string, col int) (string, int) {
	var b strings.Builder
	i := col + 1
	for i < len(text) && text[i] != '"' {
		if text[i] == '\\' && i+1 < len(text) {
			i++
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String(), i + 1
}

func lexNumber(text string, col, line int) (Token, int) {
	start := col
	isFloat := false
	for col < len(text) && (isDigit(text[col]) || text[col] == '.') {
		if text[col] == '.' {
			isFloat = true
		}
		col++
	}
	lit := text[start:col]
	if isFloat {
		f, _ := strconv.ParseFloat(lit, 64)
		return Token{Kind: TokFloat, Text: lit, FltVal: f, Pos: Pos{Line: line, Column: start}}, col
	}
	n, _ := strconv.ParseInt(lit, 10, 64)
	return Token{Kind: TokInt, Text: lit, IntVal: n, Pos: Pos{Line: line, Column: start}}, col
}

func lexIdent(text string, col int) (string, int) {
	start := col
	for col < len(text) && isIdentCont(text[col]) {
		col++
	}
	return text[start:col], col
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentCont(c byte) bool  { return isIdentStart(c) || isDigit(c) }
