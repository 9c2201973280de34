package dsl

import (
	"fmt"
	"strings"

	"github.com/streetrace-ai/streetrace/diag"
)

// Parser builds a *Program from a token stream, recovering from
// statement-level errors by skipping to the next statement boundary so a
// single mistake never hides the rest of a file's diagnostics.
type Parser struct {
	file   string
	toks   []Token
	pos    int
	diags  []diag.Diagnostic
}

// Parse lexes and parses source attributed to file, returning the parsed
// Program (possibly partial) and any diagnostics collected along the way.
func Parse(file, source string) (*Program, []diag.Diagnostic) {
	lx := NewLexer(file, source)
	toks, lexDiags := lx.Lex()
	p := &Parser{file: file, toks: toks, diags: lexDiags}
	prog := p.parseProgram()
	return prog, p.diags
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) peekKind() TokenKind { return p.toks[p.pos].Kind }

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(k TokenKind) bool { return p.peekKind() == k }

func (p *Parser) atKeyword(kw string) bool {
	return p.peekKind() == TokKeyword && p.cur().Text == kw
}

func (p *Parser) errorf(pos Pos, format string, args ...any) {
	p.diags = append(p.diags, diag.Diagnostic{
		Severity: diag.SeverityError, Code: diag.CodeSyntax,
		Message: fmt.Sprintf(format, args...), File: p.file, Line: pos.Line, Column: pos.Column,
	})
}

// skipToNextStatement advances past tokens until a NEWLINE/DEDENT/EOF
// boundary, so the next top-level parse attempt starts clean.
func (p *Parser) skipToNextStatement() {
	for !p.at(TokNewline) && !p.at(TokDedent) && !p.at(TokEOF) {
		p.advance()
	}
	if p.at(TokNewline) {
		p.advance()
	}
}

func (p *Parser) skipNewlines() {
	for p.at(TokNewline) {
		p.advance()
	}
}

func (p *Parser) parseProgram() *Program {
	prog := &Program{File: p.file}
	p.skipNewlines()

	if p.at(TokIdent) && p.cur().Text == "streetrace" {
		pos := p.cur().Pos
		p.advance()
		ver := ""
		if p.at(TokIdent) {
			ver = p.cur().Text
			p.advance()
		}
		prog.Version = &VersionDecl{Pos: pos, Version: ver}
		p.skipNewlines()
	} else {
		p.errorf(p.cur().Pos, "missing required version header")
		p.diags[len(p.diags)-1].Code = diag.CodeNoVersion
	}

	for !p.at(TokEOF) {
		p.skipNewlines()
		if p.at(TokEOF) {
			break
		}
		switch {
		case p.atKeyword("model"):
			if d := p.parseModelDef(); d != nil {
				prog.Models = append(prog.Models, d)
			}
		case p.atKeyword("tool"):
			if d := p.parseToolDef(); d != nil {
				prog.Tools = append(prog.Tools, d)
			}
		case p.atKeyword("prompt"):
			if d := p.parsePromptDef(); d != nil {
				prog.Prompts = append(prog.Prompts, d)
			}
		case p.atKeyword("agent"):
			if d := p.parseAgentDef(); d != nil {
				prog.Agents = append(prog.Agents, d)
			}
		case p.atKeyword("flow"):
			if d := p.parseFlowDef(); d != nil {
				prog.Flows = append(prog.Flows, d)
			}
		case p.atKeyword("policy"):
			if d := p.parsePolicyDef(); d != nil {
				prog.Policy = d
			}
		default:
			p.errorf(p.cur().Pos, "unexpected token at top level")
			p.skipToNextStatement()
		}
	}

	return prog
}

func (p *Parser) expectIdentLike() (string, Pos, bool) {
	if p.at(TokIdent) || p.at(TokKeyword) {
		t := p.advance()
		return t.Text, t.Pos, true
	}
	return "", p.cur().Pos, false
}

func (p *Parser) parseModelDef() *ModelDef {
	pos := p.cur().Pos
	p.advance() // 'model'
	name, _, ok := p.expectIdentLike()
	if !ok {
		p.errorf(pos, "expected model name")
		p.skipToNextStatement()
		return nil
	}
	if !p.at(TokEquals) {
		p.errorf(p.cur().Pos, "expected '=' in model declaration")
		p.skipToNextStatement()
		return nil
	}
	p.advance()
	ref, _, _ := p.expectIdentLike()
	provider, modelID := splitProviderModel(ref)
	p.skipToNextStatement()
	return &ModelDef{Pos: pos, Name: name, Provider: provider, ModelID: modelID}
}

func splitProviderModel(ref string) (string, string) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

func (p *Parser) parseToolDef() *ToolDef {
	pos := p.cur().Pos
	p.advance() // 'tool'
	name, _, _ := p.expectIdentLike()
	if p.at(TokEquals) {
		p.advance()
	}
	td := &ToolDef{Pos: pos, Name: name}
	switch {
	case p.atKeyword("builtin"):
		p.advance()
		ref, _, _ := p.expectIdentLike()
		td.Kind = ToolBuiltin
		td.Ref = ref
	case p.atKeyword("mcp"):
		p.advance()
		if p.at(TokString) {
			td.URL = p.advance().Text
		}
		td.Kind = ToolMCP
	default:
		p.errorf(p.cur().Pos, "expected 'builtin' or 'mcp' in tool declaration")
	}
	p.skipToNextStatement()
	return td
}

func (p *Parser) parsePromptDef() *PromptDef {
	pos := p.cur().Pos
	p.advance() // 'prompt'
	name, _, _ := p.expectIdentLike()
	pd := &PromptDef{Pos: pos, Name: name}

	for p.atKeyword("using") || p.atKeyword("output") {
		if p.atKeyword("using") {
			p.advance()
			if p.atKeyword("model") {
				p.advance()
			}
			if p.at(TokString) {
				pd.Model = p.advance().Text
			}
		}
		if p.atKeyword("output") {
			p.advance()
			if p.atKeyword("schema") {
				p.advance()
			}
			name, _, _ := p.expectIdentLike()
			pd.Schema = name
		}
	}

	if p.at(TokColon) {
		p.advance()
	}
	p.skipNewlines()
	indented := p.at(TokIndent)
	if indented {
		p.advance()
	}
	if p.at(TokString) {
		pd.Body = p.advance().Text
	}
	p.skipNewlines()

	if p.atKeyword("escalate") {
		p.advance()
		if p.atKeyword("if") {
			p.advance()
		}
		op := p.parseEscalationOp()
		var val string
		if p.at(TokString) {
			val = p.advance().Text
		}
		pd.Escalation = &EscalationSpec{Op: op, Value: val}
	}
	p.skipToNextStatement()
	if indented {
		p.skipNewlines()
		if p.at(TokDedent) {
			p.advance()
		}
	}
	return pd
}

func (p *Parser) parseEscalationOp() EscalationOp {
	switch {
	case p.at(TokOpTilde):
		p.advance()
		return EscNormalize
	case p.at(TokOpEqEq):
		p.advance()
		return EscEqual
	case p.at(TokOpNotEq):
		p.advance()
		return EscNotEqual
	case p.atKeyword("contains"):
		p.advance()
		return EscContains
	default:
		p.errorf(p.cur().Pos, "unknown escalation operator")
		p.diags[len(p.diags)-1].Code = diag.CodeBadEscalationOp
		return ""
	}
}

func (p *Parser) parseAgentDef() *AgentDef {
	pos := p.cur().Pos
	p.advance() // 'agent'
	ad := &AgentDef{Pos: pos}
	if p.at(TokIdent) {
		ad.Name = p.advance().Text
	} else {
		ad.IsRoot = true
	}
	if p.at(TokColon) {
		p.advance()
	}
	p.skipNewlines()
	if !p.at(TokIndent) {
		return ad
	}
	p.advance()
	for !p.at(TokDedent) && !p.at(TokEOF) {
		p.skipNewlines()
		if p.at(TokDedent) || p.at(TokEOF) {
			break
		}
		switch {
		case p.atKeyword("tools"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			ad.Tools = p.parseIdentList()
		case p.atKeyword("instruction"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			name, _, _ := p.expectIdentLike()
			ad.Instruction = name
		case p.atKeyword("description"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			if p.at(TokString) {
				ad.Description = p.advance().Text
			}
		case p.atKeyword("history"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			name, _, _ := p.expectIdentLike()
			ad.History = name
		default:
			p.errorf(p.cur().Pos, "unexpected token in agent body")
		}
		p.skipToNextStatement()
	}
	if p.at(TokDedent) {
		p.advance()
	}
	return ad
}

func (p *Parser) parseIdentList() []string {
	var out []string
	for p.at(TokIdent) || p.at(TokKeyword) {
		out = append(out, p.advance().Text)
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	return out
}

func (p *Parser) parseFlowDef() *FlowDef {
	pos := p.cur().Pos
	p.advance() // 'flow'
	name, _, _ := p.expectIdentLike()
	fd := &FlowDef{Pos: pos, Name: name}
	if p.at(TokColon) {
		p.advance()
	}
	p.skipNewlines()
	if p.at(TokIndent) {
		p.advance()
		fd.Body = p.parseStmtBlock()
		if p.at(TokDedent) {
			p.advance()
		}
	}
	return fd
}

func (p *Parser) parsePolicyDef() *PolicyDef {
	pos := p.cur().Pos
	p.advance() // 'policy'
	name, _, _ := p.expectIdentLike()
	pd := &PolicyDef{Pos: pos, Name: name}
	if p.at(TokColon) {
		p.advance()
	}
	p.skipNewlines()
	if !p.at(TokIndent) {
		return pd
	}
	p.advance()
	for !p.at(TokDedent) && !p.at(TokEOF) {
		p.skipNewlines()
		if p.at(TokDedent) || p.at(TokEOF) {
			break
		}
		switch {
		case p.atKeyword("trigger"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			val, _, _ := p.expectIdentLike()
			pd.Trigger = val
		case p.atKeyword("strategy"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			val, _, _ := p.expectIdentLike()
			pd.Strategy = val
		case p.atKeyword("preserve"):
			p.advance()
			if p.at(TokColon) {
				p.advance()
			}
			if p.at(TokInt) {
				pd.Preserve = int(p.advance().IntVal)
			}
		default:
			p.errorf(p.cur().Pos, "unexpected token in policy body")
		}
		p.skipToNextStatement()
	}
	if p.at(TokDedent) {
		p.advance()
	}
	return pd
}

// parseStmtBlock parses statements until a DEDENT or EOF, recovering from
// per-statement errors.
func (p *Parser) parseStmtBlock() []Stmt {
	var stmts []Stmt
	for {
		p.skipNewlines()
		if p.at(TokDedent) || p.at(TokEOF) {
			break
		}
		if s := p.parseStmt(); s != nil {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func (p *Parser) parseStmt() Stmt {
	pos := p.cur().Pos

	switch {
	case p.atKeyword("call"):
		return p.parseCallStmt("")
	case p.atKeyword("run"):
		return p.parseRunStmt("")
	case p.atKeyword("return"):
		p.advance()
		v := p.parseExpr()
		p.skipToNextStatement()
		return &ReturnStmt{Pos: pos, Value: v}
	case p.atKeyword("for"):
		return p.parseForLoop()
	case p.atKeyword("parallel"):
		return p.parseParallelBlock()
	case p.atKeyword("on"):
		return p.parseEventHandler()
	case p.at(TokIdent):
		return p.parseAssignmentOrLeadingTarget()
	default:
		p.errorf(pos, "unexpected token in flow body")
		p.skipToNextStatement()
		return nil
	}
}

// parseAssignmentOrLeadingTarget handles `target = ...`, `a.b.c = ...`, and
// `target = call llm ...` / `target = run agent|flow ...`.
func (p *Parser) parseAssignmentOrLeadingTarget() Stmt {
	pos := p.cur().Pos
	base := p.advance().Text
	var path []string
	for p.at(TokDot) {
		p.advance()
		if p.at(TokIdent) || p.at(TokKeyword) {
			path = append(path, p.advance().Text)
		}
	}

	if !p.at(TokEquals) {
		p.errorf(p.cur().Pos, "expected '=' after assignment target")
		p.skipToNextStatement()
		return nil
	}
	p.advance() // '='

	if p.atKeyword("call") {
		return p.parseCallStmt(base)
	}
	if p.atKeyword("run") {
		return p.parseRunStmt(base)
	}

	val := p.parseExpr()
	p.skipToNextStatement()
	if len(path) == 0 {
		return &Assignment{Pos: pos, Target: base, Value: val}
	}
	return &PropertyAssignment{Pos: pos, Base: base, Path: path, Value: val}
}

func (p *Parser) parseCallStmt(target string) Stmt {
	pos := p.cur().Pos
	p.advance() // 'call'
	if p.atKeyword("llm") {
		p.advance()
	}
	name, _, _ := p.expectIdentLike()
	p.skipToNextStatement()
	return &CallStmt{Pos: pos, Target: target, Prompt: name}
}

func (p *Parser) parseRunStmt(target string) Stmt {
	pos := p.cur().Pos
	p.advance() // 'run'
	isFlow := false
	if p.atKeyword("flow") {
		isFlow = true
		p.advance()
	} else if p.atKeyword("agent") {
		p.advance()
	}
	name, _, _ := p.expectIdentLike()
	rs := &RunStmt{Pos: pos, Target: target, Agent: name, IsFlow: isFlow}
	if p.atKeyword("with") {
		p.advance()
		rs.Input = p.parseExpr()
	}
	if p.atKeyword("on") {
		p.advance()
		if p.atKeyword("escalate") {
			p.advance()
		}
		rs.EscalationHandler = p.parseEscalationHandler()
	}
	p.skipToNextStatement()
	return rs
}

func (p *Parser) parseEscalationHandler() *EscalationHandler {
	switch {
	case p.atKeyword("return"):
		p.advance()
		v := p.parseExpr()
		return &EscalationHandler{Kind: EscHandlerReturn, Value: v}
	case p.atKeyword("continue"):
		p.advance()
		return &EscalationHandler{Kind: EscHandlerContinue}
	case p.atKeyword("abort"):
		p.advance()
		return &EscalationHandler{Kind: EscHandlerAbort}
	default:
		p.errorf(p.cur().Pos, "expected return, continue, or abort after on escalate")
		return nil
	}
}

func (p *Parser) parseForLoop() Stmt {
	pos := p.cur().Pos
	p.advance() // 'for'
	varName, _, _ := p.expectIdentLike()
	if p.atKeyword("in") {
		p.advance()
	}
	iter := p.parseExpr()
	if p.atKeyword("do") {
		p.advance()
	}
	p.skipNewlines()
	var body []Stmt
	if p.at(TokIndent) {
		p.advance()
		body = p.parseStmtBlock()
		if p.at(TokDedent) {
			p.advance()
		}
	}
	p.consumeEndKeyword()
	return &ForLoop{Pos: pos, Var: varName, Iter: iter, Body: body}
}

func (p *Parser) parseParallelBlock() Stmt {
	pos := p.cur().Pos
	p.advance() // 'parallel'
	if p.atKeyword("do") {
		p.advance()
	}
	p.skipNewlines()
	var body []Stmt
	if p.at(TokIndent) {
		p.advance()
		body = p.parseStmtBlock()
		if p.at(TokDedent) {
			p.advance()
		}
	}
	p.consumeEndKeyword()
	for _, s := range body {
		if _, ok := s.(*RunStmt); !ok {
			p.errorf(pos, "parallel block may only contain run statements")
			p.diags[len(p.diags)-1].Code = diag.CodeNonRunInParallel
			break
		}
	}
	return &ParallelBlock{Pos: pos, Body: body}
}

func (p *Parser) parseEventHandler() Stmt {
	pos := p.cur().Pos
	p.advance() // 'on'
	timing, _, _ := p.expectIdentLike()
	eventType, _, _ := p.expectIdentLike()
	if p.atKeyword("do") {
		p.advance()
	}
	p.skipNewlines()
	var body []Stmt
	if p.at(TokIndent) {
		p.advance()
		body = p.parseStmtBlock()
		if p.at(TokDedent) {
			p.advance()
		}
	}
	p.consumeEndKeyword()
	return &EventHandler{Pos: pos, Timing: timing, EventType: eventType, Body: body}
}

// consumeEndKeyword eats a trailing `end` line belonging to for/parallel/on
// blocks, if present; the indentation-driven grammar doesn't strictly
// require it but source commonly includes it for readability.
func (p *Parser) consumeEndKeyword() {
	p.skipNewlines()
	if p.atKeyword("end") {
		p.advance()
		p.skipToNextStatement()
	}
}

// --- expressions ---

func (p *Parser) parseExpr() Expr {
	if p.atKeyword("filter") {
		return p.parseFilterExpr()
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parseFilterExpr() Expr {
	pos := p.cur().Pos
	p.advance() // 'filter'
	list := p.parsePrimaryExpr()
	if p.atKeyword("where") {
		p.advance()
	}
	cond := p.parseCondition()
	return &FilterExpr{Pos: pos, ListExpr: list, Condition: cond}
}

// parseCondition parses `.path op value`, producing a BinaryOp whose left
// is an ImplicitProperty.
func (p *Parser) parseCondition() Expr {
	pos := p.cur().Pos
	var left Expr
	if p.at(TokDot) {
		p.advance()
		var path []string
		for p.at(TokIdent) || p.at(TokKeyword) {
			path = append(path, p.advance().Text)
			if p.at(TokDot) {
				p.advance()
				continue
			}
			break
		}
		left = &ImplicitProperty{Pos: pos, Path: path}
	} else {
		left = p.parsePrimaryExpr()
	}

	op := ""
	switch {
	case p.at(TokOpEqEq):
		op = "=="
		p.advance()
	case p.at(TokOpNotEq):
		op = "!="
		p.advance()
	case p.atKeyword("contains"):
		op = "contains"
		p.advance()
	default:
		return left
	}
	right := p.parsePrimaryExpr()
	return &BinaryOp{Pos: pos, Op: op, Left: left, Right: right}
}

func (p *Parser) parsePrimaryExpr() Expr {
	pos := p.cur().Pos
	switch {
	case p.at(TokDollar):
		p.advance()
		name, _, _ := p.expectIdentLike()
		return p.parseTrailingPath(pos, name)
	case p.at(TokIdent):
		name := p.advance().Text
		return p.parseTrailingPath(pos, name)
	case p.at(TokKeyword) && (p.cur().Text == "true" || p.cur().Text == "false"):
		b := p.advance().Text == "true"
		return &Literal{Pos: pos, Type: LitBool, Value: b}
	case p.at(TokKeyword) && p.cur().Text == "null":
		p.advance()
		return &Literal{Pos: pos, Type: LitNull}
	case p.at(TokString):
		s := p.advance().Text
		return &Literal{Pos: pos, Type: LitString, Value: s}
	case p.at(TokInt):
		v := p.advance().IntVal
		return &Literal{Pos: pos, Type: LitInt, Value: v}
	case p.at(TokFloat):
		v := p.advance().FltVal
		return &Literal{Pos: pos, Type: LitFloat, Value: v}
	case p.at(TokLBracket):
		return p.parseListLiteral()
	case p.at(TokLBrace):
		return p.parseObjectLiteral()
	default:
		p.errorf(pos, "unexpected token in expression")
		p.advance()
		return &Literal{Pos: pos, Type: LitNull}
	}
}

func (p *Parser) parseTrailingPath(pos Pos, base string) Expr {
	if !p.at(TokDot) {
		return &VarRef{Pos: pos, Name: base}
	}
	var path []string
	for p.at(TokDot) {
		p.advance()
		if p.at(TokIdent) || p.at(TokKeyword) {
			path = append(path, p.advance().Text)
		}
	}
	return &PropertyAccess{Pos: pos, Base: base, Path: path}
}

func (p *Parser) parseListLiteral() Expr {
	pos := p.cur().Pos
	p.advance() // '['
	ll := &ListLiteral{Pos: pos}
	for !p.at(TokRBracket) && !p.at(TokEOF) {
		ll.Elements = append(ll.Elements, p.parsePrimaryExpr())
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if p.at(TokRBracket) {
		p.advance()
	}
	return ll
}

func (p *Parser) parseObjectLiteral() Expr {
	pos := p.cur().Pos
	p.advance() // '{'
	ol := &ObjectLiteral{Pos: pos}
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		key := ""
		if p.at(TokIdent) || p.at(TokKeyword) || p.at(TokString) {
			key = p.advance().Text
		}
		if p.at(TokColon) {
			p.advance()
		}
		val := p.parsePrimaryExpr()
		ol.Entries = append(ol.Entries, ObjectEntry{Key: key, Value: val})
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if p.at(TokRBrace) {
		p.advance()
	}
	return ol
}
