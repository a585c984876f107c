package query

import (
	"fmt"

	"github.com/standardbeagle/depq/internal/depqerr"
)

var knownKeys = map[string]LeafKind{
	"lemma":  LeafLemma,
	"form":   LeafForm,
	"upos":   LeafUPOS,
	"xpos":   LeafXPOS,
	"deprel": LeafDepRel,
}

type parser struct {
	lx   *lexer
	tok  token
	ast  *AST
	seen map[string]bool // every named edge/precedence endpoint, checked against Vars in the final resolution pass
}

// Parse compiles query text into an AST, resolving `!=` to negated leaves,
// dropping anonymous-only edges, and rejecting duplicate variables and
// unresolved edge endpoints. Parse errors are *depqerr.QueryParseError;
// semantic errors are *depqerr.QuerySemanticError.
func Parse(src string) (*AST, error) {
	p := &parser{lx: newLexer(src), ast: newAST(), seen: make(map[string]bool)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	for p.tok.kind != tEOF {
		if err := p.statement(); err != nil {
			return nil, err
		}
	}

	if err := p.resolveEndpoints(); err != nil {
		return nil, err
	}

	return p.ast, nil
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		le := err.(*lexError)
		return depqerr.NewQueryParseError(le.pos, le.line, le.col, le.msg)
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return depqerr.NewQueryParseError(p.tok.pos, p.tok.line, p.tok.col, fmt.Sprintf(format, args...))
}

func (p *parser) expect(k tokenKind) (token, error) {
	if p.tok.kind != k {
		return token{}, p.errorf("expected %s, got %s", k, p.tok.kind)
	}
	t := p.tok
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return t, nil
}

func (p *parser) statement() error {
	if p.tok.kind != tIdent {
		return p.errorf("expected a variable name or '_', got %s", p.tok.kind)
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}

	switch p.tok.kind {
	case tLBracket:
		return p.varDecl(name)
	case tDash, tBangDash, tArrow:
		return p.edgeDecl(name)
	case tLt, tLtLt:
		return p.precedenceDecl(name)
	default:
		return p.errorf("expected '[', '-', '->', '!-', '<' or '<<' after %q, got %s", name, p.tok.kind)
	}
}

func (p *parser) varDecl(name string) error {
	if name == "_" {
		return depqerr.NewQuerySemanticError(name, "the anonymous variable '_' cannot be declared")
	}
	if _, err := p.expect(tLBracket); err != nil {
		return err
	}

	var constraints []Leaf
	if p.tok.kind != tRBracket {
		for {
			leaf, err := p.constraint()
			if err != nil {
				if qerr, ok := err.(*depqerr.QuerySemanticError); ok {
					return qerr.WithVariable(name)
				}
				return err
			}
			constraints = append(constraints, leaf)
			if p.tok.kind != tComma {
				break
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(tRBracket); err != nil {
		return err
	}
	if _, err := p.expect(tSemi); err != nil {
		return err
	}

	if _, dup := p.ast.Vars[name]; dup {
		return depqerr.NewQuerySemanticError(name, "duplicate variable declaration")
	}
	v := &Var{Name: name, Constraints: constraints}
	p.ast.Vars[name] = v
	p.ast.VarOrder = append(p.ast.VarOrder, name)
	return nil
}

func (p *parser) constraint() (Leaf, error) {
	if p.tok.kind != tIdent {
		return Leaf{}, p.errorf("expected a constraint key, got %s", p.tok.kind)
	}
	keyTok := p.tok
	if err := p.advance(); err != nil {
		return Leaf{}, err
	}

	if keyTok.text == "feats" {
		if _, err := p.expect(tDot); err != nil {
			return Leaf{}, err
		}
		if p.tok.kind != tIdent {
			return Leaf{}, p.errorf("expected a feature key after 'feats.', got %s", p.tok.kind)
		}
		featKey := p.tok.text
		if err := p.advance(); err != nil {
			return Leaf{}, err
		}
		negated, err := p.eqOrNotEq()
		if err != nil {
			return Leaf{}, err
		}
		val, err := p.expect(tString)
		if err != nil {
			return Leaf{}, err
		}
		return Leaf{Kind: LeafFeature, Key: featKey, Value: val.text, Negated: negated}, nil
	}

	kind, ok := knownKeys[keyTok.text]
	if !ok {
		return Leaf{}, depqerr.NewQuerySemanticError("", fmt.Sprintf("unknown constraint key %q", keyTok.text))
	}
	negated, err := p.eqOrNotEq()
	if err != nil {
		return Leaf{}, err
	}
	val, err := p.expect(tString)
	if err != nil {
		return Leaf{}, err
	}
	return Leaf{Kind: kind, Value: val.text, Negated: negated}, nil
}

func (p *parser) eqOrNotEq() (negated bool, err error) {
	switch p.tok.kind {
	case tEq:
		return false, p.advance()
	case tNotEq:
		return true, p.advance()
	default:
		return false, p.errorf("expected '=' or '!=', got %s", p.tok.kind)
	}
}

func (p *parser) edgeDecl(from string) error {
	negated := p.tok.kind == tBangDash
	// An unlabelled edge may be written `A -> B`, which lexes as a single
	// '->' with no leading '-'.
	if p.tok.kind != tArrow {
		if err := p.advance(); err != nil {
			return err
		}
	}

	var label string
	var hasLabel bool
	if p.tok.kind == tLBracket {
		if err := p.advance(); err != nil {
			return err
		}
		if p.tok.kind != tIdent {
			return p.errorf("expected an edge label, got %s", p.tok.kind)
		}
		label = p.tok.text
		hasLabel = true
		if err := p.advance(); err != nil {
			return err
		}
		if _, err := p.expect(tRBracket); err != nil {
			return err
		}
	}

	if _, err := p.expect(tArrow); err != nil {
		return err
	}

	if p.tok.kind != tIdent {
		return p.errorf("expected a variable name or '_', got %s", p.tok.kind)
	}
	to := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}
	if _, err := p.expect(tSemi); err != nil {
		return err
	}

	if from == "_" && to == "_" {
		return nil // no-op edge, silently dropped per the grammar
	}

	if from != "_" {
		p.seen[from] = true
	}
	if to != "_" {
		p.seen[to] = true
	}

	p.ast.Edges = append(p.ast.Edges, Edge{
		From: from, To: to, Relation: RelChild, Label: label, HasLabel: hasLabel, Negated: negated,
	})
	return nil
}

func (p *parser) precedenceDecl(from string) error {
	if from == "_" {
		return depqerr.NewQuerySemanticError(from, "precedence endpoints must be named variables, not '_'")
	}
	rel := PrecBefore
	if p.tok.kind == tLtLt {
		rel = PrecImmediatelyBefore
	}
	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tIdent {
		return p.errorf("expected a variable name, got %s", p.tok.kind)
	}
	to := p.tok.text
	if to == "_" {
		return depqerr.NewQuerySemanticError(to, "precedence endpoints must be named variables, not '_'")
	}
	if err := p.advance(); err != nil {
		return err
	}
	if _, err := p.expect(tSemi); err != nil {
		return err
	}

	p.seen[from] = true
	p.seen[to] = true
	p.ast.Precedences = append(p.ast.Precedences, Precedence{From: from, To: to, Relation: rel})
	return nil
}

// resolveEndpoints checks that every named edge/precedence endpoint
// resolves to a declared variable, allowing forward references (the
// endpoint's var_decl may appear anywhere in the query text).
func (p *parser) resolveEndpoints() error {
	for name := range p.seen {
		if _, ok := p.ast.Vars[name]; !ok {
			return depqerr.NewQuerySemanticError(name, "reference to undeclared variable")
		}
	}
	return nil
}
