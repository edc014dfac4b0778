// Package parser turns the surface language's textual form into
// pkg/ast.Func declarations. The grammar is a C-like imperative language
// with throw/try-catch/try-finally exception handling, recovered from
// _examples/original_source/src/frontend.rs (the Rust demo this module's
// spec was distilled from) since the spec's own text only summarizes it.
package parser

import (
	"github.com/pkg/errors"

	"exlang/pkg/ast"
)

// Parser consumes tokens and produces one ast.Func per `fn` declaration;
// ParseAll returns them all.
// Kept as a struct around a token buffer rather than a recursive set of
// free functions, mirroring the teacher's Parser{input, pos} shape.
type Parser struct {
	lex  *lexer
	cur  token
	peek *token
}

// New creates a parser for the given source text.
func New(input string) (*Parser, error) {
	p := &Parser{lex: newLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	if p.peek != nil {
		p.cur = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *Parser) lookahead() (token, error) {
	if p.peek == nil {
		t, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.peek = &t
	}
	return *p.peek, nil
}

func (p *Parser) expect(k tokKind, what string) (token, error) {
	if p.cur.kind != k {
		return token{}, errors.Errorf("parser: expected %s at offset %d, got %q", what, p.cur.pos, p.cur.text)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return t, nil
}

// ParseAll parses every `fn` declaration until EOF.
func (p *Parser) ParseAll() ([]ast.Func, error) {
	var funcs []ast.Func
	for p.cur.kind != tokEOF {
		fn, err := p.parseFunc()
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

func (p *Parser) parseFunc() (ast.Func, error) {
	if _, err := p.expect(tokFn, "'fn'"); err != nil {
		return ast.Func{}, err
	}
	name, err := p.expect(tokIdent, "function name")
	if err != nil {
		return ast.Func{}, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return ast.Func{}, err
	}
	var params []string
	for p.cur.kind != tokRParen {
		id, err := p.expect(tokIdent, "parameter name")
		if err != nil {
			return ast.Func{}, err
		}
		params = append(params, id.text)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return ast.Func{}, err
			}
		}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return ast.Func{}, err
	}
	if _, err := p.expect(tokArrow, "'->'"); err != nil {
		return ast.Func{}, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return ast.Func{}, err
	}
	ret, err := p.expect(tokIdent, "return variable name")
	if err != nil {
		return ast.Func{}, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return ast.Func{}, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return ast.Func{}, err
	}
	return ast.Func{Name: name.text, Params: params, Ret: ret.text, Body: body}, nil
}

func (p *Parser) parseBlock() ([]ast.Expr, error) {
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var stmts []ast.Expr
	for p.cur.kind != tokRBrace {
		e, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, e)
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) parseStmt() (ast.Expr, error) {
	switch p.cur.kind {
	case tokThrow:
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Tag: ast.TThrow, Value: &v}, nil
	case tokIf:
		return p.parseIfElse()
	case tokWhile:
		return p.parseWhile()
	case tokTry:
		return p.parseTry()
	default:
		return p.parseAssignOrExpr()
	}
}

func (p *Parser) parseIfElse() (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return ast.Expr{}, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return ast.Expr{}, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return ast.Expr{}, err
	}
	if _, err := p.expect(tokElse, "'else'"); err != nil {
		return ast.Expr{}, err
	}
	els, err := p.parseBlock()
	if err != nil {
		return ast.Expr{}, err
	}
	return ast.Expr{Tag: ast.TIfElse, Cond: &cond, Then: then, Else: els}, nil
}

func (p *Parser) parseWhile() (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return ast.Expr{}, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return ast.Expr{}, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return ast.Expr{}, err
	}
	return ast.Expr{Tag: ast.TWhileLoop, Cond: &cond, Body: body}, nil
}

func (p *Parser) parseTry() (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return ast.Expr{}, err
	}
	block, err := p.parseBlock()
	if err != nil {
		return ast.Expr{}, err
	}
	switch p.cur.kind {
	case tokCatch:
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		v, err := p.expect(tokIdent, "catch variable")
		if err != nil {
			return ast.Expr{}, err
		}
		handler, err := p.parseBlock()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Tag: ast.TTryCatch, Block: block, CatchVar: v.text, Handler: handler}, nil
	case tokFinally:
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		handler, err := p.parseBlock()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Tag: ast.TTryFinally, Block: block, Handler: handler}, nil
	default:
		return ast.Expr{}, errors.Errorf("parser: expected 'catch' or 'finally' at offset %d", p.cur.pos)
	}
}

func (p *Parser) parseAssignOrExpr() (ast.Expr, error) {
	if p.cur.kind == tokIdent {
		la, err := p.lookahead()
		if err != nil {
			return ast.Expr{}, err
		}
		if la.kind == tokAssign {
			name := p.cur.text
			if err := p.advance(); err != nil { // consume ident
				return ast.Expr{}, err
			}
			if err := p.advance(); err != nil { // consume '='
				return ast.Expr{}, err
			}
			rhs, err := p.parseExpr()
			if err != nil {
				return ast.Expr{}, err
			}
			return ast.Expr{Tag: ast.TAssign, Name: name, Rhs: &rhs}, nil
		}
	}
	return p.parseExpr()
}

// parseExpr implements precedence climbing: equality, then relational,
// then additive, then multiplicative, then unary/primary.
func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseEquality()
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur.kind == tokEq || p.cur.kind == tokNe {
		op := ast.OpEq
		if p.cur.kind == tokNe {
			op = ast.OpNe
		}
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		right, err := p.parseRelational()
		if err != nil {
			return ast.Expr{}, err
		}
		l, r := left, right
		left = ast.Expr{Tag: ast.TBinary, Op: op, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *Parser) parseRelational() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return ast.Expr{}, err
	}
	for {
		var op ast.BinOp
		switch p.cur.kind {
		case tokLt:
			op = ast.OpLt
		case tokLe:
			op = ast.OpLe
		case tokGt:
			op = ast.OpGt
		case tokGe:
			op = ast.OpGe
		default:
			return left, nil
		}
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return ast.Expr{}, err
		}
		l, r := left, right
		left = ast.Expr{Tag: ast.TBinary, Op: op, Left: &l, Right: &r}
	}
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := ast.OpAdd
		if p.cur.kind == tokMinus {
			op = ast.OpSub
		}
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return ast.Expr{}, err
		}
		l, r := left, right
		left = ast.Expr{Tag: ast.TBinary, Op: op, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnaryOrPrimary()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash {
		op := ast.OpMul
		if p.cur.kind == tokSlash {
			op = ast.OpDiv
		}
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		right, err := p.parseUnaryOrPrimary()
		if err != nil {
			return ast.Expr{}, err
		}
		l, r := left, right
		left = ast.Expr{Tag: ast.TBinary, Op: op, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *Parser) parseUnaryOrPrimary() (ast.Expr, error) {
	switch p.cur.kind {
	case tokNumber:
		v := p.cur.num
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		return ast.Literal(v), nil
	case tokAmp:
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		id, err := p.expect(tokIdent, "identifier after '&'")
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.GlobalDataAddr(id.text), nil
	case tokIf:
		return p.parseIfElse()
	case tokLParen:
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return ast.Expr{}, err
		}
		return inner, nil
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return ast.Expr{}, err
		}
		if p.cur.kind == tokLParen {
			if err := p.advance(); err != nil {
				return ast.Expr{}, err
			}
			var args []ast.Expr
			for p.cur.kind != tokRParen {
				a, err := p.parseExpr()
				if err != nil {
					return ast.Expr{}, err
				}
				args = append(args, a)
				if p.cur.kind == tokComma {
					if err := p.advance(); err != nil {
						return ast.Expr{}, err
					}
				}
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return ast.Expr{}, err
			}
			return ast.Expr{Tag: ast.TCall, Name: name, Args: args}, nil
		}
		return ast.Identifier(name), nil
	default:
		return ast.Expr{}, errors.Errorf("parser: unexpected token at offset %d", p.cur.pos)
	}
}
