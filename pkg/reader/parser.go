package reader

import (
	"fmt"
	"strconv"
)

// Parser consumes a token stream and builds Sexpr trees.
type Parser struct {
	toks []token
	pos  int
}

// Reader is the public entry point: it lexes and parses source text in
// one step, yielding every top-level Sexpr in the file.
type Reader struct {
	file string
}

// NewReader constructs a Reader that attributes Source.File to file for
// every Sexpr it produces.
func NewReader(file string) *Reader {
	return &Reader{file: file}
}

// ReadAll lexes and parses source, returning every top-level form.
func (r *Reader) ReadAll(source string) ([]Sexpr, error) {
	lex := NewLexer(r.file, source)
	toks, err := lex.tokenizeAll()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	var forms []Sexpr
	for {
		if p.at(tokEOF) {
			return forms, nil
		}
		form, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
}

func (p *Parser) at(k tokenKind) bool {
	return p.toks[p.pos].kind == k
}

func (p *Parser) cur() token { return p.toks[p.pos] }

func (p *Parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) parseForm() (Sexpr, error) {
	t := p.cur()
	switch t.kind {
	case tokLParen:
		return p.parseList()
	case tokQuote:
		p.advance()
		inner, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		return &List{
			Elements: []Sexpr{&Symbol{Name: "quote", Src: t.src}, inner},
			Src:      t.src,
		}, nil
	case tokString:
		p.advance()
		return &String{Value: t.text, Src: t.src}, nil
	case tokChar:
		p.advance()
		return &Char{Value: []rune(t.text)[0], Src: t.src}, nil
	case tokInt:
		p.advance()
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: malformed integer %q", t.src, t.text)
		}
		return &Int{Value: v, Src: t.src}, nil
	case tokSymbol:
		p.advance()
		switch t.text {
		case "true":
			return &Bool{Value: true, Src: t.src}, nil
		case "false":
			return &Bool{Value: false, Src: t.src}, nil
		case "nil":
			return &Nil{Src: t.src}, nil
		default:
			return &Symbol{Name: t.text, Src: t.src}, nil
		}
	case tokRParen:
		return nil, fmt.Errorf("%s: unexpected )", t.src)
	default:
		return nil, fmt.Errorf("%s: unexpected end of input", t.src)
	}
}

func (p *Parser) parseList() (Sexpr, error) {
	open := p.advance() // consume '('
	var elems []Sexpr
	for {
		if p.at(tokRParen) {
			p.advance()
			return &List{Elements: elems, Src: open.src}, nil
		}
		if p.at(tokEOF) {
			return nil, fmt.Errorf("%s: unterminated list", open.src)
		}
		el, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
	}
}
