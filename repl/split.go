package repl

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/tailored-agentic-units/evalkernel/engine"
)

func newParser() *sitter.Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	return parser
}

// statement is one parsed top-level node.
type statement struct {
	kind     string
	source   string
	start    int
	end      int
	echo     bool
	declares map[string]string

	// nested is source with inner expression statements wrapped in
	// kernel.Echo, run instead of source in echo mode. Empty when there are
	// none.
	nested  string
	imports map[string]string
}

// parse splits code into top-level statements. ok is false when the code
// does not parse; the caller then hands the whole text to the interpreter so
// it reports the syntax error.
func (r *Runtime) parse(code string) ([]statement, bool) {
	src := []byte(code + "\n")

	r.parseMu.Lock()
	tree, err := r.parser.ParseCtx(context.Background(), nil, src)
	r.parseMu.Unlock()
	if err != nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, false
	}

	var stmts []statement
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() == "comment" {
			continue
		}
		s := statement{
			kind:   n.Type(),
			source: n.Content(src),
			start:  int(n.StartPoint().Row) + 1,
			end:    int(n.EndPoint().Row) + 1,
		}
		s.echo = s.kind == "expression_statement" && !silenced(src, n) && !isPrint(n, src)
		s.declares, s.imports = declarations(n, src)
		s.nested = nestedEcho(n, src)
		stmts = append(stmts, s)
	}
	return stmts, true
}

// Split implements engine.Runtime.
func (r *Runtime) Split(code string) ([]engine.Block, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}

	stmts, ok := r.parse(code)
	if !ok {
		return []engine.Block{{Source: code, StartLine: 1, EndLine: strings.Count(code, "\n") + 1}}, nil
	}

	blocks := make([]engine.Block, len(stmts))
	for i, s := range stmts {
		blocks[i] = engine.Block{Source: s.source, StartLine: s.start, EndLine: s.end}
	}
	return blocks, nil
}

// silenced reports whether the statement is followed by a semicolon on the
// same line, which suppresses its echo.
func silenced(src []byte, n *sitter.Node) bool {
	for _, c := range src[n.EndByte():] {
		switch c {
		case ';':
			return true
		case ' ', '\t':
			continue
		default:
			return false
		}
	}
	return false
}

var printFuncs = map[string]bool{
	"fmt.Print":   true,
	"fmt.Printf":  true,
	"fmt.Println": true,
	"print":       true,
	"println":     true,
}

// isPrint reports whether an expression statement is a call to one of the
// print functions, whose byte counts are never echoed.
func isPrint(n *sitter.Node, src []byte) bool {
	if n.NamedChildCount() == 0 {
		return false
	}
	call := n.NamedChild(0)
	if call.Type() != "call_expression" {
		return false
	}
	fn := call.ChildByFieldName("function")
	return fn != nil && printFuncs[fn.Content(src)]
}

// nestedEcho rewrites the value-producing expression statements inside a
// compound statement (loop and branch bodies) into kernel.Echo calls. Calls
// are left alone, as are function bodies, which run later when called.
func nestedEcho(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "expression_statement", "function_declaration", "method_declaration", "type_declaration", "import_declaration":
		return ""
	}

	var spans [][2]uint32
	var walk func(*sitter.Node)
	walk = func(parent *sitter.Node) {
		for i := 0; i < int(parent.NamedChildCount()); i++ {
			child := parent.NamedChild(i)
			switch child.Type() {
			case "func_literal":
				continue
			case "expression_statement":
				expr := child.NamedChild(0)
				if expr != nil && expr.Type() != "call_expression" && !silenced(src, child) {
					spans = append(spans, [2]uint32{expr.StartByte(), expr.EndByte()})
				}
				continue
			}
			walk(child)
		}
	}
	walk(n)

	if len(spans) == 0 {
		return ""
	}

	var b strings.Builder
	pos := n.StartByte()
	for _, span := range spans {
		b.Write(src[pos:span[0]])
		b.WriteString(kernelPackage + ".Echo(")
		b.Write(src[span[0]:span[1]])
		b.WriteString(")")
		pos = span[1]
	}
	b.Write(src[pos:n.EndByte()])
	return b.String()
}
