package repl

import (
	"path"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
)

const (
	kindVar     = "var"
	kindConst   = "const"
	kindFunc    = "func"
	kindType    = "type"
	kindPackage = "package"
)

// declarations returns the names a top-level statement introduces and the
// packages it imports, keyed by local package name.
func declarations(n *sitter.Node, src []byte) (map[string]string, map[string]string) {
	declares := make(map[string]string)
	imports := make(map[string]string)

	switch n.Type() {
	case "short_var_declaration":
		if left := n.ChildByFieldName("left"); left != nil {
			identifiers(left, src, kindVar, declares)
		}
	case "var_declaration":
		specs(n, "var_spec", func(spec *sitter.Node) { identifiers(spec, src, kindVar, declares) })
	case "const_declaration":
		specs(n, "const_spec", func(spec *sitter.Node) { identifiers(spec, src, kindConst, declares) })
	case "function_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			declares[name.Content(src)] = kindFunc
		}
	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if name := n.NamedChild(i).ChildByFieldName("name"); name != nil {
				declares[name.Content(src)] = kindType
			}
		}
	case "import_declaration":
		specs(n, "import_spec", func(spec *sitter.Node) {
			p := spec.ChildByFieldName("path")
			if p == nil {
				return
			}
			importPath, err := strconv.Unquote(p.Content(src))
			if err != nil {
				return
			}
			local := path.Base(importPath)
			if name := spec.ChildByFieldName("name"); name != nil {
				local = name.Content(src)
			}
			if local != "_" && local != "." {
				imports[local] = importPath
			}
		})
	}
	return declares, imports
}

// specs calls fn for every descendant of n of the given type, looking through
// parenthesized spec lists.
func specs(n *sitter.Node, specType string, fn func(*sitter.Node)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == specType {
			fn(child)
			continue
		}
		specs(child, specType, fn)
	}
}

// identifiers records the direct identifier children of n.
func identifiers(n *sitter.Node, src []byte, kind string, into map[string]string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "identifier" {
			if name := child.Content(src); name != "_" {
				into[name] = kind
			}
		}
	}
}
