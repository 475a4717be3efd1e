package prompt

import (
	"sort"
	"text/template"
	"text/template/parse"
)

// undeclaredVariables lists the top-level data keys a template reads: fields
// on the root dot, "$.x" references and anything evaluated inside if/range/with
// pipelines at root scope. Variables declared in the template ($x := ...) and
// fields read under a range or with dot are not reported.
func undeclaredVariables(tmpl *template.Template) []string {
	found := make(map[string]struct{})
	for _, t := range tmpl.Templates() {
		if t.Tree == nil || t.Tree.Root == nil {
			continue
		}
		// Associated {{define}} blocks receive whatever dot the caller passes;
		// they are walked as root scope like the main body.
		walkNode(t.Tree.Root, true, found)
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func walkNode(node parse.Node, rootDot bool, found map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			walkNode(child, rootDot, found)
		}
	case *parse.ActionNode:
		walkPipe(n.Pipe, rootDot, found)
	case *parse.IfNode:
		walkPipe(n.Pipe, rootDot, found)
		walkNode(n.List, rootDot, found)
		walkNode(n.ElseList, rootDot, found)
	case *parse.RangeNode:
		walkPipe(n.Pipe, rootDot, found)
		walkNode(n.List, false, found)
		walkNode(n.ElseList, rootDot, found)
	case *parse.WithNode:
		walkPipe(n.Pipe, rootDot, found)
		walkNode(n.List, false, found)
		walkNode(n.ElseList, rootDot, found)
	case *parse.TemplateNode:
		walkPipe(n.Pipe, rootDot, found)
	}
}

func walkPipe(pipe *parse.PipeNode, rootDot bool, found map[string]struct{}) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			walkArg(arg, rootDot, found)
		}
	}
}

func walkArg(arg parse.Node, rootDot bool, found map[string]struct{}) {
	switch a := arg.(type) {
	case *parse.FieldNode:
		if rootDot && len(a.Ident) > 0 {
			found[a.Ident[0]] = struct{}{}
		}
	case *parse.VariableNode:
		if len(a.Ident) > 1 && a.Ident[0] == "$" {
			found[a.Ident[1]] = struct{}{}
		}
	case *parse.ChainNode:
		walkArg(a.Node, rootDot, found)
	case *parse.PipeNode:
		walkPipe(a, rootDot, found)
	}
}
