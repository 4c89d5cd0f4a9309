package metaextract

import "github.com/astdb-dev/astdb/internal/ast"

// LanguageSpecific collects the optional, language-dependent attributes:
// type annotation text, generic parameter names, base class names, and
// interface names.
func LanguageSpecific(n *ast.RawNode, language string) map[string]string {
	out := make(map[string]string)

	switch language {
	case "go":
		if recv := firstOfKind(n, "parameter_list"); recv != nil && n.Kind == "method_declaration" {
			out["receiver"] = recv.Text
		}
		if result := firstFieldNamed(n, "result"); result != "" {
			out["return_type"] = result
		}

	case "typescript", "tsx":
		if tp := firstOfKind(n, "type_parameters"); tp != nil {
			out["generic_parameters"] = tp.Text
		}
		if ret := firstOfKind(n, "type_annotation"); ret != nil {
			out["type_annotation"] = ret.Text
		}
		if heritage := firstOfKind(n, "class_heritage"); heritage != nil {
			out["heritage"] = heritage.Text
		}

	case "python":
		if bases := firstOfKind(n, "argument_list"); bases != nil && n.Kind == "class_definition" {
			out["base_classes"] = bases.Text
		}
		if ret := firstOfKind(n, "type"); ret != nil {
			out["return_type"] = ret.Text
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstOfKind(n *ast.RawNode, kind string) *ast.RawNode {
	for _, child := range n.Children {
		if child.Kind == kind {
			return child
		}
	}
	return nil
}

func firstFieldNamed(n *ast.RawNode, field string) string {
	for _, child := range n.Children {
		if child.FieldName == field {
			return child.Text
		}
	}
	return ""
}
