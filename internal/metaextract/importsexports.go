package metaextract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	goImportBlock  = regexp.MustCompile(`(?s)import\s*\(\s*(.*?)\s*\)`)
	goImportSingle = regexp.MustCompile(`(?m)^import\s+(?:(\w+)\s+)?"([^"]+)"`)
	goImportLine   = regexp.MustCompile(`(?m)^\s*(?:(\w+)\s+)?"([^"]+)"`)

	jsImportDefault  = regexp.MustCompile(`import\s+(\w+)\s*(?:,\s*\{[^}]*\})?\s*from\s+['"]([^'"]+)['"]`)
	jsImportNamed    = regexp.MustCompile(`import\s+\{([^}]*)\}\s*from\s+['"]([^'"]+)['"]`)
	jsImportStar     = regexp.MustCompile(`import\s+\*\s+as\s+(\w+)\s+from\s+['"]([^'"]+)['"]`)
	jsExportDefault  = regexp.MustCompile(`export\s+default\s+(?:function\s+|class\s+)?(\w+)?`)
	jsExportNamed    = regexp.MustCompile(`export\s+\{([^}]*)\}`)
	jsExportDecl     = regexp.MustCompile(`export\s+(?:const|let|var|function|class|interface|type)\s+(\w+)`)
	jsMalformedImport = regexp.MustCompile(`(?m)^\s*import\s+[^;\n]*$`)

	pyImportPlain = regexp.MustCompile(`(?m)^import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
	pyImportFrom  = regexp.MustCompile(`(?m)^from\s+([\w.]+)\s+import\s+(.+)$`)
	pyAll         = regexp.MustCompile(`(?m)^__all__\s*=\s*\[([^\]]*)\]`)
)

// ParseImportsExports scans a file's source once and returns every import
// and export binding it can recognize, plus any statements it could not
// parse, as a partial-success Result rather than aborting on the first
// malformed line.
func ParseImportsExports(source []byte, language string) (Result[ImportInfo], Result[ExportInfo]) {
	switch language {
	case "go":
		return parseGoImports(source), Result[ExportInfo]{}
	case "javascript", "jsx", "typescript", "tsx":
		return parseJSImports(source), parseJSExports(source)
	case "python":
		return parsePythonImports(source), parsePythonExports(source)
	default:
		return Result[ImportInfo]{}, Result[ExportInfo]{}
	}
}

func parseGoImports(source []byte) Result[ImportInfo] {
	var res Result[ImportInfo]
	text := string(source)

	for _, block := range goImportBlock.FindAllStringSubmatch(text, -1) {
		for _, line := range strings.Split(block[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "//") {
				continue
			}
			m := goImportLine.FindStringSubmatch(line)
			if m == nil {
				res.addError(fmt.Errorf("metaextract: malformed go import line %q", line))
				continue
			}
			res.addValue(goImportInfo(m[1], m[2]))
		}
	}
	for _, m := range goImportSingle.FindAllStringSubmatch(text, -1) {
		res.addValue(goImportInfo(m[1], m[2]))
	}
	return res
}

func goImportInfo(alias, path string) ImportInfo {
	local := alias
	if local == "" {
		parts := strings.Split(path, "/")
		local = parts[len(parts)-1]
	}
	return ImportInfo{LocalName: local, Source: path}
}

func parseJSImports(source []byte) Result[ImportInfo] {
	var res Result[ImportInfo]
	text := string(source)

	for _, m := range jsImportDefault.FindAllStringSubmatch(text, -1) {
		res.addValue(ImportInfo{LocalName: m[1], Source: m[2], IsDefault: true})
	}
	for _, m := range jsImportStar.FindAllStringSubmatch(text, -1) {
		res.addValue(ImportInfo{LocalName: m[1], Source: m[2]})
	}
	for _, m := range jsImportNamed.FindAllStringSubmatch(text, -1) {
		source := m[2]
		for _, spec := range strings.Split(m[1], ",") {
			spec = strings.TrimSpace(spec)
			if spec == "" {
				continue
			}
			local := spec
			if idx := strings.Index(spec, " as "); idx >= 0 {
				local = strings.TrimSpace(spec[idx+4:])
			}
			res.addValue(ImportInfo{LocalName: local, Source: source})
		}
	}

	recognized := len(res.Values)
	total := len(jsMalformedImport.FindAllString(text, -1))
	if total > recognized {
		res.addError(fmt.Errorf("metaextract: %d import statement(s) could not be parsed", total-recognized))
	}
	return res
}

func parseJSExports(source []byte) Result[ExportInfo] {
	var res Result[ExportInfo]
	text := string(source)

	for _, m := range jsExportDefault.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "" {
			name = "default"
		}
		res.addValue(ExportInfo{Name: name, IsDefault: true})
	}
	for _, m := range jsExportDecl.FindAllStringSubmatch(text, -1) {
		res.addValue(ExportInfo{Name: m[1]})
	}
	for _, m := range jsExportNamed.FindAllStringSubmatch(text, -1) {
		for _, spec := range strings.Split(m[1], ",") {
			spec = strings.TrimSpace(spec)
			if spec == "" {
				continue
			}
			name := spec
			if idx := strings.Index(spec, " as "); idx >= 0 {
				name = strings.TrimSpace(spec[idx+4:])
			}
			res.addValue(ExportInfo{Name: name})
		}
	}
	return res
}

func parsePythonImports(source []byte) Result[ImportInfo] {
	var res Result[ImportInfo]
	text := string(source)

	for _, m := range pyImportPlain.FindAllStringSubmatch(text, -1) {
		local := m[2]
		if local == "" {
			parts := strings.Split(m[1], ".")
			local = parts[len(parts)-1]
		}
		res.addValue(ImportInfo{LocalName: local, Source: m[1]})
	}
	for _, m := range pyImportFrom.FindAllStringSubmatch(text, -1) {
		srcModule := m[1]
		for _, spec := range strings.Split(m[2], ",") {
			spec = strings.TrimSpace(strings.Trim(spec, "()"))
			if spec == "" {
				continue
			}
			local := spec
			if idx := strings.Index(spec, " as "); idx >= 0 {
				local = strings.TrimSpace(spec[idx+4:])
			}
			res.addValue(ImportInfo{LocalName: local, Source: srcModule})
		}
	}
	return res
}

func parsePythonExports(source []byte) Result[ExportInfo] {
	var res Result[ExportInfo]
	m := pyAll.FindStringSubmatch(string(source))
	if m == nil {
		return res
	}
	for _, item := range strings.Split(m[1], ",") {
		item = strings.TrimSpace(item)
		item = strings.Trim(item, `"'`)
		if item == "" {
			continue
		}
		res.addValue(ExportInfo{Name: item})
	}
	return res
}

// NodeImports returns the subset of import local names that syntactically
// appear inside n's source text.
func NodeImports(imports []ImportInfo, nodeText string) []string {
	var out []string
	for _, imp := range imports {
		if imp.LocalName != "" && strings.Contains(nodeText, imp.LocalName) {
			out = append(out, imp.LocalName)
		}
	}
	return out
}

// NodeExports returns the node's own name if the file exports it, or
// "default" if this is the file's default export.
func NodeExports(exports []ExportInfo, name string) []string {
	var out []string
	for _, exp := range exports {
		if exp.IsDefault {
			if exp.Name == name || exp.Name == "default" {
				out = append(out, "default")
			}
			continue
		}
		if exp.Name == name {
			out = append(out, name)
		}
	}
	return out
}
