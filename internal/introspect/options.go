package introspect

import (
	"regexp"
	"strings"

	"github.com/ancients-collective/cliprobe/internal/types"
)

var (
	angleHolder  = regexp.MustCompile(`<([^>]+)>`)
	braceHolder  = regexp.MustCompile(`\{([^}]+)\}`)
	equalsHolder = regexp.MustCompile(`=\[?([A-Za-z][A-Za-z0-9_|,\-]*)\]?`)
	// upperHolder matches a trailing ALL-CAPS token such as "--output FILE".
	upperHolder = regexp.MustCompile(`(?:^|[\s,])([A-Z][A-Z0-9_\-]*)\s*$`)
	// typeWordHolder matches pflag-style type words such as "--port int".
	typeWordHolder = regexp.MustCompile(`(?:^|[\s,])([a-z][A-Za-z0-9]*)\s*$`)

	possibleValues  = regexp.MustCompile(`(?i)\[(?:possible|allowed) values:\s*([^\]]+)\]`)
	requiredPattern = regexp.MustCompile(`(?i)[(\[]required[)\]]`)
)

var numericHolders = map[string]bool{
	"N": true, "NUM": true, "NUMBER": true, "COUNT": true, "INT": true, "INTEGER": true,
	"SECONDS": true, "SECS": true, "MS": true, "PORT": true, "SIZE": true, "LIMIT": true,
	"DEPTH": true, "JOBS": true, "TIMEOUT": true,
	"UINT": true, "INT32": true, "INT64": true, "UINT32": true, "UINT64": true,
	"FLOAT": true, "FLOAT32": true, "FLOAT64": true,
}

var typeWords = map[string]bool{
	"string": true, "strings": true, "stringArray": true, "stringSlice": true,
	"int": true, "int32": true, "int64": true, "uint": true, "uint32": true, "uint64": true,
	"float": true, "float32": true, "float64": true, "duration": true, "ints": true,
}

var pathHolders = map[string]bool{
	"PATH": true, "FILE": true, "DIR": true, "DIRECTORY": true, "FILENAME": true,
	"FOLDER": true, "FILES": true, "PATHS": true,
}

// placeholderOf returns the value placeholder in a flags column, or "".
// The flag spellings themselves are removed first so "--no-color" does not
// produce a placeholder.
func placeholderOf(flagsPart string) string {
	if m := angleHolder.FindStringSubmatch(flagsPart); m != nil {
		return "<" + m[1] + ">"
	}
	if m := braceHolder.FindStringSubmatch(flagsPart); m != nil {
		return "{" + m[1] + "}"
	}
	if m := equalsHolder.FindStringSubmatch(flagsPart); m != nil {
		return m[1]
	}
	stripped := longFlagPattern.ReplaceAllString(flagsPart, "")
	stripped = shortFlagPattern.ReplaceAllString(stripped, " ")
	if m := upperHolder.FindStringSubmatch(stripped); m != nil {
		return m[1]
	}
	if m := typeWordHolder.FindStringSubmatch(stripped); m != nil && typeWords[m[1]] {
		return m[1]
	}
	return ""
}

// inferValueKind maps a placeholder (and enum hints in the description) to a ValueKind.
func inferValueKind(placeholder, desc string) (types.ValueKind, []string) {
	if m := possibleValues.FindStringSubmatch(desc); m != nil {
		if vals := splitVariants(m[1], ","); len(vals) > 0 {
			return types.KindEnum, vals
		}
	}
	if placeholder == "" {
		return types.KindFlag, nil
	}

	inner := strings.Trim(placeholder, "<>{}[]")
	if strings.Contains(inner, "|") {
		if vals := splitVariants(inner, "|"); len(vals) > 0 {
			return types.KindEnum, vals
		}
	}
	if strings.HasPrefix(placeholder, "{") && strings.Contains(inner, ",") {
		if vals := splitVariants(inner, ","); len(vals) > 0 {
			return types.KindEnum, vals
		}
	}

	upper := strings.ToUpper(strings.TrimSuffix(inner, "..."))
	switch {
	case numericHolders[upper] || strings.HasSuffix(upper, "NUM"):
		return types.KindNumeric, nil
	case pathHolders[upper] || strings.HasSuffix(upper, "_PATH") || strings.HasSuffix(upper, "_FILE") || strings.HasSuffix(upper, "_DIR"):
		return types.KindPath, nil
	default:
		return types.KindString, nil
	}
}

func splitVariants(s, sep string) []string {
	var out []string
	for _, v := range strings.Split(s, sep) {
		v = strings.Trim(strings.TrimSpace(v), `"'`)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// requiredArgs extracts mandatory <ARG> names from a usage line. Tokens in
// square brackets are optional and skipped; so are command placeholders.
var (
	optionalSegment = regexp.MustCompile(`\[[^\[\]]*\]`)
	argToken        = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9_\-]*)>`)
)

func requiredArgs(usage string) []string {
	stripped := usage
	for optionalSegment.MatchString(stripped) {
		stripped = optionalSegment.ReplaceAllString(stripped, "")
	}
	var args []string
	seen := make(map[string]bool)
	for _, m := range argToken.FindAllStringSubmatch(stripped, -1) {
		name := strings.ToLower(m[1])
		switch name {
		case "command", "subcommand", "cmd", "options", "option", "flags":
			continue
		}
		if !seen[name] {
			seen[name] = true
			args = append(args, name)
		}
	}
	return args
}
