package sandbox

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ParamsCodec serializes a job's parameter mapping into a companion source
// file the executed script can import. The default is Python literal
// syntax; a different codec lets the same driver feed scripts in another
// language.
type ParamsCodec interface {
	// Filename is the params file name inside the task directory.
	Filename() string
	// Header is prepended to the script so it picks up the params file.
	Header() string
	// Encode renders the parameter mapping, one assignment per line.
	Encode(params map[string]any) ([]byte, error)
}

// PythonParams encodes parameters as Python literal assignments importable
// with "from params import *".
type PythonParams struct{}

// Filename returns the params file name.
func (PythonParams) Filename() string { return ParamsFile }

// Header returns the import line prepended to the job script.
func (PythonParams) Header() string { return "from params import *\n\n" }

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Encode renders one "name = literal" line per parameter, sorted by name so
// output is deterministic.
func (PythonParams) Encode(params map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(params))
	for key := range params {
		if !identRe.MatchString(key) {
			return nil, fmt.Errorf("parameter name %q is not a valid identifier", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		literal, err := pyLiteral(params[key])
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		b.WriteString(key)
		b.WriteString(" = ")
		b.WriteString(literal)
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

func pyLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "None", nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	case string:
		return pyQuote(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			literal, err := pyLiteral(item)
			if err != nil {
				return "", err
			}
			items[i] = literal
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, key := range keys {
			literal, err := pyLiteral(v[key])
			if err != nil {
				return "", err
			}
			items[i] = pyQuote(key) + ": " + literal
		}
		return "{" + strings.Join(items, ", ") + "}", nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", value)
	}
}

func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
