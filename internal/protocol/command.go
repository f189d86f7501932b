package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// rawDataKey marks the one argument whose value may arrive as pre-built Lua
// source. Callers assembling deep modification tables by hand send the
// literal text; it is inserted verbatim, never re-parsed.
const rawDataKey = "修改数据"

// BuildLogin renders the login body. Login is the only command without the
// ["文本"] wrapper.
func BuildLogin(account, password string) string {
	return fmt.Sprintf(`do local ret={["密码"]="%s",["账号"]="%s"} return ret end`, password, account)
}

// BuildCommand serializes a command name and argument map into the Lua table
// literal the server evaluates. Map keys render in sorted order so the wire
// bytes are deterministic; the server evaluates the literal, so pair order
// carries no meaning.
func BuildCommand(name string, args map[string]interface{}) (string, error) {
	var sb strings.Builder
	sb.WriteString(`do local ret={["文本"]="`)
	sb.WriteString(name)
	sb.WriteString(`"`)

	for _, k := range sortedKeys(args) {
		v := args[k]
		sb.WriteString(`,["`)
		sb.WriteString(k)
		sb.WriteString(`"]`)

		if k == rawDataKey {
			if s, ok := v.(string); ok {
				trimmed := strings.TrimSpace(s)
				if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
					sb.WriteString("=")
					sb.WriteString(s)
					continue
				}
			}
		}

		rendered, err := renderValue(v)
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", k, err)
		}
		sb.WriteString("=")
		sb.WriteString(rendered)
	}

	sb.WriteString("} return ret end")
	return sb.String(), nil
}

func renderValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return `"` + val + `"`, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	case map[string]interface{}:
		body, err := renderTable(val)
		if err != nil {
			return "", err
		}
		return "{" + body + "}", nil
	case []interface{}:
		// Lua has no array literal distinct from tables; lists become tables
		// keyed 1..n.
		var parts []string
		for i, item := range val {
			rendered, err := renderValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("[%d]=%s", i+1, rendered))
		}
		return "{" + strings.Join(parts, ",") + "}", nil
	case nil:
		return "", fmt.Errorf("nil value")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func renderTable(m map[string]interface{}) (string, error) {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		rendered, err := renderValue(m[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf(`["%s"]=%s`, k, rendered))
	}
	return strings.Join(parts, ","), nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
