package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/morezero/ableton-bridge/pkg/protocol"
)

// Formatter defines the interface for output formatting.
type Formatter interface {
	Format(data any) string
}

// Formats lists the names NewFormatter accepts.
var Formats = []string{"json", "yaml", "table"}

// NewFormatter returns a Formatter for the given format string.
// Supported formats: "json" (default), "yaml", "table".
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return &YAMLFormatter{}
	case "table":
		return &TableFormatter{}
	default:
		return &JSONFormatter{}
	}
}

// Response renders a command response. JSON and YAML print the whole envelope;
// the table format prints the result, or a single error line.
func Response(f Formatter, resp *protocol.Response) string {
	if _, ok := f.(*TableFormatter); !ok {
		return f.Format(resp)
	}
	if err := resp.Err(); err != nil {
		return fmt.Sprintf("Error (%s): %s\n", protocol.KindOf(err), protocol.MessageOf(err))
	}
	return f.Format(resp.Result)
}

// TableFormatter formats data as aligned text tables using tabwriter.
// Objects print one key per line; arrays of objects print one row per
// element with a column per key.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			return "No results.\n"
		}
		elem := v.Index(0)
		for elem.Kind() == reflect.Ptr || elem.Kind() == reflect.Interface {
			elem = elem.Elem()
		}
		switch elem.Kind() {
		case reflect.Struct:
			structRows(w, v)
		case reflect.Map:
			mapRows(w, v)
		default:
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(w, cell(v.Index(i).Interface()))
			}
		}
	case reflect.Map:
		m, ok := data.(map[string]interface{})
		if !ok {
			fmt.Fprintln(w, cell(data))
			break
		}
		for _, k := range sortedKeys(m) {
			fmt.Fprintf(w, "%s:\t%s\n", k, cell(m[k]))
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			fmt.Fprintf(w, "%s:\t%v\n", t.Field(i).Name, v.Field(i).Interface())
		}
	case reflect.Invalid:
		fmt.Fprintln(w, "null")
	default:
		fmt.Fprintln(w, data)
	}

	w.Flush()
	return buf.String()
}

func structRows(w *tabwriter.Writer, v reflect.Value) {
	first := v.Index(0)
	if first.Kind() == reflect.Ptr {
		first = first.Elem()
	}
	t := first.Type()
	headers := make([]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		headers[i] = strings.ToUpper(t.Field(i).Name)
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i := 0; i < v.Len(); i++ {
		row := v.Index(i)
		if row.Kind() == reflect.Ptr {
			row = row.Elem()
		}
		vals := make([]string, row.NumField())
		for j := 0; j < row.NumField(); j++ {
			vals[j] = fmt.Sprintf("%v", row.Field(j).Interface())
		}
		fmt.Fprintln(w, strings.Join(vals, "\t"))
	}
}

func mapRows(w *tabwriter.Writer, v reflect.Value) {
	rows := make([]map[string]interface{}, 0, v.Len())
	seen := map[string]bool{}
	var columns []string
	for i := 0; i < v.Len(); i++ {
		m, _ := v.Index(i).Interface().(map[string]interface{})
		rows = append(rows, m)
		for _, k := range sortedKeys(m) {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, m := range rows {
		vals := make([]string, len(columns))
		for i, c := range columns {
			vals[i] = cell(m[c])
		}
		fmt.Fprintln(w, strings.Join(vals, "\t"))
	}
}

// cell renders nested values as compact JSON so they stay on one line.
func cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

// YAMLFormatter formats data as YAML. Data goes through JSON first so custom
// marshalers and json tags apply and numbers print unquoted.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	b, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
