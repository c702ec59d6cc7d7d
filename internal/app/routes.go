package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"
)

// Route is one registered method and path.
type Route struct {
	Method  string `json:"method" yaml:"method"`
	Path    string `json:"path" yaml:"path"`
	Handler string `json:"handler" yaml:"handler"`
}

// Format selects how WriteRoutes renders the route list.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat converts s to a Format; the empty string means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", s)
	}
}

// WriteRoutes renders routes to w.
func WriteRoutes(w io.Writer, routes []Route, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(routes)
	case FormatYAML:
		b, err := yaml.MarshalWithOptions(routes, yaml.Indent(2), yaml.IndentSequence(false))
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		table := tablewriter.NewTable(w)
		table.Header("Method", "Path", "Handler")
		for _, r := range routes {
			if err := table.Append(r.Method, r.Path, r.Handler); err != nil {
				return err
			}
		}
		return table.Render()
	}
}
