package main

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/itchyny/gojq"
	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

var (
	passStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type outputFlags struct {
	json  bool
	query string
}

func (o *outputFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&o.json, "json", false, "Print results as JSON")
	fs.StringVarP(&o.query, "query", "q", "", "jq filter applied to the JSON form of the result")
}

// writeValue prints v in the selected form. Queries may emit several lines.
func writeValue(w io.Writer, v sandbox.Value, o outputFlags) error {
	if o.query == "" && !o.json {
		_, err := fmt.Fprintln(w, v.String())
		return err
	}

	doc, err := jsonDocument(v)
	if err != nil {
		return err
	}
	if o.query == "" {
		return writeJSON(w, doc)
	}

	query, err := gojq.Parse(o.query)
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	iter := query.Run(doc)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := out.(error); ok {
			return fmt.Errorf("query failed: %w", err)
		}
		if err := writeJSON(w, out); err != nil {
			return err
		}
	}
}

// jsonDocument converts v into plain decoded JSON: maps, slices, float64.
func jsonDocument(v sandbox.Value) (any, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var doc any
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return doc, nil
}

func writeJSON(w io.Writer, doc any) error {
	out, err := sonic.ConfigStd.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
