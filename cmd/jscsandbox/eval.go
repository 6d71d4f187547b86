package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/jscsandbox/internal/config"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

func newEvalCmd(flags *globalFlags) *cobra.Command {
	var (
		file    string
		globals string
		out     outputFlags
	)

	cmd := &cobra.Command{
		Use:   "eval [code]",
		Short: "Evaluate one script and print its completion value",
		Long: `Evaluate a script in a fresh context. The code comes from the argument,
from --file, or from stdin when neither is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			rt, c, err := flags.openContext(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Dispose()

			if globals != "" {
				if err := seedGlobals(c, globals, cmd.InOrStdin()); err != nil {
					return err
				}
			}

			v, err := c.EvalContext(cmd.Context(), code)
			if err != nil {
				return err
			}
			return writeValue(cmd.OutOrStdout(), v, out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the script from a file ('-' for stdin)")
	cmd.Flags().StringVarP(&globals, "globals", "g", "", "Seed globals from a YAML, TOML or JSON file ('-' for stdin)")
	out.register(cmd.Flags())
	return cmd
}

func readSource(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("pass code or --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "" && file != "-":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read script from stdin: %w", err)
	}
	return string(data), nil
}

// seedGlobals installs every top-level key of the globals file into c.
func seedGlobals(c *sandbox.Context, path string, stdin io.Reader) error {
	var (
		values map[string]any
		err    error
	)
	if path == "-" {
		data, rerr := io.ReadAll(stdin)
		if rerr != nil {
			return fmt.Errorf("failed to read globals from stdin: %w", rerr)
		}
		values, err = config.ParseGlobals("", data)
	} else {
		values, err = config.LoadGlobals(path)
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, err := sandbox.FromGo(values[name])
		if err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
		if err := c.SetGlobal(name, v); err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
	}
	return nil
}
