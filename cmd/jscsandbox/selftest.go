package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/jscsandbox"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

const selftestTimeout = 5 * time.Second

type selfCase struct {
	name string
	run  func(ctx context.Context, c *sandbox.Context) (sandbox.Value, error)
	want sandbox.Value
}

func evalCase(name, code string, want sandbox.Value) selfCase {
	return selfCase{
		name: name,
		run: func(ctx context.Context, c *sandbox.Context) (sandbox.Value, error) {
			return c.EvalContext(ctx, code)
		},
		want: want,
	}
}

func selfCases() []selfCase {
	return []selfCase{
		evalCase("Arithmetic", "1 + 2 * 3", sandbox.Number(7)),
		evalCase("String", `"hello"`, sandbox.String("hello")),
		evalCase("Array", "[1,2,3].length", sandbox.Number(3)),
		{
			name: "Object",
			run: func(ctx context.Context, c *sandbox.Context) (sandbox.Value, error) {
				v, err := c.EvalContext(ctx, "({x:1})")
				return v.Get("x"), err
			},
			want: sandbox.Number(1),
		},
		evalCase("Function", "(function(a,b){return a+b})(2,3)", sandbox.Number(5)),
		{
			name: "setGlobal",
			run: func(ctx context.Context, c *sandbox.Context) (sandbox.Value, error) {
				if err := c.SetGlobal("x", sandbox.Number(42)); err != nil {
					return sandbox.Value{}, err
				}
				return c.GetGlobal("x")
			},
			want: sandbox.Number(42),
		},
		evalCase("Loop", "for(var i=0,s=0;i<10;i++)s+=i;s", sandbox.Number(45)),
		evalCase("JSON", `JSON.parse("{\"a\":1}").a`, sandbox.Number(1)),
		evalCase("Math", "Math.max(1,5,3)", sandbox.Number(5)),
		evalCase("Closure", "(function(){var x=1;return function(){return++x}})()()", sandbox.Number(2)),
		{
			name: "Isolation",
			run: func(ctx context.Context, c *sandbox.Context) (sandbox.Value, error) {
				if err := c.SetGlobal("leak", sandbox.Bool(true)); err != nil {
					return sandbox.Value{}, err
				}
				other, err := c.Runtime().CreateContext()
				if err != nil {
					return sandbox.Value{}, err
				}
				defer other.Dispose()
				return other.EvalContext(ctx, "typeof leak")
			},
			want: sandbox.String("undefined"),
		},
		{
			name: "Timeout",
			run: func(ctx context.Context, _ *sandbox.Context) (sandbox.Value, error) {
				rt, err := jscsandbox.CreateRuntime(&sandbox.Options{Timeout: 100 * time.Millisecond})
				if err != nil {
					return sandbox.Value{}, err
				}
				defer rt.Dispose()
				c, err := rt.CreateContext()
				if err != nil {
					return sandbox.Value{}, err
				}
				_, err = c.EvalContext(ctx, "while (true) {}")
				return sandbox.Bool(errors.Is(err, sandbox.ErrTimeout)), nil
			},
			want: sandbox.Bool(true),
		},
	}
}

func newSelftestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run the built-in conformance checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := install(ctx); err != nil {
				return err
			}

			opts := flags.options()
			if opts == nil {
				opts = &sandbox.Options{Timeout: selftestTimeout}
			}
			rt, err := jscsandbox.CreateRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Dispose()
			c, err := rt.CreateContext()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			cases := selfCases()
			passed := 0
			for _, tc := range cases {
				got, err := tc.run(ctx, c)
				switch {
				case err != nil:
					fmt.Fprintf(w, "%s %s - %v\n", failStyle.Render("FAIL"), tc.name, err)
				case !sandbox.Equal(tc.want, got):
					fmt.Fprintf(w, "%s %s - expected %s, got %s\n", failStyle.Render("FAIL"), tc.name, tc.want, got)
				default:
					passed++
					fmt.Fprintf(w, "%s %s\n", passStyle.Render("PASS"), tc.name)
				}
			}

			fmt.Fprintf(w, "%d/%d tests passed\n", passed, len(cases))
			if passed != len(cases) {
				return fmt.Errorf("%d selftest cases failed", len(cases)-passed)
			}
			return nil
		},
	}
}
