// Command polylang compiles contract source into VM assembly.
//
// Usage:
//
//	polylang compile --contract Account --function transfer < account.poly
//	polylang inspect < account.poly
//
// Source is read from stdin; the assembly goes to stdout and the ABI,
// when requested, to stderr or a file.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/repr"
	"github.com/urfave/cli/v2"

	polylang "github.com/polybase/polylang-go"
	"github.com/polybase/polylang-go/compiler"
)

func main() {
	app := &cli.App{
		Name:  "polylang",
		Usage: "compile contract source into VM assembly",
		Commands: []*cli.Command{
			{
				Name:  "compile",
				Usage: "compile a function of a contract read from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "contract", Usage: "contract name (empty for a free function)"},
					&cli.StringFlag{Name: "function", Value: "main", Usage: "function to compile"},
					&cli.StringSliceFlag{Name: "arg", Usage: "compile-time u32 argument (repeatable)"},
					&cli.StringSliceFlag{Name: "struct-arg", Usage: "compile-time record argument k=v,k=v (repeatable)"},
					&cli.StringFlag{Name: "abi", Usage: "write the ABI JSON to this file ('-' for stderr)"},
				},
				Action: cmdCompile,
			},
			{
				Name:  "inspect",
				Usage: "parse stdin and dump the syntax tree",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "dump as JSON instead of Go syntax"},
				},
				Action: cmdInspect,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func readSource() (string, error) {
	src, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(src), nil
}

func parseCompileTimeArgs(c *cli.Context) ([]compiler.CompileTimeArg, error) {
	var args []compiler.CompileTimeArg
	for _, raw := range c.StringSlice("arg") {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid arg %q: %w", raw, err)
		}
		v := uint32(n)
		args = append(args, compiler.CompileTimeArg{U32: &v})
	}
	for _, raw := range c.StringSlice("struct-arg") {
		record := map[string]uint32{}
		for _, pair := range strings.Split(raw, ",") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid struct-arg entry %q", pair)
			}
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid struct-arg value %q: %w", value, err)
			}
			record[key] = uint32(n)
		}
		args = append(args, compiler.CompileTimeArg{Record: record})
	}
	return args, nil
}

func cmdCompile(c *cli.Context) error {
	source, err := readSource()
	if err != nil {
		return err
	}
	args, err := parseCompileTimeArgs(c)
	if err != nil {
		return err
	}

	assembly, abi, err := polylang.Compile(source, c.String("contract"), c.String("function"), args...)
	if err != nil {
		return err
	}
	fmt.Print(assembly)

	if target := c.String("abi"); target != "" {
		data, err := json.MarshalIndent(abi, "", "  ")
		if err != nil {
			return err
		}
		if target == "-" {
			fmt.Fprintln(os.Stderr, string(data))
		} else if err := os.WriteFile(target, append(data, '\n'), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func cmdInspect(c *cli.Context) error {
	source, err := readSource()
	if err != nil {
		return err
	}
	prog, err := polylang.Parse(source)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		data, err := json.MarshalIndent(prog, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	repr.Println(prog)
	return nil
}
