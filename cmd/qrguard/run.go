package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"qrguard/internal/app"
	"qrguard/internal/config"
)

type env struct {
	ctx    context.Context
	app    *app.Application
	args   []string
	stdin  *bufio.Reader
	stderr io.Writer
}

// arg returns the i'th positional argument or "".
func (e *env) arg(i int) string {
	if i < len(e.args) {
		return e.args[i]
	}
	return ""
}

// secret returns the i'th argument, or reads one line from stdin.
func (e *env) secret(i int, prompt string) string {
	if v := e.arg(i); v != "" {
		return v
	}
	fmt.Fprint(e.stderr, prompt)
	line, _ := e.stdin.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

func run(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	asJSON := false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "--json", "-json":
			asJSON = true
		case "-h", "--help", "-help":
			usage(stdout)
			return 0
		default:
			fmt.Fprintf(stderr, "Unknown flag: %s\n", args[0])
			usage(stderr)
			return 2
		}
		args = args[1:]
	}
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		usage(stderr)
		return 2
	}
	if len(args)-1 < cmd.minArgs {
		fmt.Fprintf(stderr, "Usage: qrguard %s %s\n", args[0], cmd.usage)
		return 2
	}

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	e := &env{ctx: ctx, app: a, args: args[1:], stdin: bufio.NewReader(stdin), stderr: stderr}
	result, err := cmd.run(e)
	if err != nil {
		a.Notify(err)
		result = nil
	}
	for _, n := range a.Notices.Active() {
		fmt.Fprintf(stderr, "[%s] %s\n", n.Level, n.Message)
	}
	if perr := render(stdout, result, asJSON); perr != nil {
		fmt.Fprintf(stderr, "Failed to print result: %v\n", perr)
		return 1
	}
	if err != nil {
		return 1
	}
	return 0
}

// render prints v as YAML, or indented JSON. A nil v prints an empty document.
func render(w io.Writer, v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if v == nil {
			v = struct{}{}
		}
		return enc.Encode(v)
	}
	if v == nil {
		_, err := io.WriteString(w, "{}\n")
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
