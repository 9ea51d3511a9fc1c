package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/hotpatch/console"
)

const sessionHelp = `statements are evaluated against the module, e.g. self.counter + 1
  :call <fn> [args]    call an internal function
  :deploy <fn> [args]  call an external function through the dispatcher
  :state               show storage
  :set <name> <value>  overwrite a storage variable
  :quit                leave`

// session interprets console lines. It is shared by the interactive and
// line-mode consoles.
type session struct {
	c    *console.Console
	file string
}

var errQuit = errors.New("quit")

func (s *session) handle(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	if !strings.HasPrefix(line, ":") {
		res, err := s.c.Eval(ctx, unescape(line))
		if err != nil {
			return "", err
		}
		return formatResult(res), nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return "", errQuit
	case ":help", ":h":
		return sessionHelp, nil
	case ":state":
		return formatState(s.c.State()), nil
	case ":set":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: :set <name> <value>")
		}
		v, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return "", err
		}
		if err := s.c.SetState(fields[1], v); err != nil {
			return "", err
		}
		return formatState(s.c.State()), nil
	case ":call", ":deploy":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: %s <fn> [args]", fields[0])
		}
		args, err := parseArgs(fields[2:])
		if err != nil {
			return "", err
		}
		var res *console.Result
		if fields[0] == ":call" {
			res, err = s.c.Call(ctx, fields[1], args...)
		} else {
			res, err = s.c.Deploy(ctx, fields[1], args...)
		}
		if err != nil {
			return "", err
		}
		return formatResult(res), nil
	}
	return "", fmt.Errorf("unknown command %s, try :help", fields[0])
}

// unescape lets a single input line carry a multi-line body.
func unescape(line string) string {
	return strings.ReplaceAll(line, `\n`, "\n")
}

func formatResult(res *console.Result) string {
	var b strings.Builder
	if res.Type == "" {
		b.WriteString("ok")
	} else {
		fmt.Fprintf(&b, "%d: %s", res.Value, res.Type)
	}
	if len(res.Compiled) > 0 {
		fmt.Fprintf(&b, "  (compiled %s)", strings.Join(res.Compiled, ", "))
	}
	return b.String()
}

func formatState(state map[string]int64) string {
	if len(state) == 0 {
		return "(no storage)"
	}
	lines := make([]string, 0, len(state))
	for _, name := range slices.Sorted(maps.Keys(state)) {
		lines = append(lines, fmt.Sprintf("%s = %d", name, state[name]))
	}
	return strings.Join(lines, "\n")
}
