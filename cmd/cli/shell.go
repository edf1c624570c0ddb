package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"ohnitiel/upsql/dbapi"
	"ohnitiel/upsql/internal/locale"
)

const historyFile = ".upsql_history"

// cursorOpener opens a cursor with the given timeout ("" keeps the
// configured one). The returned func releases the connection.
type cursorOpener func(timeout string) (*dbapi.Cursor, func(), error)

// openCursor connects to profile directly, outside any manager, so the shell
// can reconnect when the timeout changes.
func (a *app) openCursor(profile string) cursorOpener {
	connect := a.connector()
	return func(timeout string) (*dbapi.Cursor, func(), error) {
		p := *a.cfg.GetProfile(profile)
		if timeout != "" {
			p.Timeout = timeout
		}

		conn, err := connect(&p)
		if err != nil {
			return nil, nil, fmt.Errorf(locale.L.Errors.ConnectionFailed, profile, err)
		}
		cur, err := conn.Cursor()
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if err := cur.SetArraySize(printBatchSize); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return cur, func() {
			cur.Close()
			conn.Close()
		}, nil
	}
}

type shell struct {
	profile string
	out     io.Writer
	open    cursorOpener

	cur     *dbapi.Cursor
	release func()
}

func (s *shell) run(ctx context.Context) error {
	if err := s.reconnect(""); err != nil {
		return err
	}
	defer func() { s.release() }()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := shellHistoryPath()
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(historyPath)
		if err != nil {
			slog.Debug("Unable to save shell history", "path", historyPath, "error", err)
			return
		}
		defer f.Close()
		line.WriteHistory(f)
	}()

	fmt.Fprintf(s.out, locale.L.Shell.Welcome+"\n", s.profile)

	var buf statementBuffer
	for {
		prompt := s.profile + "> "
		if !buf.empty() {
			prompt = strings.Repeat(" ", len(s.profile)) + "> "
		}

		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			buf.reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if buf.empty() {
			if cmd, arg, ok := parseShellCommand(input); ok {
				line.AppendHistory(input)
				if done := s.command(cmd, arg); done {
					break
				}
				continue
			}
		}

		stmt, complete := buf.add(input)
		if !complete {
			continue
		}
		line.AppendHistory(stmt)

		if err := s.execute(ctx, stmt); err != nil {
			fmt.Fprintln(s.out, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Fprintln(s.out, locale.L.Shell.Goodbye)
	return nil
}

// command runs a dot command and reports whether the shell should exit.
func (s *shell) command(cmd, arg string) bool {
	switch cmd {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(s.out, locale.L.Shell.Help)
	case "timeout":
		if _, err := dbapi.ParseTimeout(arg); err != nil {
			fmt.Fprintln(s.out, err)
			return false
		}
		if err := s.reconnect(arg); err != nil {
			fmt.Fprintln(s.out, err)
			return false
		}
		fmt.Fprintf(s.out, locale.L.Shell.TimeoutSet+"\n", arg)
	default:
		fmt.Fprintln(s.out, locale.L.Shell.Help)
	}
	return false
}

func (s *shell) reconnect(timeout string) error {
	cur, release, err := s.open(timeout)
	if err != nil {
		return err
	}
	if s.release != nil {
		s.release()
	}
	s.cur, s.release = cur, release
	return nil
}

func (s *shell) execute(ctx context.Context, stmt string) error {
	if _, err := s.cur.Execute(ctx, stmt); err != nil {
		return err
	}
	return printRows(ctx, s.out, s.cur, "table")
}

// parseShellCommand recognises ".name [argument]" lines.
func parseShellCommand(input string) (cmd string, arg string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, ".") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(input[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), cmd != ""
}

// statementBuffer joins input lines until one ends with ';'.
type statementBuffer struct {
	lines []string
}

func (b *statementBuffer) empty() bool {
	return len(b.lines) == 0
}

func (b *statementBuffer) reset() {
	b.lines = b.lines[:0]
}

// add appends line and returns the whole statement, without the trailing
// ';', once it is complete. Blank lines on an empty buffer are ignored.
func (b *statementBuffer) add(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" && b.empty() {
		return "", false
	}
	b.lines = append(b.lines, line)

	if !strings.HasSuffix(trimmed, ";") {
		return "", false
	}

	stmt := strings.TrimSpace(strings.Join(b.lines, "\n"))
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	b.reset()
	if stmt == "" {
		return "", false
	}
	return stmt, true
}

func shellHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}
