package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"ohnitiel/upsql/internal/config"
	"ohnitiel/upsql/internal/db"
	"ohnitiel/upsql/internal/export"
	"ohnitiel/upsql/internal/locale"
	"ohnitiel/upsql/internal/metrics"

	"github.com/urfave/cli-altsrc/v3"
	toml "github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var printFormats = []string{"table", "json"}

const printBatchSize = 200

func validateOutputFormat(format string) error {
	if !slices.Contains(export.Formats, strings.ToLower(format)) {
		return fmt.Errorf(locale.L.Errors.OutputFormatNotImpl, format)
	}
	return nil
}

func validatePrintFormat(format string) error {
	if !slices.Contains(printFormats, strings.ToLower(format)) {
		return fmt.Errorf(locale.L.Errors.OutputFormatNotImpl, format)
	}
	return nil
}

// app holds what every command shares once the root flags are parsed.
type app struct {
	cfg        *config.Config
	configPath string
	metrics    *metrics.Metrics
	out        io.Writer

	profile     string
	profiles    []string
	timeout     string
	metricsFile string
}

// connector opens profiles with the loaded configuration and records engine
// metrics per profile.
func (a *app) connector() db.ConnectFunc {
	return db.NewConnector(a.cfg, a.metrics.Observer)
}

// loadManager opens the selected profiles.
func (a *app) loadManager(names []string) (*db.Manager, error) {
	dm := db.NewManager()
	if err := dm.LoadConnections(a.cfg, names, a.connector()); err != nil {
		return nil, fmt.Errorf("%s: %w", locale.L.Errors.NoProfiles, err)
	}
	return dm, nil
}

// singleProfile resolves the profile used by execute and shell.
func (a *app) singleProfile() (string, error) {
	name := a.profile
	if name == "" {
		enabled, err := a.cfg.EnabledProfiles(nil)
		if err != nil {
			return "", err
		}
		if len(enabled) == 0 {
			return "", fmt.Errorf("%s", locale.L.Errors.NoProfiles)
		}
		name = enabled[0]
	}

	p := a.cfg.GetProfile(name)
	if p == nil || p.Disabled {
		return "", fmt.Errorf(locale.L.Errors.InvalidProfile, name)
	}
	return name, nil
}

// before reloads the configuration when --config points somewhere else
// than the file loaded at startup, then applies the flag overrides.
func (a *app) before(ctx context.Context, c *cli.Command) (context.Context, error) {
	if path := c.String("config"); path != "" && path != a.configPath {
		cfg, err := config.Load(path)
		if err != nil {
			return ctx, err
		}
		if _, err := locale.Use(cfg.Locale); err != nil {
			return ctx, err
		}
		a.cfg, a.configPath = cfg, path
	}

	if a.timeout != "" {
		a.cfg.Timeout = a.timeout
		for _, p := range a.cfg.Profiles {
			p.Timeout = ""
		}
	}
	if a.metricsFile == "" {
		a.metricsFile = a.cfg.Metrics.File
	}

	return ctx, nil
}

func (a *app) after(ctx context.Context, c *cli.Command) error {
	if a.metricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteFile(a.metricsFile); err != nil {
		return fmt.Errorf("unable to write metrics to %s: %w", a.metricsFile, err)
	}
	slog.DebugContext(ctx, locale.L.Logs.MetricsWritten, "path", a.metricsFile)
	return nil
}

// Upsql builds the command tree over cfg, loaded from configPath, and runs
// it with args.
func Upsql(ctx context.Context, cfg *config.Config, configPath string, args []string) error {
	l, err := locale.Use(cfg.Locale)
	if err != nil {
		return err
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		metrics:    metrics.New(),
		out:        os.Stdout,
	}

	var configFile string

	cmd := &cli.Command{
		Name:        "upsql",
		Usage:       l.CLI.Description,
		Description: l.CLI.Description,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       configPath,
				Usage:       l.CLI.Flags.Config,
				Destination: &configFile,
			},
			&cli.StringFlag{
				Name:        "profile",
				Aliases:     []string{"p"},
				Usage:       l.CLI.Flags.Profile,
				Destination: &a.profile,
				Sources:     cli.NewValueSourceChain(toml.TOML("default_profile", altsrc.NewStringPtrSourcer(&configFile))),
				Action: func(ctx context.Context, c *cli.Command, s string) error {
					if p := a.cfg.GetProfile(s); p == nil {
						return fmt.Errorf(l.Errors.InvalidProfile, s)
					}
					return nil
				},
			},
			&cli.StringSliceFlag{
				Name:        "profiles",
				Aliases:     []string{"P"},
				Usage:       l.CLI.Flags.Profiles,
				Destination: &a.profiles,
			},
			&cli.StringFlag{
				Name:        "timeout",
				Aliases:     []string{"t"},
				Usage:       l.CLI.Flags.Timeout,
				Destination: &a.timeout,
			},
			&cli.StringFlag{
				Name:        "metrics-file",
				Usage:       l.CLI.Flags.MetricsFile,
				Destination: &a.metricsFile,
				Sources:     cli.NewValueSourceChain(toml.TOML("metrics.file", altsrc.NewStringPtrSourcer(&configFile))),
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.executeCommand(),
			a.exportCommand(),
			a.shellCommand(),
			a.checkCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func (a *app) executeCommand() *cli.Command {
	var file string
	var format string

	return &cli.Command{
		Name:      "execute",
		Aliases:   []string{"e"},
		Usage:     locale.L.CLI.Commands.Execute,
		ArgsUsage: locale.L.CLI.Args.Execute,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       locale.L.CLI.Flags.File,
				Destination: &file,
			},
			&cli.StringFlag{
				Name:        "format",
				Value:       "table",
				Usage:       locale.L.CLI.Flags.Format,
				Destination: &format,
				Action: func(ctx context.Context, c *cli.Command, s string) error {
					return validatePrintFormat(s)
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.Args().Get(0)
			if query == "" && file == "" {
				return fmt.Errorf("%s", locale.L.Errors.NoQuery)
			}

			name, err := a.singleProfile()
			if err != nil {
				return err
			}
			dm, err := a.loadManager([]string{name})
			if err != nil {
				return err
			}
			defer dm.Close()

			cur, err := dm.GetConnection(name).Cursor()
			if err != nil {
				return fmt.Errorf(locale.L.Errors.ConnectionFailed, name, err)
			}
			defer cur.Close()

			if err := cur.SetArraySize(printBatchSize); err != nil {
				return err
			}

			if file != "" {
				_, err = cur.ExecuteFile(ctx, file)
			} else {
				_, err = cur.Execute(ctx, query)
			}
			if err != nil {
				return fmt.Errorf(locale.L.Errors.QueryFailed, name, err)
			}

			return printRows(ctx, a.out, cur, format)
		},
	}
}

func (a *app) exportCommand() *cli.Command {
	var outputFormat string
	var noSingleSheet bool
	var noSingleFile bool
	var noCache bool

	return &cli.Command{
		Name:      "export",
		ArgsUsage: locale.L.CLI.Args.Export,
		Usage:     locale.L.CLI.Commands.Export,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output-format",
				Usage: locale.L.CLI.Flags.OutputFormat,
				Action: func(ctx context.Context, c *cli.Command, s string) error {
					return validateOutputFormat(s)
				},
				Destination: &outputFormat,
			},
			&cli.BoolFlag{
				Name:        "no-cache",
				Usage:       locale.L.CLI.Flags.NoCache,
				Destination: &noCache,
			},
		},
		MutuallyExclusiveFlags: []cli.MutuallyExclusiveFlags{{
			Flags: [][]cli.Flag{
				{
					&cli.BoolFlag{
						Name:        "no-single-sheet",
						Usage:       locale.L.CLI.Flags.NoSingleSheet,
						Destination: &noSingleSheet,
					},
				},
				{
					&cli.BoolFlag{
						Name:        "no-single-file",
						Usage:       locale.L.CLI.Flags.NoSingleFile,
						Destination: &noSingleFile,
					},
				},
			},
		}},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.Args().Get(0)
			savePath := c.Args().Get(1)
			if query == "" || savePath == "" {
				return fmt.Errorf("%s", locale.L.Errors.NoQuery)
			}

			if outputFormat == "" {
				format, ok := export.FormatFromPath(savePath)
				if format == "" {
					return fmt.Errorf("%s", locale.L.Errors.OutputFormatEmpty)
				}
				if !ok {
					return fmt.Errorf(locale.L.Errors.OutputFormatNotImpl, format)
				}
				outputFormat = format
			}

			dm, err := a.loadManager(a.profiles)
			if err != nil {
				return err
			}
			defer dm.Close()

			cache := db.NewCache(a.cfg.Cache)
			if closer, ok := cache.(io.Closer); ok {
				defer closer.Close()
			}

			ex := db.NewExecutor(dm, cache, a.cfg.MaxWorkers)
			results, summary := ex.ParallelExecution(ctx, query, !noCache)
			if len(results) == 0 {
				return fmt.Errorf("%s: %s", locale.L.Errors.NoDataReturned, summary)
			}

			options := export.NewOptions(noSingleFile, noSingleSheet, a.cfg.ProfileColumnName)
			return export.Write(ctx, outputFormat, results, savePath, options)
		},
	}
}

func (a *app) shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: locale.L.CLI.Commands.Shell,
		Action: func(ctx context.Context, c *cli.Command) error {
			name, err := a.singleProfile()
			if err != nil {
				return err
			}

			sh := &shell{
				profile: name,
				out:     a.out,
				open:    a.openCursor(name),
			}
			return sh.run(ctx)
		},
	}
}

func (a *app) checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: locale.L.CLI.Commands.Check,
		Action: func(ctx context.Context, c *cli.Command) error {
			dm, err := a.loadManager(a.profiles)
			if err != nil {
				return err
			}
			defer dm.Close()

			summary := db.NewExecutor(dm, nil, a.cfg.MaxWorkers).CheckAll(ctx, a.cfg.MaxRetries)
			printCheckSummary(a.out, dm, summary)

			if summary.Failed > 0 {
				return fmt.Errorf(locale.L.Errors.CheckFailed, summary.Failed)
			}
			return nil
		},
	}
}

func printCheckSummary(w io.Writer, dm *db.Manager, summary *db.Summary) {
	names := make([]string, 0, len(dm.GetConnections()))
	for name := range dm.GetConnections() {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err, failed := summary.Errors[name]; failed {
			fmt.Fprintf(w, "%-20s FAIL  %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%-20s OK\n", name)
	}
	fmt.Fprintln(w, summary)
}
