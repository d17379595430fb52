// Package main (gdmirror.go) :
// Command line handling and the mirror run.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tanaikech/gdmirror/internal/logging"
	"github.com/tanaikech/gdmirror/internal/metrics"
	"github.com/tanaikech/gdmirror/internal/retry"
	"github.com/tanaikech/gdmirror/mirror"
)

const (
	appname   = "gdmirror"
	envprefix = "GDMIRROR_"
)

// app : Streams and state shared by the commands.
type app struct {
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
}

// prepare : Read the configuration, asking for a folder when none was given,
// and start logging.
func (a *app) prepare(c *cli.Context) (*config, error) {
	cfg, err := configFromContext(c)
	if err != nil {
		return nil, err
	}
	if cfg.FolderID == "" && cfg.DriveID == "" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprint(a.stderr, "Folder ID or URL: ")
		}
		line, err := readLine(a.stdin)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		cfg.FolderID = folderIDFromURL(line)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run : Mirror the folder.
func (a *app) run(c *cli.Context) error {
	cfg, err := a.prepare(c)
	if err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.L()

	ctx := c.Context
	srv, err := newDriveService(ctx, cfg, a.stdin, a.stderr)
	if err != nil {
		return fmt.Errorf("opening Drive session: %w", err)
	}

	m := metrics.New()
	rcfg := retry.DefaultConfig()
	rcfg.MaxAttempts = cfg.Retries
	rep := &reporter{w: a.stdout, root: cfg.Directory}
	opts := mirror.Options{
		Root:          cfg.Directory,
		SharedDriveID: cfg.DriveID,
		MaxPathLength: cfg.MaxPath,
		Verify:        cfg.Verify,
		ChunkSize:     cfg.ChunkSize,
		MimeTypes:     cfg.MimeTypes,
		Retry:         rcfg,
		Report:        rep.Report,
		Logger:        log,
		Metrics:       m,
	}
	if !cfg.NoProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		opts.Progress = a.stderr
	}

	log.Info("mirror started",
		zap.String("folderId", cfg.rootID()),
		zap.String("driveId", cfg.DriveID),
		zap.String("directory", cfg.Directory),
		zap.Stringer("verify", cfg.Verify))
	start := time.Now()
	sum, err := mirror.New(mirror.NewDriveSession(srv), opts).Walk(ctx, cfg.rootID())
	log.Info("mirror finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Stringer("summary", sum),
		zap.Error(err))

	if cfg.MetricsFile != "" {
		if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
			log.Warn("writing metrics", zap.String("file", cfg.MetricsFile), zap.Error(werr))
		}
	}
	fmt.Fprintf(a.stdout, "\n%s\n", summaryMsg(sum, cfg.Directory))
	return err
}

// info : Show the remote tree without downloading.
func (a *app) info(c *cli.Context) error {
	cfg, err := a.prepare(c)
	if err != nil {
		return err
	}
	defer logging.Sync()

	srv, err := newDriveService(c.Context, cfg, a.stdin, a.stderr)
	if err != nil {
		return fmt.Errorf("opening Drive session: %w", err)
	}
	return showInfo(c.Context, srv, cfg, a.stdout)
}

// createHelp : Create help document.
func createHelp(a *app) *cli.App {
	return &cli.App{
		Name: appname,
		Authors: []*cli.Author{
			{Name: "tanaike [ https://github.com/tanaikech/" + appname + " ] ", Email: "tanaike@hotmail.com"},
		},
		Usage:     "Mirror a Google Drive folder to a local directory.",
		UsageText: appname + " --folder [folder ID or URL] --credentials [credentials.json] --directory [dir]",
		Version:   "1.0.0",
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags:     flags(),
		Action:    a.run,
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the folders and files that a mirror would contain, as JSON.",
				Action: a.info,
			},
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "folder",
			Aliases: []string{"f"},
			Usage:   "ID or URL of the folder to mirror.",
			EnvVars: []string{envprefix + "FOLDER"},
		},
		&cli.StringFlag{
			Name:    "drive-id",
			Usage:   "ID of a shared drive. Without '--folder', the whole shared drive is mirrored.",
			EnvVars: []string{envprefix + "DRIVE_ID"},
		},
		&cli.StringFlag{
			Name:    "directory",
			Aliases: []string{"d"},
			Usage:   "Local directory for the mirror. When this is not used, the current working directory is used.",
			EnvVars: []string{envprefix + "DIRECTORY"},
		},
		&cli.StringFlag{
			Name:    "credentials",
			Aliases: []string{"c"},
			Usage:   "OAuth2 client credentials file (credentials.json).",
			EnvVars: []string{envprefix + "CREDENTIALS"},
		},
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "File caching the OAuth2 token. Default is " + defaultTokenFile + " next to the credentials file.",
			EnvVars: []string{envprefix + "TOKEN"},
		},
		&cli.StringFlag{
			Name:    "service-account",
			Usage:   "Service account key file.",
			EnvVars: []string{envprefix + "SERVICE_ACCOUNT"},
		},
		&cli.StringFlag{
			Name:    "apikey",
			Aliases: []string{"key"},
			Usage:   "API key. Only publicly shared folders can be mirrored with it.",
			EnvVars: []string{envprefix + "APIKEY"},
		},
		&cli.StringFlag{
			Name:    "mimetype",
			Aliases: []string{"m"},
			Usage:   "Download only files with these mimeTypes. ex. '-m \"mimeType1,mimeType2\"'",
		},
		&cli.StringFlag{
			Name:    "verify",
			Usage:   "How an existing local file is judged complete: presence, size or checksum.",
			Value:   "size",
			EnvVars: []string{envprefix + "VERIFY"},
		},
		&cli.StringFlag{
			Name:  "chunk-size",
			Usage: "Size of one streamed read. ex. '512k', '8m'",
			Value: "8m",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Attempts per request before a transient error is given up.",
			Value: retry.DefaultConfig().MaxAttempts,
		},
		&cli.IntFlag{
			Name:  "max-path",
			Usage: "Maximum length of a local path in characters.",
			Value: mirror.DefaultMaxPathLength,
		},
		&cli.BoolFlag{
			Name:    "NoProgress",
			Aliases: []string{"np"},
			Usage:   "When this option is used, the progression is not shown.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error.",
			Value:   "info",
			EnvVars: []string{envprefix + "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "console or json.",
			Value:   "console",
			EnvVars: []string{envprefix + "LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "metrics-file",
			Usage:   "Write run metrics to this file in the Prometheus textfile format.",
			EnvVars: []string{envprefix + "METRICS_FILE"},
		},
	}
}

// main : Main of this script
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: bufio.NewReader(os.Stdin), stdout: os.Stdout, stderr: os.Stderr}
	err := createHelp(a).RunContext(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
