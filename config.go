// Package main (config.go) :
// Flag values, their validation and size parsing.
package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tanaikech/gdmirror/mirror"
)

// config : Settings for one run, collected from flags and environment.
type config struct {
	FolderID       string
	DriveID        string
	Directory      string
	Credentials    string
	Token          string
	ServiceAccount string
	APIKey         string
	MimeTypes      []string
	Verify         mirror.Verify
	ChunkSize      int
	Retries        int
	MaxPath        int
	NoProgress     bool
	LogLevel       string
	LogFormat      string
	MetricsFile    string
}

// configFromContext : Build config from the parsed flags.
func configFromContext(c *cli.Context) (*config, error) {
	cfg := &config{
		FolderID:       strings.TrimSpace(c.String("folder")),
		DriveID:        strings.TrimSpace(c.String("drive-id")),
		Directory:      c.String("directory"),
		Credentials:    c.String("credentials"),
		Token:          c.String("token"),
		ServiceAccount: c.String("service-account"),
		APIKey:         strings.TrimSpace(c.String("apikey")),
		MimeTypes:      splitList(c.String("mimetype")),
		Retries:        c.Int("retries"),
		MaxPath:        c.Int("max-path"),
		NoProgress:     c.Bool("NoProgress"),
		LogLevel:       c.String("log-level"),
		LogFormat:      c.String("log-format"),
		MetricsFile:    c.String("metrics-file"),
	}
	if cfg.FolderID == "" && c.Args().Len() > 0 {
		cfg.FolderID = folderIDFromURL(c.Args().First())
	}
	cfg.FolderID = folderIDFromURL(cfg.FolderID)

	v, err := mirror.ParseVerify(c.String("verify"))
	if err != nil {
		return nil, err
	}
	cfg.Verify = v

	size, err := parseByteSize(c.String("chunk-size"))
	if err != nil {
		return nil, err
	}
	cfg.ChunkSize = int(size)

	if cfg.Directory == "" {
		cfg.Directory = "."
	}
	if cfg.Directory, err = filepath.Abs(cfg.Directory); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate : Reject settings a run cannot start with.
func (cfg *config) Validate() error {
	var errs []error
	if cfg.FolderID == "" && cfg.DriveID == "" {
		errs = append(errs, errors.New("a folder ID or a shared drive ID is required. Please use '--folder' or '--drive-id'"))
	}
	if cfg.Credentials == "" && cfg.ServiceAccount == "" && cfg.APIKey == "" {
		errs = append(errs, errors.New("no credentials. Please use '--credentials', '--service-account' or '--apikey'"))
	}
	if cfg.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive: %d", cfg.ChunkSize))
	}
	if cfg.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be at least 1: %d", cfg.Retries))
	}
	if cfg.MaxPath != 0 && cfg.MaxPath < len([]rune(cfg.Directory))+2 {
		errs = append(errs, fmt.Errorf("max path %d leaves no room below '%s'", cfg.MaxPath, cfg.Directory))
	}
	switch cfg.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %s", cfg.LogFormat))
	}
	return errors.Join(errs...)
}

// rootID : The folder the walk starts at. A shared drive's root folder has
// the drive's own ID.
func (cfg *config) rootID() string {
	if cfg.FolderID != "" {
		return cfg.FolderID
	}
	return cfg.DriveID
}

var folderURL = regexp.MustCompile(`google\.com\/drive\/(?:u\/\d+\/)?folders\/([a-zA-Z0-9-_]+)`)

// folderIDFromURL : Accept both a bare ID and a folder URL.
func folderIDFromURL(s string) string {
	if m := folderURL.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// splitList : Split a comma separated flag value.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return regexp.MustCompile(`\s*,\s*`).Split(strings.TrimSpace(s), -1)
}

var byteSize = regexp.MustCompile(`^([0-9.]+)$|^([0-9.]+)([bkmgt])b?$`)

// parseByteSize : Parse sizes like "512k" or "8m". Units are powers of 1024.
func parseByteSize(size string) (int64, error) {
	res := byteSize.FindStringSubmatch(strings.ToLower(strings.TrimSpace(size)))
	switch {
	case len(res) == 0:
		return 0, fmt.Errorf("wrong size: %s", size)
	case res[1] != "":
		s, err := strconv.ParseInt(res[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("wrong size: %s", size)
		}
		return s, nil
	default:
		f, err := strconv.ParseFloat(res[2], 64)
		if err != nil {
			return 0, fmt.Errorf("wrong size: %s", size)
		}
		switch res[3] {
		case "k":
			f *= 1 << 10
		case "m":
			f *= 1 << 20
		case "g":
			f *= 1 << 30
		case "t":
			f *= 1 << 40
		}
		return int64(f), nil
	}
}
