// Package main (session.go) :
// These methods open an authorized Drive session from the configured credentials.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/tanaikech/gdmirror/internal/logging"
)

const defaultTokenFile = "gdmirror_token.json"

// newDriveService : Create a Drive service. A service account wins over
// OAuth2 client credentials, which win over an API key.
func newDriveService(ctx context.Context, cfg *config, in *bufio.Reader, out io.Writer) (*drive.Service, error) {
	switch {
	case cfg.ServiceAccount != "":
		b, err := os.ReadFile(cfg.ServiceAccount)
		if err != nil {
			return nil, fmt.Errorf("reading service account: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, b, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parsing service account: %w", err)
		}
		logging.L().Debug("using service account", zap.String("file", cfg.ServiceAccount))
		return drive.NewService(ctx, option.WithCredentials(creds))
	case cfg.Credentials != "":
		client, err := oauthClient(ctx, cfg, in, out)
		if err != nil {
			return nil, err
		}
		return drive.NewService(ctx, option.WithHTTPClient(client))
	case cfg.APIKey != "":
		logging.L().Debug("using API key; only publicly shared files are visible")
		return drive.NewService(ctx, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, errors.New("no credentials")
	}
}

// oauthClient : Build an HTTP client from OAuth2 client credentials and a
// cached token. Without a cached token the authorization code is read from in.
func oauthClient(ctx context.Context, cfg *config, in *bufio.Reader, out io.Writer) (*http.Client, error) {
	b, err := os.ReadFile(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	oc, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	tokenFile := cfg.Token
	if tokenFile == "" {
		tokenFile = filepath.Join(filepath.Dir(cfg.Credentials), defaultTokenFile)
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		logging.L().Debug("no cached token", zap.String("file", tokenFile), zap.Error(err))
		if tok, err = tokenFromConsole(ctx, oc, in, out); err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
		logging.L().Info("token saved", zap.String("file", tokenFile))
	}
	return oc.Client(ctx, tok), nil
}

// tokenFromConsole : Ask the user to open the consent page and paste the code.
func tokenFromConsole(ctx context.Context, oc *oauth2.Config, in *bufio.Reader, out io.Writer) (*oauth2.Token, error) {
	if oc.RedirectURL == "" {
		oc.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}
	url := oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser. After authorizing, paste the code here.\n\n%s\n\nCode: ", url)

	code, err := readLine(in)
	if err != nil {
		return nil, fmt.Errorf("reading authorization code: %w", err)
	}
	if code == "" {
		return nil, errors.New("no authorization code")
	}
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}

// loadToken : Read a cached token.
func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", file, err)
	}
	return tok, nil
}

// saveToken : Cache a token. The file is readable by the owner only.
func saveToken(file string, tok *oauth2.Token) error {
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("caching token: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("caching token: %w", err)
	}
	return f.Close()
}

// readLine : Read one trimmed line. A last line without newline is accepted.
func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
