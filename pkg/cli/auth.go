package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "source_token"
	tokenFileMode  = 0600
	keyringService = "tally"
	keyringUser    = "source_token"

	flagToken = "token"
	flagClear = "clear"
)

func newAuthCmd() *cli.Command {
	return &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the bearer token used to download import sources",
		UsageText: `tally auth --token <token>   # store token
   echo <token> | tally auth    # read token from stdin
   tally auth --clear           # remove stored token`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagToken,
				Usage:   "Source access token",
				Sources: cli.EnvVars("TALLY_SOURCE_TOKEN"),
			},
			&cli.BoolFlag{
				Name:  flagClear,
				Usage: "Remove the stored token",
			},
		},
		Action: cmdAuth,
	}
}

func cmdAuth(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	if cmd.Bool(flagClear) {
		if err := clearSourceToken(cfg.Dir); err != nil {
			return fmt.Errorf("clearing token: %w", err)
		}
		fmt.Fprintln(writer(cmd), "Token removed")
		return nil
	}

	token := cmd.String(flagToken)
	if token == "" {
		fmt.Fprint(writer(cmd), "Token: ")
		line, err := bufio.NewReader(reader(cmd)).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return errors.New("token required")
	}

	if err := saveSourceToken(cfg.Dir, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(writer(cmd), "Token saved")
	return nil
}

func saveSourceToken(dir, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(filepath.Join(dir, tokenFileName), []byte(token), tokenFileMode)
	}

	// remove file left by an earlier fallback
	os.Remove(filepath.Join(dir, tokenFileName))
	return nil
}

// getSourceToken returns the stored token or an empty string when none is set.
func getSourceToken(dir string) (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain unavailable, checking file", "error", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func clearSourceToken(dir string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain unavailable", "error", err)
	}
	if err := os.Remove(filepath.Join(dir, tokenFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
