package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/syssam/fabrica"
	"github.com/syssam/fabrica/contract"
)

func newPullCmd(flags *rootFlags) *cobra.Command {
	var (
		server string
		token  string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the client SDK from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			m, err := pullBundle(cmd.Context(), server, token)
			if err != nil {
				return err
			}
			if err := writeBundle(outDir, m); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"version":   m.Version,
				"generated": m.Generated,
				"files":     len(m.Files),
			}).Info("sdk pulled")
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d files (sdk %s) into %s\n", len(m.Files), m.Version, outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "base URL of the running API server")
	cmd.Flags().StringVar(&token, "token", "", "pull token, when the server requires one")
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write the SDK into")
	cobra.CheckErr(cmd.MarkFlagRequired("server"))
	cobra.CheckErr(cmd.MarkFlagRequired("out"))
	return cmd
}

// pullBundle fetches the full SDK bundle from /_psdk/sdk/download.
func pullBundle(ctx context.Context, server, token string) (*contract.Manifest, error) {
	url := strings.TrimRight(server, "/") + "/_psdk/sdk/download"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fabrica.NewAuthError("pull token rejected")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("pull: server returned %s", resp.Status)
	}

	var m contract.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("pull: decoding bundle: %w", err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("pull: server returned an empty bundle")
	}
	return &m, nil
}

// writeBundle lays the manifest's files under dir. Paths are validated
// before any write so a hostile server cannot escape the target.
func writeBundle(dir string, m *contract.Manifest) error {
	for _, p := range m.Paths() {
		if !contract.SafePath(p) {
			return fmt.Errorf("pull: unsafe path %q in bundle", p)
		}
	}
	for _, p := range m.Paths() {
		target := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(m.Files[p]), 0o644); err != nil {
			return err
		}
	}
	return nil
}
