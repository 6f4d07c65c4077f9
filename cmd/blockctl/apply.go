package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/blockstore/pkg/client"
)

// Manifest describes a batch of local files to upload in one pass,
// the same shape as applying a declarative resource file but scoped
// to this project's one resource kind.
type Manifest struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Files      []FileUpload `yaml:"files"`
}

type FileUpload struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
	Owner  string `yaml:"owner,omitempty"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Upload a batch of files described by a YAML manifest",
	Long: `Apply a manifest listing local files and their destination paths.

Example manifest:

  apiVersion: blockstore/v1
  kind: FileSet
  files:
    - source: ./report.csv
      dest: /reports/report.csv
      owner: alice
    - source: ./notes.txt
      dest: /reports/notes.txt`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().String("owner", "blockctl", "Default owner for entries that omit one")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	defaultOwner, _ := cmd.Flags().GetString("owner")
	coordAddr, _ := cmd.Flags().GetString("coordinator")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Kind != "" && manifest.Kind != "FileSet" {
		return fmt.Errorf("unsupported manifest kind: %s", manifest.Kind)
	}

	c := client.New(coordAddr)
	defer c.Close()

	for _, f := range manifest.Files {
		owner := f.Owner
		if owner == "" {
			owner = defaultOwner
		}

		contents, err := os.ReadFile(f.Source)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Source, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		result, err := c.Upload(ctx, f.Dest, owner, contents)
		cancel()
		if err != nil {
			return fmt.Errorf("upload %s: %w", f.Source, err)
		}
		if result.Incomplete {
			fmt.Printf("⚠ %s -> %s uploaded with %d missing block(s)\n", f.Source, f.Dest, len(result.MissingIDs))
			continue
		}
		fmt.Printf("✓ %s -> %s\n", f.Source, f.Dest)
	}
	return nil
}
