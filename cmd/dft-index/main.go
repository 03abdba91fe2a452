// Command dft-index builds or validates the sidecar checkpoint index for
// a gzip-compressed trace file (spec §6, "CLI surface": "(file, start?,
// end?, chunk_size_mb, force) for the indexer/reader").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dftracer/dftracer-utils/internal/config"
	"github.com/dftracer/dftracer-utils/pkg/indexer"
	"github.com/dftracer/dftracer-utils/pkg/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagConfigFile string
		flagIndexPath  string
		flagChunkMB    int64
		flagForce      bool
	)

	cmd := &cobra.Command{
		Use:   "dft-index <file.gz>",
		Short: "Build or validate a gzip trace file's checkpoint index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(flagConfigFile); err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			gzPath := args[0]
			idxPath := flagIndexPath
			if idxPath == "" {
				idxPath = indexer.DefaultIndexPath(gzPath)
			}

			strideBytes := flagChunkMB * 1024 * 1024
			if strideBytes <= 0 {
				strideBytes = config.Keys.CheckpointStrideBytes
			}

			status, err := indexer.New(gzPath, idxPath, strideBytes, flagForce).Build()
			if err != nil {
				return err
			}
			switch status {
			case indexer.StatusBuilt:
				log.Infof("dft-index: built %s", idxPath)
			case indexer.StatusAlreadyValid:
				log.Infof("dft-index: %s already up to date", idxPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagConfigFile, "config", "", "path to config.json")
	cmd.Flags().StringVar(&flagIndexPath, "index", "", "sidecar index path (default: <file>.idx)")
	cmd.Flags().Int64Var(&flagChunkMB, "chunk-size-mb", 0, "target checkpoint stride in MiB (default from config)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "rebuild the index even if it already validates")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dft-index:", err)
		return 1
	}
	return 0
}
