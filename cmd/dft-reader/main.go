// Command dft-reader performs indexed random-access reads over a gzip
// trace file, printing the requested byte or line range to stdout (spec
// §6, "CLI surface").
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dftracer/dftracer-utils/internal/config"
	"github.com/dftracer/dftracer-utils/pkg/indexer"
	"github.com/dftracer/dftracer-utils/pkg/reader"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagConfigFile string
		flagIndexPath  string
		flagStart      int64
		flagEnd        int64
		flagChunkMB    int64
		flagForce      bool
		flagLines      bool
	)

	cmd := &cobra.Command{
		Use:   "dft-reader <file.gz>",
		Short: "Read a byte or line range from an indexed gzip trace file",
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
			if _, err := indexer.New(gzPath, idxPath, strideBytes, flagForce).Build(); err != nil {
				return err
			}

			rd, err := reader.New(gzPath, idxPath)
			if err != nil {
				return err
			}
			defer rd.Close()

			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()

			if flagLines {
				data, err := rd.ReadLines(flagStart, flagEnd)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			buf := make([]byte, 256*1024)
			for {
				n, err := rd.Read(flagStart, flagEnd, buf)
				if err != nil {
					return err
				}
				if n == 0 {
					break
				}
				if _, err := out.Write(buf[:n]); err != nil {
					return err
				}
				flagStart += int64(n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagConfigFile, "config", "", "path to config.json")
	cmd.Flags().StringVar(&flagIndexPath, "index", "", "sidecar index path (default: <file>.idx)")
	cmd.Flags().Int64Var(&flagStart, "start", 0, "range start (byte offset, or line number with --lines)")
	cmd.Flags().Int64Var(&flagEnd, "end", 0, "range end, exclusive for bytes / inclusive line number with --lines")
	cmd.Flags().Int64Var(&flagChunkMB, "chunk-size-mb", 0, "target checkpoint stride in MiB if the index must be built")
	cmd.Flags().BoolVar(&flagForce, "force", false, "rebuild the index even if it already validates")
	cmd.Flags().BoolVar(&flagLines, "lines", false, "treat --start/--end as a 1-based, inclusive line range")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dft-reader:", err)
		return 1
	}
	return 0
}
