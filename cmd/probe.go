package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gkatanacio/resumable-downloader/download"
	"github.com/gkatanacio/resumable-downloader/transport"
)

var probeCmd = &cobra.Command{
	Use:          "probe [space-delimited URLs]",
	Short:        "Print the remote size of each URL without downloading it.",
	Example:      "./segdl probe http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.001",
	SilenceUsage: true,
	Args: func(cmd *cobra.Command, args []string) error {
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		prober := download.NewProber(transport.NewPolicy(cfg.TransportOptions(), log), log)

		out := cmd.OutOrStdout()
		for _, url := range args {
			size, known := prober.Probe(cmd.Context(), url)
			if !known {
				fmt.Fprintf(out, "%s\tunknown\n", url)
				continue
			}
			fmt.Fprintf(out, "%s\t%d bytes (%s)\n", url, size, humanize.Bytes(uint64(size)))
		}

		return nil
	},
}
