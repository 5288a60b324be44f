package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkatanacio/resumable-downloader/config"
	"github.com/gkatanacio/resumable-downloader/download"
	"github.com/gkatanacio/resumable-downloader/logger"
	"github.com/gkatanacio/resumable-downloader/transport"
)

var (
	configPath string
	reportPath string
)

var rootCmd = &cobra.Command{
	Use:   "segdl [space-delimited URLs]",
	Short: "Resumable downloader for large multi-part archives over unreliable links.",
	Long: `Downloads each URL into the destination directory, one after the other.
A file already present locally is treated as the received prefix of the remote
resource and only the missing bytes are requested. Interrupted transfers are
resumed after a cooldown.`,
	Example:      "./segdl -d ~/datasets/gta http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.001 http://wiselab.uwaterloo.ca/OursObjectDet/images.zip.002",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		urls := cfg.URLs
		if len(args) > 0 {
			urls = args
		}
		if len(urls) == 0 {
			return download.ErrNoSourceUrls
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		policy := transport.NewPolicy(cfg.TransportOptions(), log)
		topts := policy.Options()
		log.Info("starting batch",
			zap.Int("urls", len(urls)),
			zap.String("dest", cfg.DestDir),
			zap.Duration("connect_timeout", topts.ConnectTimeout),
			zap.Duration("read_timeout", topts.ReadTimeout),
			zap.Int("retry_max", topts.RetryMax),
			zap.Duration("retry_wait_max", topts.RetryWaitMax))

		downloadService := download.NewService(cfg.DownloadOptions(), policy, log)

		results, downloadErr := downloadService.DownloadAll(ctx, urls)

		if reportPath != "" {
			if err := writeReport(reportPath, results); err != nil {
				log.Error("failed to write report", zap.String("path", reportPath), zap.Error(err))
			}
		}

		return downloadErr
	},
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

func writeReport(path string, results []download.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := download.WriteReport(f, results); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./segdl.yaml or ~/.config/segdl/segdl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")
	rootCmd.PersistentFlags().Duration("read-timeout", transport.DefaultOptions().ReadTimeout, "abort a transfer when no data arrives for this long")
	rootCmd.PersistentFlags().Int("retries", transport.DefaultOptions().RetryMax, "transport level retries for each request")

	defaults := download.DefaultOptions()
	rootCmd.Flags().StringP("dest", "d", defaults.DestDir, "destination directory")
	rootCmd.Flags().IntP("parallel", "p", defaults.Parallel, "number of files downloaded at the same time")
	rootCmd.Flags().Int("chunk-size-mb", defaults.ChunkSize/(1024*1024), "size of each write to disk in MiB")
	rootCmd.Flags().Int("max-faults", defaults.MaxConsecutiveFaults, "consecutive faults without progress before a file fails, negative retries forever")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write a YAML report of the batch to this file")

	rootCmd.AddCommand(probeCmd)
}
