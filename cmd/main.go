// File: main.go

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"speedtester/pkg/config"
	"speedtester/pkg/database"
	"speedtester/pkg/fetch"
	"speedtester/pkg/measurement"
	"speedtester/pkg/models"
	"speedtester/pkg/transfer"
)

var (
	debugFlag bool
	jsonFlag  bool
	cfgFile   string
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "speedtester",
	Short: "A tool for measuring latency and throughput against speedtest servers",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Select the best server and measure latency, download and upload",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		svc, closeFn := initService(ctx)
		defer closeFn()

		skipDownload, _ := cmd.Flags().GetBool("no-download")
		skipUpload, _ := cmd.Flags().GetBool("no-upload")

		result, err := svc.Run(ctx, measurement.RunOptions{SkipDownload: skipDownload, SkipUpload: skipUpload})
		if err != nil {
			logger.Error("Error running measurement", "error", err)
			os.Exit(1)
		}
		output(result, func(w io.Writer) { printResult(w, result) })
	},
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the nearest servers ranked by latency",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		svc, closeFn := initService(ctx)
		defer closeFn()

		sel, err := svc.Servers(ctx)
		if err != nil {
			logger.Error("Error selecting servers", "error", err)
			os.Exit(1)
		}
		output(sel, func(w io.Writer) { printSelection(w, sel) })
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Measure download throughput only",
	Run: func(cmd *cobra.Command, args []string) {
		runDirection(transfer.Download)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Measure upload throughput only",
	Run: func(cmd *cobra.Command, args []string) {
		runDirection(transfer.Upload)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the cached server list",
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Store the current server directory in the database",
	Run: func(cmd *cobra.Command, args []string) {
		viper.Set("cache.enabled", true)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		svc, closeFn := initService(ctx)
		defer closeFn()

		n, err := svc.SyncCache(ctx)
		if err != nil {
			logger.Error("Error syncing server cache", "error", err)
			os.Exit(1)
		}
		logger.Info("Server cache synced", "servers", n)
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the cached servers",
	Run: func(cmd *cobra.Command, args []string) {
		viper.Set("cache.enabled", true)
		ctx := context.Background()

		svc, closeFn := initService(ctx)
		defer closeFn()

		servers, err := svc.CachedServers(ctx)
		if err != nil {
			logger.Error("Error reading server cache", "error", err)
			os.Exit(1)
		}
		output(servers, func(w io.Writer) { printCached(w, servers) })
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("transport", "", "Transport config for all connections, e.g. socks5://host:port or ssconfig://host/key")
	rootCmd.PersistentFlags().Int("best", 1, "Number of fastest servers used for transfers")
	rootCmd.PersistentFlags().Bool("cache", false, "Fall back to the cached server list when the directory is empty")

	viper.BindPFlag("speedtest.transport", rootCmd.PersistentFlags().Lookup("transport"))
	viper.BindPFlag("speedtest.best_count", rootCmd.PersistentFlags().Lookup("best"))
	viper.BindPFlag("cache.enabled", rootCmd.PersistentFlags().Lookup("cache"))

	runCmd.Flags().Bool("no-download", false, "Skip the download measurement")
	runCmd.Flags().Bool("no-upload", false, "Skip the upload measurement")

	cacheCmd.AddCommand(cacheSyncCmd)
	cacheCmd.AddCommand(cacheListCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(cacheCmd)
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.speedtester")
		viper.AddConfigPath("/etc/speedtester/")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

// initService builds the measurement service from the loaded config. The returned
// function releases the database connection, if any.
func initService(ctx context.Context) (*measurement.MeasurementService, func()) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	transport := settings.Speedtest.Transport
	if transport != "" {
		direct, err := fetch.NewClient(fetch.Options{UserAgent: settings.Speedtest.UserAgent})
		if err != nil {
			logger.Error("Error creating HTTP client", "error", err)
			os.Exit(1)
		}
		transport, err = config.ResolveTransport(ctx, direct, transport)
		if err != nil {
			logger.Error("Error resolving transport", "error", err)
			os.Exit(1)
		}
	}

	client, err := fetch.NewClient(fetch.Options{
		Transport: transport,
		UserAgent: settings.Speedtest.UserAgent,
		Timeout:   settings.Speedtest.RequestTimeout,
	})
	if err != nil {
		logger.Error("Error creating HTTP client", "error", err)
		os.Exit(1)
	}

	closeFn := func() {}
	var cache measurement.Cache
	if settings.Cache.Enabled {
		db, err := initDB(ctx, settings.Database.Options())
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		cache = db
		closeFn = func() { db.Close() }
	}

	rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return measurement.NewMeasurementService(settings, client, cache, rnd, logger), closeFn
}

func initDB(ctx context.Context, opts database.Options) (*database.DB, error) {
	db, err := database.NewDB(opts)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	err = db.InitSchema(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return db, nil
}

func runDirection(dir transfer.Direction) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc, closeFn := initService(ctx)
	defer closeFn()

	var report transfer.Report
	var err error
	if dir == transfer.Upload {
		report, err = svc.Upload(ctx)
	} else {
		report, err = svc.Download(ctx)
	}
	if err != nil {
		logger.Error("Error measuring "+string(dir), "error", err)
		os.Exit(1)
	}
	output(report, func(w io.Writer) { printReport(w, report) })
}

// output prints v as JSON with --json, otherwise through the text printer.
func output(v any, text func(w io.Writer)) {
	if !jsonFlag {
		text(os.Stdout)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("Error encoding output", "error", err)
		os.Exit(1)
	}
}

func printResult(w io.Writer, r measurement.Result) {
	fmt.Fprintf(w, "Run:      %s\n", r.RunID)
	fmt.Fprintf(w, "Client:   %s (%s)\n", r.Selection.Client.IP, r.Selection.Client.ISP)
	if len(r.Selection.Best) > 0 {
		best := r.Selection.Best[0]
		fmt.Fprintf(w, "Server:   %s, %s [%s km]\n", best.Sponsor, best.Name, humanize.CommafWithDigits(best.Distance, 1))
	}
	fmt.Fprintf(w, "Ping:     %.2f ms\n", r.Ping)
	if r.Latency != nil {
		fmt.Fprintf(w, "Spread:   %.2f / %.2f / %.2f ms (min/median/max)\n", r.Latency.Min, r.Latency.Median, r.Latency.Max)
	}
	if r.Download != nil {
		printReport(w, *r.Download)
	}
	if r.Upload != nil {
		printReport(w, *r.Upload)
	}
}

func printReport(w io.Writer, r transfer.Report) {
	label := "Download:"
	if r.Direction == transfer.Upload {
		label = "Upload:  "
	}
	if !r.Completed {
		fmt.Fprintf(w, "%s no server completed (%d tried)\n", label, r.Attempts)
		return
	}
	fmt.Fprintf(w, "%s %.2f Mbit/s (%.2f SI) - %s in %s from server %s\n",
		label, r.Throughput, r.Mbps, humanize.Bytes(uint64(r.Bytes)), r.Elapsed.Round(time.Millisecond), r.Server.ID)
}

func printSelection(w io.Writer, sel measurement.Selection) {
	fmt.Fprintf(w, "Client %s (%s), servers from %s\n", sel.Client.IP, sel.Client.ISP, sel.Source)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSPONSOR\tNAME\tCOUNTRY\tDISTANCE\tLATENCY")
	for _, s := range sel.Ranked {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s km\t%.2f ms\n", s.ID, s.Sponsor, s.Name, s.CountryCode, humanize.CommafWithDigits(s.Distance, 1), s.Latency)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d probed servers answered\n", len(sel.Ranked), len(sel.Candidates))
}

func printCached(w io.Writer, servers []models.Server) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSPONSOR\tNAME\tCOUNTRY\tHOST\tUPDATED")
	for _, s := range servers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Sponsor, s.Name, s.CountryCode, s.Host, humanize.Time(s.UpdatedAt))
	}
	tw.Flush()
	fmt.Fprintf(w, "%s cached servers\n", humanize.Comma(int64(len(servers))))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
