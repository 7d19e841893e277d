/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Command-line interface
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	optIP          string
	optPort        int
	optHTTPS       bool
	optColor       bool
	optMono        bool
	optDuplex      bool
	optDuplexShort bool
	optCopies      int
	optQuality     string
	optLandscape   bool
	optJobName     string
	optMedia       string
	optDPI         int
	optLogLevel    string
	optVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "ipp-print file.pdf",
	Short: "Submit a PDF to a network printer over IPP",
	Long: "ipp-print submits a PDF document to a network printer over\n" +
		"raw IPP, trying multiple endpoints and HTTP framings, and\n" +
		"falling back to per-page JPEG submission with retries when\n" +
		"the printer rejects PDF input.",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ConfLoad(); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			Conf.LogLevel = optLogLevel
		}
		if optVerbose {
			Conf.LogLevel = "debug"
		}
		return LogInit(LogLevelByName(Conf.LogLevel), Conf.LogFile)
	},
	RunE: runPrint,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent print jobs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&optIP, "ip", "", "printer IP address or host name")
	flags.IntVar(&optPort, "port", 631, "printer IPP port")
	flags.BoolVar(&optHTTPS, "https", false, "start with HTTPS")
	flags.BoolVar(&optColor, "color", false, "request color output")
	flags.BoolVar(&optMono, "mono", false, "request monochrome output")
	flags.BoolVar(&optDuplex, "duplex", false, "two-sided, long edge")
	flags.BoolVar(&optDuplexShort, "duplex-short", false, "two-sided, short edge")
	flags.IntVar(&optCopies, "copies", 1, "number of copies")
	flags.StringVar(&optQuality, "quality", "normal", "draft, normal or high")
	flags.BoolVar(&optLandscape, "landscape", false, "landscape orientation")
	flags.StringVar(&optJobName, "job-name", "", "job name (default: file name)")
	flags.StringVar(&optMedia, "media", "", "paper size keyword")
	flags.IntVar(&optDPI, "dpi", 0, "rasterization resolution for the fallback")
	rootCmd.MarkFlagRequired("ip")

	rootCmd.PersistentFlags().StringVar(&optLogLevel, "log-level", "",
		"error, warn, info or debug")
	rootCmd.PersistentFlags().BoolVarP(&optVerbose, "verbose", "v", false,
		"shortcut for --log-level debug")

	rootCmd.AddCommand(historyCmd)
}

// buildOptions converts command-line flags into PrintOptions
func buildOptions() (PrintOptions, error) {
	opt := DefaultPrintOptions()
	opt.DPI = Conf.DPI

	switch {
	case optColor && optMono:
		return opt, fmt.Errorf("--color and --mono are mutually exclusive")
	case optColor:
		opt.ColorMode = ColorColor
	case optMono:
		opt.ColorMode = ColorMonochrome
	}

	switch {
	case optDuplex && optDuplexShort:
		return opt, fmt.Errorf("--duplex and --duplex-short are mutually exclusive")
	case optDuplex:
		opt.Duplex = DuplexLongEdge
	case optDuplexShort:
		opt.Duplex = DuplexShortEdge
	}

	switch optQuality {
	case "draft":
		opt.Quality = QualityDraft
	case "normal":
		opt.Quality = QualityNormal
	case "high":
		opt.Quality = QualityHigh
	default:
		return opt, fmt.Errorf("--quality: unknown value %q", optQuality)
	}

	if optCopies < 1 {
		return opt, fmt.Errorf("--copies: must be positive")
	}
	opt.Copies = optCopies

	opt.Landscape = optLandscape

	if optMedia != "" {
		media, err := MediaKeyword(optMedia)
		if err != nil {
			return opt, fmt.Errorf("--media: %s", err)
		}
		opt.Media = media
	}
	if optDPI != 0 {
		if optDPI < 72 || optDPI > 1200 {
			return opt, fmt.Errorf("--dpi: must be in range 72...1200")
		}
		opt.DPI = optDPI
	}

	return opt, nil
}

// runPrint is the body of the root command
func runPrint(cmd *cobra.Command, args []string) error {
	opt, err := buildOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := NewPrinter(optIP, optPort, optHTTPS, opt)
	printer.History = HistoryOpen()
	defer printer.History.Close()

	report, err := printer.Print(ctx, args[0], optJobName)
	if err != nil {
		if report != nil && len(report.Failed) > 0 {
			fmt.Fprintf(os.Stderr, "pages failed: %v (kept in %s)\n",
				report.Failed, report.TempDir)
		}
		return err
	}

	switch report.Method {
	case "pdf":
		if report.JobID != 0 {
			fmt.Printf("accepted as job %d\n", report.JobID)
		} else {
			fmt.Printf("accepted\n")
		}
	default:
		fmt.Printf("all %d pages delivered\n", report.TotalPages)
	}

	return nil
}

// runHistory is the body of the history subcommand
func runHistory(cmd *cobra.Command, args []string) error {
	history := HistoryOpen()
	if history == nil {
		return fmt.Errorf("history is disabled")
	}
	defer history.Close()

	records, err := history.List(context.Background(), 50)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no jobs recorded")
		return nil
	}

	for _, rec := range records {
		status := "ok"
		if !rec.OK {
			status = fmt.Sprintf("FAILED (%d pages)", rec.FailedPage)
		}
		fmt.Printf("%s  %-20s %-15s %-4s %3d pages  %s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Document, rec.Printer, rec.Method,
			rec.TotalPages, status)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ipp-print: %s\n", err)
		os.Exit(1)
	}
}
