package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/tako"
	"github.com/menta2k/tako/internal/config"
	"github.com/menta2k/tako/internal/logging"
	"github.com/menta2k/tako/internal/utils"
)

// app carries the global flags and the state every subcommand shares
type app struct {
	configPath string
	inputDir   string
	labelFile  string
	outputPath string
	logLevel   string
	verbose    bool
	reset      bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tako",
		Short: "tako - window-grid dataset annotation",
		Long: `tako imports a directory of images into memory-bounded chunks, lets you
label fixed-size windows of them and merges the labelled windows into a
NumPy dataset (<output>_X.npy, <output>_Y.npy, <output>_I.npy).

Labelled windows are kept in per-image shards until you run finalize.`,
		Version:       tako.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "configuration file (.json, .yaml or .yml)")
	f.StringVar(&a.inputDir, "input", "", "directory of images to import")
	f.StringVar(&a.labelFile, "labels", "", "label file, one label per line")
	f.StringVarP(&a.outputPath, "output", "o", "", "dataset output path")
	f.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	f.BoolVar(&a.reset, "reset", false, "discard existing chunks and shards and re-import")

	root.AddCommand(
		newImportCmd(a),
		newLabelCmd(a),
		newEraseCmd(a),
		newStatsCmd(a),
		newFinalizeCmd(a),
		newPreviewCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the logger
func (a *app) setup() error {
	cfg := config.Default()
	path := a.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if a.inputDir != "" {
		cfg.Input.InputDir = a.inputDir
	}
	if a.labelFile != "" {
		cfg.Input.LabelFile = a.labelFile
	}
	if a.outputPath != "" {
		cfg.Input.OutputPath = a.outputPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	if a.reset {
		cfg.Reset = true
	}
	a.cfg = cfg

	if a.logger == nil {
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

func (a *app) open() (*tako.Session, error) {
	return tako.Open(a.cfg, a.logger)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
