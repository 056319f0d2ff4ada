package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nickyhof/AdOrchDB"
	"github.com/nickyhof/AdOrchDB/config"
	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/logging"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/nickyhof/AdOrchDB/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// ValidFormats are the accepted values of --format.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	DataDir    string
	Memory     bool
	Name       string
	Email      string
	Strict     bool
	Format     string
	Verbose    bool
}

// session is everything a command needs, opened from config and flags.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	instance *AdOrchDB.Instance
	db       *db.Engine
	workflow *workflow.Engine
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "adorch",
		Short:   "AdOrchDB - asset approval store",
		Long:    "Query the record store, run approval workflows and manage snapshots of an AdOrchDB data directory.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, format := range ValidFormats {
				if format == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file overlaid on the environment")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides ADORCH_DATA_DIR)")
	cmd.PersistentFlags().BoolVar(&opts.Memory, "memory", false, "use an in-memory store")
	cmd.PersistentFlags().StringVar(&opts.Name, "name", "", "author name for snapshot commits")
	cmd.PersistentFlags().StringVar(&opts.Email, "email", "", "author email for snapshot commits")
	cmd.PersistentFlags().BoolVar(&opts.Strict, "strict", false, "fail on predicates the engine cannot evaluate")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))
	cmd.AddCommand(NewApprovalsCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))

	return cmd
}

func (opts *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.ConfigFile != "" {
		if err := cfg.LoadFile(opts.ConfigFile); err != nil {
			return nil, err
		}
	}

	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Name != "" {
		cfg.AuthorName = opts.Name
	}
	if opts.Email != "" {
		cfg.AuthorEmail = opts.Email
	}
	if opts.Strict {
		cfg.Strict = true
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (opts *RootOptions) open() (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	return openSession(cfg, logger, opts.Memory)
}

func openSession(cfg *config.Config, logger *zap.Logger, memory bool) (*session, error) {
	var instance *AdOrchDB.Instance
	if memory {
		persistence, err := ps.NewMemoryPersistence(ps.WithHistory(cfg.GitHistory))
		if err != nil {
			return nil, err
		}
		instance = AdOrchDB.Open(persistence)
	} else {
		var err error
		instance, err = AdOrchDB.OpenConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	identity := core.Identity{Name: cfg.AuthorName, Email: cfg.AuthorEmail}
	engine, err := instance.Engine(identity, db.WithLogger(logger), db.WithStrict(cfg.Strict))
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:      cfg,
		logger:   logger,
		instance: instance,
		db:       engine,
		workflow: workflow.NewEngine(engine, workflow.WithLogger(logger)),
	}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// output writes data as JSON or with the text renderer.
func output(w io.Writer, format string, data any, text func(w io.Writer)) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}
	text(w)
	return nil
}
