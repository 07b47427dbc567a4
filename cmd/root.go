package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/byxorna/stageboard/pkg/config"
	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/db/fs"
	"github.com/byxorna/stageboard/pkg/db/rest"
	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/runtime"
	"github.com/byxorna/stageboard/pkg/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	flags = struct {
		ConfigFile string
		Kind       string
		URL        string
		Fixture    string
	}{}

	root = &cobra.Command{
		Use:          "stageboard",
		Short:        "Stageboard tracks entities through the stages of a review pipeline",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// the TUI owns the terminal, so logs go to a file
			closeLog, err := logToFile(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			kind := cfg.Kind
			if flags.Kind != "" {
				kind = flags.Kind
			}
			reg, err := cfg.Registry(kind)
			if err != nil {
				return err
			}
			coll, err := openCollection(ctx, cfg, kind)
			if err != nil {
				return err
			}

			m, err := ui.New(ctx, ui.Options{
				Registry:   reg,
				Collection: coll,
				PageSize:   cfg.PageSize,
				Debounce:   cfg.Debounce,
				Timeout:    cfg.Backend.Timeout,
			})
			if err != nil {
				return err
			}
			return ui.Run(m, tea.WithAltScreen())
		},
	}
)

func init() {
	root.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", config.DefaultPath, "configuration file")
	root.Flags().StringVarP(&flags.Kind, "kind", "k", "", "entity kind to show (defaults to the configured kind)")
	root.Flags().StringVar(&flags.URL, "url", "", "base URL of the REST backend")
	root.Flags().StringVarP(&flags.Fixture, "fixture", "f", "", "serve from a local YAML fixture instead of a REST backend")
}

func Execute() {
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if flags.URL != "" {
		cfg.Backend.Type = config.BackendREST
		cfg.Backend.URL = flags.URL
	}
	if flags.Fixture != "" {
		cfg.Backend.Type = config.BackendMemory
		cfg.Backend.Fixture = flags.Fixture
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logToFile(l config.Logging) (func(), error) {
	path := l.File
	var err error
	if path == "" {
		path, err = runtime.File(runtime.LogFile)
	} else {
		path, err = homedir.Expand(path)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to locate log file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	logger.Initialize(l.Level, logger.LogFormat(l.Format), f)
	return func() {
		_ = logger.Sync()
		f.Close()
	}, nil
}

// openCollection connects to the configured backend for kind
func openCollection(ctx context.Context, cfg *config.Config, kind string) (db.Collection, error) {
	switch cfg.Backend.Type {
	case config.BackendMemory:
		l, err := fs.New(cfg.Backend.Fixture, cfg.Registry)
		if err != nil {
			return nil, err
		}
		if l.Kind() != kind {
			return nil, fmt.Errorf("fixture %s holds %s, not %s", l.Path, l.Kind(), kind)
		}
		if cfg.Backend.Watch {
			go func() {
				if err := l.Watch(ctx, nil); err != nil {
					logger.For(logger.ComponentFixtures).Errorw("fixture watch stopped", "error", err)
				}
			}()
		}
		return l.Collection(), nil
	default:
		return rest.New(ctx, rest.Options{
			BaseURL:    cfg.Backend.URL,
			Collection: kind,
			Token:      cfg.Backend.Token,
			TokenFile:  cfg.Backend.TokenFile,
			Timeout:    cfg.Backend.Timeout,
		})
	}
}
