package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/db/fs"
	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveFlags = struct {
		Fixtures []string
		Addr     string
		Save     bool
		Watch    bool
	}{}

	serve = &cobra.Command{
		Use:   "serve",
		Short: "Serve YAML fixtures over the REST API the board talks to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Initialize(cfg.Logging.Level, logger.LogFormat(cfg.Logging.Format), os.Stderr)
			defer logger.Sync()
			log := logger.For(logger.ComponentServer)

			if len(serveFlags.Fixtures) == 0 {
				return fmt.Errorf("at least one --fixture is required")
			}
			loaders := make([]*fs.Loader, 0, len(serveFlags.Fixtures))
			collections := map[string]db.Collection{}
			for _, path := range serveFlags.Fixtures {
				l, err := fs.New(path, cfg.Registry)
				if err != nil {
					return err
				}
				if _, dup := collections[l.Kind()]; dup {
					return fmt.Errorf("more than one fixture holds %s", l.Kind())
				}
				if serveFlags.Save {
					collections[l.Kind()] = l.AutoSave()
				} else {
					collections[l.Kind()] = l.Collection()
				}
				loaders = append(loaders, l)
			}

			gin.SetMode(gin.ReleaseMode)
			srv, err := server.New(server.Options{Addr: serveFlags.Addr, Collections: collections})
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(ctx) })
			if serveFlags.Watch {
				for _, l := range loaders {
					l := l
					g.Go(func() error { return l.Watch(ctx, nil) })
				}
			}
			err = g.Wait()
			log.Infow("stopped", "error", err)
			return err
		},
	}
)

func init() {
	serve.Flags().StringArrayVarP(&serveFlags.Fixtures, "fixture", "f", nil, "YAML fixture to serve, one per kind (repeatable)")
	serve.Flags().StringVar(&serveFlags.Addr, "addr", ":8080", "listen address")
	serve.Flags().BoolVar(&serveFlags.Save, "save", false, "write accepted moves back to the fixture")
	serve.Flags().BoolVar(&serveFlags.Watch, "watch", true, "reload fixtures when they change on disk")
	root.AddCommand(serve)
}
