package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/config"
	"github.com/Zuo-Peng/slopwatch/internal/credstore"
	"github.com/Zuo-Peng/slopwatch/internal/feed"
	"github.com/Zuo-Peng/slopwatch/internal/logging"
	"github.com/Zuo-Peng/slopwatch/internal/metrics"
	"github.com/Zuo-Peng/slopwatch/internal/render"
	"github.com/Zuo-Peng/slopwatch/internal/tui"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

const credentialPoll = 5 * time.Second

func newClassifier(cfg *config.Config, session *watcher.Session, m *metrics.Metrics, log *zap.Logger) *classifier.Client {
	return classifier.New(session, classifier.Options{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Reporter:    m,
	}, log)
}

func watchCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the feed in Chrome and flag slop as posts load",
		Long: `Opens the LinkedIn feed in Chrome (or attaches to a running one with
browser.debugger_url) and classifies every post as it appears. Flagged posts get
a warning and a "Show Original" button in the page.

On a terminal a live dashboard is shown and logs go to log_file; with --plain or
when stdout is not a terminal, events are printed one per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			interactive := !plain && term.IsTerminal(int(os.Stdout.Fd()))
			logFile := ""
			if interactive {
				logFile = cfg.LogFile
			}
			log, err := logging.New(cfg.LogLevel, logFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			store, err := credstore.Open(cfg.DBPath, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if _, ok, _ := store.Get(); !ok {
				log.Warn("no API key stored; run 'slopwatch key set' and monitoring will start")
			}

			browser, page, err := feed.OpenPage(ctx, feed.BrowserOptions{
				DebuggerURL: cfg.Browser.DebuggerURL,
				Bin:         cfg.Browser.Bin,
				ProfileDir:  cfg.Browser.ProfileDir,
				Headless:    cfg.Browser.Headless,
			}, cfg.FeedURL)
			if err != nil {
				return err
			}
			defer browser.Close()
			doc := feed.NewBrowserDocument(page, log)
			defer doc.Close()

			m := metrics.New()
			session := watcher.NewSession()
			cls := newClassifier(cfg, session, m, log)

			var dash *tui.Dashboard
			opts := watcher.Options{
				PostSelector: cfg.PostSelector,
				TextSelector: cfg.TextSelector,
				MaxInFlight:  cfg.MaxInFlight,
				Metrics:      m,
			}
			if interactive {
				opts.OnEvent = func(e watcher.Event) { dash.Send(e) }
			} else {
				color := term.IsTerminal(int(os.Stdout.Fd()))
				opts.OnEvent = func(e watcher.Event) {
					fmt.Println(render.Event(e, render.Options{Color: color}))
				}
			}
			w := watcher.New(doc, session, store, cls, log, opts)
			if interactive {
				dash = tui.New(ctx, w)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return store.Watch(gctx, credentialPoll)
			})
			if cfg.MetricsAddr != "" {
				g.Go(func() error {
					log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
					return m.Serve(gctx, cfg.MetricsAddr)
				})
			}
			g.Go(func() error {
				if err := feed.WaitForFeed(gctx, doc, 2*time.Second); err != nil {
					return nil
				}
				return w.Run(gctx)
			})
			if interactive {
				g.Go(func() error {
					defer cancel()
					return dash.Run()
				})
			} else {
				log.Info("watching feed", zap.String("url", cfg.FeedURL), zap.String("session", session.ID))
			}

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print events instead of showing the dashboard")
	return cmd
}
