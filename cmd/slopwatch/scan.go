package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/slopwatch/internal/config"
	"github.com/Zuo-Peng/slopwatch/internal/credstore"
	"github.com/Zuo-Peng/slopwatch/internal/feed"
	"github.com/Zuo-Peng/slopwatch/internal/logging"
	"github.com/Zuo-Peng/slopwatch/internal/render"
	"github.com/Zuo-Peng/slopwatch/internal/watcher"
)

func scanCmd() *cobra.Command {
	var pageURL, out string

	cmd := &cobra.Command{
		Use:   "scan [page.html]",
		Short: "Classify the posts of a saved feed page",
		Long: `Reads a saved feed page (or stdin), classifies every post once and prints
one line per post. With -o the page is written back with flagged posts annotated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := logging.New(cfg.LogLevel, "")
			if err != nil {
				return err
			}
			defer log.Sync()

			var in io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			doc, err := feed.NewHTMLDocument(in, pageURL)
			if err != nil {
				return err
			}

			store, err := credstore.Open(cfg.DBPath, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if _, ok, err := store.Get(); err != nil {
				return err
			} else if !ok {
				return errors.New("no API key stored (run 'slopwatch key set')")
			}

			// keep stdout clean when the page itself goes there
			report := os.Stdout
			if out == "-" {
				report = os.Stderr
			}
			color := term.IsTerminal(int(report.Fd()))

			var sum render.Summary
			session := watcher.NewSession()
			w := watcher.New(doc, session, store, newClassifier(cfg, session, nil, log), log, watcher.Options{
				PostSelector: cfg.PostSelector,
				TextSelector: cfg.TextSelector,
				MaxInFlight:  cfg.MaxInFlight,
				OnEvent: func(e watcher.Event) {
					sum.Add(e)
					switch e.Kind {
					case watcher.EventSkipped, watcher.EventClassified, watcher.EventAnnotateFailed:
						fmt.Fprintln(report, render.Event(e, render.Options{Color: color}))
					}
				},
			})
			if err := w.RunOnce(cmd.Context()); err != nil {
				return err
			}
			if sum.Passes == 0 {
				return fmt.Errorf("%s is not the feed; pass the page address with --url", pageURL)
			}

			if out != "" {
				if err := writePage(doc, out); err != nil {
					return err
				}
			}
			fmt.Fprintln(report, sum.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", feed.DefaultFeedURL, "Address the page was saved from")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write the annotated page to this file (- for stdout)")
	return cmd
}

func writePage(doc *feed.HTMLDocument, path string) error {
	if path == "-" {
		return doc.Render(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
