package feed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type BrowserOptions struct {
	DebuggerURL string // attach to a running Chrome instead of launching one
	Bin         string
	ProfileDir  string // keeps the feed login between runs
	Headless    bool
}

// OpenPage connects to (or launches) Chrome and opens target in a new tab.
// Closing the returned browser closes the page as well.
func OpenPage(ctx context.Context, opts BrowserOptions, target string) (*rod.Browser, *rod.Page, error) {
	var controlURL string
	if opts.DebuggerURL != "" {
		u, err := launcher.ResolveURL(opts.DebuggerURL)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve debugger url: %w", err)
		}
		controlURL = u
	} else {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		_ = browser.Close()
		return nil, nil, fmt.Errorf("open %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		_ = browser.Close()
		return nil, nil, fmt.Errorf("wait for %s: %w", target, err)
	}
	return browser, page, nil
}

// CheckBrowser reports where the browser would come from without starting it.
func CheckBrowser(opts BrowserOptions) (string, error) {
	if opts.DebuggerURL != "" {
		u, err := launcher.ResolveURL(opts.DebuggerURL)
		if err != nil {
			return "", fmt.Errorf("debugger %s unreachable: %w", opts.DebuggerURL, err)
		}
		return u, nil
	}
	if opts.Bin != "" {
		if _, err := os.Stat(opts.Bin); err != nil {
			return "", fmt.Errorf("browser binary: %w", err)
		}
		return opts.Bin, nil
	}
	if bin, ok := launcher.LookPath(); ok {
		return bin, nil
	}
	return "", errors.New("no local Chrome found; it will be downloaded on first launch")
}
