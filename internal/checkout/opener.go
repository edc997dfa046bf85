package checkout

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// Opener shows a payment page to the user.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// BrowserOpener hands the URL to the platform's default browser.
type BrowserOpener struct{}

func (BrowserOpener) Open(_ context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// PrintOpener writes the URL for the user to follow by hand.
type PrintOpener struct {
	W io.Writer
}

func (p PrintOpener) Open(_ context.Context, url string) error {
	_, err := fmt.Fprintf(p.W, "Open this link to pay:\n  %s\n", url)
	return err
}

type nopOpener struct{}

func (nopOpener) Open(context.Context, string) error { return nil }
