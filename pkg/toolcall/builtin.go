package toolcall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RegisterBuiltins adds the stock tools: current_time and read_page.
func RegisterBuiltins(registry *Registry) error {
	if err := registry.Register(Definition{
		Name:        "current_time",
		Description: "Returns the current date and time in RFC 3339 format.",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	}); err != nil {
		return err
	}

	pages := &pageReader{}
	return registry.Register(Definition{
		Name:        "read_page",
		Description: "Fetches a web page in a headless browser and returns its visible text.",
		Parameters: []Parameter{
			{Name: "url", Type: "string", Description: "Absolute URL of the page to read.", Required: true},
		},
		Handler: pages.read,
	})
}

// pageReader lazily launches one shared headless browser.
type pageReader struct {
	mu      sync.Mutex
	browser *rod.Browser
}

func (p *pageReader) connect() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	p.browser = browser
	return browser, nil
}

func (p *pageReader) read(ctx context.Context, params map[string]any) (any, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	browser, err := p.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}

	text, err := page.Eval(`() => document.body.innerText`)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return text.Value.String(), nil
}
