package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
)

const startupTimeout = 30 * time.Second

// Service launches Chrome and feeds every request issued by its page targets
// into the capture pipeline
type Service struct {
	config  common.BrowserConfig
	capture interfaces.CaptureService
	tabs    *TabRegistry
	pending *pendingRequests
	logger  arbor.ILogger

	mu            sync.Mutex
	running       bool
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	firstTab      atomic.Value // target.ID of the initial tab
	attached      map[target.ID]context.CancelFunc
}

// NewService creates a browser feed. Start launches the browser.
func NewService(config common.BrowserConfig, capture interfaces.CaptureService, logger arbor.ILogger) *Service {
	return &Service{
		config:   config,
		capture:  capture,
		tabs:     NewTabRegistry(),
		pending:  newPendingRequests(config.PendingRequests),
		logger:   logger,
		attached: make(map[target.ID]context.CancelFunc),
	}
}

// Tabs returns the page lookup fed by navigation events
func (s *Service) Tabs() *TabRegistry {
	return s.tabs
}

// Start launches Chrome, attaches to the initial tab and to every page
// target created afterwards, then opens the configured start URLs
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("browser already running")
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("no-sandbox", s.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.config.ExecPath))
	}
	if s.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.config.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	chromedp.ListenTarget(browserCtx, s.tabListener(""))

	startCtx, startCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer startCancel()
	if err := chromedp.Run(startCtx, network.Enable(), page.Enable()); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	firstTab := chromedp.FromContext(browserCtx).Target.TargetID
	s.firstTab.Store(firstTab)
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.allocCancel = allocCancel
	s.running = true

	chromedp.ListenBrowser(browserCtx, s.handleBrowserEvent)

	s.logger.Info().
		Bool("headless", s.config.Headless).
		Str("first_tab", string(firstTab)).
		Int("start_urls", len(s.config.StartURLs)).
		Msg("Browser started")

	s.openStartURLs(browserCtx)
	return nil
}

func (s *Service) openStartURLs(browserCtx context.Context) {
	for i, startURL := range s.config.StartURLs {
		startURL := startURL
		first := i == 0
		common.SafeGo(s.logger, "browser-open", func() {
			var err error
			if first {
				err = chromedp.Run(browserCtx, chromedp.Navigate(startURL))
			} else {
				err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
					_, err := target.CreateTarget(startURL).Do(ctx)
					return err
				}))
			}
			if err != nil {
				s.logger.Warn().Err(err).Str("url", startURL).Msg("Failed to open start URL")
			}
		})
	}
}

// handleBrowserEvent tracks page targets. It runs on the browser event loop
// and must not block.
func (s *Service) handleBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		s.tabs.SetPage(string(e.TargetInfo.TargetID), e.TargetInfo.URL)
		id := e.TargetInfo.TargetID
		common.SafeGo(s.logger, "browser-attach", func() { s.attach(id) })

	case *target.EventTargetInfoChanged:
		if e.TargetInfo != nil && e.TargetInfo.Type == "page" {
			s.tabs.SetPage(string(e.TargetInfo.TargetID), e.TargetInfo.URL)
		}

	case *target.EventTargetDestroyed:
		id := e.TargetID
		common.SafeGo(s.logger, "browser-detach", func() { s.detach(id) })
	}
}

// attach starts network interception on a page target created after startup
func (s *Service) attach(id target.ID) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if _, ok := s.attached[id]; ok || id == s.firstTabID() {
		s.mu.Unlock()
		return
	}
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(id))
	s.attached[id] = tabCancel
	s.mu.Unlock()

	chromedp.ListenTarget(tabCtx, s.tabListener(string(id)))
	if err := chromedp.Run(tabCtx, network.Enable(), page.Enable()); err != nil {
		s.logger.Warn().Err(err).Str("tab", string(id)).Msg("Failed to attach to tab")
		s.detach(id)
		return
	}

	s.logger.Debug().Str("tab", string(id)).Msg("Attached to tab")
}

func (s *Service) detach(id target.ID) {
	s.tabs.Remove(string(id))

	s.mu.Lock()
	cancel, ok := s.attached[id]
	delete(s.attached, id)
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

// tabListener handles events of one tab. An empty originID means the first
// tab, whose id is only known once the browser is running.
func (s *Service) tabListener(originID string) func(ev interface{}) {
	return func(ev interface{}) {
		id := originID
		if id == "" {
			id = string(s.firstTabID())
		}
		s.handleTabEvent(id, ev)
	}
}

func (s *Service) firstTabID() target.ID {
	id, _ := s.firstTab.Load().(target.ID)
	return id
}

// handleTabEvent converts DevTools events into request records
func (s *Service) handleTabEvent(originID string, ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		record := recordFromEvent(e, originID)
		if record == nil {
			return
		}
		if cookie, ok := s.pending.addRequest(string(e.RequestID), record); ok && !hasCookie(record) {
			record.Headers = append(record.Headers, models.Header{Name: "Cookie", Value: cookie})
		}
		s.dispatch(record)

	case *network.EventRequestWillBeSentExtraInfo:
		cookie := headerValue(e.Headers, "Cookie")
		if cookie == "" {
			return
		}
		original, ok := s.pending.addCookie(string(e.RequestID), cookie)
		if !ok || hasCookie(original) {
			return
		}
		s.dispatch(supplementalRecord(original, cookie))

	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			s.tabs.SetPage(originID, e.Frame.URL)
		}
	}
}

// dispatch hands a record to the pipeline without blocking the event loop
func (s *Service) dispatch(record *models.RequestRecord) {
	common.SafeGo(s.logger, "browser-request", func() {
		if _, err := s.capture.HandleRequest(context.Background(), record); err != nil {
			s.logger.Debug().Err(err).Str("url", common.MaskQuery(record.URL)).Msg("Request record rejected")
		}
	})
}

// Close shuts the browser down. Cancels run outside the lock because they
// wait for the browser event loop.
func (s *Service) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancels := make([]context.CancelFunc, 0, len(s.attached)+2)
	for _, cancel := range s.attached {
		cancels = append(cancels, cancel)
	}
	cancels = append(cancels, s.browserCancel, s.allocCancel)
	s.attached = make(map[target.ID]context.CancelFunc)
	s.running = false
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	s.logger.Info().Msg("Browser stopped")
	return nil
}
