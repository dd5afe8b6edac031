package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
)

// DryRun logs every operation and reports success. It lets the service run
// end to end without a browser attached.
type DryRun struct {
	logger *logger.Logger
}

// NewDryRun creates a dry-run driver
func NewDryRun(l *logger.Logger) *DryRun {
	if l == nil {
		l = logger.Or("driver")
	}
	return &DryRun{logger: l}
}

// Start opens a new dry-run session
func (d *DryRun) Start(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &dryRunSession{logger: d.logger, id: fmt.Sprintf("dryrun-%d", time.Now().UnixNano())}
	d.logger.Info("Dry-run session started", logger.Fields{"session": s.id})
	return s, nil
}

type dryRunSession struct {
	logger *logger.Logger
	id     string

	mu     sync.Mutex
	closed bool
	page   string
}

func (s *dryRunSession) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *dryRunSession) Navigate(ctx context.Context, url string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	s.page = url
	s.mu.Unlock()
	s.logger.Info("navigate", logger.Fields{"session": s.id, "url": url})
	return ctx.Err()
}

func (s *dryRunSession) Click(ctx context.Context, selector string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.logger.Info("click", logger.Fields{"session": s.id, "selector": selector})
	return ctx.Err()
}

func (s *dryRunSession) Type(ctx context.Context, selector, text string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.logger.Info("type", logger.Fields{"session": s.id, "selector": selector, "chars": len(text)})
	return ctx.Err()
}

func (s *dryRunSession) Extract(ctx context.Context, selector string) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	s.logger.Info("extract", logger.Fields{"session": s.id, "selector": selector})
	return fmt.Sprintf("[dryrun %s] %s", page, selector), ctx.Err()
}

func (s *dryRunSession) Wait(ctx context.Context, d time.Duration) error {
	if err := s.check(); err != nil {
		return err
	}
	return sleep(ctx, d)
}

func (s *dryRunSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("Dry-run session closed", logger.Fields{"session": s.id})
	return nil
}
