package pagehost

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// SimulatedMessage is reported for every action a StaticHost accepts.
const SimulatedMessage = "Action simulation completed"

// StaticHost serves a fixed document. Actions are logged and reported as
// simulated; the markup never changes.
type StaticHost struct {
	src    Source
	logger *zap.Logger
	now    func() time.Time
}

// NewStaticHost wraps markup loaded from pageURL.
func NewStaticHost(markup, pageURL string, logger *zap.Logger) *StaticHost {
	return &StaticHost{
		src:    Source{HTML: markup, URL: pageURL},
		logger: logger.Named("static_host"),
		now:    time.Now,
	}
}

// LoadStaticHost reads an HTML file saved from pageURL.
func LoadStaticHost(path, pageURL string, logger *zap.Logger) (*StaticHost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page file: %w", err)
	}
	return NewStaticHost(string(data), pageURL, logger), nil
}

func (h *StaticHost) Document(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	if h.src.HTML == "" {
		return Source{}, ErrNoPage
	}
	return h.src, nil
}

func (h *StaticHost) Execute(ctx context.Context, action schemas.Action) (schemas.DispatchResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.DispatchResult{}, err
	}
	h.logger.Info("Simulating page action.",
		zap.String("type", string(action.Type)),
		zap.String("selector", action.Selector),
		zap.String("label", action.Label))
	return schemas.DispatchResult{Success: true, Message: SimulatedMessage}, nil
}

func (h *StaticHost) Status(ctx context.Context) (schemas.PageStatus, error) {
	if err := ctx.Err(); err != nil {
		return schemas.PageStatus{}, err
	}
	return StatusFromSource(h.src, true, h.now()), nil
}
