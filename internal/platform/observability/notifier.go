package observability

import (
	"context"

	"go.uber.org/zap"

	"github.com/petcorner/storefront/internal/platform/requestctx"
)

// LogNotifier reports customer-facing messages to the request log. Over HTTP the request itself is
// the customer's confirmation, so Confirm answers with AutoConfirm.
type LogNotifier struct {
	Fallback    *zap.Logger
	AutoConfirm bool
}

// NewLogNotifier returns a notifier that confirms every prompt.
func NewLogNotifier(fallback *zap.Logger) *LogNotifier {
	return &LogNotifier{Fallback: fallback, AutoConfirm: true}
}

func (n *LogNotifier) Info(ctx context.Context, message string) {
	n.logger(ctx).Info("notify", zap.String("notice", message))
}

func (n *LogNotifier) Error(ctx context.Context, message string, err error) {
	n.logger(ctx).Warn("notify", zap.String("notice", message), zap.Error(err))
}

func (n *LogNotifier) Confirm(ctx context.Context, prompt string) (bool, error) {
	n.logger(ctx).Info("confirm", zap.String("prompt", prompt), zap.Bool("confirmed", n.AutoConfirm))
	return n.AutoConfirm, nil
}

func (n *LogNotifier) logger(ctx context.Context) *zap.Logger {
	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() && n.Fallback != nil {
		return n.Fallback
	}
	return logger
}
