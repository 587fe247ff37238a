package fee

import (
	"context"

	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// LogWriter is the logging interface used by fee sources.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Recorder receives fallback observations.
type Recorder interface {
	RecordFeeFallback(asset string)
}

// Fallback wraps a Source and substitutes the default quote when it fails.
type Fallback struct {
	source   Source
	defaults *Defaults
	logger   LogWriter
	recorder Recorder
}

// NewFallback creates a Fallback. logger and recorder may be nil.
func NewFallback(source Source, defaults *Defaults, logger LogWriter, recorder Recorder) *Fallback {
	if defaults == nil {
		defaults = NewDefaults(Overrides{})
	}
	return &Fallback{source: source, defaults: defaults, logger: logger, recorder: recorder}
}

// CurrentFee returns the live quote, or the default quote when the source
// fails or returns an incomplete quote. Cancellation is returned as is.
func (f *Fallback) CurrentFee(ctx context.Context, currency money.Currency) (*Quote, error) {
	var (
		q   *Quote
		err error
	)
	if f.source != nil {
		q, err = f.source.CurrentFee(ctx, currency)
		if err == nil && q != nil && q.Regular != nil && q.Regular.Sign() > 0 {
			return q, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	def, ok := f.defaults.Quote(currency)
	if !ok {
		if err == nil {
			err = coreerr.ErrNotSupported
		}
		return nil, coreerr.Wrap(err, "no default fee for %s", currency.Code)
	}

	if f.logger != nil {
		f.logger.Debug("fee source failed for %s, using default quote: %v", currency.Code, err)
	}
	if f.recorder != nil {
		f.recorder.RecordFeeFallback(currency.Code)
	}
	return def, nil
}
