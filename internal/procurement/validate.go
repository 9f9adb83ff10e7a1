package procurement

import (
	"fmt"
	"log/slog"
	"time"
)

// Validator runs the document rule sets against a unit of work.
type Validator struct {
	limits Limits
	now    func() time.Time
	logger *slog.Logger
}

// NewValidator builds a Validator with the given limits.
func NewValidator(limits Limits, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{limits: limits, now: time.Now, logger: logger}
}

// Limits exposes the configured ceilings.
func (v *Validator) Limits() Limits {
	return v.limits
}

func (v *Validator) today() time.Time {
	return startOfDay(v.now())
}

func (v *Validator) finish(errs *violations, key string) error {
	v.logger.Debug("document validated",
		slog.String("document", errs.document),
		slog.String("key", key),
		slog.Int("violations", len(errs.list)))
	return errs.err()
}

func item(prefix string, idx int, field string) string {
	return fmt.Sprintf("%s[%d].%s", prefix, idx, field)
}
