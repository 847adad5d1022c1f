package service

import (
	"context"
	"errors"

	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
)

// storeErrorMapping maps a dependency error onto a domain code and message.
type storeErrorMapping struct {
	match func(error) bool
	code  dErrors.Code
	msg   string
}

var storeErrorMappings = []storeErrorMapping{
	{func(err error) bool { return errors.Is(err, sentinel.ErrNotFound) }, dErrors.CodeNotFound, "pending registration not found"},
	{isUnavailable, dErrors.CodeUnavailable, dErrors.UnavailableMessage},
}

func isUnavailable(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// translate converts a store or adapter error into a domain error exactly once.
// Domain errors pass through unchanged.
func (s *Service) translate(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	for _, m := range storeErrorMappings {
		if m.match(err) {
			if m.code == dErrors.CodeUnavailable {
				s.metrics.IncrementStoreUnavailable(op)
				s.logger.WarnContext(ctx, "pending store unavailable", "operation", op, "error", err)
			}
			return dErrors.Wrap(err, m.code, m.msg)
		}
	}
	s.logger.ErrorContext(ctx, "pending operation failed", "operation", op, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
}
