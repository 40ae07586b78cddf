package anthropic

import (
	"context"
	"errors"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/resilience"
)

// ClassifyError maps an SDK or transport error onto the resilience
// taxonomy:
//   - 401 and 403 become fatal service errors;
//   - any other API status becomes a retryable service error;
//   - network failures and deadlines become transport errors;
//   - caller cancellation is returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		wrapped := eris.Wrapf(err, "anthropic: create message (%s)", http.StatusText(apiErr.StatusCode))
		if resilience.IsFatalHTTPStatus(apiErr.StatusCode) {
			return resilience.NewFatalServiceError(wrapped, apiErr.StatusCode)
		}
		if !resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			zap.L().Warn("anthropic: non-transient status will be retried",
				zap.Int("status", apiErr.StatusCode),
			)
		}
		return resilience.NewServiceError(wrapped, apiErr.StatusCode)
	}

	if resilience.IsNetworkError(err) {
		return resilience.NewTransportError(eris.Wrap(err, "anthropic: create message"))
	}
	return resilience.NewServiceError(eris.Wrap(err, "anthropic: create message"), 0)
}
