package messagepipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// WithPayloadValidation wraps a transformer so that frames whose size falls
// outside [minSize, maxSize] are skipped before they are decoded.
func WithPayloadValidation[T any](
	innerTransformer MessageTransformer[T],
	minSize int,
	maxSize int,
	logger zerolog.Logger,
) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		payloadLen := len(msg.Payload)
		if payloadLen < minSize || payloadLen > maxSize {
			logger.Warn().Str("msg_id", msg.ID).Int("payload_size", payloadLen).Msg("Rejecting frame due to invalid payload size.")
			return nil, true, nil
		}
		return innerTransformer(ctx, msg)
	}
}
