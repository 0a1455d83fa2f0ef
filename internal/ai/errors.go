package ai

import "github.com/kiranshivaraju/logresolver/internal/ai/transport"

var (
	ErrProviderUnavailable = transport.ErrProviderUnavailable
	ErrInferenceTimeout    = transport.ErrInferenceTimeout
	ErrInvalidResponse     = transport.ErrInvalidResponse
	ErrRateLimited         = transport.ErrRateLimited
)
