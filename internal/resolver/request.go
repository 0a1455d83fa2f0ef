package resolver

import (
	"strings"

	"github.com/google/uuid"
)

// MaxLogTextBytes bounds ad-hoc log text.
const MaxLogTextBytes = 64 * 1024

// Mode is the request variant.
type Mode string

const (
	ModeByReference Mode = "by_reference"
	ModeAdHoc       Mode = "ad_hoc"
)

// Request asks for a resolution of either a stored log record (LogID) or a
// piece of raw log text (LogText). Exactly one must be set. TopK of zero
// means the configured default.
type Request struct {
	LogID       uuid.UUID `json:"log_id,omitempty"`
	LogText     string    `json:"log_text,omitempty"`
	ServiceName string    `json:"service_name,omitempty"`
	TopK        int       `json:"top_k,omitempty"`
}

// validRequest is a Request that passed validation; exactly one branch is set.
type validRequest struct {
	mode    Mode
	logID   uuid.UUID
	text    string
	service string
	topK    int
}

func (r Request) validate(defaultTopK, maxTopK int) (validRequest, error) {
	hasID := r.LogID != uuid.Nil
	text := strings.TrimSpace(r.LogText)
	hasText := text != ""

	switch {
	case hasID && hasText:
		return validRequest{}, validationError("provide exactly one of log_id or log_text, not both")
	case !hasID && !hasText:
		return validRequest{}, validationError("one of log_id or log_text is required")
	}

	topK := r.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return validRequest{}, validationError("top_k must be between 1 and %d", maxTopK)
	}

	if hasID {
		return validRequest{mode: ModeByReference, logID: r.LogID, topK: topK}, nil
	}

	if len(text) > MaxLogTextBytes {
		return validRequest{}, validationError("log_text exceeds %d bytes", MaxLogTextBytes)
	}
	return validRequest{
		mode:    ModeAdHoc,
		text:    text,
		service: strings.TrimSpace(r.ServiceName),
		topK:    topK,
	}, nil
}
