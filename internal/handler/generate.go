package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	ctxutil "github.com/awsl-project/appforge/internal/context"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/jsonx"
	"github.com/awsl-project/appforge/internal/service"
	"github.com/awsl-project/appforge/internal/sse"
)

// 请求体上限（包含完整的现有文件集）
const maxGenerateBody = 16 << 20

// GenerateHandler streams one generation run as server-sent events
type GenerateHandler struct {
	svc     *service.GenerateService
	timeout time.Duration
}

// NewGenerateHandler creates a new generate handler. A zero timeout leaves
// the run bounded only by the client connection.
func NewGenerateHandler(svc *service.GenerateService, timeout time.Duration) *GenerateHandler {
	return &GenerateHandler{
		svc:     svc,
		timeout: timeout,
	}
}

func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGenerateBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}

	stream := sse.NewWriter(w)
	defer stream.Close()

	var req domain.GenerationRequest
	if err := jsonx.Unmarshal(body, &req); err != nil {
		stream.Send(service.EventError, map[string]string{"message": "Invalid request body"})
		return
	}

	ctx := r.Context()
	if req.ConversationID != "" {
		ctx = ctxutil.WithConversationID(ctx, req.ConversationID)
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	_, err = h.svc.Generate(ctx, &req, service.EmitterFunc(stream.Send))
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		// 超时不是客户端断开，仍然告知客户端
		log.Printf("[Generate] Request %s timed out after %s", ctxutil.GetRequestID(r.Context()), h.timeout)
		stream.Send(service.EventError, map[string]string{"message": "Generation timed out"})
	case errors.Is(err, context.Canceled):
		log.Printf("[Generate] Request %s cancelled by client", ctxutil.GetRequestID(r.Context()))
	default:
		log.Printf("[Generate] Request %s failed: %v", ctxutil.GetRequestID(r.Context()), err)
	}
}
