package context

import (
	"context"
)

type contextKey string

const (
	CtxKeyRequestID      contextKey = "request_id"
	CtxKeyConversationID contextKey = "conversation_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxKeyRequestID, id)
}

func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxKeyConversationID, id)
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func GetConversationID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyConversationID).(string); ok {
		return v
	}
	return ""
}
