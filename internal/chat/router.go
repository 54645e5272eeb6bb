package chat

import (
	"context"
	"io"

	"console-chat/internal/types"
)

// PushSender is the slice of the push connection the router needs.
type PushSender interface {
	TrySendMessage(roomID, content, clientID string) bool
}

// Fallback is the REST surface used when the push channel is unavailable.
type Fallback interface {
	PostMessage(ctx context.Context, roomID, content, clientID string) (*types.APIMessage, error)
	UploadAttachment(ctx context.Context, roomID, filename string, file io.Reader) (*types.APIMessage, error)
}

// Outcome is the typed result of a fallback operation. Failures are recorded
// here rather than propagated, so the dispatcher decides visibility.
type Outcome struct {
	Message *types.APIMessage
	Err     error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Router chooses between push delivery and the REST fallback for outbound
// sends.
type Router struct {
	push PushSender
	rest Fallback
}

func NewRouter(push PushSender, rest Fallback) *Router {
	return &Router{push: push, rest: rest}
}

// TrySend attempts push delivery. It never fails loudly: any unavailability
// returns false and the caller routes through the fallback.
func (r *Router) TrySend(roomID, content, clientID string) bool {
	if r.push == nil {
		return false
	}
	return r.push.TrySendMessage(roomID, content, clientID)
}

// SendViaFallback posts the message over REST.
func (r *Router) SendViaFallback(ctx context.Context, roomID, content, clientID string) Outcome {
	msg, err := r.rest.PostMessage(ctx, roomID, content, clientID)
	return Outcome{Message: msg, Err: err}
}

// UploadAttachment always uses the fallback path; files are never pushed
// over the socket.
func (r *Router) UploadAttachment(ctx context.Context, roomID, filename string, file io.Reader) Outcome {
	msg, err := r.rest.UploadAttachment(ctx, roomID, filename, file)
	return Outcome{Message: msg, Err: err}
}
