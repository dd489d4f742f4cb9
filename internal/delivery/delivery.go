package delivery

import "context"

// StatusMessage is the ephemeral status line a job owns while it renders.
// Exactly one job mutates a given message.
type StatusMessage interface {
	Edit(ctx context.Context, content string) error
	Delete(ctx context.Context) error
}

// Messenger is the delivery-channel surface consumed by the pipeline.
type Messenger interface {
	// ResolveChannel verifies the configured channel exists and is reachable.
	ResolveChannel(ctx context.Context, channelID string) error
	// PostStatus posts a status line and returns a handle for later edits.
	PostStatus(ctx context.Context, channelID, content string) (StatusMessage, error)
	// SendFile uploads the artifact with a caption. The transport may reject
	// it (size, type); that surfaces as an error.
	SendFile(ctx context.Context, channelID, caption, filename, path string) error
}
