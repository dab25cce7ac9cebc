package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeProgram subscribes to account changes of all accounts owned
	// by programID.
	SubscribeProgram(ctx context.Context, programID string) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// AccountNotification represents a programSubscribe message.
type AccountNotification struct {
	Pubkey  string
	Slot    int64
	Account AccountInfo
}
