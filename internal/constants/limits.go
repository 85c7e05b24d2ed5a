package constants

import "time"

const (
	// IDRandomBytes is the number of random bytes behind every prefixed ID.
	IDRandomBytes = 12

	// MaxAttachmentBytes is the product limit for a single message attachment (10 MiB).
	MaxAttachmentBytes int64 = 10 << 20

	// MaxMessageContentLength is counted in runes after trimming.
	MaxMessageContentLength = 4000

	WSBroadcastBufferSize  = 256
	WSClientSendBufferSize = 64

	DefaultConversationPollInterval = 10 * time.Second
	DefaultThreadPollInterval       = 5 * time.Second
)
