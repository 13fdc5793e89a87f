package constants

import "time"

const (
	ExternalAPITimeout = 15 * time.Second
	DatabaseTimeout    = 5 * time.Second
	PollEntityTimeout  = 60 * time.Second
	SendTimeout        = 15 * time.Second
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	OAuthTokenSlack  = 30 * time.Second
	APIRetryAttempts = 3
	APIRetryBase     = 500 * time.Millisecond
)

// Digest rendering limits. The message is hard-truncated to
// DigestMaxMessageLength; each section shows at most its row limit plus an
// overflow marker.
const (
	DigestMaxMessageLength = 3900
	DigestTopRowsLimit     = 10
	DigestTopMoversLimit   = 5
	DigestMilestonesLimit  = 8
	DigestWarningsLimit    = 8
)

const (
	ShutdownTimeout = 5 * time.Second
)
