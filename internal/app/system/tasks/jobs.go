// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	invitestore "github.com/dalemusser/learnhub/internal/app/store/invites"
	"github.com/dalemusser/learnhub/internal/app/store/oauthstate"
	"github.com/dalemusser/learnhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// OAuthStateCleanupJob removes expired OAuth state tokens. It backs up the
// TTL index.
func OAuthStateCleanupJob(stateStore *oauthstate.Store, logger *zap.Logger) Job {
	return Job{
		Name:     "oauth-state-cleanup",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			count, err := stateStore.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired OAuth states", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// InviteCleanupJob removes invites that expired unaccepted.
func InviteCleanupJob(invites *invitestore.Store, logger *zap.Logger) Job {
	return Job{
		Name:     "invite-cleanup",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := invites.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired invites", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// LoginLimiterSweepJob drops idle rate-limit buckets so the limiter's
// memory stays bounded by recent traffic.
func LoginLimiterSweepJob(limiter *ratelimit.LoginLimiter, logger *zap.Logger) Job {
	return Job{
		Name:     "login-limiter-sweep",
		Interval: 2 * time.Minute,
		Run: func(ctx context.Context) error {
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("swept idle rate-limit buckets", zap.Int("count", n))
			}
			return nil
		},
	}
}
