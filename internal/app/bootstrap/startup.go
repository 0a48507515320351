// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/app/system/normalize"
	"github.com/dalemusser/learnhub/internal/app/system/timeouts"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup applies the configured timeouts, makes sure the platform owner
// exists and starts the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(appCfg.Timeouts)

	if email := normalize.Email(appCfg.OwnerEmail); email != "" {
		if err := ensureOwner(ctx, deps.MongoDatabase, email, logger); err != nil {
			return fmt.Errorf("ensure owner: %w", err)
		}
	}

	if deps.Jobs != nil {
		deps.Jobs.Start()
	}
	return nil
}

// ensureOwner promotes the user with email to global OWNER, creating the
// account when none exists. New owners sign in with Google; the email is
// linked on their first verified sign-in.
func ensureOwner(ctx context.Context, db *mongo.Database, email string, logger *zap.Logger) error {
	users := userstore.New(db)

	u, err := users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		created, err := users.Create(ctx, models.User{
			Email:      email,
			FullName:   "Platform Owner",
			AuthMethod: models.AuthMethodGoogle,
			GlobalRole: roles.GlobalOwner,
		})
		if err != nil {
			return err
		}
		logger.Info("created platform owner", zap.String("user_id", created.ID.Hex()))
		return nil
	case err != nil:
		return err
	}

	if u.GlobalRole == roles.GlobalOwner {
		return nil
	}
	if err := users.SetGlobalRole(ctx, u.ID, roles.GlobalOwner); err != nil {
		return err
	}
	logger.Info("promoted user to platform owner",
		zap.String("user_id", u.ID.Hex()),
		zap.String("previous_role", u.GlobalRole.String()))
	return nil
}
