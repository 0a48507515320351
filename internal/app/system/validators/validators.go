// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/domain/roles"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the access-control collections if missing and attaches
// JSON-Schema validators that pin role, plan and capability fields to their
// closed sets. Servers without collMod support (some DocumentDB versions)
// are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
			return
		}
		logger.Debug("validator ensured", zap.String("collection", coll))
	}

	ensure("users", usersSchema())
	ensure("tenants", tenantsSchema())
	ensure("memberships", membershipsSchema())
	ensure("permission_grants", grantsSchema())
	ensure("oauth_states", nil)
	ensure("invites", invitesSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) error {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err == nil && len(names) > 0 {
		return nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return nil
		}
		return err
	}
	logger.Info("created collection", zap.String("collection", name))
	return nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	return db.RunCommand(ctx, cmd).Err()
}

/* ------------------------- error helpers ------------------------- */

func commandMatches(err error, code int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandMatches(err, 48, "already exists", "namespace exists")
}

func isNoSuchCommand(err error) bool {
	return commandMatches(err, 59, "no such command")
}

func isNotImplemented(err error) bool {
	return commandMatches(err, 115, "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func tenantRoleEnum() bson.A {
	out := bson.A{}
	for _, r := range roles.AllTenantRoles() {
		out = append(out, r.String())
	}
	return out
}

func globalRoleEnum() bson.A {
	out := bson.A{}
	for _, r := range roles.AllGlobalRoles() {
		out = append(out, r.String())
	}
	return out
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "email_ci", "auth_method", "global_role"},
			"properties": bson.M{
				"email":       bson.M{"bsonType": "string", "minLength": 3},
				"email_ci":    bson.M{"bsonType": "string", "minLength": 3},
				"auth_method": bson.M{"enum": bson.A{models.AuthMethodPassword, models.AuthMethodGoogle}},
				"global_role": bson.M{"enum": globalRoleEnum()},
				"deleted_at":  bson.M{"bsonType": bson.A{"date", "null"}},
			},
		},
	}
}

func tenantsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"slug", "plan", "status"},
			"properties": bson.M{
				"slug":       bson.M{"bsonType": "string", "minLength": 1},
				"plan":       bson.M{"enum": bson.A{string(models.PlanFree), string(models.PlanTeam), string(models.PlanBusiness), string(models.PlanEnterprise)}},
				"status":     bson.M{"enum": bson.A{models.TenantActive, models.TenantArchived}},
				"seat_limit": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
			},
		},
	}
}

func membershipsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "tenant_id", "role"},
			"properties": bson.M{
				"user_id":   bson.M{"bsonType": "objectId"},
				"tenant_id": bson.M{"bsonType": "objectId"},
				"role":      bson.M{"enum": tenantRoleEnum()},
			},
		},
	}
}

func grantsSchema() bson.M {
	caps := bson.A{}
	for _, c := range models.AllCapabilities {
		caps = append(caps, string(c))
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "tenant_id", "capability", "scope"},
			"properties": bson.M{
				"user_id":    bson.M{"bsonType": "objectId"},
				"tenant_id":  bson.M{"bsonType": "objectId"},
				"capability": bson.M{"enum": caps},
				"scope":      bson.M{"bsonType": bson.A{"object", "null"}},
			},
		},
	}
}

func invitesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"token_hash", "tenant_id", "email_ci", "role", "expires_at"},
			"properties": bson.M{
				"token_hash":  bson.M{"bsonType": "string", "minLength": 1},
				"tenant_id":   bson.M{"bsonType": "objectId"},
				"email_ci":    bson.M{"bsonType": "string", "minLength": 3},
				"role":        bson.M{"enum": tenantRoleEnum()},
				"expires_at":  bson.M{"bsonType": "date"},
				"accepted_at": bson.M{"bsonType": bson.A{"date", "null"}},
			},
		},
	}
}
