// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup and by test setup. Each collection's set is
reconciled idempotently; problems are aggregated so startup fails with the
full picture.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string
	for _, spec := range collections() {
		if err := ensureIndexSet(ctx, db.Collection(spec.name), spec.models, logger); err != nil {
			problems = append(problems, spec.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type collectionSpec struct {
	name   string
	models []mongo.IndexModel
}

func idx(name string, unique bool, keys ...string) mongo.IndexModel {
	d := bson.D{}
	for _, k := range keys {
		dir := 1
		if strings.HasPrefix(k, "-") {
			dir = -1
			k = k[1:]
		}
		d = append(d, bson.E{Key: k, Value: dir})
	}
	opts := options.Index().SetName(name)
	if unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{Keys: d, Options: opts}
}

func collections() []collectionSpec {
	oauthTTL := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_oauth_ttl"),
	}
	return []collectionSpec{
		{"users", []mongo.IndexModel{
			idx("uniq_users_email_ci", true, "email_ci"),
			idx("idx_users_auth_return", false, "auth_method", "auth_return_id"),
		}},
		{"tenants", []mongo.IndexModel{
			idx("uniq_tenants_slug", true, "slug"),
			idx("idx_tenants_status_created", false, "status", "created_at"),
			idx("idx_tenants_name_ci", false, "name_ci"),
		}},
		{"memberships", []mongo.IndexModel{
			idx("uniq_memberships_user_tenant", true, "user_id", "tenant_id"),
			idx("idx_memberships_tenant", false, "tenant_id", "created_at"),
		}},
		{"permission_grants", []mongo.IndexModel{
			idx("uniq_grants_user_tenant_cap", true, "user_id", "tenant_id", "capability"),
			idx("idx_grants_tenant", false, "tenant_id", "user_id"),
		}},
		{"groups", []mongo.IndexModel{
			idx("uniq_groups_tenant_name_ci", true, "tenant_id", "name_ci"),
		}},
		{"group_members", []mongo.IndexModel{
			idx("uniq_group_members_group_user", true, "group_id", "user_id"),
			idx("idx_group_members_user_tenant", false, "user_id", "tenant_id", "group_id"),
		}},
		{"modules", []mongo.IndexModel{
			idx("idx_modules_tenant", false, "tenant_id", "status"),
		}},
		{"module_groups", []mongo.IndexModel{
			idx("uniq_module_groups", true, "module_id", "group_id", "tenant_id"),
			idx("idx_module_groups_tenant_module", false, "tenant_id", "module_id"),
		}},
		{"audit_events", []mongo.IndexModel{
			idx("idx_audit_tenant_ts", false, "tenant_id", "-timestamp"),
			idx("idx_audit_user_ts", false, "user_id", "-timestamp"),
			idx("idx_audit_category_type_ts", false, "category", "event_type", "-timestamp"),
		}},
		{"oauth_states", []mongo.IndexModel{
			idx("uniq_oauth_state", true, "state"),
			oauthTTL,
		}},
		{"invites", []mongo.IndexModel{
			idx("uniq_invites_token_hash", true, "token_hash"),
			idx("idx_invites_tenant_pending", false, "tenant_id", "accepted_at", "expires_at"),
		}},
	}
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                      */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	existing := map[string]existingIndex{}
	for cur.Next(ctx) {
		var ix existingIndex
		if err := cur.Decode(&ix); err != nil {
			return nil, err
		}
		existing[keySig(ix.Key)] = ix
	}
	return existing, cur.Err()
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, logger *zap.Logger) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		// A collection that does not exist yet has no indexes to reconcile.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		name := *m.Options.Name
		unique := boolValue(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))

		if ex, ok := existing[sig]; ok {
			if boolValue(ex.Unique) == unique && ex.Name == name {
				continue
			}
			// Same keys under a different name or uniqueness: drop and recreate.
			logger.Info("replacing index",
				zap.String("collection", coll.Name()),
				zap.String("from", ex.Name),
				zap.String("to", name),
				zap.String("keys", sig))
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s: %v", name, ex.Name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if unique && mongo.IsDuplicateKeyError(err) {
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index (duplicates present on %s)", name, sig))
				continue
			}
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		logger.Info("index created",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
