package tenantstore_test

import (
	"errors"
	"testing"
	"time"

	tenantstore "github.com/dalemusser/learnhub/internal/app/store/tenants"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"github.com/dalemusser/learnhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Tenant{Name: "  Acme <b>Corp</b> ", Slug: "Acme Corp"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if created.Slug != "acme-corp" {
		t.Errorf("expected folded slug 'acme-corp', got %q", created.Slug)
	}
	if created.Name != "Acme Corp" {
		t.Errorf("expected sanitized name, got %q", created.Name)
	}
	if created.Plan != models.PlanFree {
		t.Errorf("expected default plan FREE, got %q", created.Plan)
	}
	if created.Status != models.TenantActive {
		t.Errorf("expected status active, got %q", created.Status)
	}
}

func TestStore_Create_DuplicateSlug(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.Tenant{Name: "One", Slug: "acme"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := store.Create(ctx, models.Tenant{Name: "Two", Slug: "ACME"})
	if !errors.Is(err, tenantstore.ErrDuplicateSlug) {
		t.Errorf("expected ErrDuplicateSlug, got %v", err)
	}
}

func TestStore_Create_InvalidSlug(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.Tenant{Name: "Acme", Slug: "!!!"})
	if !errors.Is(err, tenantstore.ErrInvalidSlug) {
		t.Errorf("expected ErrInvalidSlug, got %v", err)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if !errors.Is(err, tenantstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_FirstActive_SkipsArchived(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.FirstActive(ctx); !errors.Is(err, tenantstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty db, got %v", err)
	}

	fx := testutil.NewFixtures(t, db)
	fx.CreateTenantWithStatus(ctx, "old-archived", models.TenantArchived)
	time.Sleep(5 * time.Millisecond)
	want := fx.CreateTenant(ctx, "older")
	time.Sleep(5 * time.Millisecond)
	fx.CreateTenant(ctx, "newer")

	got, err := store.FirstActive(ctx)
	if err != nil {
		t.Fatalf("FirstActive failed: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("expected oldest active tenant %s, got %s", want.Slug, got.Slug)
	}
}

func TestStore_ArchiveRestore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tn := testutil.NewFixtures(t, db).CreateTenant(ctx, "acme")

	if err := store.Archive(ctx, tn.ID); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	got, _ := store.GetByID(ctx, tn.ID)
	if !got.IsArchived() || got.ArchivedAt == nil {
		t.Error("expected tenant to be archived with a timestamp")
	}
	active, _ := store.List(ctx, false)
	if len(active) != 0 {
		t.Errorf("expected archived tenant hidden from active list, got %d", len(active))
	}

	if err := store.Restore(ctx, tn.ID); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	got, _ = store.GetByID(ctx, tn.ID)
	if got.IsArchived() || got.ArchivedAt != nil {
		t.Error("expected tenant to be active again")
	}

	if err := store.Archive(ctx, primitive.NewObjectID()); !errors.Is(err, tenantstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound archiving missing tenant, got %v", err)
	}
}

func TestStore_UpdateFeaturesAndGamification(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tn := testutil.NewFixtures(t, db).CreateTenant(ctx, "acme")

	if err := store.UpdateFeatures(ctx, tn.ID, map[string]bool{"radar": true}); err != nil {
		t.Fatalf("UpdateFeatures failed: %v", err)
	}
	g := models.Gamification{
		XPRules: map[string]int{"module_completed": 50},
		Ranks:   []models.Rank{{Name: "Rookie", MinXP: 0}, {Name: "Pro", MinXP: 500}},
	}
	if err := store.UpdateGamification(ctx, tn.ID, g); err != nil {
		t.Fatalf("UpdateGamification failed: %v", err)
	}

	got, err := store.GetByID(ctx, tn.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.Features["radar"] {
		t.Error("expected radar feature enabled")
	}
	if got.Gamification.XPRules["module_completed"] != 50 || len(got.Gamification.Ranks) != 2 {
		t.Errorf("unexpected gamification %+v", got.Gamification)
	}
}

func TestStore_ListActiveByIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	a := fx.CreateTenant(ctx, "a")
	b := fx.CreateTenantWithStatus(ctx, "b", models.TenantArchived)

	got, err := store.ListActiveByIDs(ctx, []primitive.ObjectID{a.ID, b.ID})
	if err != nil {
		t.Fatalf("ListActiveByIDs failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("expected only the active tenant, got %+v", got)
	}
}

func TestStore_TouchSeats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := tenantstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tn := testutil.NewFixtures(t, db).CreateTenant(ctx, "acme")
	for i := 0; i < 2; i++ {
		if err := store.TouchSeats(ctx, tn.ID); err != nil {
			t.Fatalf("TouchSeats failed: %v", err)
		}
	}
	var doc struct {
		SeatVersion int64 `bson:"seat_version"`
	}
	if err := db.Collection("tenants").FindOne(ctx, bson.M{"_id": tn.ID}).Decode(&doc); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc.SeatVersion != 2 {
		t.Errorf("expected seat_version 2, got %d", doc.SeatVersion)
	}
	if _, err := store.GetByID(ctx, tn.ID); err != nil {
		t.Errorf("expected tenant to still decode, got %v", err)
	}

	if err := store.TouchSeats(ctx, primitive.NewObjectID()); !errors.Is(err, tenantstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
