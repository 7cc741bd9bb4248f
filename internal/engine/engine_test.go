package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"faultline/internal/config"
	"faultline/internal/db"
	"faultline/internal/domain"
	"faultline/internal/engine"
	"faultline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("site-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitSite(ctx, "site-1", "Test Site", "", "admin-1"); err != nil {
		t.Fatalf("init site: %v", err)
	}
	for actor, role := range map[string]domain.Role{
		"admin-1":   domain.RoleAdmin,
		"maint-1":   domain.RoleMaintenance,
		"svc-1":     domain.RoleServiceCompany,
		"housing-1": domain.RoleHousingCompany,
	} {
		if _, err := eng.GrantRole(ctx, actor, role, "site-1", "admin-1"); err != nil {
			t.Fatalf("grant %s: %v", actor, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createReport(t *testing.T, actorID string) domain.FaultReport {
	t.Helper()
	rep, err := env.Engine.CreateReport(env.Ctx, engine.ReportCreateOptions{
		SiteID:  "site-1",
		Title:   "Leaking radiator",
		Urgency: "normal",
		ActorID: actorID,
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return rep
}

func TestReportStartsCreated(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	if rep.Status != domain.StatusCreated {
		t.Fatalf("expected created, got %s", rep.Status)
	}
	if rep.CreatedBy != "res-1" {
		t.Fatalf("unexpected owner %s", rep.CreatedBy)
	}
}

func TestFullLifecyclePath(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	steps := []struct {
		target domain.Status
		actor  string
	}{
		{domain.StatusOpen, "maint-1"},
		{domain.StatusInProgress, "svc-1"},
		{domain.StatusWaiting, "svc-1"},
		{domain.StatusInProgress, "svc-1"},
		{domain.StatusCompleted, "svc-1"},
		{domain.StatusIncomplete, "housing-1"},
		{domain.StatusInProgress, "svc-1"},
		{domain.StatusCompleted, "svc-1"},
		{domain.StatusResolved, "housing-1"},
		{domain.StatusClosed, "res-1"},
	}
	for _, step := range steps {
		var err error
		rep, err = env.Engine.SetStatus(env.Ctx, rep.ID, step.target, step.actor)
		if err != nil {
			t.Fatalf("%s by %s: %v", step.target, step.actor, err)
		}
		if rep.Status != step.target {
			t.Fatalf("expected %s, got %s", step.target, rep.Status)
		}
	}
}

func TestGraphCheckBeforeRoleCheck(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	// created -> closed is not an edge for anyone, even admin
	_, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusClosed, "admin-1")
	var invalid engine.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	// created -> open is an edge but residents may not traverse it
	_, err = env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusOpen, "res-1")
	var forbidden engine.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if forbidden.Role != domain.RoleResident {
		t.Fatalf("expected resident role in error, got %s", forbidden.Role)
	}
}

func TestOwnerCloseAtOpen(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusOpen, "maint-1"); err != nil {
		t.Fatal(err)
	}
	// non-owner resident may not cancel
	if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusCancelled, "res-2"); err == nil {
		t.Fatalf("expected non-owner cancel to fail")
	}
	// owner may
	rep, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusCancelled, "res-1")
	if err != nil {
		t.Fatalf("owner close: %v", err)
	}
	if rep.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", rep.Status)
	}
}

func TestTerminalStatusRejectsEverything(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusCancelled, "res-1"); err != nil {
		t.Fatal(err)
	}
	for _, target := range domain.Statuses {
		if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, target, "admin-1"); err == nil {
			t.Fatalf("expected cancelled -> %s to fail", target)
		}
	}
}

func TestActionsMatchSetStatus(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusOpen, "maint-1"); err != nil {
		t.Fatal(err)
	}
	actions, err := env.Engine.Actions(env.Ctx, rep.ID, "svc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) == 0 {
		t.Fatalf("expected actions for service company at open")
	}
	for _, a := range actions {
		if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, a.Target, "svc-1"); err != nil {
			t.Fatalf("offered action %s rejected: %v", a.Target, err)
		}
		// rewind for the next candidate
		if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE reports SET status='open' WHERE id=?`, rep.ID); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUrgencyMustBeInCatalog(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateReport(env.Ctx, engine.ReportCreateOptions{
		SiteID:  "site-1",
		Title:   "Broken lock",
		Urgency: "apocalyptic",
		ActorID: "res-1",
	})
	if err == nil {
		t.Fatalf("expected unknown urgency to fail")
	}
}

func TestCommentsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	c, err := env.Engine.AddComment(env.Ctx, rep.ID, "plumber scheduled for monday", "housing-1")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if c.ID == "" {
		t.Fatalf("expected comment id")
	}
	list, err := env.Engine.ListComments(env.Ctx, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Body != "plumber scheduled for monday" {
		t.Fatalf("unexpected comments %+v", list)
	}
}

func TestRoleGrantAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.GrantRole(env.Ctx, "new-1", domain.RoleMaintenance, "site-1", "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Role != domain.RoleMaintenance {
		t.Fatalf("unexpected role %s", a.Role)
	}
	who, err := env.Engine.WhoAmI(env.Ctx, "new-1")
	if err != nil || who.Role != domain.RoleMaintenance {
		t.Fatalf("whoami after grant: %v %s", err, who.Role)
	}
	if err := env.Engine.RevokeRole(env.Ctx, "new-1", "site-1", "admin-1"); err != nil {
		t.Fatal(err)
	}
	who, err = env.Engine.WhoAmI(env.Ctx, "new-1")
	if err != nil || who.Role != domain.RoleResident {
		t.Fatalf("expected resident after revoke, got %s (%v)", who.Role, err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, plaintext, err := env.Engine.CreateAPIKey(env.Ctx, "svc-1", "ci")
	if err != nil {
		t.Fatal(err)
	}
	if plaintext == "" || key.KeyHash == plaintext {
		t.Fatalf("expected hashed storage")
	}
	keys, err := env.Engine.ListAPIKeys(env.Ctx, "svc-1")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list keys: %v %d", err, len(keys))
	}
	if err := env.Engine.DeleteAPIKey(env.Ctx, key.ID); err != nil {
		t.Fatal(err)
	}
	keys, _ = env.Engine.ListAPIKeys(env.Ctx, "svc-1")
	if len(keys) != 0 {
		t.Fatalf("expected empty after delete")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	rep := env.createReport(t, "res-1")
	if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusOpen, "maint-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, rep.ID, domain.StatusInProgress, "svc-1"); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, rep.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 3 {
		t.Fatalf("expected create plus two status events, got %d", count)
	}
}
