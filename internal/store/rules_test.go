package store

import (
	"context"
	"testing"
	"time"

	"github.com/oakmund/sprout/internal/coinerr"
)

func TestRuleCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &DecayRule{
		Name:          "stale knowledge",
		ThresholdDays: 30,
		DecayRate:     0.2,
		DecayKind:     DecayPercentage,
		Scope:         ScopeAll,
		Priority:      10,
		Active:        true,
	}
	if err := db.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if r.ID == "" {
		t.Fatal("CreateRule did not assign an ID")
	}

	got, err := db.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got == nil || got.Name != "stale knowledge" {
		t.Fatalf("GetRule = %+v, want stale knowledge", got)
	}

	got.DecayRate = 0.5
	got.Urgent = true
	if err := db.UpdateRule(ctx, got); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	again, _ := db.GetRule(ctx, r.ID)
	if again.DecayRate != 0.5 || !again.Urgent {
		t.Errorf("after update: rate = %g urgent = %v, want 0.5/true", again.DecayRate, again.Urgent)
	}

	if err := db.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	gone, err := db.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule after delete: %v", err)
	}
	if gone != nil {
		t.Error("rule still present after delete")
	}
}

func TestRuleNotFound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.DeleteRule(ctx, "nope")
	if !coinerr.IsCode(err, coinerr.CodeNotFound) {
		t.Errorf("DeleteRule err = %v, want NOT_FOUND", err)
	}

	err = db.UpdateRule(ctx, &DecayRule{
		ID: "nope", Name: "x", ThresholdDays: 1, DecayRate: 0.1,
		DecayKind: DecayPercentage, Scope: ScopeAll,
	})
	if !coinerr.IsCode(err, coinerr.CodeNotFound) {
		t.Errorf("UpdateRule err = %v, want NOT_FOUND", err)
	}
}

func TestRuleValidation(t *testing.T) {
	bad := []DecayRule{
		{Name: "", ThresholdDays: 1, DecayRate: 0.1, DecayKind: DecayPercentage, Scope: ScopeAll},
		{Name: "x", ThresholdDays: 0, DecayRate: 0.1, DecayKind: DecayPercentage, Scope: ScopeAll},
		{Name: "x", ThresholdDays: 1, DecayRate: 1.5, DecayKind: DecayPercentage, Scope: ScopeAll},
		{Name: "x", ThresholdDays: 1, DecayRate: 0, DecayKind: DecayFixed, Scope: ScopeAll},
		{Name: "x", ThresholdDays: 1, DecayRate: 0.1, DecayKind: "half-life", Scope: ScopeAll},
		{Name: "x", ThresholdDays: 1, DecayRate: 0.1, DecayKind: DecayPercentage, Scope: ScopeSubject},
		{Name: "x", ThresholdDays: 1, DecayRate: 0.1, DecayKind: DecayPercentage, Scope: ScopeAll, ScopeValue: "math"},
		{Name: "x", ThresholdDays: 1, DecayRate: 0.1, DecayKind: DecayPercentage, Scope: "galaxy"},
	}
	for i := range bad {
		if err := bad[i].Validate(); !coinerr.IsCode(err, coinerr.CodeValidation) {
			t.Errorf("case %d: err = %v, want VALIDATION", i, err)
		}
	}
}

func TestRuleMatches(t *testing.T) {
	all := DecayRule{Scope: ScopeAll}
	if !all.Matches("math", "drill") {
		t.Error("scope all should match everything")
	}

	subj := DecayRule{Scope: ScopeSubject, ScopeValue: "math"}
	if !subj.Matches("math", "drill") || subj.Matches("history", "drill") {
		t.Error("subject scope mismatch")
	}

	tt := DecayRule{Scope: ScopeTaskType, ScopeValue: "drill"}
	if !tt.Matches("math", "drill") || tt.Matches("math", "essay") {
		t.Error("task_type scope mismatch")
	}
}

func TestListRulesOrderAndFilter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mk := func(name string, priority int, active bool) {
		if err := db.CreateRule(ctx, &DecayRule{
			Name: name, ThresholdDays: 7, DecayRate: 0.1,
			DecayKind: DecayPercentage, Scope: ScopeAll,
			Priority: priority, Active: active,
		}); err != nil {
			t.Fatalf("CreateRule %s: %v", name, err)
		}
	}
	mk("low", 1, true)
	mk("high", 9, true)
	mk("off", 5, false)

	rules, err := db.ListRules(ctx, true)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("active rules = %d, want 2", len(rules))
	}
	if rules[0].Name != "high" || rules[1].Name != "low" {
		t.Errorf("order = [%s %s], want [high low]", rules[0].Name, rules[1].Name)
	}

	all, err := db.ListRules(ctx, false)
	if err != nil {
		t.Fatalf("ListRules all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all rules = %d, want 3", len(all))
	}
}

func TestSetRuleNextRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &DecayRule{
		Name: "x", ThresholdDays: 7, DecayRate: 0.1,
		DecayKind: DecayPercentage, Scope: ScopeAll, Active: true,
	}
	if err := db.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	at := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	if err := db.SetRuleNextRun(ctx, r.ID, at); err != nil {
		t.Fatalf("SetRuleNextRun: %v", err)
	}
	got, _ := db.GetRule(ctx, r.ID)
	if got.NextRunAt != at.UnixMilli() {
		t.Errorf("NextRunAt = %d, want %d", got.NextRunAt, at.UnixMilli())
	}
}
