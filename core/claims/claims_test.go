package claims

import (
	"context"
	"testing"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()

	if _, err := Get(ctx); err == nil {
		t.Fatal("expected an error for a context without claims")
	}
	if IsAdmin(ctx) {
		t.Fatal("expected no role without claims")
	}

	if IsAdmin(Set(ctx, Claims{LearnerID: "l1", Role: RoleLearner})) {
		t.Fatal("expected a learner not to be admin")
	}

	ctx = Set(ctx, Claims{LearnerID: "l1", Role: RoleAdmin})

	if !IsAdmin(ctx) {
		t.Fatal("expected admin")
	}
	c, err := Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.LearnerID != "l1" {
		t.Fatalf("expected learner %q, but got %q", "l1", c.LearnerID)
	}
}
