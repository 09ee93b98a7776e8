package ruleset

import (
	"context"
	"testing"
)

func TestIterateAllActions_VisitsEveryAction(t *testing.T) {
	reg := NewRegistry(nil)
	rs1 := NewRuleset("R1")
	rs2 := NewRuleset("R2")
	if err := reg.ConstructFinalize(rs1); err != nil {
		t.Fatal(err)
	}
	if err := reg.ConstructFinalize(rs2); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddRule(rs1, &countingRule{actions: 2}); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddRule(rs2, &countingRule{actions: 3}); err != nil {
		t.Fatal(err)
	}

	var visits int
	err := reg.IterateAllActions(context.Background(), func(context.Context, string) error {
		visits++
		return nil
	})
	if err != nil {
		t.Fatalf("IterateAllActions: %v", err)
	}
	if visits != 5 {
		t.Fatalf("visits = %d, want 5", visits)
	}
}
