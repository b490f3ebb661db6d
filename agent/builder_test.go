package agent

import (
	"testing"

	"github.com/richinex/theseus/tools"
)

func TestBuildRequiresProvider(t *testing.T) {
	if _, err := NewBuilder(nil).Build(); err == nil {
		t.Error("Build without a provider succeeded, want error")
	}
}

func TestBuildRegistersCoreTools(t *testing.T) {
	registry := tools.NewRegistry()

	sched, err := NewBuilder(&scriptedProvider{}).WithRegistry(registry).Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if sched == nil {
		t.Fatal("Build returned nil scheduler")
	}

	for _, name := range []string{tools.PlanToolName, tools.SynthesizeToolName, tools.FallbackToolName} {
		if !registry.Has(name) {
			t.Errorf("built-in tool %s not registered", name)
		}
	}
}

func TestBuildKeepsExistingRegistrations(t *testing.T) {
	registry := tools.NewRegistry()
	custom := &stubTool{name: "gather"}
	if err := registry.Register(custom); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	ownPlan := &stubTool{name: tools.PlanToolName}
	if err := registry.Register(ownPlan); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := NewBuilder(&scriptedProvider{}).WithRegistry(registry).Build(); err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if !registry.Has("gather") {
		t.Error("custom tool lost during build")
	}
	// The pre-registered plan tool is kept, not replaced.
	defs := registry.Definitions(newRun("anything"))
	for _, def := range defs {
		if def.Name == tools.PlanToolName && def.Description != "scheduler test tool" {
			t.Errorf("plan tool description = %q, want the pre-registered one kept", def.Description)
		}
	}
}
