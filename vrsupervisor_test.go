package vrsupervisor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/exolab/vrsupervisor"
	"github.com/exolab/vrsupervisor/pkg/domain"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

func TestFullSessionThroughFacade(t *testing.T) {
	var mu sync.Mutex
	var sent []domain.Command
	capture := ports.BroadcastFunc(func(_ context.Context, _ domain.NetworkTarget, cmd domain.Command) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, cmd)
		return nil
	})

	sup := vrsupervisor.New(
		vrsupervisor.WithBroadcaster(capture),
		vrsupervisor.WithConditionDuration(10*time.Millisecond),
		vrsupervisor.WithValueSets(
			domain.ValueSet{"Baseline", "Social"},
			domain.ValueSet{"Cube", "Avatar"},
		),
	)

	ctx := context.Background()

	res, err := sup.GenerateOrders(ctx)
	if err != nil || !res.Success || len(res.Orders) != 4 {
		t.Fatalf("GenerateOrders: err=%v success=%v n=%d", err, res.Success, len(res.Orders))
	}

	if res, err := sup.SelectOrder(ctx, "ORD-0001"); err != nil || !res.Success {
		t.Fatalf("SelectOrder: %v / %s", err, res.Message)
	}
	if res := sup.Start(ctx); !res.Success {
		t.Fatalf("Start: %s", res.Message)
	}

	// Walk to completion with the short countdown.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("Protocol did not complete in time")
		}
		time.Sleep(15 * time.Millisecond)
		if !sup.Tick(ctx) {
			continue
		}
		if res := sup.Next(ctx); res.Completed {
			break
		}
	}

	status := sup.Status()
	if !status.Completed {
		t.Errorf("Status not completed: %+v", status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) == 0 || sent[0].Command != domain.CmdStartCondition {
		t.Errorf("Broadcast log = %v", sent)
	}
	last := sent[len(sent)-1]
	if last.Command != domain.CmdDisableAll || last.Reason != domain.ReasonProtocolComplete {
		t.Errorf("Final broadcast = %+v", last)
	}
}

func TestFacadeDefaults(t *testing.T) {
	sup := vrsupervisor.New(vrsupervisor.WithDataDir(t.TempDir()))

	// No value sets registered yet: configuration must be rejected cleanly.
	res := sup.Configure(context.Background(), []string{"A"}, []string{"B"})
	if res.Success {
		t.Fatal("Configure succeeded against empty value sets")
	}
}
