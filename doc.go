/*
Package vrsupervisor is the control core for VR behavioral experiments: it
generates balanced condition orders, runs the timed session protocol, and
broadcasts scene commands to the VR client over UDP.

# Concept

An experiment pairs two operator-defined value sets (condition types and
object types). The supervisor derives the full balanced set of orders from
them, lets the operator apply one as the session sequence, and then drives
the protocol: each condition runs on a fixed countdown, the VR client is
told what to present via JSON datagrams, and the control panel follows along
through a live status stream.

The architecture is hexagonal. The coordinator (pkg/session) owns the state
and serializes every operation; storage, transport and archiving are ports
(pkg/ports) with swappable adapters, so the same core runs against an
in-memory store in tests and Redis in the lab.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/exolab/vrsupervisor"
		"github.com/exolab/vrsupervisor/pkg/domain"
	)

	func main() {
		sup := vrsupervisor.New(vrsupervisor.WithValueSets(
			domain.ValueSet{"Baseline", "Social"},
			domain.ValueSet{"Cube", "Avatar"},
		))

		ctx := context.Background()
		go sup.Run(ctx) // countdown loop

		if res, err := sup.GenerateOrders(ctx); err != nil || !res.Success {
			log.Fatalf("generate: %v / %s", err, res.Message)
		}
		if res, err := sup.SelectOrder(ctx, "ORD-0001"); err != nil || !res.Success {
			log.Fatalf("select: %v / %s", err, res.Message)
		}
		if res := sup.Start(ctx); !res.Success {
			log.Fatalf("start: %s", res.Message)
		}
	}
*/
package vrsupervisor
