package hub

import (
	"testing"

	"github.com/matheus3301/dmchat/internal/store"
)

func TestRegistryNewestConnectionWins(t *testing.T) {
	reg := NewRegistry(false)
	alice := &store.User{Username: "alice"}
	c1, c2 := newConn("c1"), newConn("c2")

	if first := reg.Register(alice, c1); !first {
		t.Error("first Register should report first")
	}
	if first := reg.Register(alice, c2); first {
		t.Error("second Register should not report first")
	}
	if c, ok := reg.Lookup("alice"); !ok || c != c2 {
		t.Errorf("Lookup = %v, %v, want c2", c, ok)
	}
	if n := reg.Devices("alice"); n != 2 {
		t.Errorf("Devices = %d, want 2", n)
	}

	removed, last := reg.Unregister("alice", c1)
	if !removed || last {
		t.Errorf("Unregister(c1) = %v, %v, want true, false", removed, last)
	}
	removed, _ = reg.Unregister("alice", c1)
	if removed {
		t.Error("repeated Unregister should be a no-op")
	}
	removed, last = reg.Unregister("alice", c2)
	if !removed || !last {
		t.Errorf("Unregister(c2) = %v, %v, want true, true", removed, last)
	}
	if _, ok := reg.Lookup("alice"); ok {
		t.Error("Lookup should miss after last Unregister")
	}
}

func TestRegistryReRegisterMovesToNewest(t *testing.T) {
	reg := NewRegistry(false)
	alice := &store.User{Username: "alice"}
	c1, c2 := newConn("c1"), newConn("c2")
	reg.Register(alice, c1)
	reg.Register(alice, c2)
	reg.Register(alice, c1)

	if c, _ := reg.Lookup("alice"); c != c1 {
		t.Errorf("Lookup = %v, want c1", c)
	}
	if n := reg.Devices("alice"); n != 2 {
		t.Errorf("Devices = %d, want 2", n)
	}
}

func TestRegistryTargets(t *testing.T) {
	alice := &store.User{Username: "alice"}
	c1, c2 := newConn("c1"), newConn("c2")

	latest := NewRegistry(false)
	latest.Register(alice, c1)
	latest.Register(alice, c2)
	if got := latest.Targets("alice"); len(got) != 1 || got[0] != c2 {
		t.Errorf("latest Targets = %v, want [c2]", got)
	}

	all := NewRegistry(true)
	all.Register(alice, c1)
	all.Register(alice, c2)
	if got := all.Targets("alice"); len(got) != 2 {
		t.Errorf("fanout Targets = %v, want both", got)
	}

	if got := latest.Targets("bob"); len(got) != 0 {
		t.Errorf("Targets(offline) = %v, want none", got)
	}
}

func TestRegistryOthersAndStats(t *testing.T) {
	reg := NewRegistry(false)
	reg.Register(&store.User{Username: "bob"}, newConn("b1"))
	reg.Register(&store.User{Username: "alice"}, newConn("a1"))
	reg.Register(&store.User{Username: "alice"}, newConn("a2"))

	if got := reg.Others("alice"); len(got) != 1 || got[0].ID() != "b1" {
		t.Errorf("Others(alice) = %v", got)
	}
	users, conns := reg.Stats()
	if users != 2 || conns != 3 {
		t.Errorf("Stats() = %d, %d, want 2, 3", users, conns)
	}
	if got := reg.snapshot(); len(got) != 3 {
		t.Errorf("snapshot() has %d entries, want 3", len(got))
	}
}
