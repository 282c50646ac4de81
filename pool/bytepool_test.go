package pool_test

import (
	"testing"

	"github.com/momentics/hioload-sock/pool"
)

func TestBytePoolReuse(t *testing.T) {
	bp := pool.NewBytePool(128)
	b1 := bp.GetBuffer()
	if len(b1) != 128 {
		t.Fatalf("len = %d, want 128", len(b1))
	}
	bp.PutBuffer(b1[:10])
	b2 := bp.GetBuffer()
	if len(b2) != 128 {
		t.Errorf("len after reuse = %d, want 128", len(b2))
	}
	if s := bp.Stats(); s.Gets != 2 || s.Puts != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestBytePoolDropsSmallBuffers(t *testing.T) {
	bp := pool.NewBytePool(64)
	bp.PutBuffer(make([]byte, 8))
	if s := bp.Stats(); s.Puts != 0 {
		t.Errorf("small buffer accepted: %+v", s)
	}
}

func TestManagerSharesPools(t *testing.T) {
	m := pool.NewManager()
	if m.GetPool(512) != m.GetPool(512) {
		t.Error("same size returned different pools")
	}
	if m.GetPool(512) == m.GetPool(1024) {
		t.Error("different sizes share a pool")
	}
	if len(m.Stats()) != 2 {
		t.Errorf("stats has %d pools, want 2", len(m.Stats()))
	}
	if pool.DefaultPool(256) != pool.DefaultManager().GetPool(256) {
		t.Error("default pool not shared")
	}
}
