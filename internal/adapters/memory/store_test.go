package memory_test

import (
	"testing"

	"github.com/exolab/vrsupervisor/internal/adapters/memory"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunOrderStoreContract(t, memory.NewStore())
}
