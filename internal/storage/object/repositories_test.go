package object

import (
	"testing"

	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/storage/storagetest"
)

func TestRepositories(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) domain.Repositories {
		store, err := NewLocalStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewLocalStore() error = %v", err)
		}
		return NewRepositories(store)
	})
}
