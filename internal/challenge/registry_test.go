package challenge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndSnapshot(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.IsEmpty())

	r.Add(Active{Token: "tok-a", KeyAuthorization: "key-a", CertName: "web"})
	r.Add(Active{Token: "tok-b", KeyAuthorization: "key-b", CertName: "web"})

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.False(t, r.IsEmpty())
}

func TestAddReplacesByToken(t *testing.T) {
	r := NewRegistry()
	r.Add(Active{Token: "tok-a", KeyAuthorization: "first", CertName: "web"})
	r.Add(Active{Token: "tok-a", KeyAuthorization: "second", CertName: "web"})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "second", snap[0].KeyAuthorization)
}

func TestClearForIsIdempotentAndScoped(t *testing.T) {
	r := NewRegistry()
	r.Add(Active{Token: "tok-a", CertName: "web"})
	r.Add(Active{Token: "tok-b", CertName: "api"})

	r.ClearFor("web")
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "api", snap[0].CertName)

	// Idempotent: clearing again is a no-op, not an error.
	r.ClearFor("web")
	assert.Len(t, r.Snapshot(), 1)
}

func TestSnapshotOrderIsDeterministic(t *testing.T) {
	r := NewRegistry()
	r.Add(Active{Token: "zzz", CertName: "web"})
	r.Add(Active{Token: "aaa", CertName: "web"})
	r.Add(Active{Token: "mmm", CertName: "web"})

	first := r.Snapshot()
	second := r.Snapshot()
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"aaa", "mmm", "zzz"}, []string{first[0].Token, first[1].Token, first[2].Token})
}

func TestConcurrentSnapshotDuringMutation(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Add(Active{Token: string(rune('a' + i%26)), CertName: "web"})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
}
