package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const knownID = "915655285018624"

func TestGeneratorProducesValidIDs(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	value := gen.New()
	require.True(t, Valid(value), value)
	require.NoError(t, Validate(value))
}

func TestGeneratorRejectsOutOfRangeNode(t *testing.T) {
	_, err := NewGenerator(-1)
	require.Error(t, err)

	_, err = NewGenerator(MaxNodeID + 1)
	require.Error(t, err)
}

func TestGeneratorIsUniqueUnderConcurrency(t *testing.T) {
	gen, err := NewGenerator(0)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, gen.New())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*perWorker)
}

func TestTimeIsRoughlyNow(t *testing.T) {
	gen, err := NewGenerator(0)
	require.NoError(t, err)

	created, err := Time(gen.New())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), created, 5*time.Second)
}

func TestTimeOfKnownID(t *testing.T) {
	created, err := Time(knownID)
	require.NoError(t, err)
	require.True(t, Epoch.Add(218309232*time.Millisecond).Equal(created), created.String())
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		knownID:                true,
		"1":                    true,
		"":                     false,
		"0":                    false,
		"00915655285018624":    false,
		"-915655285018624":     false,
		"+915655285018624":     false,
		" 915655285018624":     false,
		"abc":                  false,
		"99999999999999999999": false,
	}
	for value, want := range cases {
		require.Equal(t, want, Valid(value), "value %q", value)
	}
	require.ErrorIs(t, Validate("nope"), ErrInvalidID)
}
