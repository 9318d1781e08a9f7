package ipc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Concurrent clients must each get their own reply back. The server keys
// pending connections by an ID it assigns itself, so two clients sending
// at the same time cannot collide.
func TestConcurrentClientsGetOwnReplies(t *testing.T) {
	server, err := NewServer()
	require.NoError(t, err)
	defer server.Close()

	seenIDs := make(chan int, 8)
	go func() {
		for cmd := range server.Commands() {
			seenIDs <- cmd.ID
			server.SendResponse(cmd.ID, Response{
				ID:     cmd.ID,
				Result: cmd.Args[0],
			})
		}
	}()

	args := []string{"alpha", "beta", "gamma"}
	results := make(map[string]interface{}, len(args))
	resultErrs := make(map[string]error, len(args))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, arg := range args {
		wg.Add(1)
		go func(arg string) {
			defer wg.Done()
			client, err := NewClient()
			if err != nil {
				mu.Lock()
				resultErrs[arg] = err
				mu.Unlock()
				return
			}
			defer client.Close()

			result, err := client.SendCommand("echo", []string{arg})
			mu.Lock()
			results[arg] = result
			resultErrs[arg] = err
			mu.Unlock()
		}(arg)
	}
	wg.Wait()

	for _, arg := range args {
		require.NoError(t, resultErrs[arg])
		require.Equal(t, arg, results[arg])
	}

	ids := make(map[int]bool)
	for range args {
		ids[<-seenIDs] = true
	}
	require.Len(t, ids, len(args))
}
