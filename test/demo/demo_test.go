//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/pokeguess/duel/internal/domain"
)

// Drives a full match against a locally running server: two players, five
// rounds, one of them watching the record stream over the websocket.
//
//	go test -tags integration_test ./test/demo/...

const baseURL = "http://localhost:8080"

func TestDuel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var m *domain.Match

	// Player one opens the match.
	{
		resp := post(t, ctx, "/v1/matches", map[string]any{"player": "ash"})
		m = resp.Match
		require.Equal(t, domain.StatusWaiting, m.Status)
		t.Logf("match %s created, quiz options: %v", m.ID, m.Quiz.Options)
	}

	// Player one watches the record stream.
	frames := watch(t, ctx, m.ID)

	// Player two joins.
	{
		resp := post(t, ctx, "/v1/matches/"+m.ID+"/join", map[string]any{"player": "gary"})
		require.Equal(t, domain.StatusReady, resp.Match.Status)
	}

	// Five rounds: ash answers the correct label, gary times out.
	for round := 1; round <= domain.MaxRounds; round++ {
		cur := get(t, ctx, "/v1/matches/"+m.ID)
		t.Logf("round %d, correct answer is %q", round, cur.Match.Quiz.Correct.Label)

		post(t, ctx, "/v1/matches/"+m.ID+"/answers", map[string]any{
			"slot":   domain.SlotA,
			"answer": cur.Match.Quiz.Correct.Label,
		})
		post(t, ctx, "/v1/matches/"+m.ID+"/timeout", map[string]any{
			"slot":  domain.SlotB,
			"round": round,
		})
	}

	final := get(t, ctx, "/v1/matches/"+m.ID)
	require.Equal(t, domain.StatusFinished, final.Match.Status)
	require.NotNil(t, final.Match.FinalScores)
	t.Logf("final scores: %s=%d %s=%d",
		final.Match.SlotA.Name, final.Match.FinalScores.SlotA,
		final.Match.SlotB.Name, final.Match.FinalScores.SlotB)

	// The stream saw the match through to the end, including the deletion
	// frame once the grace interval passes.
	deadline := time.After(domain.DeleteGrace + 10*time.Second)
	for {
		select {
		case f, ok := <-frames:
			require.True(t, ok, "stream ended before the deletion frame")
			if f == nil {
				return
			}
			t.Logf("frame: status=%s round=%d", f.Status, f.CurrentRound)
		case <-deadline:
			t.Fatal("never saw the deletion frame")
		}
	}
}

type envelope struct {
	Match   *domain.Match `json:"match"`
	Applied bool          `json:"applied"`
}

func post(t *testing.T, ctx context.Context, path string, body map[string]any) envelope {
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	return doRequest(t, req)
}

func get(t *testing.T, ctx context.Context, path string) envelope {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	require.NoError(t, err)

	return doRequest(t, req)
}

func doRequest(t *testing.T, req *http.Request) envelope {
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Less(t, resp.StatusCode, 300, "request %s %s failed", req.Method, req.URL.Path)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func watch(t *testing.T, ctx context.Context, id string) <-chan *domain.Match {
	url := fmt.Sprintf("ws://localhost:8080/v1/matches/%s/watch", id)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	frames := make(chan *domain.Match)
	go func() {
		defer close(frames)

		for {
			var m *domain.Match
			if err := conn.ReadJSON(&m); err != nil {
				return
			}

			select {
			case frames <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames
}
