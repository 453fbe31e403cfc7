// Package content fetches round content from the PokeAPI. The coordinator
// only sees the QuizSet shape; a provider failure degrades to the Unknown
// sentinel set instead of blocking round progression.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pokeguess/duel/internal/domain"
)

const (
	defaultBaseURL = "https://pokeapi.co/api/v2"
	defaultTimeout = 10 * time.Second

	// defaultMaxItemID is the highest item id drawn for a round.
	defaultMaxItemID = 898
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	MaxItemID int
}

type Client struct {
	baseURL string
	http    *http.Client
	maxID   int
}

func NewClient(c Config) *Client {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxItemID == 0 {
		c.MaxItemID = defaultMaxItemID
	}

	return &Client{
		baseURL: c.BaseURL,
		http:    &http.Client{Timeout: c.Timeout},
		maxID:   c.MaxItemID,
	}
}

// FetchQuizSet returns count distinct items with one designated correct and
// every label selectable. On failure it returns the Unknown sentinel set;
// callers detect it via QuizSet.Unavailable.
func (c *Client) FetchQuizSet(ctx context.Context, count int) domain.QuizSet {
	set, err := c.fetchQuizSet(ctx, count)
	if err != nil {
		slog.ErrorContext(ctx, "content: fetch quiz set failed", "error", err)
		return domain.UnknownQuizSet()
	}

	return set
}

func (c *Client) fetchQuizSet(ctx context.Context, count int) (domain.QuizSet, error) {
	if count < 1 || count > c.maxID {
		return domain.QuizSet{}, fmt.Errorf("content: invalid option count %d", count)
	}

	ids := c.drawIDs(count)
	items := make([]domain.QuizItem, count)

	eg, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			item, err := c.fetchItem(ctx, id)
			if err != nil {
				return fmt.Errorf("item %d: %w", id, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.QuizSet{}, err
	}

	options := make([]string, count)
	for i, item := range items {
		options[i] = item.Label
	}

	return domain.QuizSet{
		Correct: items[rand.Intn(count)],
		Options: options,
	}, nil
}

// drawIDs picks count distinct ids from [1, maxID].
func (c *Client) drawIDs(count int) []int {
	seen := make(map[int]struct{}, count)
	ids := make([]int, 0, count)
	for len(ids) < count {
		id := rand.Intn(c.maxID) + 1
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}

func (c *Client) fetchItem(ctx context.Context, id int) (domain.QuizItem, error) {
	url := fmt.Sprintf("%s/pokemon/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.QuizItem{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.QuizItem{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.QuizItem{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		Sprites struct {
			Other map[string]struct {
				FrontDefault string `json:"front_default"`
			} `json:"other"`
		} `json:"sprites"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.QuizItem{}, fmt.Errorf("decode: %w", err)
	}

	return domain.QuizItem{
		ID:       body.ID,
		Label:    body.Name,
		MediaRef: body.Sprites.Other["official-artwork"].FrontDefault,
	}, nil
}
