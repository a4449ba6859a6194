package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	supa "github.com/supabase-community/supabase-go"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

const (
	promptsTable     = "tg_chats_prompts"
	summariesTable   = "tg_chats_summaries"
	logEntriesTable  = "log_entries"
	promptColumns    = "id,name,text"
	postgresDupError = "23505"
)

// SupabaseStore keeps state in Supabase tables through PostgREST.
// The HTTP client is stateless, so a session is the store itself.
type SupabaseStore struct {
	client  *supa.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSupabaseStore creates a new Supabase client
func NewSupabaseStore(supabaseURL, supabaseKey string, timeout int, logger zerolog.Logger) (*SupabaseStore, error) {
	client, err := supa.NewClient(supabaseURL, supabaseKey, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseStore{
		client:  client,
		timeout: time.Duration(timeout) * time.Second,
		logger:  logger.With().Str("component", "storage").Str("backend", "supabase").Logger(),
	}, nil
}

// Acquire returns a session over the shared client
func (c *SupabaseStore) Acquire(ctx context.Context) (Session, error) {
	return supabaseSession{c}, nil
}

// Close is a no-op, the client holds no connections
func (c *SupabaseStore) Close() error {
	return nil
}

// Ping checks if the connection to Supabase is working
func (c *SupabaseStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Simple query to check connection
	_, _, err := c.client.From(promptsTable).
		Select("id", "exact", false).
		Limit(1, "").
		Execute()

	if err != nil {
		return fmt.Errorf("supabase ping failed: %w", err)
	}

	c.logger.Debug().Msg("Supabase connection successful")
	return nil
}

type supabaseSession struct {
	*SupabaseStore
}

func (supabaseSession) Release() {}

// FindPromptByName returns nil when no prompt has this name
func (c *SupabaseStore) FindPromptByName(ctx context.Context, name string) (*models.Prompt, error) {
	return c.findPrompt(ctx, "find_prompt_by_name", "name", name)
}

// GetPrompt returns nil when no prompt has this id
func (c *SupabaseStore) GetPrompt(ctx context.Context, id int64) (*models.Prompt, error) {
	return c.findPrompt(ctx, "get_prompt", "id", strconv.FormatInt(id, 10))
}

func (c *SupabaseStore) findPrompt(ctx context.Context, operation, column, value string) (*models.Prompt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var prompts []models.Prompt
	err := withRetry(ctx, c.logger, operation, func() error {
		data, _, err := c.client.From(promptsTable).
			Select(promptColumns, "", false).
			Eq(column, value).
			Limit(1, "").
			Execute()
		if err != nil {
			return fmt.Errorf("failed to fetch prompt: %w", err)
		}
		return json.Unmarshal(data, &prompts)
	})
	if err != nil {
		return nil, err
	}

	if len(prompts) == 0 {
		return nil, nil
	}
	return &prompts[0], nil
}

// ListPrompts returns all prompts ordered by name
func (c *SupabaseStore) ListPrompts(ctx context.Context) ([]models.Prompt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompts := []models.Prompt{}
	err := withRetry(ctx, c.logger, "list_prompts", func() error {
		data, _, err := c.client.From(promptsTable).
			Select(promptColumns, "", false).
			Execute()
		if err != nil {
			return fmt.Errorf("failed to list prompts: %w", err)
		}
		return json.Unmarshal(data, &prompts)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(prompts, func(i, j int) bool { return prompts[i].Name < prompts[j].Name })
	return prompts, nil
}

// CreatePrompt inserts a prompt and returns it with its id
func (c *SupabaseStore) CreatePrompt(ctx context.Context, name, text string) (*models.Prompt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, _, err := c.client.From(promptsTable).
		Insert(map[string]interface{}{"name": name, "text": text}, false, "", "representation", "").
		Execute()
	if err != nil {
		if isDuplicateError(err) {
			return nil, ErrDuplicatePrompt
		}
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}

	var created []models.Prompt
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to read created prompt: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("failed to read created prompt: empty response")
	}

	c.logger.Info().Int64("prompt_id", created[0].ID).Str("name", name).Msg("Prompt created")
	return &created[0], nil
}

// UpdatePrompt renames and rewrites a prompt
func (c *SupabaseStore) UpdatePrompt(ctx context.Context, id int64, name, text string) (*models.Prompt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, _, err := c.client.From(promptsTable).
		Update(map[string]interface{}{"name": name, "text": text}, "representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		if isDuplicateError(err) {
			return nil, ErrDuplicatePrompt
		}
		return nil, fmt.Errorf("failed to update prompt %d: %w", id, err)
	}

	var updated []models.Prompt
	if err := json.Unmarshal(data, &updated); err != nil {
		return nil, fmt.Errorf("failed to read updated prompt: %w", err)
	}
	if len(updated) == 0 {
		return nil, ErrPromptNotFound
	}

	c.logger.Info().Int64("prompt_id", id).Str("name", name).Msg("Prompt updated")
	return &updated[0], nil
}

// DeletePrompt removes a prompt
func (c *SupabaseStore) DeletePrompt(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, count, err := c.client.From(promptsTable).
		Delete("", "exact").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete prompt %d: %w", id, err)
	}
	if count == 0 {
		return ErrPromptNotFound
	}

	c.logger.Info().Int64("prompt_id", id).Msg("Prompt deleted")
	return nil
}

// isDuplicateError checks if a PostgREST error is a unique violation
func isDuplicateError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique") ||
		strings.Contains(msg, postgresDupError)
}
