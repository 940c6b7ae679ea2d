package redis

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-redis/redis/v8"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.RecipientDirectory = (*Directory)(nil)

const handleKeyPrefix = "gptq:handle:"

// mention matches <@ID> and <@ID|name>.
var mention = regexp.MustCompile(`^<@([A-Za-z0-9_]+)(?:\|[^>]*)?>$`)

// Directory maps chat handles (usernames) to platform ids. Front ends call
// Remember for every sender they see.
type Directory struct {
	cli *redis.Client
}

func NewDirectory(c *Client) *Directory {
	return &Directory{cli: c.cli}
}

func (d *Directory) Remember(ctx context.Context, handle, id string) error {
	h := normalizeHandle(handle)
	if h == "" || id == "" {
		return domain.ErrInvalidArgument
	}
	return d.cli.Set(ctx, handleKeyPrefix+h, id, 0).Err()
}

func (d *Directory) Resolve(ctx context.Context, ref string) (string, error) {
	if id, ok := parseDirectRef(ref); ok {
		return id, nil
	}
	h := normalizeHandle(ref)
	if h == "" {
		return "", domain.ErrRecipientUnknown
	}
	id, err := d.cli.Get(ctx, handleKeyPrefix+h).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrRecipientUnknown
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// parseDirectRef recognizes references that already are ids: mentions and
// bare numeric ids.
func parseDirectRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if m := mention.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	if model.IsDigits(ref) {
		return ref, true
	}
	return "", false
}

func normalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "@")
	if strings.ContainsAny(h, " \t\n<>|") {
		return ""
	}
	return strings.ToLower(h)
}
