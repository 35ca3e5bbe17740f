package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"bubbles/internal/constants"
)

var (
	ErrGiveawayNotFound = errors.New("giveaway not found")
	ErrNoEntrants       = errors.New("giveaway has no eligible entrants")
)

// GiveawayHandler draws winners from a giveaway's entrant set. A giveaway is
// a hash giveaway:<id> (channelId, prize, status), with entrants and winners
// kept in sets next to it.
type GiveawayHandler struct {
	client  redis.UniversalClient
	session Session
}

func NewGiveawayHandler(client redis.UniversalClient, session Session) *GiveawayHandler {
	return &GiveawayHandler{client: client, session: session}
}

func giveawayKey(id string) string      { return constants.CacheKeyPrefixGiveaway + id }
func entrantsKey(id string) string      { return giveawayKey(id) + ":entrants" }
func winnersKey(id string) string       { return giveawayKey(id) + ":winners" }
func rerollScratchKey(id string) string { return giveawayKey(id) + ":eligible" }

// Draw is the outcome of ending or rerolling a giveaway.
type Draw struct {
	GiveawayID string   `json:"giveawayId"`
	Winners    []string `json:"winners"`
	Announced  bool     `json:"announced"`
}

func (h *GiveawayHandler) Handle(ctx context.Context, job *GiveawayJob) (interface{}, error) {
	info, err := h.client.HGetAll(ctx, giveawayKey(job.GiveawayID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load giveaway %s: %w", job.GiveawayID, err)
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGiveawayNotFound, job.GiveawayID)
	}

	var winners []string
	switch job.Type {
	case TypeEndGiveaway:
		winners, err = h.client.SRandMemberN(ctx, entrantsKey(job.GiveawayID), int64(job.Winners)).Result()
	case TypeRerollGiveaway:
		winners, err = h.reroll(ctx, job)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, job.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to draw winners for %s: %w", job.GiveawayID, err)
	}
	if len(winners) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntrants, job.GiveawayID)
	}

	members := make([]interface{}, len(winners))
	for i, w := range winners {
		members[i] = w
	}
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, winnersKey(job.GiveawayID), members...)
		pipe.HSet(ctx, giveawayKey(job.GiveawayID), "status", "ended")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store winners for %s: %w", job.GiveawayID, err)
	}

	draw := &Draw{GiveawayID: job.GiveawayID, Winners: winners}
	if channelID := info["channelId"]; channelID != "" && h.session != nil {
		if _, err := h.session.ChannelMessageSend(channelID, announcement(info["prize"], winners, job.Type), discordgo.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("failed to announce giveaway %s: %w", job.GiveawayID, err)
		}
		draw.Announced = true
	}
	return draw, nil
}

// reroll draws from entrants minus everyone who already won.
func (h *GiveawayHandler) reroll(ctx context.Context, job *GiveawayJob) ([]string, error) {
	scratch := rerollScratchKey(job.GiveawayID)
	defer h.client.Del(context.WithoutCancel(ctx), scratch)

	if err := h.client.SDiffStore(ctx, scratch, entrantsKey(job.GiveawayID), winnersKey(job.GiveawayID)).Err(); err != nil {
		return nil, err
	}
	return h.client.SRandMemberN(ctx, scratch, int64(job.Winners)).Result()
}

func announcement(prize string, winners []string, kind string) string {
	mentions := make([]string, len(winners))
	for i, w := range winners {
		mentions[i] = "<@" + w + ">"
	}
	verb := "won"
	if kind == TypeRerollGiveaway {
		verb = "won the reroll"
	}
	if prize == "" {
		return fmt.Sprintf("%s %s the giveaway!", strings.Join(mentions, ", "), verb)
	}
	return fmt.Sprintf("%s %s **%s**!", strings.Join(mentions, ", "), verb, prize)
}
