package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
)

type sentMessage struct {
	ChannelID string
	Content   string
}

type fakeSession struct {
	mu       sync.Mutex
	calls    []string
	sent     []sentMessage
	timeouts map[string]time.Time
	failWith error
}

func newFakeSession() *fakeSession {
	return &fakeSession{timeouts: map[string]time.Time{}}
}

func (s *fakeSession) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.failWith
}

func (s *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, days int, _ ...discordgo.RequestOption) error {
	return s.record("ban:" + guildID + ":" + userID)
}

func (s *fakeSession) GuildBanDelete(guildID, userID string, _ ...discordgo.RequestOption) error {
	return s.record("unban:" + guildID + ":" + userID)
}

func (s *fakeSession) GuildMemberDeleteWithReason(guildID, userID, reason string, _ ...discordgo.RequestOption) error {
	return s.record("kick:" + guildID + ":" + userID)
}

func (s *fakeSession) GuildMemberTimeout(guildID, userID string, until *time.Time, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	s.timeouts[userID] = *until
	s.mu.Unlock()
	return s.record("timeout:" + guildID + ":" + userID)
}

func (s *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := s.record("send:" + channelID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{ChannelID: channelID, Content: content})
	s.mu.Unlock()
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID, Content: content}, nil
}

func (s *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	return s.record("delete:" + channelID + ":" + messageID)
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeConfigStore struct {
	docs map[string]*GuildConfig
	err  error
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{docs: map[string]*GuildConfig{}}
}

func (s *fakeConfigStore) Upsert(_ context.Context, guildID, updatedBy string, settings map[string]interface{}) (*GuildConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[guildID]
	if !ok {
		doc = &GuildConfig{GuildID: guildID, Settings: map[string]interface{}{}}
		s.docs[guildID] = doc
	}
	for k, v := range settings {
		doc.Settings[k] = v
	}
	doc.UpdatedBy = updatedBy
	doc.UpdatedAt = time.Now()
	return doc, nil
}

func (s *fakeConfigStore) Get(_ context.Context, guildID string) (*GuildConfig, error) {
	return s.docs[guildID], s.err
}

var errDiscord = errors.New("discord: 50013 missing permissions")

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}
