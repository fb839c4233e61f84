package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/logging"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.texts = append(s.texts, msg.Text)
	}
	return tgbotapi.Message{}, s.err
}

func (s *fakeSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func bet(name string, tier models.Tier, rec string) models.ValueBet {
	return models.ValueBet{
		FixtureName:        name,
		Target:             enums.Outcome,
		Outcome:            enums.LabelHome,
		ModelProbability:   0.62,
		ImpliedProbability: 0.45,
		Odds:               2.2,
		Edge:               0.17,
		ExpectedValue:      0.364,
		Tier:               tier,
		Recommendation:     rec,
		StakeFraction:      0.05,
		Provider:           "synthetic",
		Kickoff:            time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
}

func TestNotifyValueBets_FiltersByTier(t *testing.T) {
	s := &fakeSender{}
	m := metrics.New()
	n := newTelegramNotifier(s, 42, models.TierStrong, 0, m, logging.Discard())

	err := n.NotifyValueBets(context.Background(), []models.ValueBet{
		bet("Strong_Home vs Away", models.TierStrong, models.RecommendStrongBet),
		bet("Medium vs Away", models.TierMedium, models.RecommendBet),
		bet("Avoided vs Away", models.TierStrong, models.RecommendAvoid),
	})
	require.NoError(t, err)
	n.Stop()

	sent := s.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], `Strong\_Home vs Away`)
	assert.Contains(t, sent[0], "Edge: *+17.0%*")
	assert.Contains(t, sent[0], "STRONG\\_BET")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsSent))
}

func TestNotifyValueBets_MediumTier(t *testing.T) {
	s := &fakeSender{}
	n := newTelegramNotifier(s, 42, models.TierMedium, 0, nil, logging.Discard())
	require.NoError(t, n.NotifyValueBets(context.Background(), []models.ValueBet{
		bet("A vs B", models.TierStrong, models.RecommendStrongBet),
		bet("C vs D", models.TierMedium, models.RecommendBet),
		bet("E vs F", models.TierLow, models.RecommendConsider),
	}))
	n.Stop()
	assert.Len(t, s.sent(), 2)
}

func TestSendFailureIsNotCounted(t *testing.T) {
	s := &fakeSender{err: errors.New("429")}
	m := metrics.New()
	n := newTelegramNotifier(s, 42, models.TierLow, 0, m, logging.Discard())
	require.NoError(t, n.NotifyValueBets(context.Background(), []models.ValueBet{bet("A vs B", models.TierLow, models.RecommendConsider)}))
	n.Stop()
	assert.Len(t, s.sent(), 1)
	assert.Zero(t, testutil.ToFloat64(m.AlertsSent))
}

func TestStoppedNotifierRejects(t *testing.T) {
	n := newTelegramNotifier(&fakeSender{}, 42, models.TierStrong, 0, nil, logging.Discard())
	n.Stop()
	err := n.NotifyValueBets(context.Background(), []models.ValueBet{bet("A vs B", models.TierStrong, models.RecommendStrongBet)})
	assert.Error(t, err)
}

func TestNilNotifier(t *testing.T) {
	var n *TelegramNotifier
	assert.NoError(t, n.NotifyValueBets(context.Background(), []models.ValueBet{bet("A vs B", models.TierStrong, models.RecommendStrongBet)}))
	assert.Zero(t, n.QueueLen())
	n.Stop()
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a_b", `a\_b`},
		{"*bold* [link]", `\*bold\* \[link]`},
		{"`code`", "\\`code\\`"},
	}
	for _, tt := range tests {
		if got := escapeMarkdown(tt.in); got != tt.want {
			t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatValueBetAlert(t *testing.T) {
	text := formatValueBetAlert(&models.ValueBet{
		FixtureName:    "Home vs Away",
		Target:         enums.BothTeamsScore,
		Outcome:        enums.LabelYes,
		Tier:           models.TierMedium,
		Recommendation: models.RecommendBet,
		Odds:           1.95,
	})
	assert.True(t, strings.HasPrefix(text, "*Medium value bet*"))
	assert.Contains(t, text, "| YES")
	assert.Contains(t, text, "Odds: 1.95")
	assert.NotContains(t, text, "Stake:")
	assert.NotContains(t, text, "Kick-off:")
}
