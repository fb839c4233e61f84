// Package notify pushes value bet alerts to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// Min interval between any two Telegram messages to the same chat to avoid 429 Too Many Requests (~30/min limit).
const telegramSendInterval = 2 * time.Second

// ErrQueueFull is returned when an alert is dropped because the send queue is full
var ErrQueueFull = errors.New("message queue is full")

// Notifier receives freshly found value bets
type Notifier interface {
	NotifyValueBets(ctx context.Context, bets []models.ValueBet) error
}

// QueueReporter is implemented by notifiers that buffer alerts
type QueueReporter interface {
	QueueLen() int
}

// sender is the part of the bot API the notifier uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// queuedMessage represents a message queued for sending
type queuedMessage struct {
	text    string
	bet     *models.ValueBet
	queued  time.Time
	isAlert bool
}

// TelegramNotifier sends value bets at or above a minimum tier to one chat.
// Messages go through a buffered queue drained by a single sender goroutine.
type TelegramNotifier struct {
	bot      sender
	chatID   int64
	minTier  models.Tier
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	lastSend time.Time

	// Async queue for sending messages
	queue     chan queuedMessage
	queueDone chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

var (
	_ Notifier      = (*TelegramNotifier)(nil)
	_ QueueReporter = (*TelegramNotifier)(nil)
)

// NewTelegramNotifier connects the bot and starts the sender
func NewTelegramNotifier(cfg *config.TelegramConfig, m *metrics.Metrics, logger *slog.Logger) (*TelegramNotifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	// Test bot connection
	if _, err := bot.GetMe(); err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}

	n := newTelegramNotifier(bot, cfg.ChatID, models.Tier(cfg.MinTier), telegramSendInterval, m, logger)
	n.logger.Info("Telegram notifier initialized", "chat_id", cfg.ChatID, "min_tier", n.minTier)
	return n, nil
}

func newTelegramNotifier(bot sender, chatID int64, minTier models.Tier, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *TelegramNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if minTier.Rank() == 0 {
		minTier = models.TierStrong
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &TelegramNotifier{
		bot:       bot,
		chatID:    chatID,
		minTier:   minTier,
		interval:  interval,
		metrics:   m,
		logger:    logger,
		queue:     make(chan queuedMessage, 100), // Buffer up to 100 messages
		queueDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	// Start background worker for sending messages
	n.wg.Add(1)
	go n.messageSender()
	return n
}

// NotifyValueBets queues an alert for each bet at or above the minimum tier.
// It never blocks; alerts that do not fit in the queue are dropped.
func (n *TelegramNotifier) NotifyValueBets(ctx context.Context, bets []models.ValueBet) error {
	if n == nil {
		return nil
	}
	var errs []error
	for i := range bets {
		bet := bets[i]
		if bet.Tier.Rank() < n.minTier.Rank() || bet.Recommendation == models.RecommendAvoid {
			continue
		}
		if err := n.enqueue(ctx, queuedMessage{text: formatValueBetAlert(&bet), bet: &bet, isAlert: true}); err != nil {
			errs = append(errs, fmt.Errorf("%s %s/%s: %w", bet.FixtureName, bet.Target, bet.Outcome, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) enqueue(ctx context.Context, msg queuedMessage) error {
	msg.queued = time.Now()
	if n.ctx.Err() != nil {
		return fmt.Errorf("notifier stopped")
	}
	select {
	case <-n.ctx.Done():
		return fmt.Errorf("notifier stopped")
	case <-ctx.Done():
		return ctx.Err()
	case n.queue <- msg:
		return nil
	default:
		// Queue is full, log warning but don't block
		n.logger.Warn("Telegram message queue is full, dropping message", "preview", truncateString(msg.text, 50))
		return ErrQueueFull
	}
}

// QueueLen returns the number of alerts waiting to be sent
func (n *TelegramNotifier) QueueLen() int {
	if n == nil {
		return 0
	}
	return len(n.queue)
}

// messageSender runs in background and sends queued messages with proper intervals
func (n *TelegramNotifier) messageSender() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			// Drain remaining messages before exit
			for {
				select {
				case msg := <-n.queue:
					n.send(msg, false)
				default:
					close(n.queueDone)
					return
				}
			}
		case msg := <-n.queue:
			n.send(msg, true)
		}
	}
}

// send delivers one message, waiting out the send interval when wait is set
func (n *TelegramNotifier) send(msg queuedMessage, wait bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if elapsed := time.Since(n.lastSend); wait && elapsed < n.interval {
		select {
		case <-n.ctx.Done():
			// stopping: flush without waiting
		case <-time.After(n.interval - elapsed):
		}
	}

	tgMsg := tgbotapi.NewMessage(n.chatID, msg.text)
	tgMsg.ParseMode = tgbotapi.ModeMarkdown

	n.lastSend = time.Now()
	_, err := n.bot.Send(tgMsg)
	args := []any{
		"queue_wait", time.Since(msg.queued),
		"queue_length", len(n.queue),
	}
	if msg.bet != nil {
		args = append(args, "fixture", msg.bet.FixtureName, "target", msg.bet.Target, "outcome", msg.bet.Outcome)
	}
	if err != nil {
		n.logger.Error("Telegram send: failed", append(args, "error", err)...)
		return
	}
	if msg.isAlert && n.metrics != nil {
		n.metrics.AlertsSent.Inc()
	}
	n.logger.Info("Telegram send: success", args...)
}

// Stop stops the notifier and waits for all queued messages to be sent
func (n *TelegramNotifier) Stop() {
	if n == nil {
		return
	}
	n.cancel()
	<-n.queueDone
	n.wg.Wait()
}

func formatValueBetAlert(bet *models.ValueBet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s value bet*\n\n", tierTitle(bet.Tier))
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(bet.FixtureName))
	fmt.Fprintf(&b, "%s | %s\n\n", escapeMarkdown(targetTitle(bet.Target)), escapeMarkdown(strings.ToUpper(bet.Outcome)))
	fmt.Fprintf(&b, "Model: %.1f%% | Market: %.1f%%\n", bet.ModelProbability*100, bet.ImpliedProbability*100)
	fmt.Fprintf(&b, "Edge: *%+.1f%%* | EV: %+.1f%%\n", bet.Edge*100, bet.ExpectedValue*100)
	fmt.Fprintf(&b, "Odds: %.2f (%s)\n", bet.Odds, escapeMarkdown(bet.Provider))
	if bet.StakeFraction > 0 {
		fmt.Fprintf(&b, "Stake: %.2f%% of bankroll", bet.StakeFraction*100)
		if bet.Stake > 0 {
			fmt.Fprintf(&b, " (%.2f)", bet.Stake)
		}
		b.WriteString("\n")
	}
	if !bet.Kickoff.IsZero() {
		fmt.Fprintf(&b, "Kick-off: %s\n", bet.Kickoff.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "Recommendation: *%s*\n", escapeMarkdown(bet.Recommendation))
	return b.String()
}

func tierTitle(t models.Tier) string {
	s := string(t)
	if s == "" {
		return "Value"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func targetTitle(t enums.Target) string {
	return t.GetTargetInfo().Name
}

// escapeMarkdown escapes the characters legacy Telegram Markdown treats as markup
func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
