package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/blackscythe123/track-my-crypto/internal/news"
	"github.com/blackscythe123/track-my-crypto/internal/volatility"
)

// Notification carries everything needed to render one alert message.
type Notification struct {
	CoinID    string
	CoinName  string
	Symbol    string
	Price     decimal.Decimal
	Alert     volatility.Alert
	Headlines []news.Headline
}

// Notifier delivers a rendered alert to a user's channel. Delivery failure
// is reported to the caller but never rolls back the alert decision.
type Notifier interface {
	Notify(ctx context.Context, channelID string, notification Notification) error
}

// CliqNotifier posts alert cards through the Zoho Cliq bot message API.
type CliqNotifier struct {
	botToken string
	botID    string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewCliqNotifier constructs the Cliq delivery channel.
func NewCliqNotifier(botToken, botID, baseURL string, timeout time.Duration, logger zerolog.Logger) *CliqNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://cliq.zoho.com/api/v2"
	}

	return &CliqNotifier{
		botToken: botToken,
		botID:    botID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "cliq_notifier").Logger(),
	}
}

// Notify posts the alert card to a channel.
func (n *CliqNotifier) Notify(ctx context.Context, channelID string, note Notification) error {
	if channelID == "" {
		return fmt.Errorf("channel id is empty")
	}

	body, err := json.Marshal(renderCard(note))
	if err != nil {
		return fmt.Errorf("marshal cliq payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/message?zapikey=%s", n.baseURL, channelID, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create cliq request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send cliq request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cliq responded %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("coin", note.CoinID).
		Str("kind", string(note.Alert.Kind)).
		Str("channel", channelID).
		Msg("alert delivered")
	return nil
}

type cardPayload struct {
	Text   string      `json:"text"`
	Card   cardHeader  `json:"card"`
	Slides []cardSlide `json:"slides,omitempty"`
}

type cardHeader struct {
	Title string `json:"title"`
	Theme string `json:"theme"`
}

type cardSlide struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Data  any    `json:"data"`
}

func renderCard(note Notification) cardPayload {
	emoji := "📈"
	if note.Alert.Direction == "down" {
		emoji = "📉"
	}

	coin := strings.ToUpper(note.CoinID)
	if note.Symbol != "" {
		coin = note.Symbol
	}

	slides := []cardSlide{
		{
			Type: "label",
			Data: []map[string]string{
				{"label": "Price", "value": "₹" + note.Price.StringFixed(2)},
				{"label": "Change", "value": note.Alert.Change.StringFixed(2) + "%"},
			},
		},
	}

	if len(note.Headlines) > 0 {
		builder := strings.Builder{}
		for i, headline := range note.Headlines {
			if i >= 3 {
				break
			}
			builder.WriteString(fmt.Sprintf("• [%s](%s)\n", headline.Title, headline.URL))
		}
		slides = append(slides, cardSlide{
			Type:  "text",
			Title: "Possible Reasons",
			Data:  builder.String(),
		})
	}

	return cardPayload{
		Text: fmt.Sprintf("🚨 **%s %s**", coin, note.Alert.Message),
		Card: cardHeader{
			Title: fmt.Sprintf("%s %s Alert", emoji, coin),
			Theme: "modern-inline",
		},
		Slides: slides,
	}
}

var _ Notifier = (*CliqNotifier)(nil)
