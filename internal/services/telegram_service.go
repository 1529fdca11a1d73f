package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramService sends staff notifications to a Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	http        *http.Client
	log         *zap.SugaredLogger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, log *zap.SugaredLogger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPIBase,
		http:        &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

// WithAPIBase points the service at another Bot API host.
func (s *TelegramService) WithAPIBase(base string) *TelegramService {
	s.apiBase = strings.TrimRight(base, "/")
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML message to chatID.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debugw("telegram bot token not configured")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Warnw("telegram send failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warnw("telegram unexpected status", "status", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.log.Debugw("telegram admin chat not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats amount with thousand separators and the currency code.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "INR"
	}

	whole := amount.Truncate(0)
	str := whole.Abs().String()

	var result strings.Builder
	if whole.IsNegative() {
		result.WriteByte('-')
	}
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(digit)
	}

	if frac := amount.Sub(whole).Abs(); !frac.IsZero() {
		result.WriteString(strings.TrimPrefix(frac.StringFixed(2), "0"))
	}
	return result.String() + " " + currency
}

// NotifyNewOrder posts the order summary to the admin chat.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, n OrderNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	var items strings.Builder
	for i, line := range n.Lines {
		name := line.DishID.String()
		if line.Dish != nil {
			name = line.Dish.Name
		}
		price := line.UnitPrice()
		fmt.Fprintf(&items, "%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			escapeHTML(name),
			line.Quantity,
			FormatPrice(price, n.Currency),
			FormatPrice(price.Mul(decimal.NewFromInt(int64(line.Quantity))), n.Currency),
		)
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER #%d</b>
<b>👤 Customer:</b> %s
<b>📞 Phone:</b> %s
<b>🚚 Delivery:</b> %s %s
<b>📦 Items:</b>
%s
<b>Subtotal:</b> %s
<b>Delivery fee:</b> %s
<b>Tax:</b> %s
<b>💰 Total:</b> %s
<b>📍 Status:</b> %s
━━━━━━━━━━━━━━━━━━`,
		n.Order.OrderNumber,
		escapeHTML(n.Actor.Username),
		n.Actor.Phone,
		escapeHTML(n.Order.DeliveryDate),
		escapeHTML(n.Order.DeliveryTime),
		items.String(),
		FormatPrice(n.Order.Subtotal, n.Currency),
		FormatPrice(n.Order.DeliveryFee, n.Currency),
		FormatPrice(n.Order.Tax, n.Currency),
		FormatPrice(n.Order.Total, n.Currency),
		n.Order.Status,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
