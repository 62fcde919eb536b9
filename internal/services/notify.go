package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/example/atlas/internal/models"
)

// TelegramService sends admin notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// FormatAmount renders a minor-unit amount with thousand separators.
func FormatAmount(amount int64, currency string) string {
	if currency == "" {
		currency = "UZS"
	}

	str := fmt.Sprintf("%d", amount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String() + " " + currency
}

// NotifyNewOrder sends a new-order notification to the admin chat.
// Failures are logged; a confirmed order never depends on delivery.
func (s *TelegramService) NotifyNewOrder(order *models.Order) {
	if s.adminChatID == "" || order == nil {
		return
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b> (%s)\n   %d x %s = %s\n",
			i+1,
			item.ProductName,
			item.Size,
			item.Quantity,
			FormatAmount(item.UnitPrice, order.Currency),
			FormatAmount(item.LineTotal, order.Currency),
		))
	}

	discountLine := ""
	if order.DiscountAmount > 0 {
		discountLine = fmt.Sprintf("\n<b>🏷 Chegirma (%s):</b> -%s",
			order.PromoCode, FormatAmount(order.DiscountAmount, order.Currency))
	}

	message := fmt.Sprintf(`<b>🛒 YANGI BUYURTMA!</b>
<b>📋 Buyurtma:</b> %s
<b>👤 Mijoz:</b> %s
<b>📞 Telefon:</b> %s
<b>📦 Mahsulotlar:</b>
%s%s
<b>💰 Jami:</b> %s
<b>💳 To'lov:</b> %s
━━━━━━━━━━━━━━━━━━`,
		order.OrderCode,
		order.CustomerName,
		order.CustomerPhone,
		itemsList.String(),
		discountLine,
		FormatAmount(order.TotalAmount, order.Currency),
		order.PaymentMethod,
	)

	if err := s.SendToAdmin(strings.TrimSpace(message)); err != nil {
		log.Printf("[Telegram] New order notification failed for %s: %v", order.OrderCode, err)
	}
}
