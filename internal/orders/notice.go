package orders

import (
	"fmt"
	"net/url"
	"strings"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/pricing"
)

const cdekTrackURL = "https://www.cdek.ru/track?order="

// TrackingURL links a CDEK tracking number to the carrier's tracking page.
func TrackingURL(tracking string) string {
	return cdekTrackURL + url.QueryEscape(tracking)
}

// StatusNotice builds the message a customer receives when o changes
// status. reviewsURL is offered once the order is delivered.
func StatusNotice(o domain.Order, reviewsURL string) (string, domain.Keyboard) {
	var b strings.Builder
	kb := domain.Keyboard{domain.Row(domain.CallbackButton("📦 Мои заказы", domain.TagMyOrders))}

	switch o.Status {
	case domain.StatusPaid:
		fmt.Fprintf(&b, "💳 Оплата получена!\n\n📋 Заказ: %s\n💰 Оплата подтверждена ✅\n\n", o.Number)
		b.WriteString("Начинаем выкуп товара с POIZON.\nОжидаемое время: 3-5 рабочих дней.")
	case domain.StatusShipped:
		fmt.Fprintf(&b, "🚚 Ваш заказ отправлен!\n\n📋 Заказ: %s\n", o.Number)
		if o.TrackingNumber != "" {
			fmt.Fprintf(&b, "📦 Трек-номер: %s\n", o.TrackingNumber)
		}
		b.WriteString("\nПосылка передана в СДЭК.\nОжидаемая доставка: 3-7 дней.")
		if o.TrackingNumber != "" {
			link := TrackingURL(o.TrackingNumber)
			fmt.Fprintf(&b, "\n\n🔍 Отследить посылку:\n%s", link)
			kb = append(domain.Keyboard{domain.Row(domain.URLButton("📦 Отследить в СДЭК", link))}, kb...)
		}
	case domain.StatusDelivered:
		fmt.Fprintf(&b, "🎉 Заказ успешно доставлен!\n\n📋 Заказ: %s\n", o.Number)
		if o.Title != "" {
			fmt.Fprintf(&b, "📦 %s\n", o.Title)
		}
		if o.Amount > 0 {
			fmt.Fprintf(&b, "💰 %s\n", pricing.FormatRubles(o.Amount))
		}
		b.WriteString("\nСпасибо за покупку в SQUARE! 🙏\n\nМы будем очень благодарны за ваш отзыв.\nВаше мнение поможет нам стать лучше!")
		kb = domain.Keyboard{}
		if reviewsURL != "" {
			kb = append(kb, domain.Row(domain.URLButton("⭐ Оставить отзыв", reviewsURL)))
		}
		kb = append(kb,
			domain.Row(domain.CallbackButton("🛍️ Заказать еще", domain.TagCalculateCost)),
			domain.Row(domain.CallbackButton("📞 Связаться с нами", domain.TagCallOperator)),
		)
	default:
		fmt.Fprintf(&b, "📊 Статус заказа изменен\n\n📋 Заказ: %s\n📈 Новый статус: %s", o.Number, o.Status.Label())
	}
	return b.String(), kb
}

// Confirmation is an order accepted by a manager in the CRM. Number and
// Title are required, the rest is shown when present.
type Confirmation struct {
	Number          string
	Title           string
	Size            string
	Amount          int64
	Tier            domain.DeliveryTier
	ManagerName     string
	ManagerUsername string
}

// ConfirmedNotice builds the message a customer receives once a manager
// confirms their order. A manager username adds a direct contact button.
func ConfirmedNotice(c Confirmation) (string, domain.Keyboard) {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Ваш заказ подтвержден!\n\n📋 Заказ: %s\n📦 %s\n", c.Number, c.Title)
	size := c.Size
	if size == "" {
		size = "Не указан"
	}
	fmt.Fprintf(&b, "📏 Размер: %s\n", size)
	if c.Amount > 0 {
		fmt.Fprintf(&b, "💰 Сумма: %s\n", pricing.FormatRubles(c.Amount))
	}
	tier := "Стандартная"
	if c.Tier == domain.TierExpress {
		tier = "Экспресс"
	}
	fmt.Fprintf(&b, "🚚 Тип доставки: %s\n", tier)

	username := strings.TrimPrefix(strings.TrimSpace(c.ManagerUsername), "@")
	if c.ManagerName != "" || username != "" {
		b.WriteString("\n")
	}
	if c.ManagerName != "" {
		fmt.Fprintf(&b, "📞 Ваш менеджер: %s\n", c.ManagerName)
	}
	if username != "" {
		fmt.Fprintf(&b, "💬 Связь: @%s\n", username)
	}
	b.WriteString("\nМы приступили к обработке вашего заказа!\nВремя выкупа: 3-5 рабочих дней")

	kb := domain.Keyboard{domain.Row(domain.CallbackButton("📦 Мои заказы", domain.TagMyOrders))}
	if username != "" {
		kb = append(kb, domain.Row(domain.URLButton("💬 Связаться с менеджером", "https://t.me/"+url.PathEscape(username))))
	}
	return b.String(), kb
}
