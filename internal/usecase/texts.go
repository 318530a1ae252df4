package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/pricing"
	"poizon-bot/internal/settings"
)

// moscow is the operators' time zone.
var moscow = time.FixedZone("MSK", 3*60*60)

const (
	textRecovery = "❌ Произошла ошибка\n\n" +
		"Мы уже знаем о проблеме и работаем над ее устранением.\n" +
		"Попробуйте позже или обратитесь к оператору."
	textCallbackFailed = "Произошла ошибка"
	textMissingContext = "⚠️ Данные расчета устарели. Начните заново из главного меню."

	textWelcome = "🎉 Добро пожаловать в SQUARE!\n\n" +
		"Мы поможем вам заказать любые товары с POIZON:\n" +
		"• 🔍 Быстрый расчет стоимости\n" +
		"• 🚚 Надежная доставка\n" +
		"• 📦 Отслеживание заказов\n" +
		"• 💬 Персональная поддержка"
	textNotSubscribedYet = "❌ Вы еще не подписались на канал. Пожалуйста, подпишитесь и попробуйте снова."
	textMainMenu         = "🏠 Главное меню SQUARE\n\nВыберите действие:"

	textAskLink = "🔗 Отправьте ссылку на товар с POIZON\n\n" +
		"Как скопировать ссылку: откройте товар в приложении POIZON, нажмите \"Поделиться\" " +
		"и отправьте всю строку боту.\n\n" +
		"Пример ссылки:\n" +
		"【得物】得物er-0Y3B7W6D发现一件好物， 1 CZ1111 https://dw4.co/t/A/1sHU86GGg Nike Air Max 97"
	textNoLink             = "❌ Не найдена ссылка на товар. Попробуйте еще раз или нажмите Отмена."
	textFetching           = "⏳ Получаем информацию о товаре..."
	textLinkUnresolved     = "❌ Не удалось обработать ссылку. Проверьте корректность ссылки."
	textProductUnavailable = "❌ Не удалось получить информацию о товаре."
	textLinkError          = "❌ Произошла ошибка при обработке ссылки. Попробуйте позже."

	textChooseCategory = "📱 Выберите категорию товара:"
	textChooseSize     = "Выберите размер:"
	textNoSizes        = "❌ К сожалению, этот товар сейчас недоступен."
	textSizeNotFound   = "❌ Размер не найден."

	textOperatorCalled = "👨‍💼 Подключение к оператору...\n\n" +
		"Сейчас с вами свяжется наш менеджер.\n" +
		"Ожидаемое время ответа: до 15 минут."
	textNoOrders = "📦 Мои заказы\n\nУ вас пока нет заказов.\nНачните с расчета стоимости товара!"

	textHelp = "📋 Справка по использованию SQUARE Bot\n\n" +
		"🚀 Основные функции:\n" +
		"• 🧮 Расчет стоимости товаров с POIZON\n" +
		"• 📦 Оформление заказов\n" +
		"• 📊 Отслеживание статуса заказов\n" +
		"• 💬 Связь с операторами\n\n" +
		"📝 Как заказать:\n" +
		"1. Нажмите \"Рассчитать стоимость\"\n" +
		"2. Отправьте ссылку на товар с POIZON\n" +
		"3. Выберите категорию и размер\n" +
		"4. Получите расчет стоимости\n" +
		"5. Оформите заказ\n\n" +
		"🔗 Как скопировать ссылку с POIZON:\n" +
		"• Откройте товар в приложении POIZON\n" +
		"• Нажмите \"Поделиться\"\n" +
		"• Скопируйте и отправьте всю строку боту\n\n" +
		"❓ Нужна помощь?\n" +
		"Нажмите \"Позвать оператора\" в главном меню"
	textCommandList = "Доступные команды:\n" +
		"/start - Начать работу с ботом\n" +
		"/help - Справка по использованию\n\n" +
		"Для администраторов:\n" +
		"/admin_settings - Панель настроек\n" +
		"/set_rate [число] - Изменить курс юаня\n" +
		"/stats - Подробная статистика"
	textNotAdmin    = "❌ У вас нет прав администратора."
	textRateUsage   = "❌ Неверный формат. Используйте: /set_rate 13.50"
	textRateInvalid = "❌ Неверное значение курса."
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func subscriptionText(channel string) string {
	return "Привет! 👋\n\nЭто бот SQUARE, мы занимаемся доставкой с POIZON.\n\n" +
		"Чтобы пользоваться данным ботом необходимо быть подписанным на канал @" + channel
}

func quotaText(limit int) string {
	return fmt.Sprintf("❌ Вы достигли дневного лимита в %d расчетов.\nПопробуйте завтра или обратитесь к оператору.", limit)
}

func reviewsText(url string) string {
	return "⭐ Отзывы наших клиентов\n\nПосмотрите отзывы на нашем сайте:\n🌐 " + url +
		"\n\nУ нас более 300,000 довольных клиентов!"
}

func poizonInfoText(urls []string) string {
	captions := []string{"Подробная инструкция", "Видео обзор", "Как пользоваться"}
	var b strings.Builder
	b.WriteString("❓ Что такое POIZON?\n\n")
	b.WriteString("POIZON (得物) - крупнейшая китайская платформа для покупки оригинальных кроссовок и одежды.\n\n")
	b.WriteString("Полезные ссылки:")
	icons := []string{"📖", "🎥", "📱"}
	for i, u := range urls {
		if i >= len(captions) {
			break
		}
		fmt.Fprintf(&b, "\n%s %s - %s", icons[i], u, captions[i])
	}
	return b.String()
}

func photoCaption(title string) string {
	return "📦 " + title + "\n\nВыберите размер:"
}

func quoteText(c domain.Calculation) string {
	return fmt.Sprintf("💰 Расчет стоимости\n\n📦 %s\n📏 Размер: %s\n\n🚚 СТАНДАРТНАЯ ДОСТАВКА: %s\n⚡ ЭКСПРЕСС ДОСТАВКА: %s",
		c.Title, c.Size, pricing.FormatRubles(c.StandardTotal), pricing.FormatRubles(c.ExpressTotal))
}

func orderAcceptedText(o domain.Order) string {
	return "📝 Заказ оформляется...\n\nВаш заказ принят в обработку!\n🆔 Номер заказа: " + o.Number +
		"\n\nСейчас с вами свяжется оператор для уточнения деталей."
}

func adminOrderText(o domain.Order, u domain.User, link string) string {
	return fmt.Sprintf("🆕 НОВЫЙ ЗАКАЗ %s\n\n👤 Клиент: %s (ID: %d)\n📦 Товар: %s\n📏 Размер: %s\n💰 Сумма: %s (%s)\n\n🔗 Ссылка: %s",
		o.Number, u.Handle(), u.TelegramID, o.Title, o.Size, pricing.FormatRubles(o.Amount), o.Tier.Label(), link)
}

func adminOperatorText(u domain.User, at time.Time) string {
	return fmt.Sprintf("🆘 ВЫЗОВ ОПЕРАТОРА\n\n👤 Клиент: %s (ID: %d)\n⏰ Время: %s МСК\n💬 Требуется консультация",
		u.Handle(), u.TelegramID, at.In(moscow).Format("15:04"))
}

func myOrdersText(list []domain.Order) string {
	var b strings.Builder
	b.WriteString("📦 Ваши заказы:\n")
	for _, o := range list {
		fmt.Fprintf(&b, "\n%s %s от %s\n", o.Status.Emoji(), o.Number, o.CreatedAt.In(moscow).Format("02.01.2006"))
		fmt.Fprintf(&b, "%s, размер %s\n", o.Title, o.Size)
		fmt.Fprintf(&b, "💰 %s | 📊 %s\n", pricing.FormatRubles(o.Amount), o.Status.Label())
		if o.TrackingNumber != "" {
			fmt.Fprintf(&b, "🚚 Трек: %s\n", o.TrackingNumber)
		} else {
			b.WriteString("🚚 Трек: отсутствует\n")
		}
	}
	return b.String()
}

func unknownCommandText(cmd string) string {
	return "❓ Неизвестная команда: " + cmd + "\n\n" + textCommandList
}

func rateUpdatedText(rate string) string {
	return "✅ Курс обновлен: 1¥ = " + rate + "₽"
}

func adminPanelText(s settings.Settings, st domain.Stats) string {
	return fmt.Sprintf("⚙️ Панель администратора\n\n"+
		"Текущие настройки:\n"+
		"💱 Курс ¥: %s₽\n"+
		"📊 Активных пользователей: %d\n"+
		"📈 Всего пользователей: %d\n"+
		"🧮 Расчетов сегодня: %d\n\n"+
		"Команды:\n"+
		"/set_rate [число] - изменить курс\n"+
		"/stats - подробная статистика",
		strconv.FormatFloat(s.YuanRate, 'f', -1, 64), st.ActiveUsers, st.TotalUsers, st.TodayCalculations)
}

func statsText(s settings.Settings, st domain.Stats) string {
	var b strings.Builder
	b.WriteString("📊 Подробная статистика SQUARE Bot\n\n")
	fmt.Fprintf(&b, "👥 Пользователи:\n• Всего: %d\n• Активных (7 дней): %d\n• Новых сегодня: %d\n\n",
		st.TotalUsers, st.ActiveUsers, st.NewUsersToday)
	fmt.Fprintf(&b, "🧮 Расчеты:\n• Всего: %d\n• Сегодня: %d\n• API запросов сегодня: %d\n\n",
		st.TotalCalculations, st.TodayCalculations, st.TodayAPIRequests)
	fmt.Fprintf(&b, "📦 Заказы:\n• Всего: %d\n• В обработке: %d\n• Завершенных: %d\n\n",
		st.TotalOrders, st.PendingOrders, st.CompletedOrders)
	fmt.Fprintf(&b, "💰 Настройки:\n• Курс ¥: %s₽\n• Лимит API: %d/день\n• СДЭК: %s\n\n",
		strconv.FormatFloat(s.YuanRate, 'f', -1, 64), s.APILimitPerUser, pricing.FormatRubles(int64(s.CarrierFee)))
	b.WriteString("📈 Популярные категории:")
	if len(st.PopularCategories) == 0 {
		b.WriteString("\nНет данных")
	}
	for i, c := range st.PopularCategories {
		fmt.Fprintf(&b, "\n%d. %s: %d расчетов", i+1, c.Category.Label(), c.Count)
	}
	return b.String()
}

func recoveryKeyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.CallbackButton("👨‍💼 Позвать оператора", domain.TagCallOperator)),
		domain.Row(domain.CallbackButton("🏠 В главное меню", domain.TagMainMenu)),
	}
}

func mainMenuKeyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.CallbackButton("🧮 Рассчитать стоимость", domain.TagCalculateCost)),
		domain.Row(domain.CallbackButton("⭐ Отзывы", domain.TagReviews)),
		domain.Row(domain.CallbackButton("❓ Что такое POIZON?", domain.TagWhatIsPoizon)),
		domain.Row(domain.CallbackButton("👨‍💼 Позвать оператора", domain.TagCallOperator)),
		domain.Row(domain.CallbackButton("📦 Мои заказы", domain.TagMyOrders)),
	}
}

func backToMenuKeyboard() domain.Keyboard {
	return domain.Keyboard{domain.Row(domain.CallbackButton("🏠 В главное меню", domain.TagMainMenu))}
}

func cancelKeyboard() domain.Keyboard {
	return domain.Keyboard{domain.Row(domain.CallbackButton("❌ Отмена", domain.TagCancel))}
}

func welcomeKeyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.CallbackButton("✅ Я понял, как вы работаете", domain.TagUnderstood)),
		domain.Row(domain.CallbackButton("❓ Ничего не понятно", domain.TagNeedHelp)),
	}
}

func subscriptionKeyboard(channel string) domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.URLButton("🔗 Подписаться на канал", "https://t.me/"+channel)),
		domain.Row(domain.CallbackButton("✅ Подписался", domain.TagCheckSubscription)),
	}
}

// categoryKeyboard lays categories out two per row, followed by cancel.
func categoryKeyboard() domain.Keyboard {
	kb := make(domain.Keyboard, 0, len(domain.Categories)/2+1)
	for i := 0; i < len(domain.Categories); i += 2 {
		row := []domain.Button{}
		for _, c := range domain.Categories[i:min(i+2, len(domain.Categories))] {
			row = append(row, domain.CallbackButton(c.Label(), domain.TagCategoryPrefix+string(c)))
		}
		kb = append(kb, row)
	}
	return append(kb, cancelKeyboard()...)
}

func sizeFooterKeyboard() domain.Keyboard {
	return domain.Keyboard{domain.Row(
		domain.CallbackButton("🔙 Назад к категориям", domain.TagRecalculate),
		domain.CallbackButton("❌ Отмена", domain.TagCancel),
	)}
}

func quoteKeyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.CallbackButton("✅ Оформить заказ", domain.TagOrderStandard)),
		domain.Row(domain.CallbackButton("⚡ Оформить экспресс", domain.TagOrderExpress)),
		domain.Row(domain.CallbackButton("🔄 Пересчитать товар", domain.TagRecalculate)),
		domain.Row(domain.CallbackButton("🏠 В главное меню", domain.TagMainMenu)),
	}
}

func noOrdersKeyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.CallbackButton("🧮 Рассчитать стоимость", domain.TagCalculateCost)),
		domain.Row(domain.CallbackButton("🏠 В главное меню", domain.TagMainMenu)),
	}
}

func myOrdersKeyboard() domain.Keyboard {
	return domain.Keyboard{
		domain.Row(domain.CallbackButton("🔄 Обновить статусы", domain.TagMyOrders)),
		domain.Row(domain.CallbackButton("🏠 В главное меню", domain.TagMainMenu)),
	}
}

func helpKeyboard() domain.Keyboard {
	return noOrdersKeyboard()
}
