package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/orders"
	"poizon-bot/internal/pricing"
	"poizon-bot/internal/quota"
)

const sizesPerRow = 4

// linkPattern matches the first http(s) link in a share text, stopping at
// whitespace and CJK characters that marketplace apps glue to the URL.
var linkPattern = regexp.MustCompile(`(?i)https?://[^\s\x{4e00}-\x{9fff}\x{3000}-\x{303f}\x{ff00}-\x{ffef}]+`)

// ExtractURL returns the first product link found in text.
func ExtractURL(text string) (string, bool) {
	link := linkPattern.FindString(text)
	return link, link != ""
}

func (e *Engine) routeCallback(ctx context.Context, chatID int64, user domain.User, data string) error {
	switch data {
	case domain.TagCheckSubscription:
		return e.checkSubscription(ctx, chatID, user)
	case domain.TagUnderstood, domain.TagMainMenu:
		return e.showMainMenu(ctx, chatID)
	case domain.TagNeedHelp, domain.TagWhatIsPoizon:
		return e.showPoizonInfo(ctx, chatID)
	case domain.TagCalculateCost:
		return e.startCalculation(ctx, chatID, user)
	case domain.TagReviews:
		return e.showReviews(ctx, chatID)
	case domain.TagCallOperator:
		return e.callOperator(ctx, chatID, user)
	case domain.TagMyOrders:
		return e.showMyOrders(ctx, chatID, user)
	case domain.TagCancel:
		e.sessions.Clear(user.TelegramID)
		return e.showMainMenu(ctx, chatID)
	case domain.TagRecalculate:
		return e.recalculate(ctx, chatID, user)
	case domain.TagOrderStandard:
		return e.confirmOrder(ctx, chatID, user, domain.TierStandard)
	case domain.TagOrderExpress:
		return e.confirmOrder(ctx, chatID, user, domain.TierExpress)
	}
	switch {
	case strings.HasPrefix(data, domain.TagCategoryPrefix):
		return e.selectCategory(ctx, chatID, user, strings.TrimPrefix(data, domain.TagCategoryPrefix))
	case strings.HasPrefix(data, domain.TagSizePrefix):
		return e.selectSize(ctx, chatID, user, strings.TrimPrefix(data, domain.TagSizePrefix))
	}
	slog.Warn("unknown callback", "user_id", user.TelegramID, "data", data)
	return e.showMainMenu(ctx, chatID)
}

func (e *Engine) showMainMenu(ctx context.Context, chatID int64) error {
	return e.msg.SendText(ctx, chatID, textMainMenu, mainMenuKeyboard())
}

func (e *Engine) showPoizonInfo(ctx context.Context, chatID int64) error {
	return e.msg.SendText(ctx, chatID, poizonInfoText(e.settings.Current().InfoURLs), backToMenuKeyboard())
}

func (e *Engine) showReviews(ctx context.Context, chatID int64) error {
	return e.msg.SendText(ctx, chatID, reviewsText(e.settings.Current().ReviewsURL), backToMenuKeyboard())
}

// startCalculation checks the lookup budget without spending it and asks for
// a product link.
func (e *Engine) startCalculation(ctx context.Context, chatID int64, user domain.User) error {
	if err := e.quota.Check(ctx, user.TelegramID, quota.OpExtractSPU); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return e.msg.SendText(ctx, chatID, quotaText(e.settings.Current().APILimitPerUser), backToMenuKeyboard())
		}
		return err
	}
	e.sessions.Set(user.TelegramID, domain.Session{Step: domain.StepWaitingURL})
	return e.msg.SendText(ctx, chatID, textAskLink, cancelKeyboard())
}

// handleURLInput resolves a pasted link into a product snapshot. Any
// failure leaves the session waiting for another link.
func (e *Engine) handleURLInput(ctx context.Context, chatID int64, user domain.User, sess domain.Session, text string) error {
	link, ok := ExtractURL(text)
	if !ok {
		return e.msg.SendText(ctx, chatID, textNoLink, cancelKeyboard())
	}
	if err := e.msg.SendText(ctx, chatID, textFetching, nil); err != nil {
		return err
	}

	ref, product, err := e.fetchProduct(ctx, user.TelegramID, link)
	if err != nil {
		return e.lookupFailed(ctx, chatID, user.TelegramID, err)
	}

	sess.Step = domain.StepCategorySelection
	sess.Context = domain.SessionContext{URL: link, ProductRef: ref, Product: &product}
	e.sessions.Set(user.TelegramID, sess)
	slog.Info("product resolved", "user_id", user.TelegramID, "spu_id", ref, "variants", len(product.Variants))
	return e.showCategories(ctx, chatID)
}

func (e *Engine) fetchProduct(ctx context.Context, userID int64, link string) (string, domain.ProductSnapshot, error) {
	if _, err := e.quota.Consume(ctx, userID, quota.OpExtractSPU); err != nil {
		return "", domain.ProductSnapshot{}, err
	}
	ref, err := e.lookup.ResolveReference(ctx, link)
	if err != nil {
		return "", domain.ProductSnapshot{}, err
	}
	if _, err := e.quota.Consume(ctx, userID, quota.OpGetProductData); err != nil {
		return "", domain.ProductSnapshot{}, err
	}
	product, err := e.lookup.FetchDetails(ctx, ref)
	if err != nil {
		return "", domain.ProductSnapshot{}, err
	}
	if err := product.Validate(); err != nil {
		return "", domain.ProductSnapshot{}, err
	}
	return ref, product, nil
}

func (e *Engine) lookupFailed(ctx context.Context, chatID, userID int64, err error) error {
	uerr := classify("product_lookup", err)
	slog.Warn("product lookup failed", "user_id", userID, "code", uerr.Code, "err", err)

	text := textLinkError
	switch uerr.Code {
	case ErrorQuotaExceeded:
		text = quotaText(e.settings.Current().APILimitPerUser)
	case ErrorNotFound:
		text = textLinkUnresolved
	case ErrorInvalidInput:
		text = textProductUnavailable
	}
	return e.msg.SendText(ctx, chatID, text, cancelKeyboard())
}

func (e *Engine) showCategories(ctx context.Context, chatID int64) error {
	return e.msg.SendText(ctx, chatID, textChooseCategory, categoryKeyboard())
}

func (e *Engine) selectCategory(ctx context.Context, chatID int64, user domain.User, raw string) error {
	sess := e.sessions.Get(user.TelegramID)
	if sess.Context.Product == nil {
		return e.rejectMissingContext(ctx, chatID, user.TelegramID, "category_without_product")
	}
	category, err := domain.ParseCategory(raw)
	if err != nil {
		slog.Warn("unknown category", "user_id", user.TelegramID, "category", raw)
		return e.msg.SendText(ctx, chatID, textChooseCategory, categoryKeyboard())
	}

	sess.Step = domain.StepSizeSelection
	sess.Context.Category = category
	sess.Context.Variant = nil
	sess.Context.Calculation = nil
	e.sessions.Set(user.TelegramID, sess)
	return e.showSizes(ctx, chatID, *sess.Context.Product)
}

func (e *Engine) showSizes(ctx context.Context, chatID int64, p domain.ProductSnapshot) error {
	if p.ImageURL != "" {
		if err := e.msg.SendPhoto(ctx, chatID, photoURL(p.ImageURL), photoCaption(p.Title)); err != nil {
			slog.Warn("product photo failed", "chat_id", chatID, "err", err)
		}
	}
	avail := p.AvailableVariants()
	if len(avail) == 0 {
		return e.msg.SendText(ctx, chatID, textNoSizes, sizeFooterKeyboard())
	}
	kb := make(domain.Keyboard, 0, len(avail)/sizesPerRow+2)
	for i := 0; i < len(avail); i += sizesPerRow {
		end := min(i+sizesPerRow, len(avail))
		row := make([]domain.Button, 0, end-i)
		for _, v := range avail[i:end] {
			row = append(row, domain.CallbackButton(v.SizeLabel, domain.TagSizePrefix+v.ID))
		}
		kb = append(kb, row)
	}
	kb = append(kb, sizeFooterKeyboard()...)
	return e.msg.SendText(ctx, chatID, textChooseSize, kb)
}

// selectSize prices the chosen variant and persists the calculation.
func (e *Engine) selectSize(ctx context.Context, chatID int64, user domain.User, variantID string) error {
	sess := e.sessions.Get(user.TelegramID)
	if sess.Context.Product == nil || sess.Context.Category == "" {
		return e.rejectMissingContext(ctx, chatID, user.TelegramID, "size_without_category")
	}
	variant, ok := sess.Context.Product.Variant(variantID)
	if !ok || !variant.Available {
		if err := e.msg.SendText(ctx, chatID, textSizeNotFound, nil); err != nil {
			return err
		}
		return e.showMainMenu(ctx, chatID)
	}

	p := sess.Context.Product
	q := pricing.Calculate(variant.Price, e.settings.Current().Rates(sess.Context.Category))
	calc, err := e.store.SaveCalculation(ctx, domain.Calculation{
		UserID:        user.TelegramID,
		ProductRef:    sess.Context.ProductRef,
		URL:           sess.Context.URL,
		Title:         p.Title,
		Category:      sess.Context.Category,
		Size:          variant.SizeLabel,
		SourcePrice:   variant.Price,
		StandardTotal: q.Standard,
		ExpressTotal:  q.Express,
		Product:       *p,
	})
	if err != nil {
		return newError(ErrorInternal, "calculation_write_error", err)
	}

	sess.Context.Variant = &variant
	sess.Context.Calculation = &calc
	e.sessions.Set(user.TelegramID, sess)
	slog.Info("price calculated", "user_id", user.TelegramID, "category", calc.Category,
		"source_price", calc.SourcePrice, "standard", calc.StandardTotal, "express", calc.ExpressTotal)
	return e.msg.SendText(ctx, chatID, quoteText(calc), quoteKeyboard())
}

// recalculate returns to category selection for the same product.
func (e *Engine) recalculate(ctx context.Context, chatID int64, user domain.User) error {
	sess := e.sessions.Get(user.TelegramID)
	if sess.Context.Product == nil {
		return e.rejectMissingContext(ctx, chatID, user.TelegramID, "recalculate_without_product")
	}
	e.sessions.Set(user.TelegramID, domain.Session{
		Step: domain.StepCategorySelection,
		Context: domain.SessionContext{
			URL:        sess.Context.URL,
			ProductRef: sess.Context.ProductRef,
			Product:    sess.Context.Product,
		},
	})
	return e.showCategories(ctx, chatID)
}

// confirmOrder turns the current calculation into an order and alerts the
// operators.
func (e *Engine) confirmOrder(ctx context.Context, chatID int64, user domain.User, tier domain.DeliveryTier) error {
	sess := e.sessions.Get(user.TelegramID)
	calc := sess.Context.Calculation
	if calc == nil {
		return e.rejectMissingContext(ctx, chatID, user.TelegramID, "order_without_calculation")
	}
	order, err := e.orders.CreateOrder(ctx, orders.Request{
		UserID:   user.TelegramID,
		Title:    calc.Title,
		Size:     calc.Size,
		Category: calc.Category,
		Tier:     tier,
		Amount:   calc.Total(tier),
	})
	if err != nil {
		return newError(ErrorInternal, "order_create_error", err)
	}
	e.sessions.Clear(user.TelegramID)

	if err := e.msg.SendText(ctx, chatID, orderAcceptedText(order), backToMenuKeyboard()); err != nil {
		slog.Warn("order confirmation failed", "order_number", order.Number, "err", err)
	}
	res := e.notifier.NotifyAdmins(ctx, adminOrderText(order, user, calc.URL), nil)
	slog.Info("order announced", "order_number", order.Number, "sent", res.Sent, "failed", res.Failed)
	return nil
}

func (e *Engine) callOperator(ctx context.Context, chatID int64, user domain.User) error {
	if err := e.msg.SendText(ctx, chatID, textOperatorCalled, backToMenuKeyboard()); err != nil {
		return err
	}
	now := e.now()
	res := e.notifier.NotifyAdmins(ctx, adminOperatorText(user, now), nil)
	slog.Info("operator called", "user_id", user.TelegramID, "sent", res.Sent, "failed", res.Failed)
	e.audit(ctx, user.TelegramID, domain.ActionOperatorCalled, map[string]string{"timestamp": now.UTC().Format(time.RFC3339)})
	return nil
}

func (e *Engine) showMyOrders(ctx context.Context, chatID int64, user domain.User) error {
	list, err := e.orders.OrdersByUser(ctx, user.TelegramID, myOrdersLimit)
	if err != nil {
		return newError(ErrorInternal, "orders_read_error", err)
	}
	if len(list) == 0 {
		return e.msg.SendText(ctx, chatID, textNoOrders, noOrdersKeyboard())
	}
	return e.msg.SendText(ctx, chatID, myOrdersText(list), myOrdersKeyboard())
}

// checkSubscription re-checks channel membership after the user pressed
// the "subscribed" button.
func (e *Engine) checkSubscription(ctx context.Context, chatID int64, user domain.User) error {
	channel := e.settings.Current().ChannelUsername
	if e.isSubscribed(ctx, user, channel) {
		return e.msg.SendText(ctx, chatID, textWelcome, welcomeKeyboard())
	}
	return e.msg.SendText(ctx, chatID, textNotSubscribedYet, subscriptionKeyboard(channel))
}

// isSubscribed asks the messenger for the user's channel status and stores
// the result on the profile. Lookup failures count as not subscribed.
func (e *Engine) isSubscribed(ctx context.Context, user domain.User, channel string) bool {
	status, err := e.msg.MemberStatus(ctx, channel, user.TelegramID)
	if err != nil {
		slog.Warn("subscription check failed", "user_id", user.TelegramID, "channel", channel, "err", err)
		return false
	}
	subscribed := status == "member" || status == "administrator" || status == "creator"
	if subscribed != user.Subscribed {
		if err := e.store.SetSubscribed(ctx, user.TelegramID, subscribed); err != nil {
			slog.Warn("subscription write failed", "user_id", user.TelegramID, "err", err)
		}
	}
	return subscribed
}

func photoURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}
