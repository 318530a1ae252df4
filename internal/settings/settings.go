// Package settings mirrors the bot's key/value configuration store in memory.
//
// Reads go through an immutable snapshot swapped atomically, so they never
// block. Writes persist to the store first and then reload the snapshot
// wholesale.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/pricing"
)

// Setting keys as stored.
const (
	KeyYuanRate        = "yuan_rate"
	KeyCarrierFee      = "cdek_price"
	KeyAPILimit        = "api_limit_per_user"
	KeyChannelUsername = "channel_username"
	KeyReviewsURL      = "reviews_url"

	keyAdminChatPrefix = "admin_chat_"
	keyInfoURLPrefix   = "poizon_info_url_"
	keyMarkupPrefix    = "markup_"
	keyShippingPrefix  = "shipping_"
	keyExpressPrefix   = "express_extra_"
)

const (
	defaultYuanRate        = 13.20
	defaultCarrierFee      = 500
	defaultAPILimit        = 50
	defaultChannelUsername = "erauqss"
	defaultReviewsURL      = "https://your-reviews-site.com"
	defaultMarkup          = 500
	defaultShipping        = 600
	defaultExpressExtra    = 400

	adminSlots   = 3
	infoURLSlots = 3
)

var defaultInfoURLs = []string{"https://link1.com", "https://link2.com", "https://link3.com"}

// Store is the durable key/value backend.
type Store interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string, updatedBy int64) error
}

// CategoryRates are the per-category surcharges.
type CategoryRates struct {
	Markup           float64
	Shipping         float64
	ExpressSurcharge float64
}

// Settings is one immutable view of the configuration.
type Settings struct {
	YuanRate        float64
	CarrierFee      float64
	APILimitPerUser int
	ChannelUsername string
	AdminChatIDs    []int64
	ReviewsURL      string
	InfoURLs        []string
	Categories      map[domain.Category]CategoryRates
}

// Defaults returns the configuration used when the store holds nothing.
func Defaults() Settings {
	s := Settings{
		YuanRate:        defaultYuanRate,
		CarrierFee:      defaultCarrierFee,
		APILimitPerUser: defaultAPILimit,
		ChannelUsername: defaultChannelUsername,
		ReviewsURL:      defaultReviewsURL,
		InfoURLs:        slices.Clone(defaultInfoURLs),
		Categories:      make(map[domain.Category]CategoryRates, len(domain.Categories)),
	}
	for _, c := range domain.Categories {
		s.Categories[c] = CategoryRates{Markup: defaultMarkup, Shipping: defaultShipping, ExpressSurcharge: defaultExpressExtra}
	}
	return s
}

// Rates assembles the pricing inputs for category c.
func (s Settings) Rates(c domain.Category) pricing.Rates {
	cr, ok := s.Categories[c]
	if !ok {
		cr = CategoryRates{Markup: defaultMarkup, Shipping: defaultShipping, ExpressSurcharge: defaultExpressExtra}
	}
	return pricing.Rates{
		ConversionRate:   s.YuanRate,
		CarrierFee:       s.CarrierFee,
		Markup:           cr.Markup,
		Shipping:         cr.Shipping,
		ExpressSurcharge: cr.ExpressSurcharge,
	}
}

// IsAdmin reports whether telegramID is a configured admin recipient.
func (s Settings) IsAdmin(telegramID int64) bool {
	return slices.Contains(s.AdminChatIDs, telegramID)
}

// Parse builds Settings from raw key/value pairs, falling back to defaults
// for missing or malformed values.
func Parse(raw map[string]string) Settings {
	s := Defaults()
	s.YuanRate = floatValue(raw, KeyYuanRate, s.YuanRate)
	s.CarrierFee = floatValue(raw, KeyCarrierFee, s.CarrierFee)
	s.APILimitPerUser = intValue(raw, KeyAPILimit, s.APILimitPerUser)
	if v := strings.TrimSpace(raw[KeyChannelUsername]); v != "" {
		s.ChannelUsername = strings.TrimPrefix(v, "@")
	}
	if v := strings.TrimSpace(raw[KeyReviewsURL]); v != "" {
		s.ReviewsURL = v
	}
	for i := 1; i <= infoURLSlots; i++ {
		if v := strings.TrimSpace(raw[keyInfoURLPrefix+strconv.Itoa(i)]); v != "" {
			s.InfoURLs[i-1] = v
		}
	}
	for i := 1; i <= adminSlots; i++ {
		key := keyAdminChatPrefix + strconv.Itoa(i)
		v := strings.TrimSpace(raw[key])
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("ignoring malformed admin chat id", "key", key, "value", v)
			continue
		}
		s.AdminChatIDs = append(s.AdminChatIDs, id)
	}
	for _, c := range domain.Categories {
		cr := s.Categories[c]
		cr.Markup = floatValue(raw, keyMarkupPrefix+string(c), cr.Markup)
		cr.Shipping = floatValue(raw, keyShippingPrefix+string(c), cr.Shipping)
		cr.ExpressSurcharge = floatValue(raw, keyExpressPrefix+string(c), cr.ExpressSurcharge)
		s.Categories[c] = cr
	}
	return s
}

func floatValue(raw map[string]string, key string, def float64) float64 {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		slog.Warn("ignoring malformed numeric setting", "key", key, "value", v)
		return def
	}
	return f
}

func intValue(raw map[string]string, key string, def int) int {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("ignoring malformed integer setting", "key", key, "value", v)
		return def
	}
	return n
}

// Cache is the injected configuration service.
type Cache struct {
	store   Store
	current atomic.Pointer[Settings]
}

// NewCache creates a Cache seeded with defaults. Call Reload to load the store.
func NewCache(store Store) (*Cache, error) {
	if store == nil {
		return nil, errors.New("settings: store must not be nil")
	}
	c := &Cache{store: store}
	d := Defaults()
	c.current.Store(&d)
	return c, nil
}

// Current returns the active snapshot.
func (c *Cache) Current() Settings {
	return *c.current.Load()
}

// Reload replaces the snapshot with the store's contents.
func (c *Cache) Reload(ctx context.Context) error {
	raw, err := c.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("settings: reload: %w", err)
	}
	s := Parse(raw)
	c.current.Store(&s)
	slog.Debug("settings loaded", "count", len(raw))
	return nil
}

// Set writes one key through to the store and reloads.
func (c *Cache) Set(ctx context.Context, key, value string, updatedBy int64) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings: key is required")
	}
	if err := c.store.PutSetting(ctx, key, value, updatedBy); err != nil {
		return fmt.Errorf("settings: put %q: %w", key, err)
	}
	if err := c.Reload(ctx); err != nil {
		return err
	}
	slog.Info("setting updated", "key", key, "value", value, "updated_by", updatedBy)
	return nil
}

// SetYuanRate validates and stores a new conversion rate.
func (c *Cache) SetYuanRate(ctx context.Context, rate float64, updatedBy int64) error {
	if !(rate > 0) || math.IsInf(rate, 1) {
		return fmt.Errorf("settings: invalid rate %v", rate)
	}
	return c.Set(ctx, KeyYuanRate, strconv.FormatFloat(rate, 'f', -1, 64), updatedBy)
}
