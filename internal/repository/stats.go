package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"poizon-bot/internal/domain"
)

const (
	activeWindow     = 7 * 24 * time.Hour
	popularWindow    = 30 * 24 * time.Hour
	popularTopN      = 5
	quotaDayLayout   = "2006-01-02"
	statsParallelism = 4
)

// Stats aggregates the usage report. The four table scans run concurrently.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	now := c.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var (
		users  userStats
		calcs  calcStats
		orders orderStats
		quota  quotaStats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statsParallelism)
	g.Go(func() error { return c.scanUserStats(ctx, now, today, &users) })
	g.Go(func() error { return c.scanCalcStats(ctx, now, today, &calcs) })
	g.Go(func() error { return c.scanOrderStats(ctx, &orders) })
	g.Go(func() error { return c.scanQuotaStats(ctx, today, &quota) })
	if err := g.Wait(); err != nil {
		return domain.Stats{}, fmt.Errorf("repository: Stats: %w", err)
	}

	return domain.Stats{
		TotalUsers:        users.total,
		ActiveUsers:       users.active,
		NewUsersToday:     users.newToday,
		TotalCalculations: calcs.total,
		TodayCalculations: calcs.today,
		TotalOrders:       orders.total,
		PendingOrders:     orders.pending,
		CompletedOrders:   orders.completed,
		TodayAPIRequests:  quota.requests,
		TodayAPIUsers:     len(quota.users),
		PopularCategories: topCategories(calcs.byCategory, popularTopN),
	}, nil
}

type userStats struct{ total, active, newToday int }

type calcStats struct {
	total, today int
	byCategory   map[domain.Category]int
}

type orderStats struct{ total, pending, completed int }

type quotaStats struct {
	requests int
	users    map[int64]struct{}
}

func (c *Client) scanUserStats(ctx context.Context, now, today time.Time, out *userStats) error {
	return c.scanAll(ctx, &dynamodb.ScanInput{
		FilterExpression:          aws.String("SK = :profile"),
		ProjectionExpression:      aws.String("#active, #registered"),
		ExpressionAttributeNames:  map[string]string{"#active": "lastActivity", "#registered": "registeredAt"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":profile": sAttr(skProfile)},
	}, func(item map[string]types.AttributeValue) error {
		out.total++
		if !optTime(item, "lastActivity").Before(now.Add(-activeWindow)) {
			out.active++
		}
		if !optTime(item, "registeredAt").Before(today) {
			out.newToday++
		}
		return nil
	})
}

func (c *Client) scanCalcStats(ctx context.Context, now, today time.Time, out *calcStats) error {
	out.byCategory = make(map[domain.Category]int)
	since := now.Add(-popularWindow)
	return c.scanAll(ctx, &dynamodb.ScanInput{
		FilterExpression:          aws.String("begins_with(SK, :prefix)"),
		ProjectionExpression:      aws.String("#category, #created"),
		ExpressionAttributeNames:  map[string]string{"#category": "category", "#created": "createdAt"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":prefix": sAttr(skPrefixCalc)},
	}, func(item map[string]types.AttributeValue) error {
		out.total++
		created := optTime(item, "createdAt")
		if !created.Before(today) {
			out.today++
		}
		if cat := domain.Category(optStr(item, "category")); cat != "" && !created.Before(since) {
			out.byCategory[cat]++
		}
		return nil
	})
}

func (c *Client) scanOrderStats(ctx context.Context, out *orderStats) error {
	return c.scanAll(ctx, &dynamodb.ScanInput{
		FilterExpression:          aws.String("begins_with(SK, :prefix)"),
		ProjectionExpression:      aws.String("#status"),
		ExpressionAttributeNames:  map[string]string{"#status": "orderStatus"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":prefix": sAttr(skPrefixOrder)},
	}, func(item map[string]types.AttributeValue) error {
		out.total++
		switch domain.OrderStatus(optStr(item, "orderStatus")) {
		case domain.StatusPending:
			out.pending++
		case domain.StatusDelivered:
			out.completed++
		}
		return nil
	})
}

func (c *Client) scanQuotaStats(ctx context.Context, today time.Time, out *quotaStats) error {
	out.users = make(map[int64]struct{})
	return c.scanAll(ctx, &dynamodb.ScanInput{
		FilterExpression:          aws.String("begins_with(SK, :prefix)"),
		ProjectionExpression:      aws.String("PK, #count"),
		ExpressionAttributeNames:  map[string]string{"#count": "requestCount"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":prefix": sAttr(skPrefixQuota + today.Format(quotaDayLayout) + "#")},
	}, func(item map[string]types.AttributeValue) error {
		out.requests += optInt(item, "requestCount")
		if id, ok := userIDFromPK(optStr(item, "PK")); ok {
			out.users[id] = struct{}{}
		}
		return nil
	})
}

// topCategories orders by count descending, then by name for stable output.
func topCategories(counts map[domain.Category]int, n int) []domain.CategoryCount {
	out := make([]domain.CategoryCount, 0, len(counts))
	for cat, count := range counts {
		out = append(out, domain.CategoryCount{Category: cat, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
