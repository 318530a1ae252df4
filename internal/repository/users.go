package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"poizon-bot/internal/domain"
)

// UpsertUser creates the profile on first contact or refreshes its profile
// fields and last activity. It reports whether the user was created, judged
// from the item as it was before the write.
func (c *Client) UpsertUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	now := c.now().UTC().Truncate(time.Millisecond)
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key:       itemKey(userPK(u.TelegramID), skProfile),
		UpdateExpression: aws.String("SET telegramId = :id, username = :username, firstName = :first, lastName = :last, " +
			"lastActivity = :now, registeredAt = if_not_exists(registeredAt, :now), " +
			"subscribed = if_not_exists(subscribed, :false), " +
			"totalCalculations = if_not_exists(totalCalculations, :zero), " +
			"totalOrders = if_not_exists(totalOrders, :zero), entity = :entity"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":       nAttr(u.TelegramID),
			":username": sAttr(u.Username),
			":first":    sAttr(u.FirstName),
			":last":     sAttr(u.LastName),
			":now":      tAttr(now),
			":false":    &types.AttributeValueMemberBOOL{Value: false},
			":zero":     nAttr(0),
			":entity":   sAttr("user"),
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("repository: UpsertUser: %w", err)
	}

	// A missing registeredAt means no profile existed, even if a partial
	// item was left by SetSubscribed.
	prev := out.Attributes
	_, existed := prev["registeredAt"]
	stored := domain.User{
		TelegramID:        u.TelegramID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Subscribed:        optBool(prev, "subscribed"),
		TotalCalculations: optInt(prev, "totalCalculations"),
		TotalOrders:       optInt(prev, "totalOrders"),
		RegisteredAt:      now,
		LastActivity:      now,
	}
	if existed {
		stored.RegisteredAt = optTime(prev, "registeredAt")
	}
	return stored, !existed, nil
}

// GetUser returns the stored profile or domain.ErrNotFound.
func (c *Client) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       itemKey(userPK(userID), skProfile),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	u, err := itemToUser(out.Item)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser decode: %w", err)
	}
	return u, nil
}

// SetSubscribed records the outcome of the latest channel membership check.
func (c *Client) SetSubscribed(ctx context.Context, userID int64, subscribed bool) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              itemKey(userPK(userID), skProfile),
		UpdateExpression: aws.String("SET subscribed = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberBOOL{Value: subscribed},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetSubscribed: %w", err)
	}
	return nil
}

// ListUsers scans all profiles matching f.
func (c *Client) ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error) {
	filter := "SK = :profile"
	values := map[string]types.AttributeValue{":profile": sAttr(skProfile)}
	if !f.ActiveSince.IsZero() {
		filter += " AND lastActivity >= :active"
		values[":active"] = tAttr(f.ActiveSince)
	}
	if !f.RegisteredSince.IsZero() {
		filter += " AND registeredAt >= :registered"
		values[":registered"] = tAttr(f.RegisteredSince)
	}

	var users []domain.User
	err := c.scanAll(ctx, &dynamodb.ScanInput{
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
	}, func(item map[string]types.AttributeValue) error {
		u, err := itemToUser(item)
		if err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListUsers: %w", err)
	}
	return users, nil
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	id, err := int64Attr(item, "telegramId")
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		TelegramID:        id,
		Username:          optStr(item, "username"),
		FirstName:         optStr(item, "firstName"),
		LastName:          optStr(item, "lastName"),
		Subscribed:        optBool(item, "subscribed"),
		TotalCalculations: optInt(item, "totalCalculations"),
		TotalOrders:       optInt(item, "totalOrders"),
		RegisteredAt:      optTime(item, "registeredAt"),
		LastActivity:      optTime(item, "lastActivity"),
	}, nil
}
