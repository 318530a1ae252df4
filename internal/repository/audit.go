package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"poizon-bot/internal/domain"
)

// RecordAction appends one audit entry for the user.
func (c *Client) RecordAction(ctx context.Context, e domain.AuditEntry) error {
	if e.Action == "" {
		return errors.New("repository: RecordAction: action is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                c.auditItem(e),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordAction %s: %w", e.Action, err)
	}
	return nil
}

func (c *Client) auditItem(e domain.AuditEntry) map[string]types.AttributeValue {
	at := e.At
	if at.IsZero() {
		at = c.now()
	}
	data := make(map[string]types.AttributeValue, len(e.Data))
	for k, v := range e.Data {
		data[k] = sAttr(v)
	}
	item := itemKey(userPK(e.UserID), skPrefixAudit+skTime(at)+"#"+c.newID())
	item["entity"] = sAttr("audit")
	item["action"] = sAttr(e.Action)
	item["actionData"] = &types.AttributeValueMemberM{Value: data}
	item["createdAt"] = tAttr(at)
	item["ttl"] = &types.AttributeValueMemberN{Value: ttlAt(at, auditTTL)}
	return item
}

// AuditTrail returns the user's audit entries, newest first.
func (c *Client) AuditTrail(ctx context.Context, userID int64, limit int) ([]domain.AuditEntry, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     sAttr(userPK(userID)),
			":prefix": sAttr(skPrefixAudit),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: AuditTrail query: %w", err)
	}
	entries := make([]domain.AuditEntry, 0, len(out.Items))
	for _, item := range out.Items {
		action, err := strAttr(item, "action")
		if err != nil {
			return nil, fmt.Errorf("repository: AuditTrail unmarshal: %w", err)
		}
		data := map[string]string{}
		if m, ok := item["actionData"].(*types.AttributeValueMemberM); ok {
			for k, v := range m.Value {
				if s, ok := v.(*types.AttributeValueMemberS); ok {
					data[k] = s.Value
				}
			}
		}
		entries = append(entries, domain.AuditEntry{
			UserID: userID,
			Action: action,
			Data:   data,
			At:     optTime(item, "createdAt"),
		})
	}
	return entries, nil
}
