package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"poizon-bot/internal/domain"
)

func quotaSK(day, op string) string {
	return skPrefixQuota + day + "#" + op
}

// IncrementQuota atomically adds one to the user's counter for op on day,
// refusing when the stored count has already reached limit.
func (c *Client) IncrementQuota(ctx context.Context, userID int64, op, day string, limit int) (int, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 itemKey(userPK(userID), quotaSK(day, op)),
		UpdateExpression:    aws.String("ADD #count :one SET #day = :day, #op = :op, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#count": "requestCount",
			"#day":   "requestDay",
			"#op":    "operation",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   nAttr(1),
			":limit": nAttr(int64(limit)),
			":day":   sAttr(day),
			":op":    sAttr(op),
			":ttl":   &types.AttributeValueMemberN{Value: ttlAt(c.now(), quotaTTL)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if conditionFailed(err) {
			return 0, domain.ErrQuotaExceeded
		}
		return 0, fmt.Errorf("repository: IncrementQuota: %w", err)
	}
	n, err := intAttr(out.Attributes, "requestCount")
	if err != nil {
		return 0, fmt.Errorf("repository: IncrementQuota decode count: %w", err)
	}
	return n, nil
}

// QuotaCount returns how many units of op the user spent on day.
func (c *Client) QuotaCount(ctx context.Context, userID int64, op, day string) (int, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(userPK(userID), quotaSK(day, op)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: QuotaCount get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	n, err := intAttr(out.Item, "requestCount")
	if err != nil {
		return 0, fmt.Errorf("repository: QuotaCount decode count: %w", err)
	}
	return n, nil
}
