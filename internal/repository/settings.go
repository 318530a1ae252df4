package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// LoadSettings returns every stored setting keyed by name.
func (c *Client) LoadSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := c.queryAll(ctx, &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": sAttr(pkSettings),
		},
		ConsistentRead: aws.Bool(true),
	}, func(item map[string]types.AttributeValue) error {
		k, err := strAttr(item, "SK")
		if err != nil {
			return err
		}
		v, err := strAttr(item, "settingValue")
		if err != nil {
			return err
		}
		out[k] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: LoadSettings: %w", err)
	}
	return out, nil
}

// PutSetting writes or replaces one setting.
func (c *Client) PutSetting(ctx context.Context, name, value string, updatedBy int64) error {
	item := itemKey(pkSettings, name)
	item["settingValue"] = sAttr(value)
	item["updatedBy"] = sAttr(strconv.FormatInt(updatedBy, 10))
	item["updatedAt"] = tAttr(c.now())

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutSetting %s: %w", name, err)
	}
	return nil
}
