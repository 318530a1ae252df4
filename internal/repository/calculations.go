package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"poizon-bot/internal/domain"
)

// SaveCalculation stores the calculation and bumps the user's calculation
// counter in one transaction. It fills in ID and CreatedAt when unset.
func (c *Client) SaveCalculation(ctx context.Context, calc domain.Calculation) (domain.Calculation, error) {
	if calc.UserID == 0 {
		return domain.Calculation{}, errors.New("repository: SaveCalculation: user id is required")
	}
	if calc.ID == "" {
		calc.ID = c.newID()
	}
	if calc.CreatedAt.IsZero() {
		calc.CreatedAt = c.now().UTC()
	}
	product, err := json.Marshal(calc.Product)
	if err != nil {
		return domain.Calculation{}, fmt.Errorf("repository: SaveCalculation encode product: %w", err)
	}

	item := itemKey(userPK(calc.UserID), skPrefixCalc+skTime(calc.CreatedAt)+"#"+calc.ID)
	item["entity"] = sAttr("calculation")
	item["calculationId"] = sAttr(calc.ID)
	item["userId"] = nAttr(calc.UserID)
	item["productRef"] = sAttr(calc.ProductRef)
	item["productUrl"] = sAttr(calc.URL)
	item["title"] = sAttr(calc.Title)
	item["category"] = sAttr(string(calc.Category))
	item["productSize"] = sAttr(calc.Size)
	item["sourcePrice"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(calc.SourcePrice, 'f', -1, 64)}
	item["standardTotal"] = nAttr(calc.StandardTotal)
	item["expressTotal"] = nAttr(calc.ExpressTotal)
	item["productData"] = sAttr(string(product))
	item["createdAt"] = tAttr(calc.CreatedAt)

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName:        aws.String(c.tableName),
					Key:              itemKey(userPK(calc.UserID), skProfile),
					UpdateExpression: aws.String("ADD totalCalculations :one"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one": nAttr(1),
					},
				},
			},
		},
	})
	if err != nil {
		return domain.Calculation{}, fmt.Errorf("repository: SaveCalculation: %w", err)
	}
	return calc, nil
}

// CalculationsByUser returns the user's calculations, newest first.
func (c *Client) CalculationsByUser(ctx context.Context, userID int64, limit int) ([]domain.Calculation, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     sAttr(userPK(userID)),
			":prefix": sAttr(skPrefixCalc),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: CalculationsByUser query: %w", err)
	}
	calcs := make([]domain.Calculation, 0, len(out.Items))
	for _, item := range out.Items {
		calc, err := itemToCalculation(item)
		if err != nil {
			return nil, fmt.Errorf("repository: CalculationsByUser unmarshal: %w", err)
		}
		calcs = append(calcs, calc)
	}
	return calcs, nil
}

func itemToCalculation(item map[string]types.AttributeValue) (domain.Calculation, error) {
	id, err := strAttr(item, "calculationId")
	if err != nil {
		return domain.Calculation{}, err
	}
	userID, err := int64Attr(item, "userId")
	if err != nil {
		return domain.Calculation{}, err
	}
	price, err := floatAttr(item, "sourcePrice")
	if err != nil {
		return domain.Calculation{}, err
	}
	standard, err := int64Attr(item, "standardTotal")
	if err != nil {
		return domain.Calculation{}, err
	}
	express, err := int64Attr(item, "expressTotal")
	if err != nil {
		return domain.Calculation{}, err
	}
	var product domain.ProductSnapshot
	if raw := optStr(item, "productData"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &product); err != nil {
			return domain.Calculation{}, fmt.Errorf("repository: decode productData: %w", err)
		}
	}
	return domain.Calculation{
		ID:            id,
		UserID:        userID,
		ProductRef:    optStr(item, "productRef"),
		URL:           optStr(item, "productUrl"),
		Title:         optStr(item, "title"),
		Category:      domain.Category(optStr(item, "category")),
		Size:          optStr(item, "productSize"),
		SourcePrice:   price,
		StandardTotal: standard,
		ExpressTotal:  express,
		Product:       product,
		CreatedAt:     optTime(item, "createdAt"),
	}, nil
}
