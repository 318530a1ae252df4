package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"poizon-bot/internal/domain"
)

const orderNumberPrefix = "SQ"

// NextOrderNumber allocates the next number of the current UTC day,
// formatted SQ-YYYYMMDD-NNNN.
func (c *Client) NextOrderNumber(ctx context.Context) (string, error) {
	day := c.now().UTC().Format("20060102")
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              itemKey(pkOrderCounter, "DAY#"+day),
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": nAttr(1),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return "", fmt.Errorf("repository: NextOrderNumber: %w", err)
	}
	seq, err := intAttr(out.Attributes, "seq")
	if err != nil {
		return "", fmt.Errorf("repository: NextOrderNumber decode seq: %w", err)
	}
	return fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, day, seq), nil
}

// CreateOrder assigns a number and stores the order, its number pointer,
// the user's order counter and the order_created audit entry in one
// transaction.
func (c *Client) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.UserID == 0 {
		return domain.Order{}, errors.New("repository: CreateOrder: user id is required")
	}
	number, err := c.NextOrderNumber(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: CreateOrder: %w", err)
	}
	now := c.now().UTC()
	o.Number = number
	if o.Status == "" {
		o.Status = domain.StatusPending
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	sk := skPrefixOrder + skTime(now) + "#" + number
	pointer := itemKey(orderPK(number), skPointer)
	pointer["userId"] = nAttr(o.UserID)
	pointer["orderSK"] = sAttr(sk)

	audit := c.auditItem(domain.AuditEntry{
		UserID: o.UserID,
		Action: domain.ActionOrderCreated,
		Data: map[string]string{
			"orderNumber": number,
			"amount":      strconv.FormatInt(o.Amount, 10),
			"tier":        string(o.Tier),
		},
		At: now,
	})

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                orderItem(o, sk),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                pointer,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Update: &types.Update{
					TableName:        aws.String(c.tableName),
					Key:              itemKey(userPK(o.UserID), skProfile),
					UpdateExpression: aws.String("ADD totalOrders :one"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one": nAttr(1),
					},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      audit,
				},
			},
		},
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: CreateOrder %s: %w", number, err)
	}
	return o, nil
}

// GetOrder looks an order up by its number.
func (c *Client) GetOrder(ctx context.Context, number string) (domain.Order, error) {
	pk, sk, err := c.resolveOrder(ctx, number)
	if err != nil {
		return domain.Order{}, err
	}
	return c.getOrderItem(ctx, pk, sk)
}

func (c *Client) resolveOrder(ctx context.Context, number string) (string, string, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(orderPK(number), skPointer),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", "", fmt.Errorf("repository: resolve order %s: %w", number, err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", "", domain.ErrNotFound
	}
	userID, err := int64Attr(out.Item, "userId")
	if err != nil {
		return "", "", fmt.Errorf("repository: resolve order %s: %w", number, err)
	}
	sk, err := strAttr(out.Item, "orderSK")
	if err != nil {
		return "", "", fmt.Errorf("repository: resolve order %s: %w", number, err)
	}
	return userPK(userID), sk, nil
}

func (c *Client) getOrderItem(ctx context.Context, pk, sk string) (domain.Order, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: get order: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Order{}, domain.ErrNotFound
	}
	o, err := itemToOrder(out.Item)
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: get order decode: %w", err)
	}
	return o, nil
}

// UpdateOrderStatus moves an order to status and, when tracking is not
// empty, records the tracking number. Repeating an update that is already
// in effect changes nothing and writes no audit entry; the returned flag
// reports whether anything changed.
func (c *Client) UpdateOrderStatus(ctx context.Context, number string, status domain.OrderStatus, tracking string) (domain.Order, bool, error) {
	pk, sk, err := c.resolveOrder(ctx, number)
	if err != nil {
		return domain.Order{}, false, err
	}
	current, err := c.getOrderItem(ctx, pk, sk)
	if err != nil {
		return domain.Order{}, false, err
	}

	now := c.now().UTC()
	update := "SET orderStatus = :status, updatedAt = :now"
	cond := "attribute_exists(PK) AND (orderStatus <> :status"
	values := map[string]types.AttributeValue{
		":status": sAttr(string(status)),
		":now":    tAttr(now),
	}
	if tracking != "" {
		update += ", trackingNumber = :tracking"
		cond += " OR attribute_not_exists(trackingNumber) OR trackingNumber <> :tracking"
		values[":tracking"] = sAttr(tracking)
	}
	cond += ")"

	data := map[string]string{
		"orderNumber": number,
		"from":        string(current.Status),
		"to":          string(status),
	}
	if tracking != "" {
		data["trackingNumber"] = tracking
	}
	audit := c.auditItem(domain.AuditEntry{
		UserID: current.UserID,
		Action: domain.ActionOrderStatus,
		Data:   data,
		At:     now,
	})

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:                 aws.String(c.tableName),
					Key:                       itemKey(pk, sk),
					UpdateExpression:          aws.String(update),
					ConditionExpression:       aws.String(cond),
					ExpressionAttributeValues: values,
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      audit,
				},
			},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			o, getErr := c.getOrderItem(ctx, pk, sk)
			return o, false, getErr
		}
		return domain.Order{}, false, fmt.Errorf("repository: UpdateOrderStatus %s: %w", number, err)
	}

	current.Status = status
	if tracking != "" {
		current.TrackingNumber = tracking
	}
	current.UpdatedAt = now
	return current, true, nil
}

// OrdersByUser returns the user's orders, newest first.
func (c *Client) OrdersByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     sAttr(userPK(userID)),
			":prefix": sAttr(skPrefixOrder),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: OrdersByUser query: %w", err)
	}
	orders := make([]domain.Order, 0, len(out.Items))
	for _, item := range out.Items {
		o, err := itemToOrder(item)
		if err != nil {
			return nil, fmt.Errorf("repository: OrdersByUser unmarshal: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func orderItem(o domain.Order, sk string) map[string]types.AttributeValue {
	item := itemKey(userPK(o.UserID), sk)
	item["entity"] = sAttr("order")
	item["orderNumber"] = sAttr(o.Number)
	item["userId"] = nAttr(o.UserID)
	item["title"] = sAttr(o.Title)
	item["productSize"] = sAttr(o.Size)
	item["category"] = sAttr(string(o.Category))
	item["orderStatus"] = sAttr(string(o.Status))
	item["amount"] = nAttr(o.Amount)
	item["tier"] = sAttr(string(o.Tier))
	item["createdAt"] = tAttr(o.CreatedAt)
	item["updatedAt"] = tAttr(o.UpdatedAt)
	if o.TrackingNumber != "" {
		item["trackingNumber"] = sAttr(o.TrackingNumber)
	}
	return item
}

func itemToOrder(item map[string]types.AttributeValue) (domain.Order, error) {
	number, err := strAttr(item, "orderNumber")
	if err != nil {
		return domain.Order{}, err
	}
	userID, err := int64Attr(item, "userId")
	if err != nil {
		return domain.Order{}, err
	}
	status, err := strAttr(item, "orderStatus")
	if err != nil {
		return domain.Order{}, err
	}
	amount, err := int64Attr(item, "amount")
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		Number:         number,
		UserID:         userID,
		Title:          optStr(item, "title"),
		Size:           optStr(item, "productSize"),
		Category:       domain.Category(optStr(item, "category")),
		Status:         domain.OrderStatus(status),
		Amount:         amount,
		Tier:           domain.DeliveryTier(optStr(item, "tier")),
		TrackingNumber: optStr(item, "trackingNumber"),
		CreatedAt:      optTime(item, "createdAt"),
		UpdatedAt:      optTime(item, "updatedAt"),
	}, nil
}
