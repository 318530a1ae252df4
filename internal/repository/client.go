// Package repository persists bot state in a single DynamoDB table.
//
// Every record lives under a PK/SK pair:
//
//	SETTINGS            / <key>                      runtime settings
//	USER#<id>           / PROFILE                    user profile and counters
//	USER#<id>           / QUOTA#<day>#<op>           daily lookup counter (TTL)
//	USER#<id>           / CALC#<ts>#<uuid>           calculation snapshot
//	USER#<id>           / ORDER#<ts>#<number>        order
//	USER#<id>           / AUDIT#<ts>#<uuid>          audit entry (TTL)
//	ORDER#<number>      / POINTER                    order number lookup
//	COUNTER#ORDER       / DAY#<yyyymmdd>             per-day order sequence
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	pkSettings     = "SETTINGS"
	pkOrderCounter = "COUNTER#ORDER"
	skProfile      = "PROFILE"
	skPointer      = "POINTER"
	skPrefixQuota  = "QUOTA#"
	skPrefixCalc   = "CALC#"
	skPrefixOrder  = "ORDER#"
	skPrefixAudit  = "AUDIT#"

	quotaTTL = 48 * time.Hour
	auditTTL = 180 * 24 * time.Hour

	// sortable, fixed-width UTC timestamp used inside sort keys
	skTimeLayout = "20060102T150405.000000000Z"
	// fixed-width so string comparisons in filter expressions order correctly
	attrTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps the bot's state table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func userPK(userID int64) string {
	return "USER#" + strconv.FormatInt(userID, 10)
}

// userIDFromPK recovers the numeric user id from a USER#<id> key.
func userIDFromPK(pk string) (int64, bool) {
	raw, ok := strings.CutPrefix(pk, "USER#")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

func orderPK(number string) string {
	return "ORDER#" + number
}

func skTime(ts time.Time) string {
	return ts.UTC().Format(skTimeLayout)
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func ttlAt(ts time.Time, d time.Duration) string {
	return strconv.FormatInt(ts.Add(d).Unix(), 10)
}

// conditionFailed reports whether err is a failed condition expression,
// either on a single write or inside a cancelled transaction.
func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// scanAll walks every page of a filtered table scan.
func (c *Client) scanAll(ctx context.Context, in *dynamodb.ScanInput, fn func(map[string]types.AttributeValue) error) error {
	in.TableName = aws.String(c.tableName)
	p := dynamodb.NewScanPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// queryAll walks every page of a query.
func (c *Client) queryAll(ctx context.Context, in *dynamodb.QueryInput, fn func(map[string]types.AttributeValue) error) error {
	in.TableName = aws.String(c.tableName)
	p := dynamodb.NewQueryPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

// optStr returns the string attribute or "" when absent.
func optStr(item map[string]types.AttributeValue, key string) string {
	if s, ok := item[key].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	n, err := int64Attr(item, key)
	return int(n), err
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

// optInt returns the numeric attribute or 0 when absent or malformed.
func optInt(item map[string]types.AttributeValue, key string) int {
	n, err := intAttr(item, key)
	if err != nil {
		return 0
	}
	return n
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	v, ok := item[key].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return f, nil
}

func optBool(item map[string]types.AttributeValue, key string) bool {
	b, ok := item[key].(*types.AttributeValueMemberBOOL)
	return ok && b.Value
}

// optTime parses an RFC3339 attribute, returning the zero time when absent.
func optTime(item map[string]types.AttributeValue, key string) time.Time {
	s := optStr(item, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func nAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func tAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(attrTimeLayout)}
}
