package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"poizon-bot/internal/domain"
)

var fixedNow = time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)

type fakeDynamo struct {
	mu sync.Mutex

	getItem    func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	updateItem func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	scan       func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	putErr     error
	queryOut   *dynamodb.QueryOutput
	queryErr   error
	txErr      error

	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput
	scans   []*dynamodb.ScanInput
	txs     []*dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getItem == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getItem(in)
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	f.updates = append(f.updates, in)
	f.mu.Unlock()
	if f.updateItem == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updateItem(in)
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, f.queryErr
	}
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	f.scans = append(f.scans, in)
	f.mu.Unlock()
	if f.scan == nil {
		return &dynamodb.ScanOutput{}, nil
	}
	return f.scan(in)
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, in)
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	n := 0
	c.newID = func() string {
		n++
		return "id-" + string(rune('a'+n-1))
	}
	return c
}

func strOf(item map[string]types.AttributeValue, key string) string {
	return item[key].(*types.AttributeValueMemberS).Value
}

func keyOf(item map[string]types.AttributeValue) (string, string) {
	return strOf(item, "PK"), strOf(item, "SK")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestKeys(t *testing.T) {
	require.Equal(t, "USER#42", userPK(42))
	require.Equal(t, "ORDER#SQ-20261015-0001", orderPK("SQ-20261015-0001"))
	require.Equal(t, "20261015T123000.000000000Z", skTime(fixedNow))

	id, ok := userIDFromPK("USER#42")
	require.True(t, ok)
	require.Equal(t, int64(42), id)
	_, ok = userIDFromPK("ORDER#1")
	require.False(t, ok)
}

func TestConditionFailed(t *testing.T) {
	require.True(t, conditionFailed(&types.ConditionalCheckFailedException{Message: aws.String("no")}))
	require.True(t, conditionFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
	}))
	require.False(t, conditionFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
	}))
	require.False(t, conditionFailed(errors.New("boom")))
}

func TestLoadSettings_HappyPath(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{"PK": sAttr(pkSettings), "SK": sAttr("yuan_rate"), "settingValue": sAttr("13.5")},
		{"PK": sAttr(pkSettings), "SK": sAttr("admin_chat_1"), "settingValue": sAttr("100")},
	}}}
	c := mustNewClient(t, db)
	got, err := c.LoadSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"yuan_rate": "13.5", "admin_chat_1": "100"}, got)
	require.Equal(t, "PK = :pk", *db.queries[0].KeyConditionExpression)
}

func TestLoadSettings_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	c := mustNewClient(t, db)
	_, err := c.LoadSettings(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "LoadSettings")
}

func TestPutSetting(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.PutSetting(context.Background(), "yuan_rate", "14", 7))
	item := db.puts[0].Item
	pk, sk := keyOf(item)
	require.Equal(t, "SETTINGS", pk)
	require.Equal(t, "yuan_rate", sk)
	require.Equal(t, "14", strOf(item, "settingValue"))
	require.Equal(t, "7", strOf(item, "updatedBy"))
}

func TestIncrementQuota_HappyPath(t *testing.T) {
	db := &fakeDynamo{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"requestCount": nAttr(3)}}, nil
	}}
	c := mustNewClient(t, db)
	n, err := c.IncrementQuota(context.Background(), 5, "extract-spu", "2026-10-15", 50)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	in := db.updates[0]
	pk, sk := keyOf(in.Key)
	require.Equal(t, "USER#5", pk)
	require.Equal(t, "QUOTA#2026-10-15#extract-spu", sk)
	require.Equal(t, "attribute_not_exists(#count) OR #count < :limit", *in.ConditionExpression)
	require.Equal(t, "50", in.ExpressionAttributeValues[":limit"].(*types.AttributeValueMemberN).Value)
}

func TestIncrementQuota_AtLimit(t *testing.T) {
	db := &fakeDynamo{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("limit")}
	}}
	c := mustNewClient(t, db)
	_, err := c.IncrementQuota(context.Background(), 5, "extract-spu", "2026-10-15", 50)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestIncrementQuota_DynamoError(t *testing.T) {
	db := &fakeDynamo{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return nil, errors.New("ProvisionedThroughputExceededException")
	}}
	c := mustNewClient(t, db)
	_, err := c.IncrementQuota(context.Background(), 5, "extract-spu", "2026-10-15", 50)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrQuotaExceeded)
	require.Contains(t, err.Error(), "IncrementQuota")
}

func TestQuotaCount(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	n, err := c.QuotaCount(context.Background(), 5, "extract-spu", "2026-10-15")
	require.NoError(t, err)
	require.Zero(t, n)

	db.getItem = func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{"requestCount": nAttr(9)}}, nil
	}
	n, err = c.QuotaCount(context.Background(), 5, "extract-spu", "2026-10-15")
	require.NoError(t, err)
	require.Equal(t, 9, n)
}

// priorUser answers UpsertUser with the given old image, as DynamoDB does
// for ReturnValues ALL_OLD.
func priorUser(prev map[string]types.AttributeValue) func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
	return func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return &dynamodb.UpdateItemOutput{Attributes: prev}, nil
	}
}

func TestUpsertUser_Created(t *testing.T) {
	db := &fakeDynamo{updateItem: priorUser(nil)}
	c := mustNewClient(t, db)
	u, created, err := c.UpsertUser(context.Background(), domain.User{TelegramID: 9, Username: "ann", FirstName: "Ann"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(9), u.TelegramID)
	require.Equal(t, "ann", u.Username)
	require.True(t, u.RegisteredAt.Equal(fixedNow))
	require.Contains(t, *db.updates[0].UpdateExpression, "if_not_exists(registeredAt, :now)")
	require.Equal(t, types.ReturnValueAllOld, db.updates[0].ReturnValues)
}

func TestUpsertUser_Existing(t *testing.T) {
	db := &fakeDynamo{updateItem: priorUser(map[string]types.AttributeValue{
		"telegramId":   nAttr(9),
		"username":     sAttr("ann"),
		"registeredAt": sAttr("2026-01-01T00:00:00.000Z"),
		"lastActivity": sAttr("2026-10-01T08:00:00.000Z"),
		"subscribed":   &types.AttributeValueMemberBOOL{Value: true},
		"totalOrders":  nAttr(2),
	})}
	c := mustNewClient(t, db)
	u, created, err := c.UpsertUser(context.Background(), domain.User{TelegramID: 9, Username: "renamed"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "renamed", u.Username)
	require.Equal(t, 2, u.TotalOrders)
	require.True(t, u.Subscribed)
	require.True(t, u.RegisteredAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, u.LastActivity.Equal(fixedNow))
}

// A user who registered in the same millisecond as this write is still an
// existing user.
func TestUpsertUser_ExistingWithinSameInstant(t *testing.T) {
	db := &fakeDynamo{updateItem: priorUser(map[string]types.AttributeValue{
		"telegramId":   nAttr(9),
		"registeredAt": tAttr(fixedNow),
		"lastActivity": tAttr(fixedNow),
	})}
	c := mustNewClient(t, db)
	_, created, err := c.UpsertUser(context.Background(), domain.User{TelegramID: 9})
	require.NoError(t, err)
	require.False(t, created)
}

func TestUpsertUser_PartialItemCountsAsCreated(t *testing.T) {
	db := &fakeDynamo{updateItem: priorUser(map[string]types.AttributeValue{
		"subscribed": &types.AttributeValueMemberBOOL{Value: true},
	})}
	c := mustNewClient(t, db)
	u, created, err := c.UpsertUser(context.Background(), domain.User{TelegramID: 9})
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, u.Subscribed)
	require.True(t, u.RegisteredAt.Equal(fixedNow))
}

func TestGetUser_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.GetUser(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetSubscribed(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.SetSubscribed(context.Background(), 3, true))
	require.True(t, db.updates[0].ExpressionAttributeValues[":s"].(*types.AttributeValueMemberBOOL).Value)
}

func TestListUsers_FollowsPagesAndFilters(t *testing.T) {
	page := 0
	db := &fakeDynamo{scan: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		page++
		if page == 1 {
			return &dynamodb.ScanOutput{
				Items:            []map[string]types.AttributeValue{{"telegramId": nAttr(1)}},
				LastEvaluatedKey: itemKey("USER#1", skProfile),
			}, nil
		}
		return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{{"telegramId": nAttr(2)}}}, nil
	}}
	c := mustNewClient(t, db)
	users, err := c.ListUsers(context.Background(), domain.UserFilter{ActiveSince: fixedNow.Add(-7 * 24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, int64(2), users[1].TelegramID)
	require.Equal(t, "SK = :profile AND lastActivity >= :active", *db.scans[0].FilterExpression)
	require.NotNil(t, db.scans[1].ExclusiveStartKey)
}

func TestCalculation_RoundTrip(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	calc := domain.Calculation{
		UserID:        9,
		ProductRef:    "spu-1",
		URL:           "https://dw4.co/t/A/x",
		Title:         "Sneaker",
		Category:      domain.CategoryShoes,
		Size:          "42",
		SourcePrice:   699.5,
		StandardTotal: 10180,
		ExpressTotal:  10580,
		Product: domain.ProductSnapshot{
			ID:    "p1",
			Title: "Sneaker",
			Variants: []domain.Variant{
				{ID: "v1", Price: 699.5, Available: true, SizeLabel: "42"},
				{ID: "v2", Price: 710, SizeLabel: "43"},
			},
		},
	}
	saved, err := c.SaveCalculation(context.Background(), calc)
	require.NoError(t, err)
	require.Equal(t, "id-a", saved.ID)
	require.True(t, saved.CreatedAt.Equal(fixedNow))

	tx := db.txs[0]
	require.Len(t, tx.TransactItems, 2)
	require.Equal(t, "ADD totalCalculations :one", *tx.TransactItems[1].Update.UpdateExpression)
	stored := tx.TransactItems[0].Put.Item
	_, sk := keyOf(stored)
	require.True(t, strings.HasPrefix(sk, "CALC#20261015T123000"))

	db.queryOut = &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{stored}}
	got, err := c.CalculationsByUser(context.Background(), 9, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, saved.Product, got[0].Product)
	require.Equal(t, saved.SourcePrice, got[0].SourcePrice)
	require.Equal(t, saved.StandardTotal, got[0].StandardTotal)
	require.Equal(t, saved.Category, got[0].Category)
	require.True(t, got[0].CreatedAt.Equal(saved.CreatedAt))
	require.False(t, *db.queries[0].ScanIndexForward)
}

func TestSaveCalculation_RequiresUser(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.SaveCalculation(context.Background(), domain.Calculation{})
	require.Error(t, err)
}

func TestNextOrderNumber(t *testing.T) {
	db := &fakeDynamo{updateItem: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"seq": nAttr(7)}}, nil
	}}
	c := mustNewClient(t, db)
	n, err := c.NextOrderNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, "SQ-20261015-0007", n)
	pk, sk := keyOf(db.updates[0].Key)
	require.Equal(t, "COUNTER#ORDER", pk)
	require.Equal(t, "DAY#20261015", sk)
}

func TestCreateOrder_WritesOneTransaction(t *testing.T) {
	db := &fakeDynamo{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"seq": nAttr(1)}}, nil
	}}
	c := mustNewClient(t, db)
	o, err := c.CreateOrder(context.Background(), domain.Order{
		UserID: 9, Title: "Sneaker", Size: "42", Category: domain.CategoryShoes,
		Amount: 10580, Tier: domain.TierExpress,
	})
	require.NoError(t, err)
	require.Equal(t, "SQ-20261015-0001", o.Number)
	require.Equal(t, domain.StatusPending, o.Status)

	items := db.txs[0].TransactItems
	require.Len(t, items, 4)
	pk, _ := keyOf(items[0].Put.Item)
	require.Equal(t, "USER#9", pk)
	require.Equal(t, "pending", strOf(items[0].Put.Item, "orderStatus"))
	pk, sk := keyOf(items[1].Put.Item)
	require.Equal(t, "ORDER#SQ-20261015-0001", pk)
	require.Equal(t, "POINTER", sk)
	require.Equal(t, "ADD totalOrders :one", *items[2].Update.UpdateExpression)
	require.Equal(t, domain.ActionOrderCreated, strOf(items[3].Put.Item, "action"))
}

func TestCreateOrder_TransactionError(t *testing.T) {
	db := &fakeDynamo{
		updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"seq": nAttr(1)}}, nil
		},
		txErr: errors.New("transaction canceled"),
	}
	c := mustNewClient(t, db)
	_, err := c.CreateOrder(context.Background(), domain.Order{UserID: 9, Amount: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "CreateOrder")
}

func storedOrder(status domain.OrderStatus, tracking string) *fakeDynamo {
	sk := "ORDER#20261015T120000.000000000Z#SQ-20261015-0001"
	o := domain.Order{
		Number: "SQ-20261015-0001", UserID: 9, Title: "Sneaker", Status: status,
		Amount: 10180, Tier: domain.TierStandard, TrackingNumber: tracking,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	return &fakeDynamo{getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		pk, key := keyOf(in.Key)
		switch {
		case pk == "ORDER#SQ-20261015-0001" && key == skPointer:
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"userId": nAttr(9), "orderSK": sAttr(sk),
			}}, nil
		case pk == "USER#9" && key == sk:
			return &dynamodb.GetItemOutput{Item: orderItem(o, sk)}, nil
		}
		return &dynamodb.GetItemOutput{}, nil
	}}
}

func TestUpdateOrderStatus_Changes(t *testing.T) {
	db := storedOrder(domain.StatusPaid, "")
	c := mustNewClient(t, db)
	o, changed, err := c.UpdateOrderStatus(context.Background(), "SQ-20261015-0001", domain.StatusShipped, "CD123")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, domain.StatusShipped, o.Status)
	require.Equal(t, "CD123", o.TrackingNumber)

	items := db.txs[0].TransactItems
	require.Len(t, items, 2)
	require.Contains(t, *items[0].Update.ConditionExpression, "orderStatus <> :status")
	require.Contains(t, *items[0].Update.UpdateExpression, "trackingNumber = :tracking")
	audit := items[1].Put.Item
	require.Equal(t, domain.ActionOrderStatus, strOf(audit, "action"))
	data := audit["actionData"].(*types.AttributeValueMemberM).Value
	require.Equal(t, "paid", data["from"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "shipped", data["to"].(*types.AttributeValueMemberS).Value)
}

func TestUpdateOrderStatus_RepeatIsNoop(t *testing.T) {
	db := storedOrder(domain.StatusShipped, "CD123")
	db.txErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")}},
	}
	c := mustNewClient(t, db)
	o, changed, err := c.UpdateOrderStatus(context.Background(), "SQ-20261015-0001", domain.StatusShipped, "CD123")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, domain.StatusShipped, o.Status)
	require.Equal(t, "CD123", o.TrackingNumber)
}

func TestUpdateOrderStatus_UnknownOrder(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, _, err := c.UpdateOrderStatus(context.Background(), "SQ-20261015-9999", domain.StatusPaid, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrder(t *testing.T) {
	c := mustNewClient(t, storedOrder(domain.StatusPending, ""))
	o, err := c.GetOrder(context.Background(), "SQ-20261015-0001")
	require.NoError(t, err)
	require.Equal(t, int64(9), o.UserID)
	require.Equal(t, int64(10180), o.Amount)
}

func TestOrdersByUser_NewestFirstQuery(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	_, err := c.OrdersByUser(context.Background(), 9, 5)
	require.NoError(t, err)
	q := db.queries[0]
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *q.KeyConditionExpression)
	require.Equal(t, "ORDER#", strOf(q.ExpressionAttributeValues, ":prefix"))
	require.False(t, *q.ScanIndexForward)
	require.Equal(t, int32(5), *q.Limit)
}

func TestRecordAction(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.RecordAction(context.Background(), domain.AuditEntry{
		UserID: 9, Action: domain.ActionCommandExecuted, Data: map[string]string{"command": "start"},
	})
	require.NoError(t, err)
	item := db.puts[0].Item
	pk, sk := keyOf(item)
	require.Equal(t, "USER#9", pk)
	require.True(t, strings.HasPrefix(sk, "AUDIT#20261015T123000"))
	require.Equal(t, "command_executed", strOf(item, "action"))
	require.NotEmpty(t, item["ttl"].(*types.AttributeValueMemberN).Value)

	require.Error(t, c.RecordAction(context.Background(), domain.AuditEntry{UserID: 9}))
}

func TestStats_Aggregates(t *testing.T) {
	recent := sAttr("2026-10-14T10:00:00.000Z")
	old := sAttr("2026-08-01T10:00:00.000Z")
	today := sAttr("2026-10-15T08:00:00.000Z")
	db := &fakeDynamo{scan: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		prefix := ""
		if v, ok := in.ExpressionAttributeValues[":prefix"]; ok {
			prefix = v.(*types.AttributeValueMemberS).Value
		}
		var items []map[string]types.AttributeValue
		switch {
		case prefix == "":
			items = []map[string]types.AttributeValue{
				{"lastActivity": today, "registeredAt": today},
				{"lastActivity": recent, "registeredAt": old},
				{"lastActivity": old, "registeredAt": old},
			}
		case prefix == skPrefixCalc:
			items = []map[string]types.AttributeValue{
				{"category": sAttr("shoes"), "createdAt": today},
				{"category": sAttr("shoes"), "createdAt": recent},
				{"category": sAttr("bags"), "createdAt": recent},
				{"category": sAttr("accessories"), "createdAt": old},
			}
		case prefix == skPrefixOrder:
			items = []map[string]types.AttributeValue{
				{"orderStatus": sAttr("pending")},
				{"orderStatus": sAttr("delivered")},
				{"orderStatus": sAttr("paid")},
			}
		case strings.HasPrefix(prefix, skPrefixQuota):
			if prefix != "QUOTA#2026-10-15#" {
				return nil, errors.New("unexpected quota prefix " + prefix)
			}
			items = []map[string]types.AttributeValue{
				{"PK": sAttr("USER#1"), "requestCount": nAttr(3)},
				{"PK": sAttr("USER#1"), "requestCount": nAttr(2)},
				{"PK": sAttr("USER#2"), "requestCount": nAttr(1)},
			}
		}
		return &dynamodb.ScanOutput{Items: items}, nil
	}}
	c := mustNewClient(t, db)
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, st.TotalUsers)
	require.Equal(t, 2, st.ActiveUsers)
	require.Equal(t, 1, st.NewUsersToday)
	require.Equal(t, 4, st.TotalCalculations)
	require.Equal(t, 1, st.TodayCalculations)
	require.Equal(t, 3, st.TotalOrders)
	require.Equal(t, 1, st.PendingOrders)
	require.Equal(t, 1, st.CompletedOrders)
	require.Equal(t, 6, st.TodayAPIRequests)
	require.Equal(t, 2, st.TodayAPIUsers)
	require.Equal(t, []domain.CategoryCount{
		{Category: domain.CategoryShoes, Count: 2},
		{Category: domain.CategoryBags, Count: 1},
	}, st.PopularCategories)
}

func TestStats_ScanError(t *testing.T) {
	db := &fakeDynamo{scan: func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		return nil, errors.New("boom")
	}}
	c := mustNewClient(t, db)
	_, err := c.Stats(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Stats")
}
