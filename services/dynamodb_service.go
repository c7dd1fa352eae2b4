package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"chatserver/models"
)

const (
	counterConversation = "conversation"
	counterTurn         = "turn"

	// BatchWriteItem accepts at most 25 requests.
	dynamoBatchSize = 25
)

// DynamoDBConfig selects the endpoint and tables used by DynamoDBStore.
type DynamoDBConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	TablePrefix     string
}

// NewDynamoDBClient builds a client. A custom endpoint points it at
// DynamoDB Local; static credentials are used when both keys are set.
func NewDynamoDBClient(ctx context.Context, cfg DynamoDBConfig) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey},
		}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// DynamoDBStore keeps conversations, turns and id counters in three tables.
// Turns are keyed by (ConversationID, ID) so a Query returns them in order.
type DynamoDBStore struct {
	db                 *dynamodb.Client
	conversationsTable string
	turnsTable         string
	countersTable      string
	log                zerolog.Logger
}

func NewDynamoDBStore(db *dynamodb.Client, tablePrefix string, log zerolog.Logger) *DynamoDBStore {
	return &DynamoDBStore{
		db:                 db,
		conversationsTable: tablePrefix + "Conversations",
		turnsTable:         tablePrefix + "ChatTurns",
		countersTable:      tablePrefix + "Counters",
		log:                log.With().Str("component", "dynamodb-store").Logger(),
	}
}

// EnsureTables creates missing tables and waits until they are active.
func (s *DynamoDBStore) EnsureTables(ctx context.Context) error {
	tables := []*dynamodb.CreateTableInput{
		{
			TableName: aws.String(s.conversationsTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("ID"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("ID"), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(s.turnsTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("ConversationID"), AttributeType: types.ScalarAttributeTypeN},
				{AttributeName: aws.String("ID"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("ConversationID"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("ID"), KeyType: types.KeyTypeRange},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(s.countersTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("Name"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("Name"), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}

	waiter := dynamodb.NewTableExistsWaiter(s.db)
	for _, input := range tables {
		_, err := s.db.CreateTable(ctx, input)
		var inUse *types.ResourceInUseException
		switch {
		case errors.As(err, &inUse):
			s.log.Debug().Str("table", aws.ToString(input.TableName)).Msg("table already exists")
		case err != nil:
			return storageErr("create table "+aws.ToString(input.TableName), err)
		default:
			s.log.Info().Str("table", aws.ToString(input.TableName)).Msg("created table")
		}
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, 2*time.Minute); err != nil {
			return storageErr("wait for table "+aws.ToString(input.TableName), err)
		}
	}
	return nil
}

// nextID atomically increments a named counter and returns the new value.
func (s *DynamoDBStore) nextID(ctx context.Context, name string) (int64, error) {
	out, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.countersTable),
		Key:              map[string]types.AttributeValue{"Name": &types.AttributeValueMemberS{Value: name}},
		UpdateExpression: aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{
			"#v": "Value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}
	return numberAttr(out.Attributes, "Value")
}

func (s *DynamoDBStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.conversationsTable),
		Key:            conversationKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	conv, err := itemToConversation(out.Item)
	if err != nil {
		return nil, storageErr("decode conversation", err)
	}
	return conv, nil
}

func (s *DynamoDBStore) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	conversations := make([]*models.Conversation, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.db.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.conversationsTable),
			ExclusiveStartKey: startKey,
			ConsistentRead:    aws.Bool(true),
		})
		if err != nil {
			return nil, storageErr("list conversations", err)
		}
		for _, item := range out.Items {
			conv, err := itemToConversation(item)
			if err != nil {
				return nil, storageErr("decode conversation", err)
			}
			conversations = append(conversations, conv)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	// Scan order is by hash, not insertion.
	sort.Slice(conversations, func(i, j int) bool { return conversations[i].ID < conversations[j].ID })
	return conversations, nil
}

func (s *DynamoDBStore) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	id, err := s.nextID(ctx, counterConversation)
	if err != nil {
		return nil, storageErr("allocate conversation id", err)
	}

	conv := &models.Conversation{ID: id, Title: title}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.conversationsTable),
		Item:                conversationToItem(conv),
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "ID",
		},
	})
	if err != nil {
		return nil, storageErr("create conversation", err)
	}
	s.log.Debug().Int64("conversation_id", id).Msg("created conversation")
	return conv, nil
}

func (s *DynamoDBStore) UpdateConversationTitle(ctx context.Context, id int64, title string) (*models.Conversation, error) {
	out, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.conversationsTable),
		Key:                 conversationKey(id),
		UpdateExpression:    aws.String("SET #t = :title"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "ID",
			"#t":  "Title",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title": &types.AttributeValueMemberS{Value: title},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, storageErr("update conversation title", err)
	}
	conv, err := itemToConversation(out.Attributes)
	if err != nil {
		return nil, storageErr("decode conversation", err)
	}
	return conv, nil
}

func (s *DynamoDBStore) ListTurns(ctx context.Context, conversationID int64) ([]*models.ChatTurn, error) {
	turns := make([]*models.ChatTurn, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.db.Query(ctx, s.turnsQuery(conversationID, startKey, 0))
		if err != nil {
			return nil, storageErr("list turns", err)
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, storageErr("decode turn", err)
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return turns, nil
}

func (s *DynamoDBStore) GetFirstTurn(ctx context.Context, conversationID int64) (*models.ChatTurn, error) {
	out, err := s.db.Query(ctx, s.turnsQuery(conversationID, nil, 1))
	if err != nil {
		return nil, storageErr("get first turn", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	turn, err := itemToTurn(out.Items[0])
	if err != nil {
		return nil, storageErr("decode turn", err)
	}
	return turn, nil
}

func (s *DynamoDBStore) turnsQuery(conversationID int64, startKey map[string]types.AttributeValue, limit int32) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.turnsTable),
		KeyConditionExpression: aws.String("ConversationID = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": numberValue(conversationID),
		},
		ScanIndexForward:  aws.Bool(true),
		ConsistentRead:    aws.Bool(true),
		ExclusiveStartKey: startKey,
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}
	return input
}

// AppendTurn writes the turn in a transaction guarded by a condition check
// on the parent conversation, so a turn can never be stored without one.
func (s *DynamoDBStore) AppendTurn(ctx context.Context, conversationID int64, role models.Role, content string) (*models.ChatTurn, error) {
	if !role.Valid() {
		return nil, &StorageError{Op: "append turn", Err: fmt.Errorf("invalid role %d", int(role))}
	}

	id, err := s.nextID(ctx, counterTurn)
	if err != nil {
		return nil, storageErr("allocate turn id", err)
	}
	turn := &models.ChatTurn{ID: id, ConversationID: conversationID, Role: role, Content: content}

	_, err = s.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				ConditionCheck: &types.ConditionCheck{
					TableName:           aws.String(s.conversationsTable),
					Key:                 conversationKey(conversationID),
					ConditionExpression: aws.String("attribute_exists(#id)"),
					ExpressionAttributeNames: map[string]string{
						"#id": "ID",
					},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.turnsTable),
					Item:      turnToItem(turn),
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && conditionFailed(canceled) {
			return nil, ErrNotFound
		}
		return nil, storageErr("append turn", err)
	}
	s.log.Debug().
		Int64("conversation_id", conversationID).
		Int64("turn_id", id).
		Str("role", role.String()).
		Msg("appended turn")
	return turn, nil
}

// DeleteConversation removes the conversation first so concurrent appends
// fail their condition check, then sweeps its turns.
func (s *DynamoDBStore) DeleteConversation(ctx context.Context, id int64) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.conversationsTable),
		Key:                 conversationKey(id),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "ID",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return storageErr("delete conversation", err)
	}

	turns, err := s.ListTurns(ctx, id)
	if err != nil {
		return err
	}
	keys := make([]map[string]types.AttributeValue, 0, len(turns))
	for _, t := range turns {
		keys = append(keys, turnKey(t.ConversationID, t.ID))
	}
	for _, batch := range chunkKeys(keys, dynamoBatchSize) {
		if err := s.deleteTurnBatch(ctx, batch); err != nil {
			return err
		}
	}
	s.log.Info().Int64("conversation_id", id).Int("turns", len(turns)).Msg("deleted conversation")
	return nil
}

func (s *DynamoDBStore) deleteTurnBatch(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
	}
	pending := map[string][]types.WriteRequest{s.turnsTable: requests}
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt > 5 {
			return storageErr("delete turns", fmt.Errorf("unprocessed items after %d attempts", attempt))
		}
		out, err := s.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return storageErr("delete turns", err)
		}
		pending = out.UnprocessedItems
		if len(pending) > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt+1)*100*time.Millisecond); err != nil {
				return storageErr("delete turns", err)
			}
		}
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *DynamoDBStore) Close() error { return nil }

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func conditionFailed(e *types.TransactionCanceledException) bool {
	for _, reason := range e.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func conversationKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"ID": numberValue(id)}
}

func turnKey(conversationID, id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ConversationID": numberValue(conversationID),
		"ID":             numberValue(id),
	}
}

func conversationToItem(c *models.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ID":    numberValue(c.ID),
		"Title": &types.AttributeValueMemberS{Value: c.Title},
	}
}

func itemToConversation(item map[string]types.AttributeValue) (*models.Conversation, error) {
	id, err := numberAttr(item, "ID")
	if err != nil {
		return nil, err
	}
	title, err := stringAttr(item, "Title")
	if err != nil {
		return nil, err
	}
	return &models.Conversation{ID: id, Title: title}, nil
}

func turnToItem(t *models.ChatTurn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ConversationID": numberValue(t.ConversationID),
		"ID":             numberValue(t.ID),
		"Role":           &types.AttributeValueMemberS{Value: t.Role.String()},
		"Content":        &types.AttributeValueMemberS{Value: t.Content},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (*models.ChatTurn, error) {
	id, err := numberAttr(item, "ID")
	if err != nil {
		return nil, err
	}
	convID, err := numberAttr(item, "ConversationID")
	if err != nil {
		return nil, err
	}
	rawRole, err := stringAttr(item, "Role")
	if err != nil {
		return nil, err
	}
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	content, err := stringAttr(item, "Content")
	if err != nil {
		return nil, err
	}
	return &models.ChatTurn{ID: id, ConversationID: convID, Role: role, Content: content}, nil
}

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s missing or not a number", name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return n, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %s missing or not a string", name)
	}
	return v.Value, nil
}

func chunkKeys(keys []map[string]types.AttributeValue, size int) [][]map[string]types.AttributeValue {
	var chunks [][]map[string]types.AttributeValue
	for len(keys) > size {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}

var _ MessageStore = (*DynamoDBStore)(nil)
