package services

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/models"
)

func TestConversationItemRoundTrip(t *testing.T) {
	conv := &models.Conversation{ID: 42, Title: "Hello"}
	item := conversationToItem(conv)

	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, item["ID"])
	got, err := itemToConversation(item)
	require.NoError(t, err)
	assert.Equal(t, conv, got)
}

func TestTurnItemStoresLowercaseRole(t *testing.T) {
	turn := &models.ChatTurn{ID: 7, ConversationID: 3, Role: models.RoleAssistant, Content: "Hi there"}
	item := turnToItem(turn)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "assistant"}, item["Role"])
	got, err := itemToTurn(item)
	require.NoError(t, err)
	assert.Equal(t, turn, got)
}

func TestItemToTurnRejectsBadItems(t *testing.T) {
	good := turnToItem(&models.ChatTurn{ID: 1, ConversationID: 1, Role: models.RoleUser, Content: "x"})

	cases := map[string]func(map[string]types.AttributeValue){
		"missing id":   func(m map[string]types.AttributeValue) { delete(m, "ID") },
		"id as string": func(m map[string]types.AttributeValue) { m["ID"] = &types.AttributeValueMemberS{Value: "1"} },
		"bad number":   func(m map[string]types.AttributeValue) { m["ID"] = &types.AttributeValueMemberN{Value: "1.5"} },
		"unknown role": func(m map[string]types.AttributeValue) { m["Role"] = &types.AttributeValueMemberS{Value: "system"} },
		"no content":   func(m map[string]types.AttributeValue) { delete(m, "Content") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			item := make(map[string]types.AttributeValue, len(good))
			for k, v := range good {
				item[k] = v
			}
			mutate(item)
			_, err := itemToTurn(item)
			assert.Error(t, err)
		})
	}
}

func TestChunkKeys(t *testing.T) {
	keys := make([]map[string]types.AttributeValue, 0, 60)
	for i := int64(0); i < 60; i++ {
		keys = append(keys, turnKey(1, i))
	}

	chunks := chunkKeys(keys, dynamoBatchSize)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 25)
	assert.Len(t, chunks[1], 25)
	assert.Len(t, chunks[2], 10)

	assert.Empty(t, chunkKeys(nil, dynamoBatchSize))
}

func TestConditionFailed(t *testing.T) {
	assert.True(t, conditionFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}))
	assert.False(t, conditionFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
	}))
}

// Set TEST_DYNAMODB_ENDPOINT to a DynamoDB Local instance to run this.
func TestDynamoDBStore(t *testing.T) {
	endpoint := os.Getenv("TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_DYNAMODB_ENDPOINT not set")
	}

	ctx := context.Background()
	client, err := NewDynamoDBClient(ctx, DynamoDBConfig{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "local",
		SecretAccessKey: "local",
	})
	require.NoError(t, err)

	runStoreContract(t, func(t *testing.T) MessageStore {
		prefix := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "_"
		store := NewDynamoDBStore(client, prefix, zerolog.Nop())
		require.NoError(t, store.EnsureTables(ctx))
		t.Cleanup(func() {
			for _, table := range []string{store.conversationsTable, store.turnsTable, store.countersTable} {
				_, _ = client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(table)})
			}
		})
		return store
	})
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepCtx(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
