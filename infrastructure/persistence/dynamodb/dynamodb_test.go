package dynamodb

import (
	"context"
	"testing"
	"time"

	"graphsync/domain/events"
	"graphsync/domain/graph"
	appErrors "graphsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if s, ok := item[key].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func TestSnapshotStore_GetDecodesItem(t *testing.T) {
	// Arrange
	client := new(mockClient)
	store := NewSnapshotStore(client, "graphs", zap.NewNop())
	snap := graph.NewSnapshot("g1")
	snap.Nodes = append(snap.Nodes, graph.Node{ID: "n1", Kind: "faucet", Label: "Canilla #50"})
	snap.LastEventID = "01A"
	item, err := attributevalue.MarshalMap(toSnapshotItem(snap, 3))
	require.NoError(t, err)

	client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return stringAttr(in.Key, "PK") == "GRAPH#g1" && stringAttr(in.Key, "SK") == "SNAPSHOT"
	})).Return(&dynamodb.GetItemOutput{Item: item}, nil)

	// Act
	got, err := store.Get(context.Background(), "g1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, got.NodeIDs())
	assert.Equal(t, "Canilla #50", got.Nodes[0].Label)
	assert.Equal(t, "01A", got.LastEventID)
	assert.Equal(t, int64(3), got.Version)
	assert.NotNil(t, got.Edges)
	client.AssertExpectations(t)
}

func TestSnapshotStore_GetUnknownGraph(t *testing.T) {
	client := new(mockClient)
	store := NewSnapshotStore(client, "graphs", zap.NewNop())
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := store.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, appErrors.ErrUnknownGraph)
}

func TestSnapshotStore_SaveConditionsOnVersion(t *testing.T) {
	client := new(mockClient)
	store := NewSnapshotStore(client, "graphs", zap.NewNop())
	snap := graph.NewSnapshot("g1")
	snap.Version = 4

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		v, ok := in.Item["Version"].(*types.AttributeValueMemberN)
		return ok && v.Value == "5" && in.ConditionExpression != nil
	})).Return(&dynamodb.PutItemOutput{}, nil)

	saved, err := store.Save(context.Background(), snap)

	require.NoError(t, err)
	assert.Equal(t, int64(5), saved.Version)
	client.AssertExpectations(t)
}

func TestSnapshotStore_SaveConflictAndUnknown(t *testing.T) {
	tests := []struct {
		name    string
		old     map[string]types.AttributeValue
		isMatch func(error) bool
	}{
		{
			name:    "stale version",
			old:     map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "GRAPH#g1"}},
			isMatch: appErrors.IsConflict,
		},
		{
			name:    "missing graph",
			old:     nil,
			isMatch: func(err error) bool { return appErrors.IsNotFound(err) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockClient)
			store := NewSnapshotStore(client, "graphs", zap.NewNop())
			client.On("PutItem", mock.Anything, mock.Anything).
				Return(nil, &types.ConditionalCheckFailedException{Item: tt.old})

			_, err := store.Save(context.Background(), graph.NewSnapshot("g1"))

			assert.True(t, tt.isMatch(err), err)
		})
	}
}

func TestSnapshotStore_ThrottlingIsUnavailable(t *testing.T) {
	client := new(mockClient)
	store := NewSnapshotStore(client, "graphs", zap.NewNop())
	client.On("GetItem", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"})

	_, err := store.Get(context.Background(), "g1")

	assert.True(t, appErrors.IsUnavailable(err))
	assert.True(t, appErrors.IsRetryable(err))
}

func TestEventLog_AppendFirstWriteWins(t *testing.T) {
	client := new(mockClient)
	log := NewEventLog(client, "graphs", zap.NewNop())
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	original := events.MustNew(events.TypeDeleteNodeSuccess, "n1")
	original.ID, original.GraphID, original.ClientID, original.CreatedAt = "01A", "g1", "c1", created
	stored, err := attributevalue.MarshalMap(toEventItem(original))
	require.NoError(t, err)

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return stringAttr(in.Item, "SK") == "EVENT#01A" && stringAttr(in.Item, "PK") == "GRAPH#g1"
	})).Return(nil, &types.ConditionalCheckFailedException{Item: stored})

	rewrite := original
	rewrite.ClientID = "c2"
	got, ok, err := log.Append(context.Background(), rewrite)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "c1", got.ClientID)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestEventLog_ListSinceSkipsLowerBoundAndPages(t *testing.T) {
	client := new(mockClient)
	log := NewEventLog(client, "graphs", zap.NewNop())

	page := func(ids ...string) []map[string]types.AttributeValue {
		var items []map[string]types.AttributeValue
		for _, id := range ids {
			ev := events.MustNew(events.TypeDeleteEdgeSuccess, "A/B")
			ev.ID, ev.GraphID, ev.CreatedAt = id, "g1", time.Now()
			item, err := attributevalue.MarshalMap(toEventItem(ev))
			require.NoError(t, err)
			items = append(items, item)
		}
		return items
	}

	lastKey := keyOf("GRAPH#g1", "EVENT#01B")
	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{Items: page("01A", "01B"), LastEvaluatedKey: lastKey}, nil).Once()
	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{Items: page("01C")}, nil).Once()

	got, err := log.ListSince(context.Background(), "g1", "01A", 0)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "01B", got[0].ID)
	assert.Equal(t, "01C", got[1].ID)
	client.AssertExpectations(t)
}

func TestConnectionStore_DeleteLooksUpByIndex(t *testing.T) {
	client := new(mockClient)
	store := NewConnectionStore(client, "graphs", "GSI1", zap.NewNop())
	item, err := attributevalue.MarshalMap(connectionItem{PK: "GRAPH#g1", SK: "CONN#abc", ConnectionID: "abc", GraphID: "g1"})
	require.NoError(t, err)

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.IndexName != nil && *in.IndexName == "GSI1"
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil)
	client.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return stringAttr(in.Key, "PK") == "GRAPH#g1" && stringAttr(in.Key, "SK") == "CONN#abc"
	})).Return(&dynamodb.DeleteItemOutput{}, nil)

	require.NoError(t, store.Delete(context.Background(), "abc"))
	client.AssertExpectations(t)
}
