package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "episodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewEpisodeID(t *testing.T) {
	a, err := NewEpisodeID()
	require.NoError(t, err)
	b, err := NewEpisodeID()
	require.NoError(t, err)
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestSQLiteLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	require.NoError(t, s.Create(ctx, Episode{ID: "ep1", Source: "arxiv:2401.00001", TTSProvider: "elevenlabs"}))
	assert.ErrorIs(t, s.Create(ctx, Episode{ID: "ep1"}), ErrExists)

	require.NoError(t, s.UpdateProgress(ctx, "ep1", StatusSynthesizing, 0.5, "Synthesizing 3/6"))
	require.NoError(t, s.SaveTranscript(ctx, "ep1", "Host: hi\nExpert: hello"))

	ep, err := s.Get(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, StatusSynthesizing, ep.Status)
	assert.InDelta(t, 0.5, ep.ProgressPercent, 1e-9)
	assert.Equal(t, "Host: hi\nExpert: hello", ep.Transcript)
	assert.False(t, ep.CreatedAt.IsZero())

	require.NoError(t, s.Complete(ctx, "ep1", Completion{
		Title:      "Attention",
		AudioKey:   "audio/ep1.mp3",
		AudioURL:   "https://cdn.example.com/audio/ep1.mp3",
		Duration:   "1:02",
		SizeBytes:  4096,
		Tier:       "label_delimited",
		Utterances: 6,
	}))
	require.NoError(t, s.AddPlays(ctx, "ep1", 3))
	require.NoError(t, s.AddPlays(ctx, "ep1", 2))

	ep, err = s.Get(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, ep.Status)
	assert.True(t, ep.Status.Terminal())
	assert.Equal(t, "Attention", ep.Title)
	assert.Equal(t, "audio/ep1.mp3", ep.AudioKey)
	assert.Equal(t, int64(4096), ep.SizeBytes)
	assert.Equal(t, 6, ep.Utterances)
	assert.Equal(t, 5, ep.PlayCount)
}

func TestSQLiteFail(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	require.NoError(t, s.Create(ctx, Episode{ID: "ep1"}))
	require.NoError(t, s.Fail(ctx, "ep1", "synthesizing", "segment 3: quota exceeded"))

	ep, err := s.Get(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ep.Status)
	assert.Equal(t, "synthesizing", ep.ErrorStage)
	assert.Equal(t, "Failed: segment 3: quota exceeded", ep.StageMessage)
}

func TestSQLiteMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateProgress(ctx, "nope", StatusScripting, 0.1, ""), ErrNotFound)
	assert.ErrorIs(t, s.AddPlays(ctx, "nope", 1), ErrNotFound)
}

func TestSQLiteListPaging(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, Episode{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	page, cursor, err := s.List(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)
	require.NotEmpty(t, cursor)

	page, cursor, err = s.List(ctx, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
	assert.Empty(t, cursor)

	_, _, err = s.List(ctx, 2, "garbage")
	assert.Error(t, err)
}

func TestSQLiteCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	v, err := s.Checkpoint(ctx, "play-counter")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetCheckpoint(ctx, "play-counter", "2026-03-01T00:00:00Z"))
	require.NoError(t, s.SetCheckpoint(ctx, "play-counter", "2026-03-02T00:00:00Z"))
	v, err = s.Checkpoint(ctx, "play-counter")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T00:00:00Z", v)
}

func TestSortKeyOrdersLexically(t *testing.T) {
	early := sortKey(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "Z")
	late := sortKey(time.Date(2026, 1, 1, 0, 0, 0, 500, time.UTC), "A")
	assert.Less(t, early, late)
}

// fakeDynamo records requests and replays canned responses.
type fakeDynamo struct {
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput

	putErr    error
	updateErr error
	getOut    *dynamodb.GetItemOutput
	queryOut  *dynamodb.QueryOutput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.queryOut, nil
}

func TestDynamoCreate(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "episodes")
	s.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Create(context.Background(), Episode{ID: "01HX", Source: "paper.pdf"}))
	require.Len(t, fake.puts, 1)

	in := fake.puts[0]
	assert.Equal(t, "attribute_not_exists(PK)", *in.ConditionExpression)

	var item episodeItem
	require.NoError(t, attributevalue.UnmarshalMap(in.Item, &item))
	assert.Equal(t, "EPISODE#01HX", item.PK)
	assert.Equal(t, "METADATA", item.SK)
	assert.Equal(t, "EPISODES", item.GSI1PK)
	assert.Equal(t, "2026-03-01T12:00:00.000000000Z#01HX", item.GSI1SK)
	assert.Equal(t, string(StatusSubmitted), item.Status)
}

func TestDynamoConditionFailures(t *testing.T) {
	ccf := &types.ConditionalCheckFailedException{Message: new(string)}
	fake := &fakeDynamo{putErr: ccf, updateErr: ccf}
	s := NewDynamoStore(fake, "episodes")
	ctx := context.Background()

	assert.ErrorIs(t, s.Create(ctx, Episode{ID: "dup"}), ErrExists)
	assert.ErrorIs(t, s.UpdateProgress(ctx, "gone", StatusScripting, 0.2, "Scripting"), ErrNotFound)
	assert.ErrorIs(t, s.Fail(ctx, "gone", "assembling", "boom"), ErrNotFound)
	assert.ErrorIs(t, s.AddPlays(ctx, "gone", 1), ErrNotFound)
}

func TestDynamoComplete(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "episodes")

	require.NoError(t, s.Complete(context.Background(), "01HX", Completion{
		AudioKey:   "audio/01HX.mp3",
		AudioURL:   "https://cdn/audio/01HX.mp3",
		SizeBytes:  1234,
		Tier:       "label_delimited",
		Utterances: 9,
	}))
	require.Len(t, fake.updates, 1)

	in := fake.updates[0]
	assert.Contains(t, *in.UpdateExpression, "#status = :status")
	assert.NotContains(t, *in.UpdateExpression, "title")
	assert.Equal(t, "complete", in.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "1234", in.ExpressionAttributeValues[":sz"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "EPISODE#01HX", in.Key["PK"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoGetMissing(t *testing.T) {
	s := NewDynamoStore(&fakeDynamo{}, "episodes")
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoGet(t *testing.T) {
	av, err := attributevalue.MarshalMap(episodeItem{
		PK:        "EPISODE#01HX",
		SK:        "METADATA",
		EpisodeID: "01HX",
		Status:    "complete",
		PlayCount: 7,
		CreatedAt: "2026-03-01T12:00:00Z",
	})
	require.NoError(t, err)

	s := NewDynamoStore(&fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: av}}, "episodes")
	ep, err := s.Get(context.Background(), "01HX")
	require.NoError(t, err)
	assert.Equal(t, "01HX", ep.ID)
	assert.Equal(t, StatusComplete, ep.Status)
	assert.Equal(t, 7, ep.PlayCount)
	assert.Equal(t, 2026, ep.CreatedAt.Year())
}

func TestDynamoListCursor(t *testing.T) {
	av, err := attributevalue.MarshalMap(episodeItem{EpisodeID: "b", Status: "complete"})
	require.NoError(t, err)

	fake := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{av},
		LastEvaluatedKey: map[string]types.AttributeValue{
			"GSI1SK": &types.AttributeValueMemberS{Value: "2026-03-01T12:00:00.000000000Z#b"},
		},
	}}
	s := NewDynamoStore(fake, "episodes")

	eps, next, err := s.List(context.Background(), 0, "2026-03-01T13:00:00.000000000Z#c")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "b", eps[0].ID)
	assert.Equal(t, "2026-03-01T12:00:00.000000000Z#b", next)

	in := fake.queries[0]
	assert.Equal(t, int32(DefaultListLimit), *in.Limit)
	assert.False(t, *in.ScanIndexForward)
	assert.Equal(t, "EPISODE#c", in.ExclusiveStartKey["PK"].(*types.AttributeValueMemberS).Value)

	_, _, err = s.List(context.Background(), 5, "nocursor")
	assert.Error(t, err)
}
