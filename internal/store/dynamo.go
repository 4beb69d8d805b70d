package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	episodePrefix   = "EPISODE#"
	checkpointPK    = "SYSTEM#CHECKPOINT#"
	metadataSK      = "METADATA"
	listPartition   = "EPISODES"
	listIndexName   = "GSI1"
	notExistsCond   = "attribute_not_exists(PK)"
	existsCondition = "attribute_exists(PK)"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// episodeItem is the single-table DynamoDB record for an episode.
type episodeItem struct {
	PK              string  `dynamodbav:"PK"`
	SK              string  `dynamodbav:"SK"`
	GSI1PK          string  `dynamodbav:"GSI1PK"`
	GSI1SK          string  `dynamodbav:"GSI1SK"`
	EpisodeID       string  `dynamodbav:"episodeId"`
	Title           string  `dynamodbav:"title,omitempty"`
	Source          string  `dynamodbav:"source,omitempty"`
	Status          string  `dynamodbav:"status"`
	ProgressPercent float64 `dynamodbav:"progressPercent,omitempty"`
	StageMessage    string  `dynamodbav:"stageMessage,omitempty"`
	ErrorStage      string  `dynamodbav:"errorStage,omitempty"`
	ErrorMessage    string  `dynamodbav:"errorMessage,omitempty"`
	TTSProvider     string  `dynamodbav:"ttsProvider,omitempty"`
	Model           string  `dynamodbav:"model,omitempty"`
	Preset          string  `dynamodbav:"preset,omitempty"`
	Transcript      string  `dynamodbav:"transcript,omitempty"`
	AudioKey        string  `dynamodbav:"audioKey,omitempty"`
	AudioURL        string  `dynamodbav:"audioUrl,omitempty"`
	Duration        string  `dynamodbav:"duration,omitempty"`
	SizeBytes       int64   `dynamodbav:"sizeBytes,omitempty"`
	Tier            string  `dynamodbav:"tier,omitempty"`
	Utterances      int     `dynamodbav:"utterances,omitempty"`
	PlayCount       int     `dynamodbav:"playCount,omitempty"`
	CreatedAt       string  `dynamodbav:"createdAt"`
	UpdatedAt       string  `dynamodbav:"updatedAt,omitempty"`
}

func (it episodeItem) episode() Episode {
	created, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	return Episode{
		ID:              it.EpisodeID,
		Title:           it.Title,
		Source:          it.Source,
		Status:          Status(it.Status),
		ProgressPercent: it.ProgressPercent,
		StageMessage:    it.StageMessage,
		ErrorStage:      it.ErrorStage,
		ErrorMessage:    it.ErrorMessage,
		TTSProvider:     it.TTSProvider,
		Model:           it.Model,
		Preset:          it.Preset,
		Transcript:      it.Transcript,
		AudioKey:        it.AudioKey,
		AudioURL:        it.AudioURL,
		Duration:        it.Duration,
		SizeBytes:       it.SizeBytes,
		Tier:            it.Tier,
		Utterances:      it.Utterances,
		PlayCount:       it.PlayCount,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}
}

// DynamoStore keeps episodes in a single DynamoDB table keyed by PK/SK with
// a GSI1 index ordering all episodes by creation time.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	clock     func() time.Time
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, clock: time.Now}
}

func episodeKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: episodePrefix + id},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// Create inserts a new episode. It fails with ErrExists if the id is taken.
func (s *DynamoStore) Create(ctx context.Context, ep Episode) error {
	now := s.clock().UTC()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	if ep.Status == "" {
		ep.Status = StatusSubmitted
	}
	item := episodeItem{
		PK:          episodePrefix + ep.ID,
		SK:          metadataSK,
		GSI1PK:      listPartition,
		GSI1SK:      sortKey(ep.CreatedAt, ep.ID),
		EpisodeID:   ep.ID,
		Title:       ep.Title,
		Source:      ep.Source,
		Status:      string(ep.Status),
		TTSProvider: ep.TTSProvider,
		Model:       ep.Model,
		Preset:      ep.Preset,
		Transcript:  ep.Transcript,
		CreatedAt:   ep.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   now.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal episode item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String(notExistsCond),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("create %s: %w", ep.ID, ErrExists)
		}
		return fmt.Errorf("put episode item: %w", err)
	}
	return nil
}

func (s *DynamoStore) update(ctx context.Context, id, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	values[":updated"] = &types.AttributeValueMemberS{Value: s.clock().UTC().Format(time.RFC3339Nano)}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       episodeKey(id),
		UpdateExpression:          aws.String(expr + ", updatedAt = :updated"),
		ConditionExpression:       aws.String(existsCondition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("update %s: %w", id, ErrNotFound)
		}
		return err
	}
	return nil
}

// UpdateProgress sets the episode's status, progress percent and stage message.
func (s *DynamoStore) UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error {
	err := s.update(ctx, id,
		"SET #status = :status, progressPercent = :pct, stageMessage = :msg",
		map[string]string{"#status": "status"},
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: strconv.FormatFloat(percent, 'f', 2, 64)},
			":msg":    &types.AttributeValueMemberS{Value: message},
		})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SaveTranscript stores the raw generated transcript on the record.
func (s *DynamoStore) SaveTranscript(ctx context.Context, id, transcript string) error {
	err := s.update(ctx, id,
		"SET transcript = :t",
		nil,
		map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: transcript},
		})
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Complete marks the episode complete with its artifact metadata.
func (s *DynamoStore) Complete(ctx context.Context, id string, c Completion) error {
	expr := "SET #status = :status, progressPercent = :pct, stageMessage = :msg, audioKey = :akey, audioUrl = :aurl, #dur = :dur, sizeBytes = :sz, tier = :tier, utterances = :utts"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(StatusComplete)},
		":pct":    &types.AttributeValueMemberN{Value: "1.00"},
		":msg":    &types.AttributeValueMemberS{Value: "Complete"},
		":akey":   &types.AttributeValueMemberS{Value: c.AudioKey},
		":aurl":   &types.AttributeValueMemberS{Value: c.AudioURL},
		":dur":    &types.AttributeValueMemberS{Value: c.Duration},
		":sz":     &types.AttributeValueMemberN{Value: strconv.FormatInt(c.SizeBytes, 10)},
		":tier":   &types.AttributeValueMemberS{Value: c.Tier},
		":utts":   &types.AttributeValueMemberN{Value: strconv.Itoa(c.Utterances)},
	}
	if c.Title != "" {
		expr += ", title = :title"
		values[":title"] = &types.AttributeValueMemberS{Value: c.Title}
	}

	err := s.update(ctx, id, expr,
		map[string]string{"#status": "status", "#dur": "duration"},
		values)
	if err != nil {
		return fmt.Errorf("complete episode: %w", err)
	}
	return nil
}

// Fail marks the episode failed at a stage.
func (s *DynamoStore) Fail(ctx context.Context, id, stage, message string) error {
	err := s.update(ctx, id,
		"SET #status = :status, errorStage = :stage, errorMessage = :err, stageMessage = :msg",
		map[string]string{"#status": "status"},
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":stage":  &types.AttributeValueMemberS{Value: stage},
			":err":    &types.AttributeValueMemberS{Value: message},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + message},
		})
	if err != nil {
		return fmt.Errorf("fail episode: %w", err)
	}
	return nil
}

// Get retrieves a single episode by id.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Episode, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       episodeKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}

	var item episodeItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal episode: %w", err)
	}
	ep := item.episode()
	return &ep, nil
}

// List returns episodes newest first via GSI1. The cursor is the GSI1 sort
// key of the last item returned.
func (s *DynamoStore) List(ctx context.Context, limit int, cursor string) ([]Episode, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(listIndexName),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: listPartition},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		_, id, ok := strings.Cut(cursor, "#")
		if !ok || id == "" {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
		key := episodeKey(id)
		key["GSI1PK"] = &types.AttributeValueMemberS{Value: listPartition}
		key["GSI1SK"] = &types.AttributeValueMemberS{Value: cursor}
		input.ExclusiveStartKey = key
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list episodes: %w", err)
	}

	var items []episodeItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal episode list: %w", err)
	}
	episodes := make([]Episode, 0, len(items))
	for _, it := range items {
		episodes = append(episodes, it.episode())
	}

	var next string
	if result.LastEvaluatedKey != nil {
		if sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			next = sk.Value
		}
	}
	return episodes, next, nil
}

// AddPlays atomically increments the play counter.
func (s *DynamoStore) AddPlays(ctx context.Context, id string, n int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 episodeKey(id),
		UpdateExpression:    aws.String("ADD playCount :n"),
		ConditionExpression: aws.String(existsCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("add plays %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("add plays: %w", err)
	}
	return nil
}

// Checkpoint returns a named batch-job marker, or "" if never set.
func (s *DynamoStore) Checkpoint(ctx context.Context, name string) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: checkpointPK + name},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		return "", fmt.Errorf("get checkpoint: %w", err)
	}
	if v, ok := result.Item["value"].(*types.AttributeValueMemberS); ok {
		return v.Value, nil
	}
	return "", nil
}

func (s *DynamoStore) SetCheckpoint(ctx context.Context, name, value string) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]types.AttributeValue{
			"PK":    &types.AttributeValueMemberS{Value: checkpointPK + name},
			"SK":    &types.AttributeValueMemberS{Value: metadataSK},
			"value": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
