package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"industry-event-discovery/internal/models"
)

// DynamoDBService backs the two durable concerns of the pipeline: the
// url_extractions cache (normalized URL -> last shaped candidate) and the
// events table queried by the orchestrator's local-database stage.
type DynamoDBService struct {
	client              *dynamodb.Client
	urlExtractionsTable string
	eventsTable         string

	// cacheTTL bounds how long a cached extraction is served before being
	// treated as a miss. Writes never expire entries; reads do.
	cacheTTL time.Duration
}

// NewDynamoDBService creates a service over an existing client.
func NewDynamoDBService(client *dynamodb.Client, urlExtractionsTable, eventsTable string, cacheTTL time.Duration) *DynamoDBService {
	return &DynamoDBService{
		client:              client,
		urlExtractionsTable: urlExtractionsTable,
		eventsTable:         eventsTable,
		cacheTTL:            cacheTTL,
	}
}

// NewDynamoDBServiceFromEnv builds the client from the default AWS config
// chain and table names from the environment.
func NewDynamoDBServiceFromEnv(ctx context.Context, cacheTTL time.Duration) (*DynamoDBService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	extractionsTable := envOr("URL_EXTRACTIONS_TABLE", "url_extractions")
	eventsTable := envOr("EVENTS_TABLE", "industry_events")
	return NewDynamoDBService(dynamodb.NewFromConfig(cfg), extractionsTable, eventsTable, cacheTTL), nil
}

// URL extractions cache

// GetCachedExtraction looks up the durable cache by normalized URL. A miss,
// a stale entry (past TTL), or an entry with an outdated schema version all
// return (nil, nil).
func (s *DynamoDBService) GetCachedExtraction(ctx context.Context, urlNormalized string) (*models.CacheEntry, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.urlExtractionsTable),
		Key: map[string]types.AttributeValue{
			"url_normalized": &types.AttributeValueMemberS{Value: urlNormalized},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cached extraction: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var entry models.CacheEntry
	if err := attributevalue.UnmarshalMap(result.Item, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if entry.SchemaVersion != models.CurrentSchemaVersion {
		log.Printf("[CACHE] Entry for %s has schema v%d, want v%d; treating as miss",
			urlNormalized, entry.SchemaVersion, models.CurrentSchemaVersion)
		return nil, nil
	}
	if s.cacheTTL > 0 && time.Since(entry.StoredAt) > s.cacheTTL {
		log.Printf("[CACHE] Entry for %s stored %v ago is past TTL; treating as miss",
			urlNormalized, time.Since(entry.StoredAt).Round(time.Hour))
		return nil, nil
	}
	return &entry, nil
}

// PutCachedExtraction upserts an extraction result. Concurrent writers for
// the same URL race; last-write-wins is the accepted consistency model.
func (s *DynamoDBService) PutCachedExtraction(ctx context.Context, entry *models.CacheEntry) error {
	entry.SchemaVersion = models.CurrentSchemaVersion
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.urlExtractionsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Events table

// storedEvent is the persisted row shape of the events table.
type storedEvent struct {
	EventID  string                `dynamodbav:"event_id"`
	Country  string                `dynamodbav:"country"`
	StartsAt string                `dynamodbav:"starts_at"`
	Payload  models.EventCandidate `dynamodbav:"payload"`
	SavedAt  time.Time             `dynamodbav:"saved_at"`
}

// SaveEvents persists admitted events so later runs can hit the fast
// local-database stage.
func (s *DynamoDBService) SaveEvents(ctx context.Context, events []models.EventCandidate) error {
	var firstErr error
	saved := 0
	for _, ev := range events {
		row := storedEvent{
			EventID:  models.GenerateEventID(ev.Title, ev.StartsAt, ev.SourceURL),
			Country:  strings.ToUpper(ev.Country),
			StartsAt: ev.StartsAt,
			Payload:  ev,
			SavedAt:  time.Now().UTC(),
		}
		item, err := attributevalue.MarshalMap(row)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to marshal event: %w", err)
			}
			continue
		}
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.eventsTable),
			Item:      item,
		}); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to save event: %w", err)
			}
			continue
		}
		saved++
	}
	log.Printf("[CACHE] Saved %d/%d events to %s", saved, len(events), s.eventsTable)
	return firstErr
}

// SearchEvents is the orchestrator's local-database stage: a fast scan for
// stored events matching free text, country, and date range.
func (s *DynamoDBService) SearchEvents(ctx context.Context, query, country, dateFrom, dateTo string, limit int32) ([]models.EventCandidate, error) {
	if limit <= 0 {
		limit = 25
	}

	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.eventsTable),
		FilterExpression: aws.String("country = :country AND starts_at BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":country": &types.AttributeValueMemberS{Value: strings.ToUpper(country)},
			":from":    &types.AttributeValueMemberS{Value: dateFrom},
			":to":      &types.AttributeValueMemberS{Value: dateTo},
		},
		Limit: aws.Int32(limit * 4), // scan wider, filter text in-process
	}

	result, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}

	terms := strings.Fields(strings.ToLower(query))
	var events []models.EventCandidate
	for _, item := range result.Items {
		var row storedEvent
		if err := attributevalue.UnmarshalMap(item, &row); err != nil {
			continue
		}
		if !matchesAnyTerm(row.Payload, terms) {
			continue
		}
		ev := row.Payload
		ev.Strategy = models.StepCache
		events = append(events, ev)
		if len(events) >= int(limit) {
			break
		}
	}
	log.Printf("[SEARCH] Database stage found %d events for %q in %s", len(events), query, country)
	return events, nil
}

// matchesAnyTerm reports whether any query term appears in the event's
// title, topics, or description. An empty term list matches everything.
func matchesAnyTerm(ev models.EventCandidate, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(ev.Title + " " + ev.Description + " " + strings.Join(ev.Topics, " "))
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}
