package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"race-crew-network/internal/models"
)

// DynamoDBStore persists regattas and documents. It implements
// RegattaStore for the import pipeline; the rest of the application shares
// the same tables through its own routes.
//
// The regattas table carries a name-date GSI keyed on the lowercased name
// plus start date, which is what the duplicate lookup queries.
type DynamoDBStore struct {
	client         *dynamodb.Client
	regattasTable  string
	documentsTable string
}

const nameDateIndex = "name-date-index"

// NewDynamoDBStore creates a store over the given tables.
func NewDynamoDBStore(client *dynamodb.Client, regattasTable, documentsTable string) *DynamoDBStore {
	return &DynamoDBStore{
		client:         client,
		regattasTable:  regattasTable,
		documentsTable: documentsTable,
	}
}

// CreateRegatta stores a new regatta, assigning its ID and timestamps.
func (s *DynamoDBStore) CreateRegatta(ctx context.Context, regatta *models.Regatta) error {
	now := time.Now()
	if regatta.ID == "" {
		regatta.ID = models.GenerateRegattaID(regatta.Name, regatta.StartDate, regatta.Location)
	}
	regatta.NameLower = strings.ToLower(strings.TrimSpace(regatta.Name))
	regatta.CreatedAt = now
	regatta.UpdatedAt = now

	item, err := attributevalue.MarshalMap(regatta)
	if err != nil {
		return fmt.Errorf("failed to marshal regatta: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.regattasTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create regatta: %w", err)
	}
	return nil
}

// GetRegatta retrieves a regatta by ID.
func (s *DynamoDBStore) GetRegatta(ctx context.Context, id string) (*models.Regatta, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.regattasTable),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get regatta: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var regatta models.Regatta
	if err := attributevalue.UnmarshalMap(result.Item, &regatta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal regatta: %w", err)
	}
	return &regatta, nil
}

// UpdateRegatta upserts an existing regatta, refreshing UpdatedAt and the
// duplicate-lookup key.
func (s *DynamoDBStore) UpdateRegatta(ctx context.Context, regatta *models.Regatta) error {
	regatta.NameLower = strings.ToLower(strings.TrimSpace(regatta.Name))
	regatta.UpdatedAt = time.Now()

	item, err := attributevalue.MarshalMap(regatta)
	if err != nil {
		return fmt.Errorf("failed to marshal regatta: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.regattasTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to update regatta: %w", err)
	}
	return nil
}

// DeleteRegatta removes a regatta.
func (s *DynamoDBStore) DeleteRegatta(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.regattasTable),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete regatta: %w", err)
	}
	return nil
}

// FindRegattaByNameAndDate queries the name-date GSI for a case-insensitive
// name match with an exact start date. Returns nil when nothing matches.
func (s *DynamoDBStore) FindRegattaByNameAndDate(ctx context.Context, name, startDate string) (*models.Regatta, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.regattasTable),
		IndexName:              aws.String(nameDateIndex),
		KeyConditionExpression: aws.String("NameLower = :name AND StartDate = :start"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":  &types.AttributeValueMemberS{Value: strings.ToLower(strings.TrimSpace(name))},
			":start": &types.AttributeValueMemberS{Value: startDate},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query regattas by name and date: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var regatta models.Regatta
	if err := attributevalue.UnmarshalMap(result.Items[0], &regatta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal regatta: %w", err)
	}
	return &regatta, nil
}

// CreateDocument stores a document attached to a regatta.
func (s *DynamoDBStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = "doc_" + uuid.NewString()
	}
	doc.UploadedAt = time.Now()

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.documentsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// ListDocumentsByRegatta returns a regatta's documents via the regatta GSI.
func (s *DynamoDBStore) ListDocumentsByRegatta(ctx context.Context, regattaID string) ([]models.Document, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.documentsTable),
		IndexName:              aws.String("regatta-index"),
		KeyConditionExpression: aws.String("RegattaID = :regattaID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":regattaID": &types.AttributeValueMemberS{Value: regattaID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	var docs []models.Document
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &docs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document.
func (s *DynamoDBStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.documentsTable),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
