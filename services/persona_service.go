package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"persona-advisor/internal/logger"
	"persona-advisor/internal/vector"
	"persona-advisor/models"
)

var ErrPersonaNotFound = errors.New("persona not found")

// PersonaService manages personas and their 1:1 vector namespaces.
type PersonaService struct {
	personas *mongo.Collection
	store    vector.Store
}

func NewPersonaService(db *mongo.Database, store vector.Store) *PersonaService {
	return &PersonaService{
		personas: db.Collection("personas"),
		store:    store,
	}
}

func (s *PersonaService) CreatePersona(ctx context.Context, ownerID, name, description string) (*models.Persona, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("persona name is required")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	persona := &models.Persona{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Namespace:   "persona_" + strings.ReplaceAll(id, "-", ""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.personas.InsertOne(ctx, persona); err != nil {
		return nil, fmt.Errorf("failed to create persona: %w", err)
	}
	return persona, nil
}

func (s *PersonaService) GetPersona(ctx context.Context, personaID string) (*models.Persona, error) {
	var persona models.Persona
	err := s.personas.FindOne(ctx, bson.M{"_id": personaID}).Decode(&persona)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPersonaNotFound
		}
		return nil, err
	}
	return &persona, nil
}

func (s *PersonaService) GetPersonaForOwner(ctx context.Context, personaID, ownerID string) (*models.Persona, error) {
	var persona models.Persona
	err := s.personas.FindOne(ctx, bson.M{"_id": personaID, "owner_id": ownerID}).Decode(&persona)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPersonaNotFound
		}
		return nil, err
	}
	return &persona, nil
}

func (s *PersonaService) ListPersonas(ctx context.Context, ownerID string) ([]models.Persona, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.personas.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var personas []models.Persona
	if err := cursor.All(ctx, &personas); err != nil {
		return nil, err
	}
	return personas, nil
}

func (s *PersonaService) UpdatePersona(ctx context.Context, personaID, ownerID, name, description string) (*models.Persona, error) {
	update := bson.M{"updated_at": time.Now().UTC()}
	if name = strings.TrimSpace(name); name != "" {
		update["name"] = name
	}
	if description = strings.TrimSpace(description); description != "" {
		update["description"] = description
	}

	res := s.personas.FindOneAndUpdate(ctx,
		bson.M{"_id": personaID, "owner_id": ownerID},
		bson.M{"$set": update},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var persona models.Persona
	if err := res.Decode(&persona); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPersonaNotFound
		}
		return nil, err
	}
	return &persona, nil
}

// DeletePersona removes the persona and its entire vector namespace.
func (s *PersonaService) DeletePersona(ctx context.Context, personaID, ownerID string) error {
	persona, err := s.GetPersonaForOwner(ctx, personaID, ownerID)
	if err != nil {
		return err
	}

	if _, err := s.store.DeleteNamespace(ctx, persona.Namespace); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}

	if _, err := s.personas.DeleteOne(ctx, bson.M{"_id": personaID, "owner_id": ownerID}); err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	logger.Info("persona deleted", "persona_id", personaID, "namespace", persona.Namespace)
	return nil
}

// AddCounters increments the persona's aggregate chunk and token counts
// after a completed ingestion.
func (s *PersonaService) AddCounters(ctx context.Context, personaID string, chunks, tokens int64) error {
	_, err := s.personas.UpdateOne(ctx,
		bson.M{"_id": personaID},
		bson.M{
			"$inc": bson.M{"chunk_count": chunks, "token_count": tokens},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}

// Status reports whether the persona's namespace is ready for retrieval.
func (s *PersonaService) Status(ctx context.Context, persona *models.Persona) (*models.PersonaStatus, error) {
	exists, count, err := s.store.NamespaceStats(ctx, persona.Namespace)
	if err != nil {
		return nil, err
	}
	return &models.PersonaStatus{
		Persona:     persona,
		Ready:       exists && count > 0,
		VectorCount: count,
	}, nil
}
