package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/minescope/backend/pkg/ai"
	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/ontology"
)

type extractProperty struct {
	Name  string `json:"name" jsonschema_description:"Property name, one of the allowed properties for the entity type"`
	Value string `json:"value" jsonschema_description:"Property value exactly as stated in the text, including units"`
}

type extractEntity struct {
	EntityName string            `json:"entity_name" jsonschema_description:"Name of the entity as it appears in the text"`
	EntityType string            `json:"entity_type" jsonschema_description:"One of the provided entity types"`
	Properties []extractProperty `json:"properties" jsonschema_description:"Properties of the entity stated in the text"`
	Confidence float64           `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
}

type extractRelationship struct {
	SourceEntity     string  `json:"source_entity" jsonschema_description:"Name of the source entity, as identified above"`
	TargetEntity     string  `json:"target_entity" jsonschema_description:"Name of the target entity, as identified above"`
	RelationshipType string  `json:"relationship_type" jsonschema_description:"One of the provided relationship types"`
	Confidence       float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the text"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the text"`
}

const extractSystemPrompt = `You are an information extraction system for technical and feasibility study documents.
Identify entities and relationships in the provided text.

Allowed entity types: %s
Allowed relationship types: %s

Rules:
- Only use the allowed entity and relationship types.
- Only report properties explicitly stated in the text; keep values verbatim, including units.
- Report each entity once, with all its properties.
- Relationships must connect entities identified in the same text.`

// ModelExtractor extracts nodes and edges with a generative model using
// schema-constrained output, then clips the result to the ontology.
type ModelExtractor struct {
	client ai.Client
}

// NewModelExtractor creates a model-backed extractor.
func NewModelExtractor(client ai.Client) *ModelExtractor {
	return &ModelExtractor{client: client}
}

// Extract asks the model for entities and relationships and converts the
// clipped response into graph nodes and edges keyed to the chunk's document.
func (e *ModelExtractor) Extract(ctx context.Context, chunk common.Chunk, ont *ontology.Ontology) (Result, error) {
	systemPrompt := fmt.Sprintf(
		extractSystemPrompt,
		strings.Join(ont.NodeTypeNames(), ", "),
		strings.Join(ont.EdgeTypeNames(), ", "),
	)

	var res extractResponse
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from a provided document chunk.",
		chunk.Text,
		&res,
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return Result{ChunkID: chunk.ID}, err
	}

	return clipToOntology(chunk, res, ont), nil
}

// clipToOntology drops entities of unknown type, properties the type does
// not allow, and relationships the ontology does not permit between the
// resolved endpoint types. Clipping is logged, never fatal.
func clipToOntology(chunk common.Chunk, res extractResponse, ont *ontology.Ontology) Result {
	out := Result{ChunkID: chunk.ID}

	typeByName := make(map[string]string)
	for _, entity := range res.Entities {
		name := strings.TrimSpace(entity.EntityName)
		if name == "" {
			continue
		}
		if !ont.HasNodeType(entity.EntityType) {
			logger.Debug("dropping entity of unknown type", "chunk", chunk.ID, "entity", name, "type", entity.EntityType)
			continue
		}

		props := map[string]any{}
		for _, p := range entity.Properties {
			if !ont.AllowsProperty(entity.EntityType, p.Name) {
				logger.Debug("dropping disallowed property", "chunk", chunk.ID, "entity", name, "property", p.Name)
				continue
			}
			props[p.Name] = p.Value
		}

		confidence := entity.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}

		typeByName[common.NormalizeName(name)] = entity.EntityType
		out.Nodes = append(out.Nodes, common.Node{
			Key:        common.NodeKey(chunk.DocumentID, entity.EntityType, name),
			Type:       entity.EntityType,
			Name:       name,
			Properties: props,
			Confidence: confidence,
			ChunkID:    chunk.ID,
		})
	}

	for _, rel := range res.Relationships {
		sourceType, okS := typeByName[common.NormalizeName(rel.SourceEntity)]
		targetType, okT := typeByName[common.NormalizeName(rel.TargetEntity)]
		if !okS || !okT {
			continue
		}
		if !ont.AllowsEdge(rel.RelationshipType, sourceType, targetType) {
			logger.Debug("dropping disallowed relationship",
				"chunk", chunk.ID, "type", rel.RelationshipType,
				"source", rel.SourceEntity, "target", rel.TargetEntity)
			continue
		}

		confidence := rel.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}

		out.Edges = append(out.Edges, common.Edge{
			SourceKey:  common.NodeKey(chunk.DocumentID, sourceType, rel.SourceEntity),
			TargetKey:  common.NodeKey(chunk.DocumentID, targetType, rel.TargetEntity),
			Type:       rel.RelationshipType,
			Confidence: confidence,
			ChunkID:    chunk.ID,
		})
	}

	return out
}
