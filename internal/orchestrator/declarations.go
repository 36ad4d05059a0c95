package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"droidmind/internal/llm"
	"droidmind/internal/memory"
	"droidmind/internal/retriever"
)

// retrievalDeclarations builds one Declaration+Executor pair per public
// Retriever method. The Retrieval Agent's tool-call loop is restricted to
// exactly this set; a model asking for anything else is a hallucination,
// not a tool failure (see llm.ToolCallLoop).
func retrievalDeclarations(r *retriever.Retriever) ([]llm.Declaration, map[string]llm.Executor) {
	decls := []llm.Declaration{
		{
			Name:        "get_people_relationships",
			Description: "Look up stored relationship observations about a person, optionally scoped to one person id.",
			Parameters: objSchema(map[string]any{
				"person_id": strProp("id of the person to scope to, or empty for all"),
				"limit":     intProp("max rows to return"),
			}, nil),
		},
		{
			Name:        "get_long_term_preferences",
			Description: "Look up durable user preference observations for an app.",
			Parameters: objSchema(map[string]any{
				"source_app_id": strProp("app package this preference is scoped to"),
				"limit":         intProp("max rows to return"),
			}, nil),
		},
		{
			Name:        "get_short_term_preferences",
			Description: "Look up recent, possibly transient preference observations for an app.",
			Parameters: objSchema(map[string]any{
				"source_app_id": strProp("app package this preference is scoped to"),
				"limit":         intProp("max rows to return"),
			}, nil),
		},
		{
			Name:        "get_recent_content",
			Description: "Look up recently observed content for an app, optionally scoped to one content id.",
			Parameters: objSchema(map[string]any{
				"source_id":  strProp("app package this content is scoped to"),
				"content_id": strProp("content id to scope to, or empty for all"),
				"limit":      intProp("max rows to return"),
			}, nil),
		},
		{
			Name:        "get_all_observations_about_entity",
			Description: "Look up every observation naming an entity, optionally scoped by entity type.",
			Parameters: objSchema(map[string]any{
				"entity_id":   strProp("entity id to look up"),
				"entity_type": strProp("entity type to scope to, or empty for any"),
				"limit":       intProp("max rows to return"),
			}, []string{"entity_id"}),
		},
		{
			Name:        "search_memories",
			Description: "Full-text search over observation content, optionally scoped to one memory type.",
			Parameters: objSchema(map[string]any{
				"query":       strProp("search text"),
				"memory_type": strProp("one of LongTermPeople, LongTermPreferences, ShortTermPreferences, ShortTermContent, or empty for any"),
				"limit":       intProp("max rows to return"),
			}, []string{"query"}),
		},
		{
			Name:        "get_top_relevant_memories",
			Description: "Look up the most important/recurring observations, optionally scoped to one memory type.",
			Parameters: objSchema(map[string]any{
				"memory_type": strProp("one of LongTermPeople, LongTermPreferences, ShortTermPreferences, ShortTermContent, or empty for any"),
				"limit":       intProp("max rows to return"),
			}, nil),
		},
		{
			Name:        "get_embedding_for_observation",
			Description: "Fetch the stored embedding row for a specific observation id.",
			Parameters:  objSchema(map[string]any{"observation_id": strProp("observation id")}, []string{"observation_id"}),
		},
		{
			Name:        "get_person_by_id",
			Description: "Fetch a single stored person relationship record by id.",
			Parameters:  objSchema(map[string]any{"person_id": strProp("person id")}, []string{"person_id"}),
		},
		{
			Name:        "find_similar_person_relationships",
			Description: "Semantic search over stored person relationship descriptions.",
			Parameters: objSchema(map[string]any{
				"query": strProp("free-text description to search for"),
				"limit": intProp("max rows to return"),
			}, []string{"query"}),
		},
		{
			Name:        "find_person_by_name",
			Description: "Fuzzy name match against stored people, e.g. to resolve a first name to a full contact.",
			Parameters: objSchema(map[string]any{
				"name":      strProp("name or partial name to match"),
				"threshold": numProp("minimum similarity score, default 0.3"),
				"limit":     intProp("max rows to return"),
			}, []string{"name"}),
		},
		{
			Name:        "find_semantically_similar",
			Description: "Semantic search over observation text, cached for repeated queries.",
			Parameters: objSchema(map[string]any{
				"query": strProp("free-text query"),
				"limit": intProp("max rows to return"),
			}, []string{"query"}),
		},
	}

	executors := map[string]llm.Executor{
		"get_people_relationships": jsonExecutor(func(ctx context.Context, a struct {
			PersonID string `json:"person_id"`
			Limit    int    `json:"limit"`
		}) (any, error) {
			return r.GetPeopleRelationships(ctx, a.PersonID, a.Limit)
		}),
		"get_long_term_preferences": jsonExecutor(func(ctx context.Context, a struct {
			SourceAppID string `json:"source_app_id"`
			Limit       int    `json:"limit"`
		}) (any, error) {
			return r.GetLongTermPreferences(ctx, a.SourceAppID, a.Limit)
		}),
		"get_short_term_preferences": jsonExecutor(func(ctx context.Context, a struct {
			SourceAppID string `json:"source_app_id"`
			Limit       int    `json:"limit"`
		}) (any, error) {
			return r.GetShortTermPreferences(ctx, a.SourceAppID, a.Limit)
		}),
		"get_recent_content": jsonExecutor(func(ctx context.Context, a struct {
			SourceID  string `json:"source_id"`
			ContentID string `json:"content_id"`
			Limit     int    `json:"limit"`
		}) (any, error) {
			return r.GetRecentContent(ctx, a.SourceID, a.ContentID, a.Limit)
		}),
		"get_all_observations_about_entity": jsonExecutor(func(ctx context.Context, a struct {
			EntityID   string `json:"entity_id"`
			EntityType string `json:"entity_type"`
			Limit      int    `json:"limit"`
		}) (any, error) {
			return r.GetAllObservationsAboutEntity(ctx, a.EntityID, a.EntityType, a.Limit)
		}),
		"search_memories": jsonExecutor(func(ctx context.Context, a struct {
			Query      string `json:"query"`
			MemoryType string `json:"memory_type"`
			Limit      int    `json:"limit"`
		}) (any, error) {
			return r.SearchMemories(ctx, a.Query, parseMemoryType(a.MemoryType), a.Limit)
		}),
		"get_top_relevant_memories": jsonExecutor(func(ctx context.Context, a struct {
			MemoryType string `json:"memory_type"`
			Limit      int    `json:"limit"`
		}) (any, error) {
			return r.GetTopRelevantMemories(ctx, parseMemoryType(a.MemoryType), a.Limit)
		}),
		"get_embedding_for_observation": jsonExecutor(func(ctx context.Context, a struct {
			ObservationID string `json:"observation_id"`
		}) (any, error) {
			return r.GetEmbeddingForObservation(ctx, a.ObservationID)
		}),
		"get_person_by_id": jsonExecutor(func(ctx context.Context, a struct {
			PersonID string `json:"person_id"`
		}) (any, error) {
			return r.GetPersonByID(ctx, a.PersonID)
		}),
		"find_similar_person_relationships": jsonExecutor(func(ctx context.Context, a struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}) (any, error) {
			return r.FindSimilarPersonRelationships(ctx, a.Query, a.Limit)
		}),
		"find_person_by_name": jsonExecutor(func(ctx context.Context, a struct {
			Name      string  `json:"name"`
			Threshold float64 `json:"threshold"`
			Limit     int     `json:"limit"`
		}) (any, error) {
			return r.FindPersonByName(ctx, a.Name, a.Threshold, a.Limit)
		}),
		"find_semantically_similar": jsonExecutor(func(ctx context.Context, a struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}) (any, error) {
			return r.FindSemanticallySimilar(ctx, a.Query, a.Limit, "cosine", false)
		}),
	}

	return decls, executors
}

func parseMemoryType(s string) *memory.MemoryType {
	if s == "" {
		return nil
	}
	t := memory.MemoryType(s)
	return &t
}

// jsonExecutor adapts a typed handler func(ctx, A) (any, error) into an
// llm.Executor: it unmarshals the model's raw args into A and marshals the
// handler's return value back to JSON. A and the return type are always
// JSON-safe primitives/structs, matching the tool-call wire shape.
func jsonExecutor[A any](fn func(ctx context.Context, args A) (any, error)) llm.Executor {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("orchestrator: decode tool args: %w", err)
			}
		}
		result, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: encode tool result: %w", err)
		}
		return out, nil
	}
}

func objSchema(props map[string]any, required []string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
func numProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}
