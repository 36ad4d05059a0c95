package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantOriginalIDField carries the caller-supplied ID in point payload,
// since Qdrant only accepts UUID or integer point IDs.
const qdrantOriginalIDField = "_original_id"

// qdrantCollection is a thin wrapper around one Qdrant collection providing
// upsert/get/similarity-search over fixed-dimension float32 vectors, with
// arbitrary string metadata carried in the point payload.
type qdrantCollection struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

func dialQdrant(dsn string) (*qdrant.Client, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	return qdrant.NewClient(cfg)
}

func newQdrantCollection(ctx context.Context, client *qdrant.Client, collection string, dimension int, metric string) (*qdrantCollection, error) {
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		distance := qdrant.Distance_Cosine
		switch strings.ToLower(metric) {
		case "l2", "euclidean":
			distance = qdrant.Distance_Euclid
		case "ip", "dot":
			distance = qdrant.Distance_Dot
		}
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: distance,
			}),
		}); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", collection, err)
		}
	}
	return &qdrantCollection{client: client, collection: collection, dimension: dimension}, nil
}

func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (c *qdrantCollection) upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	puid := pointID(id)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if puid != id {
		payload[qdrantOriginalIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(puid),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (c *qdrantCollection) get(ctx context.Context, id string) (map[string]string, []float32, bool, error) {
	puid := pointID(id)
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(puid)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, nil, false, err
	}
	if len(points) == 0 {
		return nil, nil, false, nil
	}
	md := metadataFromPayload(points[0].Payload)
	return md, points[0].GetVectors().GetVector().GetData(), true, nil
}

func (c *qdrantCollection) search(ctx context.Context, vector []float32, k int) ([]VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(k)
	hits, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorHit, 0, len(hits))
	for _, h := range hits {
		md := metadataFromPayload(h.Payload)
		id := md[qdrantOriginalIDField]
		if id == "" {
			id = h.Id.GetUuid()
		}
		out = append(out, VectorHit{ObservationID: id, Text: md["text"], Score: float64(h.Score)})
	}
	return out, nil
}

func metadataFromPayload(payload map[string]*qdrant.Value) map[string]string {
	md := make(map[string]string, len(payload))
	for k, v := range payload {
		md[k] = v.GetStringValue()
	}
	return md
}
