package embedding

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"docsearch/internal/config"
	"docsearch/internal/model"
)

type predictFunc func(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error)

// Vertex calls a Vertex AI text embedding model through the prediction API.
type Vertex struct {
	endpoint  string
	dimension int
	predict   predictFunc
	close     func() error
}

// NewVertex dials the regional prediction endpoint using Application Default Credentials.
func NewVertex(ctx context.Context, cfg config.EmbeddingConfig) (*Vertex, error) {
	if cfg.VertexProject == "" {
		return nil, fmt.Errorf("vertex project is required")
	}
	region := cfg.VertexRegion
	if region == "" {
		region = "us-central1"
	}
	modelName := cfg.Model
	if modelName == "" || modelName == "nomic-embed-text" {
		modelName = "text-embedding-005"
	}

	cli, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(region+"-aiplatform.googleapis.com:443"))
	if err != nil {
		return nil, fmt.Errorf("create vertex prediction client: %w", err)
	}
	v := newVertex(
		fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", cfg.VertexProject, region, modelName),
		func(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error) {
			return cli.Predict(ctx, req)
		},
	)
	v.close = cli.Close
	return v, nil
}

func newVertex(endpoint string, predict predictFunc) *Vertex {
	return &Vertex{
		endpoint:  endpoint,
		dimension: model.EmbeddingDimension,
		predict:   predict,
		close:     func() error { return nil },
	}
}

func (v *Vertex) Dimension() int { return v.dimension }

// Close releases the underlying gRPC connection.
func (v *Vertex) Close() error { return v.close() }

func (v *Vertex) Embed(ctx context.Context, text string) ([]float32, error) {
	input, err := prepare(text)
	if err != nil {
		return nil, err
	}

	instance, err := structpb.NewValue(map[string]any{"content": input})
	if err != nil {
		return nil, fmt.Errorf("build vertex instance: %w", err)
	}
	params, err := structpb.NewValue(map[string]any{"outputDimensionality": v.dimension})
	if err != nil {
		return nil, fmt.Errorf("build vertex parameters: %w", err)
	}

	resp, err := v.predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   v.endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex predict: %w", err)
	}

	vec, err := parsePrediction(resp)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(vec, v.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// parsePrediction reads predictions[0].embeddings.values.
func parsePrediction(resp *aiplatformpb.PredictResponse) ([]float32, error) {
	if resp == nil || len(resp.GetPredictions()) == 0 {
		return nil, fmt.Errorf("vertex returned no predictions")
	}
	emb := resp.GetPredictions()[0].GetStructValue().GetFields()["embeddings"]
	values := emb.GetStructValue().GetFields()["values"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("vertex prediction has no embedding values")
	}
	vec := make([]float32, len(values))
	for i, val := range values {
		vec[i] = float32(val.GetNumberValue())
	}
	return vec, nil
}
