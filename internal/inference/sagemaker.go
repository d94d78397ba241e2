package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime/sagemakerruntimeiface"

	"github.com/speedwagon-io/motordiag/internal/model"
)

// SageMakerClassifier runs the fault model behind a SageMaker endpoint
// serving the TensorFlow Serving JSON protocol.
type SageMakerClassifier struct {
	client   sagemakerruntimeiface.SageMakerRuntimeAPI
	endpoint string
	shape    Shape
	labels   []string
	pad      bool
}

type sageMakerRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type sageMakerResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

func NewSageMakerClassifier(region, endpoint string, shape Shape, labels []string, pad bool) (*SageMakerClassifier, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewSageMakerClassifierWithClient(sagemakerruntime.New(sess), endpoint, shape, labels, pad)
}

func NewSageMakerClassifierWithClient(client sagemakerruntimeiface.SageMakerRuntimeAPI, endpoint string, shape Shape, labels []string, pad bool) (*SageMakerClassifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("sagemaker endpoint name is required")
	}
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label set is empty")
	}
	return &SageMakerClassifier{
		client:   client,
		endpoint: endpoint,
		shape:    shape,
		labels:   labels,
		pad:      pad,
	}, nil
}

func (c *SageMakerClassifier) InputShape() Shape {
	return c.shape
}

func (c *SageMakerClassifier) Classify(ctx context.Context, normalized []float64) (Classification, error) {
	rows, err := window(normalized, c.shape, c.pad)
	if err != nil {
		return Classification{}, err
	}

	payload, err := json.Marshal(sageMakerRequest{Instances: [][][]float64{rows}})
	if err != nil {
		return Classification{}, fmt.Errorf("%w: failed to marshal payload: %v", model.ErrInference, err)
	}

	output, err := c.client.InvokeEndpointWithContext(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(c.endpoint),
		Body:         payload,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
	})
	if err != nil {
		return Classification{}, fmt.Errorf("%w: failed to invoke endpoint %s: %v", model.ErrInference, c.endpoint, err)
	}

	var resp sageMakerResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return Classification{}, fmt.Errorf("%w: failed to parse response: %v", model.ErrInference, err)
	}
	if len(resp.Predictions) != 1 {
		return Classification{}, fmt.Errorf("%w: expected 1 prediction, got %d", model.ErrInference, len(resp.Predictions))
	}

	return pick(c.labels, resp.Predictions[0])
}
