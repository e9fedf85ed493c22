package classification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Tutortoise/defect-classification-service/models"
)

// Classifier runs the full load, preprocess, infer and decide chain.
type Classifier struct {
	loader *Loader
	logger *zap.Logger
}

func NewClassifier(loader *Loader, logger *zap.Logger) *Classifier {
	return &Classifier{loader: loader, logger: logger.Named("classifier")}
}

func (c *Classifier) Loader() *Loader {
	return c.loader
}

// Health loads the model if needed and reports whether that succeeded.
func (c *Classifier) Health(ctx context.Context) error {
	_, err := c.loader.Ensure(ctx)
	return err
}

// Classify labels one image. timings may be nil.
func (c *Classifier) Classify(ctx context.Context, data []byte, timings *models.ProcessingTimings) (models.Prediction, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	loadStart := time.Now()
	engine, err := c.loader.Ensure(ctx)
	timings.ModelLoad = time.Since(loadStart)
	if err != nil {
		return models.Prediction{}, err
	}

	tensor, err := Preprocess(data, engine.Input(), timings)
	if err != nil {
		return models.Prediction{}, err
	}

	inferStart := time.Now()
	output, err := engine.Run(ctx, tensor)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		return models.Prediction{}, err
	}

	postStart := time.Now()
	if n := engine.OutputSize(); n > 0 && len(output) > n {
		output = output[:n]
	}
	if len(output) > 2 {
		c.logger.Warn("model has more than two outputs, only index 0 maps to Defective",
			zap.String("request_id", timings.RequestID),
			zap.Int("outputs", len(output)))
	}
	prediction, err := Decide(output)
	timings.Postprocess = time.Since(postStart)
	if err != nil {
		return models.Prediction{}, err
	}

	return prediction, nil
}
