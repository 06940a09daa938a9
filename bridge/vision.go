package bridge

import (
	"context"
	"time"

	"github.com/basket/pocketclaw/internal/provider"
)

// visionTimeout bounds one vision dispatch, matching the webhook budget.
const visionTimeout = 600 * time.Second

// SendVisionMessage dispatches a message with inline base64 images
// directly through the provider and returns the agent's reply. imageData
// and mimeTypes are parallel slices, at most provider.MaxImages long.
func SendVisionMessage(message string, imageData, mimeTypes []string) (string, error) {
	return guardErr(func() (string, error) {
		images, err := provider.PairImages(imageData, mimeTypes)
		if err != nil {
			return "", &Error{Kind: KindConfig, Detail: err.Error()}
		}
		runner, err := rt().Runner()
		if err != nil {
			return "", err
		}
		ctx, cancel := context.WithTimeout(context.Background(), visionTimeout)
		defer cancel()
		return runner.DispatchVision(ctx, message, images)
	})
}
