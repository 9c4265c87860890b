package ports

import "context"

// CaptchaClassifier turns a challenge image into its 4-digit code. Accuracy
// is below 100%; callers must tolerate wrong answers and re-fetch a fresh
// challenge, the images are single-use and expire within seconds.
type CaptchaClassifier interface {
	Classify(ctx context.Context, image []byte) (string, error)
}
