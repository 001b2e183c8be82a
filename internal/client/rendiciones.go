package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-attempt/internal/model"
)

const rendiciones = "/rendiciones"

// GetProfile returns the authenticated student.
func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, "get_profile", http.MethodGet, "/auth/perfil", c.timeouts.Light, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAttemptQuestions returns the evaluation, the attempt and its questions.
func (c *Client) GetAttemptQuestions(ctx context.Context, attemptID int64) (*model.AttemptQuestions, error) {
	var out model.AttemptQuestions
	path := fmt.Sprintf("%s/intentos/%d/preguntas", rendiciones, attemptID)
	if err := c.do(ctx, "get_attempt_questions", http.MethodGet, path, c.timeouts.Heavy, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AutosaveAnswer persists one question's current answer.
func (c *Client) AutosaveAnswer(ctx context.Context, attemptID, questionID int64, answer model.LocalAnswer) error {
	path := fmt.Sprintf("%s/intentos/%d/preguntas/%d", rendiciones, attemptID, questionID)
	return c.do(ctx, "autosave_answer", http.MethodPut, path, c.timeouts.Light, answer, nil)
}

// FinalizeAttempt submits the attempt.
func (c *Client) FinalizeAttempt(ctx context.Context, attemptID int64) error {
	path := fmt.Sprintf("%s/intentos/%d/finalizar", rendiciones, attemptID)
	return c.do(ctx, "finalize_attempt", http.MethodPost, path, c.timeouts.Heavy, nil, nil)
}

// GetResult returns the post-submission summary.
func (c *Client) GetResult(ctx context.Context, attemptID int64) (*model.Result, error) {
	var out model.Result
	path := fmt.Sprintf("%s/intentos/%d/resultado", rendiciones, attemptID)
	if err := c.do(ctx, "get_result", http.MethodGet, path, c.timeouts.Light, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartProctoring tells the API the camera stream is live.
func (c *Client) StartProctoring(ctx context.Context, attemptID int64) error {
	path := fmt.Sprintf("%s/intentos/%d/proctoring/iniciar", rendiciones, attemptID)
	return c.do(ctx, "start_proctoring", http.MethodPost, path, c.timeouts.Light, nil, nil)
}

// SaveProctoringVideoURL stores the URL of the uploaded recording.
func (c *Client) SaveProctoringVideoURL(ctx context.Context, attemptID int64, url string) error {
	path := fmt.Sprintf("%s/intentos/%d/proctoring/video", rendiciones, attemptID)
	body := map[string]string{"url_video": url}
	return c.do(ctx, "save_proctoring_video", http.MethodPut, path, c.timeouts.Heavy, body, nil)
}

// ReportFraudWarning registers a suspicious signal. The reply carries the
// updated warning count and whether the attempt is now suspended.
func (c *Client) ReportFraudWarning(ctx context.Context, attemptID int64, motive model.Motive) (*model.WarningReply, error) {
	var out model.WarningReply
	path := fmt.Sprintf("%s/intentos/%d/proctoring/warn", rendiciones, attemptID)

	body := map[string]string{}
	if motive != "" {
		body["motivo"] = string(motive)
	}
	if err := c.do(ctx, "report_fraud_warning", http.MethodPost, path, c.timeouts.Light, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
