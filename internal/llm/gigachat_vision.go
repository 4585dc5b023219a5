package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"ragvault/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	gigaChatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	gigaChatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1"

	visionPrompt = `Extract all text from this document image.
Return only the text that is visible, without comments or explanations.
Keep the structure: headings, lists and tables as plain text rows.
If nothing is readable, return an empty answer.`
)

var (
	ErrFileTooLarge  = errors.New("file exceeds the upload size limit")
	ErrVisionRefused = errors.New("model refused to transcribe the file")
)

// refusalPhrases mark answers where the model describes a failure instead of
// transcribing.
var refusalPhrases = []string{
	"не могу помочь",
	"не могу обработать",
	"не могу извлечь",
	"предоставьте содержимое",
	"cannot help",
	"cannot process",
	"unable to extract",
	"please provide",
}

// GigaChatVision transcribes images through the GigaChat files and chat
// completions REST API. The OAuth token is fetched lazily and refreshed once
// when the API answers 401.
type GigaChatVision struct {
	cfg        *config.GigaChatConfig
	httpClient *http.Client
	oauthURL   string
	baseURL    string
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
}

type VisionOption func(*GigaChatVision)

// WithVisionEndpoints overrides the OAuth and REST endpoints.
func WithVisionEndpoints(oauthURL, baseURL string) VisionOption {
	return func(v *GigaChatVision) {
		v.oauthURL = oauthURL
		v.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithVisionHTTPClient(client *http.Client) VisionOption {
	return func(v *GigaChatVision) { v.httpClient = client }
}

func NewGigaChatVision(cfg *config.GigaChatConfig, logger *zap.Logger, opts ...VisionOption) *GigaChatVision {
	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		logger.Warn("GigaChat vision TLS certificate verification is disabled")
	}

	v := &GigaChatVision{
		cfg:        cfg,
		httpClient: httpClient,
		oauthURL:   gigaChatOAuthURL,
		baseURL:    gigaChatBaseURL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ExtractText uploads data and asks the model to transcribe it.
func (v *GigaChatVision) ExtractText(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	fileID, err := v.withToken(ctx, func(token string) (string, int, error) {
		return v.upload(ctx, token, data, filename, mimeType)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	text, err := v.withToken(ctx, func(token string) (string, int, error) {
		return v.complete(ctx, token, fileID)
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe file: %w", err)
	}

	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			v.logger.Warn("Vision model refused to transcribe", zap.String("file_id", fileID))
			return "", ErrVisionRefused
		}
	}

	v.logger.Info("Text extracted via GigaChat vision",
		zap.String("file_id", fileID),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

// withToken runs call with the cached token and retries once with a fresh
// token when the API reports it as expired.
func (v *GigaChatVision) withToken(ctx context.Context, call func(token string) (string, int, error)) (string, error) {
	token, err := v.token(ctx, false)
	if err != nil {
		return "", err
	}
	out, status, err := call(token)
	if status != http.StatusUnauthorized {
		return out, err
	}

	token, err = v.token(ctx, true)
	if err != nil {
		return "", err
	}
	out, _, err = call(token)
	return out, err
}

func (v *GigaChatVision) token(ctx context.Context, refresh bool) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.accessToken != "" && !refresh {
		return v.accessToken, nil
	}

	form := url.Values{}
	form.Set("scope", v.cfg.Scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	rqUID := uuid.NewString()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", rqUID)
	// The key is issued already Base64-encoded.
	req.Header.Set("Authorization", "Basic "+v.cfg.APIKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		v.logger.Error("OAuth request failed", zap.Int("status", resp.StatusCode), zap.String("rq_uid", rqUID))
		return "", fmt.Errorf("OAuth failed with status %d: %s", resp.StatusCode, string(body))
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", errors.New("empty access token in OAuth response")
	}

	v.accessToken = oauthResp.AccessToken
	return v.accessToken, nil
}

func (v *GigaChatVision) upload(ctx context.Context, token string, data []byte, filename, mimeType string) (string, int, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	// "general" makes the file usable as a chat attachment.
	if err := writer.WriteField("purpose", "general"); err != nil {
		return "", 0, fmt.Errorf("failed to write purpose field: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", mimeType)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", 0, fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/files", &body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusRequestEntityTooLarge:
		return "", resp.StatusCode, ErrFileTooLarge
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", resp.StatusCode, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(msg))
	}

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return uploadResp.ID, resp.StatusCode, nil
}

type visionMessage struct {
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

type visionRequest struct {
	Model       string          `json:"model"`
	Messages    []visionMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

func (v *GigaChatVision) complete(ctx context.Context, token, fileID string) (string, int, error) {
	payload, err := json.Marshal(visionRequest{
		Model: gigaChatModel,
		Messages: []visionMessage{
			{Role: "user", Content: visionPrompt, Attachments: []string{fileID}},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", resp.StatusCode, fmt.Errorf("vision request failed with status %d: %s", resp.StatusCode, string(msg))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", resp.StatusCode, ErrEmptyResponse
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), resp.StatusCode, nil
}
