package volc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"fable/internal/pkg/id"
	"fable/internal/pkg/speech"
)

// ASRConfig 火山引擎语音识别配置
type ASRConfig struct {
	APIURL      string `mapstructure:"api_url"`      // API 地址，默认: https://openspeech.bytedance.com/api/v1/asr
	AccessToken string `mapstructure:"access_token"` // 访问令牌（必需）
	AppID       string `mapstructure:"app_id"`       // 应用ID（可选）
	Cluster     string `mapstructure:"cluster"`      // 集群名称，默认: volcano_asr
}

// ASRClient 火山引擎 ASR 客户端
// 对合成音频做二次识别，拿到独立测量的词级时间戳与音频时长，
// 实现 speech.TranscriptionProvider
type ASRClient struct {
	cfg        ASRConfig
	httpClient *http.Client
}

// NewASRClient 创建 ASR 客户端
func NewASRClient(cfg ASRConfig) (*ASRClient, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("volc: ASR access token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://openspeech.bytedance.com/api/v1/asr"
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "volcano_asr"
	}
	return &ASRClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Transcribe 识别音频，返回文本、词级时间戳与实测时长
// 实现 speech.TranscriptionProvider 接口
func (c *ASRClient) Transcribe(ctx context.Context, audio []byte, languageHint string) (*speech.TranscriptionResult, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("volc: audio is empty")
	}

	requestID := id.New()
	reqBody, err := json.Marshal(c.buildRequestConfig(audio, requestID, languageHint))
	if err != nil {
		return nil, fmt.Errorf("volc: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("volc: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer; %s", c.cfg.AccessToken))
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("request_id", requestID).
		Int("audio_bytes", len(audio)).
		Msg("sending ASR request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("volc: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("volc: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("volc: API request failed, status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var apiResp map[string]interface{}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("volc: parse JSON response: %w", err)
	}

	code, _ := apiResp["code"].(float64)
	if code != 1000 {
		message, _ := apiResp["message"].(string)
		if message == "" {
			message = "unknown error"
		}
		return nil, fmt.Errorf("volc: API response error: %s (code: %.0f)", message, code)
	}

	return parseRecognition(apiResp)
}

// buildRequestConfig 构建请求体（show_utterances 带出词级时间戳）
func (c *ASRClient) buildRequestConfig(audio []byte, requestID, languageHint string) map[string]interface{} {
	appConfig := map[string]interface{}{
		"token":   c.cfg.AccessToken,
		"cluster": c.cfg.Cluster,
	}
	if c.cfg.AppID != "" {
		appConfig["appid"] = c.cfg.AppID
	}

	requestConfig := map[string]interface{}{
		"reqid":           requestID,
		"show_utterances": true,
		"sequence":        1,
	}
	if languageHint != "" {
		requestConfig["language"] = languageHint
	}

	return map[string]interface{}{
		"app":     appConfig,
		"user":    map[string]interface{}{"uid": requestID},
		"request": requestConfig,
		"audio": map[string]interface{}{
			"format": "mp3",
			"data":   base64.StdEncoding.EncodeToString(audio),
		},
	}
}

// parseRecognition 解析识别结果
// result[0].utterances[].words 携带词级时间戳（毫秒）；
// addition.duration 为实测音频时长（毫秒）
func parseRecognition(apiResp map[string]interface{}) (*speech.TranscriptionResult, error) {
	results, ok := apiResp["result"].([]interface{})
	if !ok || len(results) == 0 {
		return nil, fmt.Errorf("volc: recognition result not found")
	}
	first, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("volc: malformed recognition result")
	}

	out := &speech.TranscriptionResult{}
	out.Text, _ = first["text"].(string)

	if addition, ok := apiResp["addition"].(map[string]interface{}); ok {
		if durationMs, ok := addition["duration"].(float64); ok {
			out.DurationSec = durationMs / 1000.0
		}
	}

	utterances, _ := first["utterances"].([]interface{})
	for _, uttItem := range utterances {
		utt, ok := uttItem.(map[string]interface{})
		if !ok {
			continue
		}
		words, _ := utt["words"].([]interface{})
		for _, wordItem := range words {
			wordInfo, ok := wordItem.(map[string]interface{})
			if !ok {
				continue
			}
			text, _ := wordInfo["text"].(string)
			startMs, _ := wordInfo["start_time"].(float64)
			endMs, _ := wordInfo["end_time"].(float64)
			if text == "" {
				continue
			}
			out.Words = append(out.Words, speech.TranscribedWord{
				Word:     text,
				StartSec: startMs / 1000.0,
				EndSec:   endMs / 1000.0,
			})
		}
	}

	if out.DurationSec == 0 && len(out.Words) > 0 {
		out.DurationSec = out.Words[len(out.Words)-1].EndSec
	}

	log.Debug().
		Int("words", len(out.Words)).
		Float64("duration_sec", out.DurationSec).
		Msg("ASR recognition parsed")
	return out, nil
}
