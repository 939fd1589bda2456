package volc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fable/internal/pkg/id"
	"fable/internal/pkg/speech"
)

// Config 火山引擎语音合成配置
type Config struct {
	APIURL      string `mapstructure:"api_url"`      // API 地址，默认: https://openspeech.bytedance.com/api/v1/tts
	AccessToken string `mapstructure:"access_token"` // 访问令牌（必需）
	AppID       string `mapstructure:"app_id"`       // 应用ID（可选）
	Cluster     string `mapstructure:"cluster"`      // 集群名称，默认: volcano_tts
	VoiceType   string `mapstructure:"voice_type"`   // 默认音色（请求未指定时使用）
	SampleRate  int    `mapstructure:"sample_rate"`  // 采样率，默认: 44100
}

// Client 火山引擎 TTS 客户端
// 调用一次性合成接口并解析字符级时间戳（with_frontend），
// 实现 speech.SynthesisProvider
// 参考: https://openspeech.bytedance.com/api/v1/tts
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 创建 TTS 客户端
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("volc: TTS access token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://openspeech.bytedance.com/api/v1/tts"
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "volcano_tts"
	}
	if cfg.VoiceType == "" {
		cfg.VoiceType = "BV115_streaming"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Synthesize 合成一段文本并解析字符级时间戳
// 实现 speech.SynthesisProvider 接口
func (c *Client) Synthesize(ctx context.Context, req speech.SynthesisRequest) (*speech.SynthesisResult, error) {
	requestID := id.New()
	reqBody, err := json.Marshal(c.buildRequestConfig(req, requestID))
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
		Int("text_len", len([]rune(req.Text))).
		Msg("sending TTS request")

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
		// 接口的 frontend 字段偶发缺逗号，先修复再解析
		if err := json.Unmarshal([]byte(fixJSON(string(respBody))), &apiResp); err != nil {
			return nil, fmt.Errorf("volc: parse JSON response: %w", err)
		}
	}

	code, _ := apiResp["code"].(float64)
	if code != 3000 {
		message, _ := apiResp["message"].(string)
		if message == "" {
			message = "unknown error"
		}
		return nil, fmt.Errorf("volc: API response error: %s (code: %.0f)", message, code)
	}

	audioBase64, ok := apiResp["data"].(string)
	if !ok {
		return nil, fmt.Errorf("volc: audio data not found in response")
	}
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, fmt.Errorf("volc: decode audio data: %w", err)
	}

	durationSec, chars := parseAddition(apiResp)

	return &speech.SynthesisResult{
		AudioBytes:    audio,
		DurationSec:   durationSec,
		CharAlignment: chars,
	}, nil
}

// buildRequestConfig 构建请求体
// with_frontend=1 + frontend_type=unitTson 让接口在 addition.frontend
// 中携带字符级时间戳
func (c *Client) buildRequestConfig(req speech.SynthesisRequest, requestID string) map[string]interface{} {
	appConfig := map[string]interface{}{
		"token":   c.cfg.AccessToken,
		"cluster": c.cfg.Cluster,
	}
	if c.cfg.AppID != "" {
		appConfig["appid"] = c.cfg.AppID
	}

	voiceType := req.Voice.VoiceID
	if voiceType == "" {
		voiceType = c.cfg.VoiceType
	}
	speedRatio := req.Voice.SpeedRatio
	if speedRatio <= 0 {
		speedRatio = 1.0
	}
	sampleRate := req.Voice.SampleRate
	if sampleRate == 0 {
		sampleRate = c.cfg.SampleRate
	}

	audioConfig := map[string]interface{}{
		"voice_type":       voiceType,
		"encoding":         "mp3",
		"compression_rate": 1,
		"rate":             sampleRate,
		"speed_ratio":      speedRatio,
		"volume_ratio":     1.0,
		"pitch_ratio":      1.0,
	}
	if req.Voice.LanguageHint != "" {
		audioConfig["language"] = req.Voice.LanguageHint
	}

	requestConfig := map[string]interface{}{
		"reqid":            requestID,
		"text":             req.Text,
		"text_type":        "plain",
		"operation":        "query",
		"silence_duration": "125",
		"with_frontend":    "1",
		"frontend_type":    "unitTson",
		"pure_english_opt": "1",
	}

	return map[string]interface{}{
		"app":     appConfig,
		"user":    map[string]interface{}{"uid": requestID},
		"audio":   audioConfig,
		"request": requestConfig,
	}
}

// parseAddition 解析 addition 字段：音频时长（秒）与字符级时间戳
func parseAddition(apiResp map[string]interface{}) (float64, speech.CharAlignment) {
	addition, ok := apiResp["addition"].(map[string]interface{})
	if !ok {
		return 0, nil
	}

	// duration 单位毫秒，可能是字符串或数字
	var durationSec float64
	switch v := addition["duration"].(type) {
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			durationSec = parsed / 1000.0
		}
	case float64:
		durationSec = v / 1000.0
	}

	var frontendData map[string]interface{}
	switch v := addition["frontend"].(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &frontendData); err != nil {
			if err := json.Unmarshal([]byte(fixJSON(v)), &frontendData); err != nil {
				log.Warn().Err(err).Msg("failed to parse frontend data")
				return durationSec, nil
			}
		}
	case map[string]interface{}:
		frontendData = v
	default:
		return durationSec, nil
	}

	return durationSec, parseFrontendChars(frontendData)
}

// parseFrontendChars 从 frontend.words 提取字符级时间戳
// 接口按词返回 start_time/end_time（秒），词内字符均分词时长；
// 字符序列是接口自身的文本表示，可能含 "pau" 之类的停顿标记
func parseFrontendChars(frontendData map[string]interface{}) speech.CharAlignment {
	words, ok := frontendData["words"].([]interface{})
	if !ok {
		return nil
	}

	var chars speech.CharAlignment
	for _, wordItem := range words {
		wordInfo, ok := wordItem.(map[string]interface{})
		if !ok {
			continue
		}

		word, _ := wordInfo["word"].(string)
		startTime, _ := wordInfo["start_time"].(float64)
		endTime, _ := wordInfo["end_time"].(float64)
		if word == "" {
			continue
		}

		if isPauseMarker(word) {
			chars = append(chars, speech.CharTiming{
				Char:       word,
				StartMs:    startTime * 1000,
				DurationMs: (endTime - startTime) * 1000,
			})
			continue
		}

		rs := []rune(word)
		charDurationMs := (endTime - startTime) * 1000 / float64(len(rs))
		for i, r := range rs {
			chars = append(chars, speech.CharTiming{
				Char:       string(r),
				StartMs:    startTime*1000 + float64(i)*charDurationMs,
				DurationMs: charDurationMs,
			})
		}
	}
	return chars
}

// isPauseMarker 接口在词序列中插入的停顿/静音标记
func isPauseMarker(word string) bool {
	switch word {
	case "pau", "sil", "sp":
		return true
	}
	return false
}

// fixJSON 修复接口返回中偶发的 JSON 缺逗号问题
func fixJSON(jsonStr string) string {
	fixed := strings.ReplaceAll(jsonStr, "}{", "},{")
	fixed = strings.ReplaceAll(fixed, "\"}{\"", "\"},{\"")
	fixed = strings.ReplaceAll(fixed, "}{\"phone", "},{\"phone")
	fixed = strings.ReplaceAll(fixed, "}{\"word", "},{\"word")
	return fixed
}
