package volc

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"fable/internal/pkg/id"
	"fable/internal/pkg/speech"
)

// 二进制帧消息类型
const (
	msgTypeFullClient  = 0x1
	msgTypeAudioServer = 0xB
	msgTypeFullServer  = 0x9
	msgTypeError       = 0xF
)

// StreamClient 火山引擎流式 TTS 客户端
// 走 WebSocket 二进制协议：音频帧乱序到达不保证与请求同步，
// 全部帧先进累积缓冲，会话结束帧（负序号）到达后一次性排干返回。
// 流式接口不带字符时间戳，时间轴由引擎用转写修正或均匀兜底。
// 实现 speech.SynthesisProvider
type StreamClient struct {
	cfg Config
	url string
}

// NewStreamClient 创建流式 TTS 客户端
func NewStreamClient(cfg Config) (*StreamClient, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("volc: TTS access token is required")
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "volcano_tts"
	}
	if cfg.VoiceType == "" {
		cfg.VoiceType = "BV115_streaming"
	}
	url := cfg.APIURL
	switch {
	case strings.HasPrefix(url, "wss:"), strings.HasPrefix(url, "ws:"):
	default:
		if url != "" {
			log.Warn().Str("api_url", url).Msg("unsupported TTS stream URL scheme, using default endpoint")
		}
		url = "wss://openspeech.bytedance.com/api/v1/tts/ws_binary"
	}
	return &StreamClient{cfg: cfg, url: url}, nil
}

// Synthesize 流式合成一段文本
// 每次调用建立独立连接与会话，音频帧按序号累积，收到末帧后返回完整音频
func (c *StreamClient) Synthesize(ctx context.Context, req speech.SynthesisRequest) (*speech.SynthesisResult, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer; %s", c.cfg.AccessToken))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("volc: dial websocket: %w", err)
	}
	defer conn.Close()

	// ReadMessage 不感知上下文：超时来自读截止时间，
	// 取消由看护协程关闭连接使阻塞中的读立即失败
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	requestID := id.New()
	payload, err := json.Marshal(c.buildStreamRequest(req, requestID))
	if err != nil {
		return nil, fmt.Errorf("volc: marshal request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(msgTypeFullClient, payload)); err != nil {
		return nil, fmt.Errorf("volc: send request: %w", err)
	}

	log.Debug().
		Str("request_id", requestID).
		Int("text_len", len([]rune(req.Text))).
		Msg("streaming TTS session started")

	// 累积缓冲：帧到达即追加，末帧（负序号）触发排干
	var buf bytes.Buffer
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			// 截止时间或取消触发的读失败按上下文错误上抛，走重试策略
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("volc: read frame: %w", err)
		}

		done, chunk, err := decodeFrame(frame)
		if err != nil {
			return nil, err
		}
		buf.Write(chunk)
		if done {
			break
		}
	}

	log.Debug().
		Str("request_id", requestID).
		Int("audio_bytes", buf.Len()).
		Msg("streaming TTS session finished")

	return &speech.SynthesisResult{AudioBytes: buf.Bytes()}, nil
}

// buildStreamRequest 构建流式请求体（submit 操作）
func (c *StreamClient) buildStreamRequest(req speech.SynthesisRequest, requestID string) map[string]interface{} {
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

	return map[string]interface{}{
		"app":  appConfig,
		"user": map[string]interface{}{"uid": requestID},
		"audio": map[string]interface{}{
			"voice_type":  voiceType,
			"encoding":    "mp3",
			"speed_ratio": speedRatio,
		},
		"request": map[string]interface{}{
			"reqid":     requestID,
			"text":      req.Text,
			"text_type": "plain",
			"operation": "submit",
		},
	}
}

// encodeFrame 编码客户端帧
// 4 字节头：版本/头长、消息类型/标志、序列化方式/压缩方式、保留位，
// 随后 4 字节大端 payload 长度 + gzip 压缩的 payload
func encodeFrame(msgType byte, payload []byte) []byte {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	zw.Write(payload)
	zw.Close()

	frame := make([]byte, 0, 8+compressed.Len())
	frame = append(frame, 0x11, msgType<<4, 0x11, 0x00)
	frame = binary.BigEndian.AppendUint32(frame, uint32(compressed.Len()))
	return append(frame, compressed.Bytes()...)
}

// decodeFrame 解码服务端帧
//
// Returns:
//   - done: 是否为会话末帧（负序号音频帧）
//   - audio: 音频负载（非音频帧为 nil）
func decodeFrame(frame []byte) (bool, []byte, error) {
	if len(frame) < 4 {
		return false, nil, fmt.Errorf("volc: frame too short: %d bytes", len(frame))
	}

	headerSize := int(frame[0]&0x0F) * 4
	msgType := frame[1] >> 4
	compression := frame[2] & 0x0F
	if len(frame) < headerSize {
		return false, nil, fmt.Errorf("volc: frame shorter than header: %d bytes", len(frame))
	}
	body := frame[headerSize:]

	switch msgType {
	case msgTypeAudioServer:
		if len(body) < 8 {
			return false, nil, fmt.Errorf("volc: audio frame too short")
		}
		sequence := int32(binary.BigEndian.Uint32(body[:4]))
		size := binary.BigEndian.Uint32(body[4:8])
		audio := body[8:]
		if uint32(len(audio)) > size {
			audio = audio[:size]
		}
		return sequence < 0, audio, nil

	case msgTypeError:
		if len(body) < 8 {
			return false, nil, fmt.Errorf("volc: error frame too short")
		}
		code := binary.BigEndian.Uint32(body[:4])
		msg := body[8:]
		if compression == 1 {
			msg = gunzip(msg)
		}
		return false, nil, fmt.Errorf("volc: server error %d: %s", code, string(msg))

	case msgTypeFullServer:
		// 会话元信息帧，无音频负载
		return false, nil, nil

	default:
		return false, nil, fmt.Errorf("volc: unexpected message type: 0x%X", msgType)
	}
}

// gunzip 解压 gzip 数据，失败时原样返回
func gunzip(data []byte) []byte {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return data
	}
	return out
}
