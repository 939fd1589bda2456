package volc

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"fable/internal/pkg/speech"
)

// audioFrame 构造服务端音频帧
func audioFrame(sequence int32, audio []byte) []byte {
	frame := []byte{0x11, msgTypeAudioServer << 4, 0x10, 0x00}
	frame = binary.BigEndian.AppendUint32(frame, uint32(sequence))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(audio)))
	return append(frame, audio...)
}

func TestDecodeFrame(t *testing.T) {
	Convey("decodeFrame 解析服务端二进制帧", t, func() {
		Convey("正序号音频帧返回负载且会话未结束", func() {
			done, audio, err := decodeFrame(audioFrame(1, []byte{0xAA, 0xBB}))

			So(err, ShouldBeNil)
			So(done, ShouldBeFalse)
			So(audio, ShouldResemble, []byte{0xAA, 0xBB})
		})

		Convey("负序号音频帧标记会话结束", func() {
			done, audio, err := decodeFrame(audioFrame(-1, []byte{0xCC}))

			So(err, ShouldBeNil)
			So(done, ShouldBeTrue)
			So(audio, ShouldResemble, []byte{0xCC})
		})

		Convey("元信息帧无音频负载", func() {
			frame := []byte{0x11, msgTypeFullServer << 4, 0x10, 0x00}
			done, audio, err := decodeFrame(frame)

			So(err, ShouldBeNil)
			So(done, ShouldBeFalse)
			So(audio, ShouldBeNil)
		})

		Convey("错误帧携带错误码与消息", func() {
			frame := []byte{0x11, msgTypeError << 4, 0x10, 0x00}
			frame = binary.BigEndian.AppendUint32(frame, 3001)
			frame = binary.BigEndian.AppendUint32(frame, 7)
			frame = append(frame, []byte("invalid")...)

			_, _, err := decodeFrame(frame)

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "3001")
			So(err.Error(), ShouldContainSubstring, "invalid")
		})

		Convey("截断帧报错而不是 panic", func() {
			_, _, err := decodeFrame([]byte{0x11})
			So(err, ShouldNotBeNil)

			_, _, err = decodeFrame([]byte{0x11, msgTypeAudioServer << 4, 0x10, 0x00, 0x00})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNewStreamClient(t *testing.T) {
	Convey("NewStreamClient 解析接入点", t, func() {
		Convey("ws 与 wss 接入点均被接受", func() {
			client, err := NewStreamClient(Config{AccessToken: "token", APIURL: "ws://localhost:9000/tts"})
			So(err, ShouldBeNil)
			So(client.url, ShouldEqual, "ws://localhost:9000/tts")

			client, err = NewStreamClient(Config{AccessToken: "token", APIURL: "wss://example.com/tts"})
			So(err, ShouldBeNil)
			So(client.url, ShouldEqual, "wss://example.com/tts")
		})

		Convey("其他协议回落到默认接入点", func() {
			client, err := NewStreamClient(Config{AccessToken: "token", APIURL: "http://example.com/tts"})
			So(err, ShouldBeNil)
			So(client.url, ShouldStartWith, "wss://openspeech.bytedance.com")
		})

		Convey("缺少令牌时报错", func() {
			_, err := NewStreamClient(Config{})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestStreamClient_SynthesizeTimeout(t *testing.T) {
	Convey("服务端静默时上下文超时中断会话", t, func() {
		upgrader := websocket.Upgrader{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			// 升级后保持静默，等客户端断开
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
		client, err := NewStreamClient(Config{AccessToken: "token", APIURL: wsURL})
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err = client.Synthesize(ctx, speech.SynthesisRequest{Text: "hola"})

		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		So(time.Since(start), ShouldBeLessThan, 2*time.Second)
	})
}

func TestEncodeFrame(t *testing.T) {
	Convey("encodeFrame 生成 gzip 压缩的客户端帧", t, func() {
		payload := []byte(`{"request":{"operation":"submit"}}`)
		frame := encodeFrame(msgTypeFullClient, payload)

		So(frame[0], ShouldEqual, byte(0x11))
		So(frame[1], ShouldEqual, byte(msgTypeFullClient<<4))

		size := binary.BigEndian.Uint32(frame[4:8])
		So(int(size), ShouldEqual, len(frame)-8)

		zr, err := gzip.NewReader(bytes.NewReader(frame[8:]))
		So(err, ShouldBeNil)
		decoded, err := io.ReadAll(zr)
		So(err, ShouldBeNil)
		So(decoded, ShouldResemble, payload)
	})
}
