package volc

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"fable/internal/pkg/speech"
)

func TestParseAddition(t *testing.T) {
	Convey("parseAddition 解析时长与字符时间戳", t, func() {
		Convey("duration 字符串毫秒转秒", func() {
			resp := map[string]interface{}{
				"addition": map[string]interface{}{"duration": "2500"},
			}
			durationSec, chars := parseAddition(resp)
			So(durationSec, ShouldAlmostEqual, 2.5, 1e-9)
			So(chars, ShouldBeNil)
		})

		Convey("duration 数字毫秒同样支持", func() {
			resp := map[string]interface{}{
				"addition": map[string]interface{}{"duration": 1200.0},
			}
			durationSec, _ := parseAddition(resp)
			So(durationSec, ShouldAlmostEqual, 1.2, 1e-9)
		})

		Convey("frontend 为 JSON 字符串时先解析再提取", func() {
			frontend, _ := json.Marshal(map[string]interface{}{
				"words": []interface{}{
					map[string]interface{}{"word": "ab", "start_time": 0.0, "end_time": 0.2},
				},
			})
			resp := map[string]interface{}{
				"addition": map[string]interface{}{
					"duration": "200",
					"frontend": string(frontend),
				},
			}

			durationSec, chars := parseAddition(resp)
			So(durationSec, ShouldAlmostEqual, 0.2, 1e-9)
			So(len(chars), ShouldEqual, 2)
		})

		Convey("缺少 addition 时返回零值", func() {
			durationSec, chars := parseAddition(map[string]interface{}{})
			So(durationSec, ShouldAlmostEqual, 0.0, 1e-9)
			So(chars, ShouldBeNil)
		})
	})
}

func TestParseFrontendChars(t *testing.T) {
	Convey("parseFrontendChars 把词级时间戳展开成字符级", t, func() {
		Convey("词内字符均分词时长", func() {
			frontend := map[string]interface{}{
				"words": []interface{}{
					map[string]interface{}{"word": "你好", "start_time": 0.0, "end_time": 0.4},
				},
			}

			chars := parseFrontendChars(frontend)

			So(len(chars), ShouldEqual, 2)
			So(chars[0].Char, ShouldEqual, "你")
			So(chars[0].StartMs, ShouldAlmostEqual, 0.0, 1e-9)
			So(chars[0].DurationMs, ShouldAlmostEqual, 200.0, 1e-9)
			So(chars[1].Char, ShouldEqual, "好")
			So(chars[1].StartMs, ShouldAlmostEqual, 200.0, 1e-9)
		})

		Convey("停顿标记整体保留不拆字符", func() {
			frontend := map[string]interface{}{
				"words": []interface{}{
					map[string]interface{}{"word": "hi", "start_time": 0.0, "end_time": 0.2},
					map[string]interface{}{"word": "pau", "start_time": 0.2, "end_time": 0.5},
					map[string]interface{}{"word": "yo", "start_time": 0.5, "end_time": 0.7},
				},
			}

			chars := parseFrontendChars(frontend)

			So(len(chars), ShouldEqual, 5)
			So(chars[2].Char, ShouldEqual, "pau")
			So(chars[2].StartMs, ShouldAlmostEqual, 200.0, 1e-9)
			So(chars[2].DurationMs, ShouldAlmostEqual, 300.0, 1e-9)
		})

		Convey("时间戳可直接喂给字符对齐器", func() {
			frontend := map[string]interface{}{
				"words": []interface{}{
					map[string]interface{}{"word": "ab", "start_time": 0.0, "end_time": 0.2},
				},
			}
			chars := parseFrontendChars(frontend)
			var alignment speech.CharAlignment = chars
			So(alignment[1].EndMs(), ShouldAlmostEqual, 200.0, 1e-9)
		})

		Convey("缺少 words 字段返回 nil", func() {
			So(parseFrontendChars(map[string]interface{}{}), ShouldBeNil)
		})
	})
}

func TestFixJSON(t *testing.T) {
	Convey("fixJSON 修复相邻对象间的缺逗号", t, func() {
		broken := `{"words":[{"word":"a"}{"word":"b"}]}`

		var parsed map[string]interface{}
		So(json.Unmarshal([]byte(broken), &parsed), ShouldNotBeNil)
		So(json.Unmarshal([]byte(fixJSON(broken)), &parsed), ShouldBeNil)

		words := parsed["words"].([]interface{})
		So(len(words), ShouldEqual, 2)
	})
}

func TestBuildRequestConfig(t *testing.T) {
	Convey("buildRequestConfig 填充默认值并携带前端时间戳开关", t, func() {
		client, err := NewClient(Config{AccessToken: "token"})
		So(err, ShouldBeNil)

		Convey("请求未指定音色时用配置默认值", func() {
			body := client.buildRequestConfig(speech.SynthesisRequest{Text: "hola"}, "req-1")

			audio := body["audio"].(map[string]interface{})
			So(audio["voice_type"], ShouldEqual, "BV115_streaming")
			So(audio["speed_ratio"], ShouldEqual, 1.0)

			request := body["request"].(map[string]interface{})
			So(request["with_frontend"], ShouldEqual, "1")
			So(request["frontend_type"], ShouldEqual, "unitTson")
			So(request["text"], ShouldEqual, "hola")
		})

		Convey("请求里的音色与语速优先", func() {
			body := client.buildRequestConfig(speech.SynthesisRequest{
				Text:  "hola",
				Voice: speech.VoiceConfig{VoiceID: "BV421", SpeedRatio: 1.3},
			}, "req-2")

			audio := body["audio"].(map[string]interface{})
			So(audio["voice_type"], ShouldEqual, "BV421")
			So(audio["speed_ratio"], ShouldEqual, 1.3)
		})
	})
}
