package speech

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// charsOf 按固定时长构造供应商字符序列
func charsOf(text string, perMs float64) CharAlignment {
	var chars CharAlignment
	for i, r := range []rune(text) {
		chars = append(chars, CharTiming{
			Char:       string(r),
			StartMs:    float64(i) * perMs,
			DurationMs: perMs,
		})
	}
	return chars
}

func alignChars(chars CharAlignment) []string {
	out := make([]string, len(chars))
	for i, c := range chars {
		out[i] = c.Char
	}
	return out
}

func TestCharAligner_Align(t *testing.T) {
	Convey("CharAligner.Align 能建立原文到供应商字符的映射", t, func() {
		aligner := NewCharAligner(5)

		Convey("完全一致的序列应逐位直接匹配（恒等）", func() {
			original := []rune("Hola mundo.")
			provider := alignChars(charsOf("Hola mundo.", 100))

			mapping := aligner.Align(original, provider)

			So(len(mapping.Mapped), ShouldEqual, len(original))
			for i := range original {
				So(mapping.Mapped[i], ShouldEqual, i)
				So(mapping.Matched[i], ShouldBeTrue)
			}
		})

		Convey("供应商插入的停顿标记不参与匹配", func() {
			original := []rune("ab cd")
			provider := []string{"a", "b", "pau", " ", "c", "d"}

			mapping := aligner.Align(original, provider)

			So(mapping.Mapped[0], ShouldEqual, 0)
			So(mapping.Mapped[1], ShouldEqual, 1)
			So(mapping.Mapped[2], ShouldEqual, 3) // 空格跳过 pau
			So(mapping.Mapped[3], ShouldEqual, 4)
			So(mapping.Mapped[4], ShouldEqual, 5)
			for i := range original {
				So(mapping.Matched[i], ShouldBeTrue)
			}
		})

		Convey("大小写与变音符号不敏感", func() {
			original := []rune("Café")
			provider := []string{"c", "a", "f", "e"}

			mapping := aligner.Align(original, provider)

			for i := range original {
				So(mapping.Matched[i], ShouldBeTrue)
				So(mapping.Mapped[i], ShouldEqual, i)
			}
		})

		Convey("无法匹配的位置也会被插值填充（全函数）", func() {
			original := []rune("xyz")
			provider := []string{"q", "q", "q"}

			mapping := aligner.Align(original, provider)

			for i := range original {
				So(mapping.Mapped[i], ShouldBeGreaterThanOrEqualTo, 0)
				So(mapping.Mapped[i], ShouldBeLessThan, len(provider))
				So(mapping.Matched[i], ShouldBeFalse)
			}
		})

		Convey("空输入不会 panic", func() {
			mapping := aligner.Align(nil, nil)
			So(len(mapping.Mapped), ShouldEqual, 0)

			mapping = aligner.Align([]rune("ab"), nil)
			So(len(mapping.Mapped), ShouldEqual, 2)
		})
	})
}

func TestWordTimingsFromChars(t *testing.T) {
	Convey("WordTimingsFromChars 由字符映射推导词时间戳", t, func() {
		tokenizer := NewTokenizer()
		aligner := NewCharAligner(5)

		Convey("逐位匹配时每个词都计为 matched", func() {
			text := "Hola mundo."
			chars := charsOf(text, 100)
			tokens := tokenizer.Words(text)
			mapping := aligner.Align([]rune(text), alignChars(chars))

			words, matched := WordTimingsFromChars(tokens, mapping, chars)

			So(len(words), ShouldEqual, 2)
			So(matched, ShouldEqual, 2)

			// "Hola" 占字符 [0,4)，每字符 100ms
			So(words[0].Word, ShouldEqual, "Hola")
			So(words[0].StartSec, ShouldAlmostEqual, 0.0, 1e-9)
			So(words[0].EndSec, ShouldAlmostEqual, 0.4, 1e-9)
			So(words[0].IsSynthetic, ShouldBeFalse)

			// "mundo." 占字符 [5,11)
			So(words[1].Word, ShouldEqual, "mundo.")
			So(words[1].StartSec, ShouldAlmostEqual, 0.5, 1e-9)
			So(words[1].EndSec, ShouldAlmostEqual, 1.1, 1e-9)

			// 偏移指向原文
			So(words[0].SourceCharStart, ShouldEqual, 0)
			So(words[0].SourceCharEnd, ShouldEqual, 4)
			So(words[1].SourceCharStart, ShouldEqual, 5)
			So(words[1].SourceCharEnd, ShouldEqual, 11)
		})

		Convey("词时间随字符时间单调", func() {
			text := "uno dos tres"
			chars := charsOf(text, 80)
			tokens := tokenizer.Words(text)
			mapping := aligner.Align([]rune(text), alignChars(chars))

			words, _ := WordTimingsFromChars(tokens, mapping, chars)

			So(len(words), ShouldEqual, 3)
			for i := 1; i < len(words); i++ {
				So(words[i].StartSec, ShouldBeGreaterThanOrEqualTo, words[i-1].StartSec)
			}
		})
	})
}
